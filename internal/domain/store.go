package domain

import "context"

// Collection — имя коллекции (таблицы) во внешнем хранилище.
type Collection string

const (
	CollectionCustomers   Collection = "clientes"
	CollectionSellers     Collection = "vendedores"
	CollectionProducts    Collection = "produtos"
	CollectionQuotes      Collection = "orcamentos"
	CollectionQuoteItems  Collection = "itensOrcamento"
	CollectionReminders   Collection = "alerta"
	CollectionSales       Collection = "vendas"
	CollectionOutbox      Collection = "outbox_events"
	CollectionIdempotency Collection = "idempotency_keys"
)

// Поля, общие для всех коллекций; значения присваивает хранилище.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
)

// Filter задаёт выборку: фильтры на равенство, сортировку и лимит.
type Filter struct {
	Eq      map[string]any
	Fields  []string
	OrderBy string
	Desc    bool
	Limit   int
}

// Where создаёт фильтр с одним условием равенства.
func Where(field string, value any) Filter {
	return Filter{Eq: map[string]any{field: value}}
}

// ByID — фильтр по первичному ключу.
func ByID(id int64) Filter {
	return Where(FieldID, id)
}

// And добавляет условие равенства, не изменяя исходный фильтр.
func (f Filter) And(field string, value any) Filter {
	eq := make(map[string]any, len(f.Eq)+1)
	for k, v := range f.Eq {
		eq[k] = v
	}
	eq[field] = value
	f.Eq = eq
	return f
}

// Order задаёт поле сортировки.
func (f Filter) Order(field string, desc bool) Filter {
	f.OrderBy = field
	f.Desc = desc
	return f
}

// WithLimit ограничивает количество строк (0 — без ограничения).
func (f Filter) WithLimit(limit int) Filter {
	f.Limit = limit
	return f
}

// Select ограничивает набор возвращаемых полей.
func (f Filter) Select(fields ...string) Filter {
	f.Fields = fields
	return f
}

// RecordStore — шлюз к внешнему хранилищу записей.
// Любой сбой возвращается как *StoreError; SelectOne без результата — ErrRecordNotFound.
type RecordStore interface {
	Select(ctx context.Context, collection Collection, filter Filter) ([]Row, error)
	SelectOne(ctx context.Context, collection Collection, filter Filter) (Row, error)
	// Insert сохраняет строку; хранилище присваивает id и created_at.
	Insert(ctx context.Context, collection Collection, row Row) (Row, error)
	Update(ctx context.Context, collection Collection, filter Filter, patch Row) ([]Row, error)
	Delete(ctx context.Context, collection Collection, filter Filter) (int, error)
}

// Transactor — необязательная возможность хранилища выполнить несколько вызовов атомарно.
// Если fn возвращает ошибку, все изменения внутри fn откатываются.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx RecordStore) error) error
}

// Pinger — проверка доступности хранилища для health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
