package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

var (
	errUnknownCollection = errors.New("unknown collection")
	errUnknownColumn     = errors.New("unknown column")
	errUnfiltered        = errors.New("refusing to modify a collection without filter")
	errEmptyPatch        = errors.New("empty patch")
)

// columns перечисляет допустимые колонки каждой коллекции. Имена из Filter и Row
// сверяются с этим списком до построения SQL.
var columns = map[domain.Collection][]string{
	domain.CollectionCustomers: {
		"id", "nome", "cpfoucnpj", "telefone", "cidade", "rua", "bairro", "numero", "cep", "bloqueado", "nota", "created_at",
	},
	domain.CollectionSellers:  {"id", "nome", "numero", "created_at"},
	domain.CollectionProducts: {"id", "nome", "preco", "descricao", "ativo", "medida", "created_at"},
	domain.CollectionQuotes: {
		"id", "clienteFK", "vendedorFK", "totalOrcamento", "parcelas", "desconto", "faturada", "created_at",
	},
	domain.CollectionQuoteItems: {
		"id", "orcamentoFK", "produtoFK", "largura", "altura", "area", "quantidade", "transpasso", "created_at",
	},
	domain.CollectionReminders: {"id", "orcamentoFK", "dataAlert", "descricao", "created_at"},
	domain.CollectionSales: {
		"id", "orcamento_id", "cliente_id", "vendedor_id", "status", "valor_total", "data_cancelada", "observacoes", "created_at",
	},
	domain.CollectionOutbox: {
		"id", "aggregate_type", "aggregate_id", "event_type", "payload", "status", "attempt_count", "created_at", "updated_at",
	},
	domain.CollectionIdempotency: {
		"id", "request_hash", "response_body", "result_code", "status", "ttl_at", "created_at", "updated_at",
	},
}

var columnIndex = func() map[domain.Collection]map[string]struct{} {
	index := make(map[domain.Collection]map[string]struct{}, len(columns))
	for collection, names := range columns {
		set := make(map[string]struct{}, len(names))
		for _, name := range names {
			set[name] = struct{}{}
		}
		index[collection] = set
	}
	return index
}()

// queryer — общее подмножество *sql.DB, *sql.Tx и *sql.Conn.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// gateway реализует операции шлюза поверх соединения или транзакции.
type gateway struct {
	q       queryer
	timeout time.Duration
}

func (s *Store) gateway() gateway {
	return gateway{q: s.db, timeout: s.opTimeout}
}

func (s *Store) Select(ctx context.Context, collection domain.Collection, filter domain.Filter) ([]domain.Row, error) {
	return s.gateway().selectRows(ctx, collection, filter)
}

func (s *Store) SelectOne(ctx context.Context, collection domain.Collection, filter domain.Filter) (domain.Row, error) {
	return s.gateway().selectOne(ctx, collection, filter)
}

func (s *Store) Insert(ctx context.Context, collection domain.Collection, row domain.Row) (domain.Row, error) {
	return s.gateway().insert(ctx, collection, row)
}

func (s *Store) Update(ctx context.Context, collection domain.Collection, filter domain.Filter, patch domain.Row) ([]domain.Row, error) {
	return s.gateway().update(ctx, collection, filter, patch)
}

func (s *Store) Delete(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	return s.gateway().delete(ctx, collection, filter)
}

// WithinTx выполняет fn в транзакции READ COMMITTED. Ошибка fn откатывает транзакцию
// и возвращается без изменений.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.RecordStore) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.NewStoreError("begin", "", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.WithError(rbErr).Warn("rollback failed")
		}
	}()

	if err := fn(&txStore{gateway: gateway{q: tx, timeout: s.opTimeout}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.NewStoreError("commit", "", err)
	}
	committed = true
	return nil
}

// txStore — представление хранилища внутри WithinTx.
type txStore struct {
	gateway gateway
}

func (t *txStore) Select(ctx context.Context, collection domain.Collection, filter domain.Filter) ([]domain.Row, error) {
	return t.gateway.selectRows(ctx, collection, filter)
}

func (t *txStore) SelectOne(ctx context.Context, collection domain.Collection, filter domain.Filter) (domain.Row, error) {
	return t.gateway.selectOne(ctx, collection, filter)
}

func (t *txStore) Insert(ctx context.Context, collection domain.Collection, row domain.Row) (domain.Row, error) {
	return t.gateway.insert(ctx, collection, row)
}

func (t *txStore) Update(ctx context.Context, collection domain.Collection, filter domain.Filter, patch domain.Row) ([]domain.Row, error) {
	return t.gateway.update(ctx, collection, filter, patch)
}

func (t *txStore) Delete(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	return t.gateway.delete(ctx, collection, filter)
}

func (g gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g gateway) selectRows(ctx context.Context, collection domain.Collection, filter domain.Filter) ([]domain.Row, error) {
	query, args, err := buildSelect(collection, filter)
	if err != nil {
		return nil, domain.NewStoreError("select", collection, err)
	}
	return g.query(ctx, "select", collection, query, args)
}

func (g gateway) selectOne(ctx context.Context, collection domain.Collection, filter domain.Filter) (domain.Row, error) {
	rows, err := g.selectRows(ctx, collection, filter.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return rows[0], nil
}

func (g gateway) insert(ctx context.Context, collection domain.Collection, row domain.Row) (domain.Row, error) {
	query, args, err := buildInsert(collection, row)
	if err != nil {
		return nil, domain.NewStoreError("insert", collection, err)
	}
	rows, err := g.query(ctx, "insert", collection, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, domain.NewStoreError("insert", collection, fmt.Errorf("expected 1 returned row, got %d", len(rows)))
	}
	return rows[0], nil
}

func (g gateway) update(ctx context.Context, collection domain.Collection, filter domain.Filter, patch domain.Row) ([]domain.Row, error) {
	query, args, err := buildUpdate(collection, filter, patch)
	if err != nil {
		return nil, domain.NewStoreError("update", collection, err)
	}
	return g.query(ctx, "update", collection, query, args)
}

func (g gateway) delete(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	query, args, err := buildDelete(collection, filter)
	if err != nil {
		return 0, domain.NewStoreError("delete", collection, err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	res, err := g.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.NewStoreError("delete", collection, describe(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewStoreError("delete", collection, err)
	}
	return int(affected), nil
}

func (g gateway) query(ctx context.Context, op string, collection domain.Collection, query string, args []any) ([]domain.Row, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	rows, err := g.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError(op, collection, describe(err))
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, domain.NewStoreError(op, collection, err)
	}

	result := make([]domain.Row, 0)
	for rows.Next() {
		values := make([]any, len(names))
		pointers := make([]any, len(names))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, domain.NewStoreError(op, collection, fmt.Errorf("scan row: %w", err))
		}
		row := make(domain.Row, len(names))
		for i, name := range names {
			row[name] = normalizeScanned(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(op, collection, describe(err))
	}
	return result, nil
}

func buildSelect(collection domain.Collection, filter domain.Filter) (string, []any, error) {
	table, err := tableName(collection)
	if err != nil {
		return "", nil, err
	}

	projection := "*"
	if len(filter.Fields) > 0 {
		quoted := make([]string, 0, len(filter.Fields))
		for _, field := range filter.Fields {
			col, err := columnName(collection, field)
			if err != nil {
				return "", nil, err
			}
			quoted = append(quoted, col)
		}
		projection = strings.Join(quoted, ", ")
	}

	where, args, err := buildWhere(collection, filter.Eq, 1)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(projection)
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(where)

	if filter.OrderBy != "" {
		col, err := columnName(collection, filter.OrderBy)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(col)
		if filter.Desc {
			b.WriteString(" DESC")
		}
		// Второй ключ делает порядок детерминированным при равных значениях.
		if filter.OrderBy != domain.FieldID {
			b.WriteString(`, "id"`)
			if filter.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(filter.Limit))
	}
	return b.String(), args, nil
}

func buildInsert(collection domain.Collection, row domain.Row) (string, []any, error) {
	table, err := tableName(collection)
	if err != nil {
		return "", nil, err
	}

	fields := make([]string, 0, len(row))
	for field, value := range row {
		if field == domain.FieldCreatedAt {
			continue
		}
		if field == domain.FieldID && value == nil {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	if len(fields) == 0 {
		return "INSERT INTO " + table + " DEFAULT VALUES RETURNING *", nil, nil
	}

	cols := make([]string, 0, len(fields))
	placeholders := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for i, field := range fields {
		col, err := columnName(collection, field)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
		placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
		args = append(args, row[field])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return query, args, nil
}

func buildUpdate(collection domain.Collection, filter domain.Filter, patch domain.Row) (string, []any, error) {
	table, err := tableName(collection)
	if err != nil {
		return "", nil, err
	}
	if len(filter.Eq) == 0 {
		return "", nil, errUnfiltered
	}

	fields := make([]string, 0, len(patch))
	for field := range patch {
		if field == domain.FieldID || field == domain.FieldCreatedAt {
			continue
		}
		fields = append(fields, field)
	}
	if len(fields) == 0 {
		return "", nil, errEmptyPatch
	}
	sort.Strings(fields)

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+len(filter.Eq))
	for i, field := range fields {
		col, err := columnName(collection, field)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = $"+strconv.Itoa(i+1))
		args = append(args, patch[field])
	}

	where, whereArgs, err := buildWhere(collection, filter.Eq, len(args)+1)
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(sets, ", "), where)
	return query, args, nil
}

func buildDelete(collection domain.Collection, filter domain.Filter) (string, []any, error) {
	table, err := tableName(collection)
	if err != nil {
		return "", nil, err
	}
	if len(filter.Eq) == 0 {
		return "", nil, errUnfiltered
	}
	where, args, err := buildWhere(collection, filter.Eq, 1)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + table + where, args, nil
}

// buildWhere строит условие равенства; NULL сравнивается через IS NULL.
func buildWhere(collection domain.Collection, eq map[string]any, firstArg int) (string, []any, error) {
	if len(eq) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(eq))
	for field := range eq {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		col, err := columnName(collection, field)
		if err != nil {
			return "", nil, err
		}
		value := eq[field]
		if value == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		args = append(args, value)
		conds = append(conds, col+" = $"+strconv.Itoa(firstArg+len(args)-1))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func tableName(collection domain.Collection) (string, error) {
	if _, ok := columnIndex[collection]; !ok {
		return "", fmt.Errorf("%w: %q", errUnknownCollection, collection)
	}
	return pgx.Identifier{string(collection)}.Sanitize(), nil
}

func columnName(collection domain.Collection, field string) (string, error) {
	if _, ok := columnIndex[collection][field]; !ok {
		return "", fmt.Errorf("%w: %s.%s", errUnknownColumn, collection, field)
	}
	return pgx.Identifier{field}.Sanitize(), nil
}

// normalizeScanned приводит значения драйвера к типам, с которыми работает domain.Row.
func normalizeScanned(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// describe добавляет к ошибке PostgreSQL имя нарушенного ограничения.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("unique violation on %s: %w", pgErr.ConstraintName, err)
	case "23503":
		return fmt.Errorf("foreign key violation on %s: %w", pgErr.ConstraintName, err)
	default:
		return err
	}
}

var (
	_ domain.RecordStore = (*Store)(nil)
	_ domain.Transactor  = (*Store)(nil)
	_ domain.Pinger      = (*Store)(nil)
	_ domain.RecordStore = (*txStore)(nil)
)
