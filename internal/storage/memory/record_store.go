package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

var (
	errDuplicateID = errors.New("duplicate id")
	errUnfiltered  = errors.New("refusing to modify a collection without filter")
)

// Option настраивает in-memory хранилище.
type Option func(*RecordStore)

// WithClock подменяет источник времени для created_at (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(s *RecordStore) {
		if now != nil {
			s.now = now
		}
	}
}

// RecordStore — in-memory реализация шлюза хранилища для локальной разработки и тестов.
// Транзакции сериализуются: WithinTx держит эксклюзивную блокировку на время fn
// и работает с копией данных, которая подменяет исходные только при успехе.
type RecordStore struct {
	mu   sync.RWMutex
	data *dataset
	now  func() time.Time
}

// NewRecordStore создаёт пустое хранилище.
func NewRecordStore(opts ...Option) *RecordStore {
	s := &RecordStore{
		data: newDataset(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecordStore) Select(ctx context.Context, collection domain.Collection, filter domain.Filter) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("select", collection, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.selectRows(collection, filter), nil
}

func (s *RecordStore) SelectOne(ctx context.Context, collection domain.Collection, filter domain.Filter) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("select one", collection, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.selectOne(collection, filter)
}

func (s *RecordStore) Insert(ctx context.Context, collection domain.Collection, row domain.Row) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("insert", collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.insert(collection, row, s.now())
}

func (s *RecordStore) Update(ctx context.Context, collection domain.Collection, filter domain.Filter, patch domain.Row) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("update", collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.update(collection, filter, patch)
}

func (s *RecordStore) Delete(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStoreError("delete", collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.delete(collection, filter)
}

// WithinTx выполняет fn над копией данных. Внутри fn нельзя обращаться к самому s,
// только к переданному tx: блокировка уже удерживается.
func (s *RecordStore) WithinTx(ctx context.Context, fn func(tx domain.RecordStore) error) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("begin", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(&txView{data: working, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("commit", "", err)
	}
	s.data = working
	return nil
}

// Ping всегда успешен для in-memory хранилища.
func (s *RecordStore) Ping(context.Context) error { return nil }

// txView — представление хранилища внутри WithinTx.
type txView struct {
	data *dataset
	now  func() time.Time
}

func (t *txView) Select(ctx context.Context, collection domain.Collection, filter domain.Filter) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("select", collection, err)
	}
	return t.data.selectRows(collection, filter), nil
}

func (t *txView) SelectOne(ctx context.Context, collection domain.Collection, filter domain.Filter) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("select one", collection, err)
	}
	return t.data.selectOne(collection, filter)
}

func (t *txView) Insert(ctx context.Context, collection domain.Collection, row domain.Row) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("insert", collection, err)
	}
	return t.data.insert(collection, row, t.now())
}

func (t *txView) Update(ctx context.Context, collection domain.Collection, filter domain.Filter, patch domain.Row) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("update", collection, err)
	}
	return t.data.update(collection, filter, patch)
}

func (t *txView) Delete(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStoreError("delete", collection, err)
	}
	return t.data.delete(collection, filter)
}

// dataset хранит строки коллекций в порядке вставки.
type dataset struct {
	tables map[domain.Collection][]domain.Row
	seq    map[domain.Collection]int64
}

func newDataset() *dataset {
	return &dataset{
		tables: make(map[domain.Collection][]domain.Row),
		seq:    make(map[domain.Collection]int64),
	}
}

func (d *dataset) clone() *dataset {
	out := newDataset()
	for name, rows := range d.tables {
		copied := make([]domain.Row, len(rows))
		for i, row := range rows {
			copied[i] = row.Clone()
		}
		out.tables[name] = copied
	}
	for name, seq := range d.seq {
		out.seq[name] = seq
	}
	return out
}

func (d *dataset) selectRows(collection domain.Collection, filter domain.Filter) []domain.Row {
	result := make([]domain.Row, 0)
	for _, row := range d.tables[collection] {
		if matches(row, filter.Eq) {
			result = append(result, row)
		}
	}

	if filter.OrderBy != "" {
		sort.SliceStable(result, func(i, j int) bool {
			c := compareValues(result[i][filter.OrderBy], result[j][filter.OrderBy])
			if filter.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	out := make([]domain.Row, len(result))
	for i, row := range result {
		out[i] = project(row, filter.Fields)
	}
	return out
}

func (d *dataset) selectOne(collection domain.Collection, filter domain.Filter) (domain.Row, error) {
	rows := d.selectRows(collection, filter.WithLimit(1))
	if len(rows) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return rows[0], nil
}

func (d *dataset) insert(collection domain.Collection, row domain.Row, now time.Time) (domain.Row, error) {
	stored := make(domain.Row, len(row)+2)
	for k, v := range row {
		stored[k] = normalizeStored(v)
	}

	if id, ok := stored[domain.FieldID]; ok && id != nil {
		for _, existing := range d.tables[collection] {
			if valuesEqual(existing[domain.FieldID], id) {
				return nil, domain.NewStoreError("insert", collection, fmt.Errorf("%w: %v", errDuplicateID, id))
			}
		}
	} else {
		d.seq[collection]++
		stored[domain.FieldID] = d.seq[collection]
	}
	stored[domain.FieldCreatedAt] = now

	d.tables[collection] = append(d.tables[collection], stored)
	return stored.Clone(), nil
}

func (d *dataset) update(collection domain.Collection, filter domain.Filter, patch domain.Row) ([]domain.Row, error) {
	if len(filter.Eq) == 0 {
		return nil, domain.NewStoreError("update", collection, errUnfiltered)
	}
	updated := make([]domain.Row, 0)
	for _, row := range d.tables[collection] {
		if !matches(row, filter.Eq) {
			continue
		}
		for k, v := range patch {
			if k == domain.FieldID || k == domain.FieldCreatedAt {
				continue
			}
			row[k] = normalizeStored(v)
		}
		updated = append(updated, row.Clone())
	}
	return updated, nil
}

func (d *dataset) delete(collection domain.Collection, filter domain.Filter) (int, error) {
	if len(filter.Eq) == 0 {
		return 0, domain.NewStoreError("delete", collection, errUnfiltered)
	}
	rows := d.tables[collection]
	kept := rows[:0]
	deleted := 0
	for _, row := range rows {
		if matches(row, filter.Eq) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	d.tables[collection] = kept
	return deleted, nil
}

func matches(row domain.Row, eq map[string]any) bool {
	for field, want := range eq {
		if !valuesEqual(row[field], want) {
			return false
		}
	}
	return true
}

func project(row domain.Row, fields []string) domain.Row {
	if len(fields) == 0 {
		return row.Clone()
	}
	out := make(domain.Row, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

// normalizeStored приводит значения к типам, которые вернул бы драйвер PostgreSQL.
func normalizeStored(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case []byte:
		return append([]byte(nil), x...)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()) //nolint:gosec // идентификаторы и количества помещаются в int64.
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalizeStored(rv.Elem().Interface())
	default:
		return v
	}
}

func valuesEqual(a, b any) bool {
	a, b = normalizeStored(a), normalizeStored(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ba, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && string(ba) == string(bb)
	}
	return a == b
}

// compareValues сравнивает значения для сортировки; NULL меньше любого значения.
func compareValues(a, b any) int {
	a, b = normalizeStored(a), normalizeStored(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

var (
	_ domain.RecordStore = (*RecordStore)(nil)
	_ domain.Transactor  = (*RecordStore)(nil)
	_ domain.Pinger      = (*RecordStore)(nil)
	_ domain.RecordStore = (*txView)(nil)
)
