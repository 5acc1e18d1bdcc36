package lifecycle_test

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// faultyStore оборачивает хранилище без транзакций и позволяет внедрять сбои по коллекциям.
type faultyStore struct {
	inner domain.RecordStore

	mu          sync.Mutex
	insertErr   map[domain.Collection]error
	updateErr   map[domain.Collection]error
	deleteErr   map[domain.Collection]error
	beforeWrite func(op string, collection domain.Collection)
	writes      []string
}

func newFaultyStore(inner domain.RecordStore) *faultyStore {
	return &faultyStore{
		inner:     inner,
		insertErr: make(map[domain.Collection]error),
		updateErr: make(map[domain.Collection]error),
		deleteErr: make(map[domain.Collection]error),
	}
}

func (s *faultyStore) record(op string, collection domain.Collection) {
	s.mu.Lock()
	s.writes = append(s.writes, op+" "+string(collection))
	hook := s.beforeWrite
	s.mu.Unlock()
	if hook != nil {
		hook(op, collection)
	}
}

func (s *faultyStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *faultyStore) Select(ctx context.Context, collection domain.Collection, filter domain.Filter) ([]domain.Row, error) {
	return s.inner.Select(ctx, collection, filter)
}

func (s *faultyStore) SelectOne(ctx context.Context, collection domain.Collection, filter domain.Filter) (domain.Row, error) {
	return s.inner.SelectOne(ctx, collection, filter)
}

func (s *faultyStore) Insert(ctx context.Context, collection domain.Collection, row domain.Row) (domain.Row, error) {
	s.record("insert", collection)
	if err := s.insertErr[collection]; err != nil {
		return nil, domain.NewStoreError("insert", collection, err)
	}
	return s.inner.Insert(ctx, collection, row)
}

func (s *faultyStore) Update(ctx context.Context, collection domain.Collection, filter domain.Filter, patch domain.Row) ([]domain.Row, error) {
	s.record("update", collection)
	if err := s.updateErr[collection]; err != nil {
		return nil, domain.NewStoreError("update", collection, err)
	}
	return s.inner.Update(ctx, collection, filter, patch)
}

func (s *faultyStore) Delete(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	s.record("delete", collection)
	if err := s.deleteErr[collection]; err != nil {
		return 0, domain.NewStoreError("delete", collection, err)
	}
	return s.inner.Delete(ctx, collection, filter)
}

// txFaultyStore — то же, но с транзакциями: сбои внедряются внутрь WithinTx.
type txFaultyStore struct {
	*faultyStore
	tx domain.Transactor
}

func newTxFaultyStore(inner interface {
	domain.RecordStore
	domain.Transactor
}) *txFaultyStore {
	return &txFaultyStore{faultyStore: newFaultyStore(inner), tx: inner}
}

func (s *txFaultyStore) WithinTx(ctx context.Context, fn func(tx domain.RecordStore) error) error {
	return s.tx.WithinTx(ctx, func(tx domain.RecordStore) error {
		view := &faultyStore{
			inner:     tx,
			insertErr: s.insertErr,
			updateErr: s.updateErr,
			deleteErr: s.deleteErr,
		}
		return fn(view)
	})
}

var (
	_ domain.RecordStore = (*faultyStore)(nil)
	_ domain.Transactor  = (*txFaultyStore)(nil)
)
