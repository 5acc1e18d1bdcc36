package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// Поля коллекции idempotency_keys; ключ хранится в id.
const (
	FieldRequestHash  = "request_hash"
	FieldResponseBody = "response_body"
	FieldResultCode   = "result_code"
	FieldStatus       = "status"
	FieldTTLAt        = "ttl_at"
	FieldUpdatedAt    = "updated_at"
)

const defaultTTL = 24 * time.Hour

// Repository хранит ключи идемпотентности в шлюзе хранилища записей.
type Repository struct {
	store domain.RecordStore
	now   func() time.Time
}

// NewRepository создаёт репозиторий поверх шлюза хранилища.
func NewRepository(store domain.RecordStore) *Repository {
	return &Repository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	existing, err := r.Get(ctx, key)
	switch {
	case err == nil:
		return existing, conflict(existing, requestHash)
	case !errors.Is(err, domain.ErrIdempotencyKeyNotFound):
		return domain.IdempotencyRecord{}, err
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultTTL)
	}
	row, insertErr := r.store.Insert(ctx, domain.CollectionIdempotency, domain.Row{
		domain.FieldID:    key,
		FieldRequestHash:  requestHash,
		FieldResponseBody: nil,
		FieldResultCode:   int64(0),
		FieldStatus:       string(domain.IdempotencyStatusProcessing),
		FieldTTLAt:        ttlAt.UTC(),
		FieldUpdatedAt:    now,
	})
	if insertErr != nil {
		// Ключ мог занять параллельный запрос между чтением и вставкой.
		if existing, err := r.Get(ctx, key); err == nil {
			return existing, conflict(existing, requestHash)
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", insertErr)
	}
	return recordFromRow(row)
}

func (r *Repository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	row, err := r.store.SelectOne(ctx, domain.CollectionIdempotency, domain.Where(domain.FieldID, key))
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	return recordFromRow(row)
}

func (r *Repository) MarkDone(ctx context.Context, key string, responseBody []byte, resultCode int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, resultCode)
}

func (r *Repository) MarkFailed(ctx context.Context, key string, responseBody []byte, resultCode int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, resultCode)
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	deleted, err := r.store.Delete(ctx, domain.CollectionIdempotency, domain.Where(domain.FieldID, key))
	if err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	if deleted == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет просроченные записи, начиная с самых старых.
func (r *Repository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	filter := domain.Filter{}.Order(FieldTTLAt, false).Select(domain.FieldID, FieldTTLAt)
	if limit > 0 {
		filter = filter.WithLimit(limit)
	}
	rows, err := r.store.Select(ctx, domain.CollectionIdempotency, filter)
	if err != nil {
		return 0, fmt.Errorf("select expired idempotency records: %w", err)
	}

	removed := 0
	for _, row := range rows {
		ttlAt, ok, err := row.Time(FieldTTLAt)
		if err != nil {
			return removed, fmt.Errorf("decode idempotency ttl: %w", err)
		}
		if ok && ttlAt.After(before) {
			break
		}
		key, _ := row.Text(domain.FieldID)
		deleted, err := r.store.Delete(ctx, domain.CollectionIdempotency, domain.Where(domain.FieldID, key))
		if err != nil {
			return removed, fmt.Errorf("delete idempotency record: %w", err)
		}
		removed += deleted
	}
	return removed, nil
}

func (r *Repository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, resultCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	var body any
	if len(responseBody) > 0 {
		body = string(responseBody)
	}
	updated, err := r.store.Update(ctx, domain.CollectionIdempotency, domain.Where(domain.FieldID, key), domain.Row{
		FieldStatus:       string(status),
		FieldResponseBody: body,
		FieldResultCode:   int64(resultCode),
		FieldUpdatedAt:    r.now(),
	})
	if err != nil {
		return fmt.Errorf("mark idempotency record as %s: %w", status, err)
	}
	if len(updated) == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func conflict(existing domain.IdempotencyRecord, requestHash string) error {
	if existing.RequestHash != requestHash {
		return domain.ErrIdempotencyHashMismatch
	}
	return domain.ErrIdempotencyKeyAlreadyExists
}

func recordFromRow(row domain.Row) (domain.IdempotencyRecord, error) {
	key, _ := row.Text(domain.FieldID)
	hash, _ := row.Text(FieldRequestHash)
	statusText, _ := row.Text(FieldStatus)
	status := domain.IdempotencyStatus(statusText)
	if !status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency record %s: unknown status %q", key, statusText)
	}

	code, _, err := row.Int64(FieldResultCode)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	ttlAt, _, err := row.Time(FieldTTLAt)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	createdAt, _, err := row.Time(domain.FieldCreatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	updatedAt, _, err := row.Time(FieldUpdatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: hash,
		ResultCode:  int(code),
		Status:      status,
		TTLAt:       ttlAt,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	if body, ok := row.Text(FieldResponseBody); ok {
		record.ResponseBody = []byte(body)
	}
	return record, nil
}

var _ domain.IdempotencyRepository = (*Repository)(nil)
