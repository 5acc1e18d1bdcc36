package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// Поля коллекции outbox_events.
const (
	FieldAggregateType = "aggregate_type"
	FieldAggregateID   = "aggregate_id"
	FieldEventType     = "event_type"
	FieldPayload       = "payload"
	FieldStatus        = "status"
	FieldAttemptCount  = "attempt_count"
	FieldUpdatedAt     = "updated_at"
)

// Статусы записей outbox.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

const defaultPullLimit = 100

// ErrMessageNotFound возвращается при попытке пометить отсутствующую запись.
var ErrMessageNotFound = fmt.Errorf("outbox message %w", domain.ErrNotFound)

// Repository хранит outbox в коллекции outbox_events того же хранилища, что и продажи.
// Внутри транзакции его создают поверх tx, чтобы событие фиксировалось вместе с продажей.
type Repository struct {
	store domain.RecordStore
	now   func() time.Time
}

// NewRepository создаёт outbox-репозиторий поверх шлюза хранилища.
func NewRepository(store domain.RecordStore) *Repository {
	return &Repository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := r.store.Insert(ctx, domain.CollectionOutbox, domain.Row{
		domain.FieldID:     msg.ID,
		FieldAggregateType: msg.AggregateType,
		FieldAggregateID:   msg.AggregateID,
		FieldEventType:     msg.EventType,
		FieldPayload:       string(msg.Payload),
		FieldStatus:        StatusPending,
		FieldAttemptCount:  int64(0),
		FieldUpdatedAt:     r.now(),
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}
	return msg, nil
}

func (r *Repository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}
	rows, err := r.store.Select(ctx, domain.CollectionOutbox,
		domain.Where(FieldStatus, StatusPending).Order(domain.FieldCreatedAt, false).WithLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		result = append(result, messageFromRow(row))
	}
	return result, nil
}

func (r *Repository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	rows, err := r.store.Select(ctx, domain.CollectionOutbox,
		domain.Where(FieldStatus, StatusPending).Select(domain.FieldCreatedAt))
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: len(rows)}
	for _, row := range rows {
		created, ok, err := row.Time(domain.FieldCreatedAt)
		if err != nil || !ok {
			continue
		}
		if stats.OldestPendingAt.IsZero() || created.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = created.UTC()
		}
	}
	return stats, nil
}

func (r *Repository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, StatusSent)
}

func (r *Repository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, StatusFailed)
}

func (r *Repository) markStatus(ctx context.Context, id, status string) error {
	current, err := r.store.SelectOne(ctx, domain.CollectionOutbox, domain.Where(domain.FieldID, id))
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return fmt.Errorf("%s: %w", id, ErrMessageNotFound)
		}
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}
	attempts, _, err := current.Int64(FieldAttemptCount)
	if err != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}

	updated, err := r.store.Update(ctx, domain.CollectionOutbox, domain.Where(domain.FieldID, id), domain.Row{
		FieldStatus:       status,
		FieldAttemptCount: attempts + 1,
		FieldUpdatedAt:    r.now(),
	})
	if err != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}
	if len(updated) == 0 {
		return fmt.Errorf("%s: %w", id, ErrMessageNotFound)
	}
	return nil
}

func messageFromRow(row domain.Row) domain.OutboxMessage {
	id, _ := row.Text(domain.FieldID)
	aggregateType, _ := row.Text(FieldAggregateType)
	aggregateID, _ := row.Text(FieldAggregateID)
	eventType, _ := row.Text(FieldEventType)
	payload, _ := row.Text(FieldPayload)
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       []byte(payload),
	}
}

var _ domain.OutboxRepository = (*Repository)(nil)
