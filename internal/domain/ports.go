package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет читать и помечать события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// LifecycleOp задаёт константы операций жизненного цикла для метрик/логов.
type LifecycleOp string

const (
	LifecycleOpConfirmSale          LifecycleOp = "confirm_sale"
	LifecycleOpCancelSale           LifecycleOp = "cancel_sale"
	LifecycleOpCancelInProcessQuote LifecycleOp = "cancel_in_process_quote"
)

// Типы событий жизненного цикла, которые попадают в outbox.
const (
	EventSaleConfirmed         = "SaleConfirmed"
	EventSaleCancelled         = "SaleCancelled"
	EventQuoteProcessCancelled = "QuoteProcessCancelled"
)

// AggregateTypeSale — тип агрегата для событий продаж.
const AggregateTypeSale = "sale"

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
