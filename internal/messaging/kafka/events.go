package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

const (
	TopicSaleEvents = "orcamentos.vendas.events"
	// TopicDeadLetterQueue получает события, не опубликованные за все попытки outbox worker.
	TopicDeadLetterQueue = "orcamentos.dlq"
)

// Envelope — тело каждой записи в topic событий и в DLQ.
// id совпадает с id записи outbox и служит ключом дедупликации у потребителей.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   at.UTC(),
	}
}

// SaleEvent — полезная нагрузка событий жизненного цикла продажи.
// Имена полей совпадают с колонками vendas, чтобы потребителям не нужен был маппинг.
type SaleEvent struct {
	EventType   string     `json:"event_type"`
	SaleID      int64      `json:"venda_id"`
	QuoteID     int64      `json:"orcamento_id"`
	CustomerID  *int64     `json:"cliente_id,omitempty"`
	SellerID    *int64     `json:"vendedor_id,omitempty"`
	Status      string     `json:"status"`
	TotalValue  float64    `json:"valor_total"`
	CancelledAt *time.Time `json:"data_cancelada,omitempty"`
	Notes       *string    `json:"observacoes,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// NewSaleEvent создает событие по состоянию продажи после операции.
func NewSaleEvent(eventType string, sale domain.Sale, at time.Time) *SaleEvent {
	return &SaleEvent{
		EventType:   eventType,
		SaleID:      sale.ID,
		QuoteID:     sale.QuoteID,
		CustomerID:  sale.CustomerID,
		SellerID:    sale.SellerID,
		Status:      string(sale.Status),
		TotalValue:  sale.TotalValue,
		CancelledAt: sale.CancelledAt,
		Notes:       sale.Notes,
		Timestamp:   at.UTC(),
	}
}
