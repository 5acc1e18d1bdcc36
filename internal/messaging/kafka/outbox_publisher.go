package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// Заголовки записи, по которым потребители фильтруют события без разбора тела.
const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderOutboxID      = "outbox_id"
)

// OutboxTopicPublisher отправляет сообщения outbox в один topic.
// Ключ записи — id продажи, поэтому события одной продажи идут в одну партицию по порядку.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicSaleEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	value, err := json.Marshal(NewEnvelope(msg, p.now()))
	if err != nil {
		return fmt.Errorf("marshal outbox envelope %s: %w", msg.ID, err)
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return p.producer.Send(Message{
		Topic: p.topic,
		Key:   key,
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     msg.EventType,
			HeaderAggregateType: msg.AggregateType,
			HeaderOutboxID:      msg.ID,
		},
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
