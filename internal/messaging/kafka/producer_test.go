package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := newProducerWith(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewSaleEvent(domain.EventSaleConfirmed, domain.Sale{ID: 1, QuoteID: 7, Status: domain.SaleStatusBilled}, time.Now())

	if err := producer.PublishEvent(TopicSaleEvents, "1", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := newProducerWith(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewSaleEvent(domain.EventSaleCancelled, domain.Sale{ID: 1, Status: domain.SaleStatusCancelled}, time.Now())

	if err := producer.PublishEvent(TopicSaleEvents, "1", event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_SendWithHeaders(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType || string(msg.Headers[0].Value) != domain.EventSaleConfirmed {
			return fmt.Errorf("unexpected headers %v", msg.Headers)
		}
		return nil
	})

	producer := newProducerWith(mockProducer, nil)
	err := producer.Send(Message{
		Topic:   TopicDeadLetterQueue,
		Key:     "5",
		Value:   []byte(`{}`),
		Headers: map[string]string{HeaderEventType: domain.EventSaleConfirmed},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_SendRequiresTopic(t *testing.T) {
	producer := newProducerWith(mocks.NewSyncProducer(t, nil), nil)
	if err := producer.Send(Message{Key: "1"}); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestNewProducer_NoBrokers(t *testing.T) {
	if _, err := NewProducer(nil, nil); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestNewProducerConfig(t *testing.T) {
	config := newProducerConfig()
	if !config.Producer.Idempotent || config.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("producer must be idempotent with acks=all: %+v", config.Producer)
	}
	if config.Net.MaxOpenRequests != 1 {
		t.Fatalf("idempotent producer requires one in-flight request, got %d", config.Net.MaxOpenRequests)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("config must be valid: %v", err)
	}
}

func TestNewSaleEvent(t *testing.T) {
	customer := int64(3)
	notes := "cliente desistiu"
	cancelledAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sale := domain.Sale{
		ID:          9,
		QuoteID:     2,
		CustomerID:  &customer,
		Status:      domain.SaleStatusCancelled,
		TotalValue:  500,
		CancelledAt: &cancelledAt,
		Notes:       &notes,
	}

	event := NewSaleEvent(domain.EventSaleCancelled, sale, cancelledAt)

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded["status"] != "cancelada" || decoded["observacoes"] != notes {
		t.Errorf("unexpected event body: %s", raw)
	}
	if decoded["venda_id"] != float64(9) || decoded["orcamento_id"] != float64(2) {
		t.Errorf("unexpected identifiers: %s", raw)
	}
	if _, ok := decoded["vendedor_id"]; ok {
		t.Errorf("nil seller must be omitted: %s", raw)
	}
}
