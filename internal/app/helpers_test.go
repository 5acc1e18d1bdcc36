package app

import (
	"context"
	"io"
	"net"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// silentLogger возвращает logger, который ничего не пишет.
func silentLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("test", "app")
}

// seedQuote создаёт клиента, продавца и смету, ещё не выставленную к оплате.
func seedQuote(t *testing.T, store domain.RecordStore) int64 {
	t.Helper()
	ctx := context.Background()

	customer, err := store.Insert(ctx, domain.CollectionCustomers, domain.Row{domain.PartyFieldName: "Ana"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	seller, err := store.Insert(ctx, domain.CollectionSellers, domain.Row{domain.PartyFieldName: "Paulo"})
	if err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	quote, err := store.Insert(ctx, domain.CollectionQuotes, domain.Row{
		domain.QuoteFieldCustomerID: customer[domain.FieldID],
		domain.QuoteFieldSellerID:   seller[domain.FieldID],
		domain.QuoteFieldTotal:      320.0,
		domain.QuoteFieldBilled:     false,
	})
	if err != nil {
		t.Fatalf("seed quote: %v", err)
	}
	id, err := quote.ID()
	if err != nil {
		t.Fatalf("seed quote id: %v", err)
	}
	return id
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
