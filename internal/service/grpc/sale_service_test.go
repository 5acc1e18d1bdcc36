package grpcsvc_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/orcamentos/internal/service/grpc"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/quotes"
	"github.com/vladislavdragonenkov/orcamentos/internal/storage/memory"
)

const bufSize = 1024 * 1024

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func idemCtx(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", key)
}

func newTestServer(t *testing.T, store *memory.RecordStore) grpcsvc.SaleLifecycleClient {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	logger := loggerForTests()
	engine := lifecycle.NewEngine(store, lifecycle.WithLogger(logger))
	service := grpcsvc.NewSaleService(engine, quotes.NewReader(store), idempotency.NewRepository(store), logger)

	server := grpc.NewServer()
	grpcsvc.RegisterSaleLifecycleServer(server, service)

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}

	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return grpcsvc.NewSaleLifecycleClient(conn)
}

func seedQuote(t *testing.T, store domain.RecordStore, billed bool) int64 {
	t.Helper()
	ctx := context.Background()

	customer, err := store.Insert(ctx, domain.CollectionCustomers, domain.Row{domain.PartyFieldName: "Maria"})
	require.NoError(t, err)
	row, err := store.Insert(ctx, domain.CollectionQuotes, domain.Row{
		domain.QuoteFieldCustomerID: customer[domain.FieldID],
		domain.QuoteFieldTotal:      500.0,
		domain.QuoteFieldBilled:     billed,
	})
	require.NoError(t, err)
	id, err := row.ID()
	require.NoError(t, err)
	return id
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return req
}

func countSales(t *testing.T, store domain.RecordStore) int {
	t.Helper()
	rows, err := store.Select(context.Background(), domain.CollectionSales, domain.Filter{})
	require.NoError(t, err)
	return len(rows)
}

func TestSaleService_ConfirmSale(t *testing.T) {
	store := memory.NewRecordStore()
	client := newTestServer(t, store)
	quoteID := seedQuote(t, store, false)

	resp, err := client.ConfirmSale(context.Background(), request(t, map[string]any{
		"orcamento_id": float64(quoteID),
		"observacoes":  "entrega em março",
	}))
	require.NoError(t, err)

	fields := resp.GetFields()
	require.Equal(t, "faturada", fields["status"].GetStringValue())
	require.Equal(t, float64(quoteID), fields["orcamento_id"].GetNumberValue())
	require.Equal(t, 500.0, fields["valor_total"].GetNumberValue())
	require.Equal(t, "entrega em março", fields["observacoes"].GetStringValue())
}

func TestSaleService_ConfirmSaleQuoteNotFound(t *testing.T) {
	store := memory.NewRecordStore()
	client := newTestServer(t, store)

	_, err := client.ConfirmSale(context.Background(), request(t, map[string]any{"orcamento_id": 42}))
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Zero(t, countSales(t, store))
}

func TestSaleService_InvalidArguments(t *testing.T) {
	client := newTestServer(t, memory.NewRecordStore())

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{name: "missing id", fields: map[string]any{"observacoes": "x"}},
		{name: "fractional id", fields: map[string]any{"orcamento_id": 1.5}},
		{name: "negative id", fields: map[string]any{"orcamento_id": -3}},
		{name: "not a number", fields: map[string]any{"orcamento_id": "abc"}},
		{name: "bool id", fields: map[string]any{"orcamento_id": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ConfirmSale(context.Background(), request(t, tt.fields))
			require.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestSaleService_CancelSaleTwice(t *testing.T) {
	store := memory.NewRecordStore()
	client := newTestServer(t, store)
	quoteID := seedQuote(t, store, false)

	confirmed, err := client.ConfirmSale(context.Background(), request(t, map[string]any{"orcamento_id": float64(quoteID)}))
	require.NoError(t, err)
	saleID := confirmed.GetFields()["id"].GetNumberValue()

	// Строковый идентификатор тоже принимается.
	cancelled, err := client.CancelSale(context.Background(), request(t, map[string]any{
		"venda_id":    "1",
		"observacoes": "cliente desistiu",
	}))
	require.NoError(t, err)
	require.Equal(t, saleID, cancelled.GetFields()["id"].GetNumberValue())
	require.Equal(t, "cancelada", cancelled.GetFields()["status"].GetStringValue())
	require.NotEmpty(t, cancelled.GetFields()["data_cancelada"].GetStringValue())

	_, err = client.CancelSale(context.Background(), request(t, map[string]any{"venda_id": saleID}))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestSaleService_CancelInProcessQuote(t *testing.T) {
	store := memory.NewRecordStore()
	client := newTestServer(t, store)

	notBilled := seedQuote(t, store, false)
	_, err := client.CancelInProcessQuote(context.Background(), request(t, map[string]any{"orcamento_id": float64(notBilled)}))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	billed := seedQuote(t, store, true)
	resp, err := client.CancelInProcessQuote(context.Background(), request(t, map[string]any{
		"orcamento_id": float64(billed),
		"observacoes":  "obra adiada",
	}))
	require.NoError(t, err)
	require.Equal(t, "cancelada", resp.GetFields()["status"].GetStringValue())
	require.Equal(t, float64(billed), resp.GetFields()["orcamento_id"].GetNumberValue())
}

func TestSaleService_GetQuote(t *testing.T) {
	store := memory.NewRecordStore()
	client := newTestServer(t, store)
	quoteID := seedQuote(t, store, false)

	resp, err := client.GetQuote(context.Background(), request(t, map[string]any{"orcamento_id": float64(quoteID)}))
	require.NoError(t, err)

	customer := resp.GetFields()["clientes"].GetStructValue()
	require.NotNil(t, customer)
	require.Equal(t, "Maria", customer.GetFields()["nome"].GetStringValue())

	_, isNull := resp.GetFields()["vendedores"].GetKind().(*structpb.Value_NullValue)
	require.True(t, isNull)

	_, err = client.GetQuote(context.Background(), request(t, map[string]any{"orcamento_id": 999}))
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestSaleService_IdempotentConfirmReplaysResponse(t *testing.T) {
	store := memory.NewRecordStore()
	client := newTestServer(t, store)
	quoteID := seedQuote(t, store, false)
	req := request(t, map[string]any{"orcamento_id": float64(quoteID)})

	first, err := client.ConfirmSale(idemCtx("confirm-1"), req)
	require.NoError(t, err)
	second, err := client.ConfirmSale(idemCtx("confirm-1"), req)
	require.NoError(t, err)

	require.Equal(t, first.GetFields()["id"].GetNumberValue(), second.GetFields()["id"].GetNumberValue())
	require.Equal(t, 1, countSales(t, store))

	// Тот же ключ с другим телом запроса отклоняется.
	_, err = client.ConfirmSale(idemCtx("confirm-1"), request(t, map[string]any{"orcamento_id": float64(quoteID), "observacoes": "x"}))
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	// Без ключа повторное выставление создаёт вторую продажу.
	_, err = client.ConfirmSale(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, countSales(t, store))
}

func TestSaleService_IdempotentFailureIsReplayed(t *testing.T) {
	store := memory.NewRecordStore()
	client := newTestServer(t, store)
	req := request(t, map[string]any{"orcamento_id": 1})

	_, err := client.ConfirmSale(idemCtx("missing-quote"), req)
	require.Equal(t, codes.NotFound, status.Code(err))

	// Смета появилась, но ответ по ключу уже зафиксирован.
	seedQuote(t, store, false)
	_, err = client.ConfirmSale(idemCtx("missing-quote"), req)
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Zero(t, countSales(t, store))
}
