package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orcamentos/internal/storage/memory"
)

type stubLifecycle struct {
	err   error
	calls int
}

func (s *stubLifecycle) ConfirmSale(context.Context, int64, string) (domain.Sale, error) {
	s.calls++
	return domain.Sale{}, s.err
}

func (s *stubLifecycle) CancelSale(context.Context, int64, string) (domain.Sale, error) {
	s.calls++
	return domain.Sale{}, s.err
}

func (s *stubLifecycle) CancelInProcessQuote(context.Context, int64, string) (domain.Sale, error) {
	s.calls++
	return domain.Sale{}, s.err
}

// stubIdempotency возвращает заданную ошибку из CreateProcessing.
type stubIdempotency struct {
	domain.IdempotencyRepository
	record domain.IdempotencyRecord
	err    error
}

func (s stubIdempotency) CreateProcessing(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	return s.record, s.err
}

func silentLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("test", "grpc")
}

func TestStatusFromError_MapsKinds(t *testing.T) {
	storeErr := domain.NewStoreError("update", domain.CollectionQuotes, errors.New("connection reset"))

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "not found", err: fmt.Errorf("quote 1: %w", domain.ErrQuoteNotFound), want: codes.NotFound},
		{name: "invalid state", err: domain.ErrAlreadyCancelled, want: codes.FailedPrecondition},
		{name: "partial write", err: &domain.PartialWriteError{Op: "confirm", QuoteID: 1, SaleID: 2, Err: storeErr}, want: codes.DataLoss},
		{name: "store failure", err: storeErr, want: codes.Unavailable},
		{name: "timeout", err: domain.NewStoreError("select", domain.CollectionSales, context.DeadlineExceeded), want: codes.DeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: codes.Canceled},
		{name: "internal", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubLifecycle{err: tt.err}
			svc := NewSaleService(engine, nil, nil, silentLogger())

			req, err := structpb.NewStruct(map[string]any{"venda_id": 3})
			require.NoError(t, err)

			_, err = svc.CancelSale(context.Background(), req)
			require.Equal(t, tt.want, status.Code(err))
			require.Equal(t, 1, engine.calls)
		})
	}
}

func TestGetQuote_WithoutReader(t *testing.T) {
	svc := NewSaleService(&stubLifecycle{}, nil, nil, silentLogger())

	req, err := structpb.NewStruct(map[string]any{"orcamento_id": 1})
	require.NoError(t, err)

	_, err = svc.GetQuote(context.Background(), req)
	require.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestWithIdempotency_ReplayStates(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"orcamento_id": 1})
	require.NoError(t, err)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(idempotencyKeyHeader, "k"))

	tests := []struct {
		name string
		repo stubIdempotency
		want codes.Code
	}{
		{
			name: "processing",
			repo: stubIdempotency{
				record: domain.IdempotencyRecord{Key: "k", Status: domain.IdempotencyStatusProcessing},
				err:    domain.ErrIdempotencyKeyAlreadyExists,
			},
			want: codes.Aborted,
		},
		{
			name: "failed without payload uses stored code",
			repo: stubIdempotency{
				record: domain.IdempotencyRecord{Key: "k", Status: domain.IdempotencyStatusFailed, ResultCode: int(codes.FailedPrecondition)},
				err:    domain.ErrIdempotencyKeyAlreadyExists,
			},
			want: codes.FailedPrecondition,
		},
		{
			name: "done with empty cache",
			repo: stubIdempotency{
				record: domain.IdempotencyRecord{Key: "k", Status: domain.IdempotencyStatusDone},
				err:    domain.ErrIdempotencyKeyAlreadyExists,
			},
			want: codes.Internal,
		},
		{
			name: "store unavailable",
			repo: stubIdempotency{err: domain.NewStoreError("select", domain.CollectionIdempotency, errors.New("down"))},
			want: codes.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubLifecycle{}
			svc := NewSaleService(engine, nil, tt.repo, silentLogger())

			_, err := svc.ConfirmSale(ctx, req)
			require.Equal(t, tt.want, status.Code(err))
			require.Zero(t, engine.calls)
		})
	}
}

func TestBuildIdempotencyRequestHash_DependsOnMethod(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"orcamento_id": 1, "observacoes": "a"})
	require.NoError(t, err)

	confirm, err := buildIdempotencyRequestHash(SaleLifecycle_ConfirmSale_FullMethodName, req)
	require.NoError(t, err)
	again, err := buildIdempotencyRequestHash(SaleLifecycle_ConfirmSale_FullMethodName, req)
	require.NoError(t, err)
	cancel, err := buildIdempotencyRequestHash(SaleLifecycle_CancelInProcessQuote_FullMethodName, req)
	require.NoError(t, err)

	require.Equal(t, confirm, again)
	require.NotEqual(t, confirm, cancel)
}

func TestWithIdempotency_TransientFailureReleasesKey(t *testing.T) {
	storeErr := domain.NewStoreError("insert", domain.CollectionSales, errors.New("connection reset"))

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "store failure", err: storeErr, want: codes.Unavailable},
		{name: "timeout", err: domain.NewStoreError("select", domain.CollectionQuotes, context.DeadlineExceeded), want: codes.DeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: codes.Canceled},
		{name: "internal", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := idempotency.NewRepository(memory.NewRecordStore())
			engine := &stubLifecycle{err: tt.err}
			svc := NewSaleService(engine, nil, repo, silentLogger())

			req, err := structpb.NewStruct(map[string]any{"orcamento_id": 7})
			require.NoError(t, err)
			ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(idempotencyKeyHeader, "k1"))

			_, err = svc.ConfirmSale(ctx, req)
			require.Equal(t, tt.want, status.Code(err))

			_, err = repo.Get(context.Background(), "k1")
			require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

			// Повтор с тем же ключом доходит до движка и фиксирует успех.
			engine.err = nil
			_, err = svc.ConfirmSale(ctx, req)
			require.NoError(t, err)
			require.Equal(t, 2, engine.calls)

			record, err := repo.Get(context.Background(), "k1")
			require.NoError(t, err)
			require.Equal(t, domain.IdempotencyStatusDone, record.Status)
		})
	}
}

func TestWithIdempotency_FinalFailureIsCached(t *testing.T) {
	repo := idempotency.NewRepository(memory.NewRecordStore())
	engine := &stubLifecycle{err: domain.ErrNotInProcess}
	svc := NewSaleService(engine, nil, repo, silentLogger())

	req, err := structpb.NewStruct(map[string]any{"orcamento_id": 7})
	require.NoError(t, err)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(idempotencyKeyHeader, "k2"))

	_, err = svc.CancelInProcessQuote(ctx, req)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	engine.err = nil
	_, err = svc.CancelInProcessQuote(ctx, req)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.Equal(t, 1, engine.calls)
}

func TestFinalFailure(t *testing.T) {
	for _, code := range []codes.Code{codes.NotFound, codes.FailedPrecondition, codes.InvalidArgument, codes.DataLoss} {
		require.True(t, finalFailure(code), code.String())
	}
	for _, code := range []codes.Code{codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Aborted, codes.Internal} {
		require.False(t, finalFailure(code), code.String())
	}
}
