package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// Поля запросов SaleLifecycle.
const (
	fieldQuoteID = "orcamento_id"
	fieldSaleID  = "venda_id"
	fieldNotes   = "observacoes"
)

// Lifecycle — операции движка жизненного цикла продаж.
type Lifecycle interface {
	ConfirmSale(ctx context.Context, quoteID int64, notes string) (domain.Sale, error)
	CancelSale(ctx context.Context, saleID int64, notes string) (domain.Sale, error)
	CancelInProcessQuote(ctx context.Context, quoteID int64, notes string) (domain.Sale, error)
}

// QuoteReader читает смету вместе с клиентом и продавцом.
type QuoteReader interface {
	LoadQuoteWithParties(ctx context.Context, quoteID int64) (domain.QuoteAggregate, error)
}

// SaleService реализует orcamentos.v1.SaleLifecycle поверх движка продаж.
type SaleService struct {
	UnimplementedSaleLifecycleServer

	engine   Lifecycle
	reader   QuoteReader
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
}

// NewSaleService конструирует сервис. idemRepo может быть nil: тогда
// заголовок idempotency-key игнорируется.
func NewSaleService(engine Lifecycle, reader QuoteReader, idemRepo domain.IdempotencyRepository, logger *log.Entry) *SaleService {
	if logger == nil {
		logger = log.New().WithField("component", "sale-grpc-service")
	}
	return &SaleService{
		engine:   engine,
		reader:   reader,
		idemRepo: idemRepo,
		logger:   logger,
	}
}

// ConfirmSale выставляет продажу по смете.
func (s *SaleService) ConfirmSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	quoteID, err := requiredID(req, fieldQuoteID)
	if err != nil {
		return nil, err
	}
	notes := optionalText(req, fieldNotes)

	return withIdempotency(s, ctx, SaleLifecycle_ConfirmSale_FullMethodName, req, func(ctx context.Context) (*structpb.Struct, error) {
		sale, err := s.engine.ConfirmSale(ctx, quoteID, notes)
		if err != nil {
			return nil, s.statusFromError(err, "ConfirmSale", log.Fields{"quote_id": quoteID})
		}
		return toStruct(sale)
	})
}

// CancelSale отменяет выставленную продажу.
func (s *SaleService) CancelSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	saleID, err := requiredID(req, fieldSaleID)
	if err != nil {
		return nil, err
	}
	notes := optionalText(req, fieldNotes)

	return withIdempotency(s, ctx, SaleLifecycle_CancelSale_FullMethodName, req, func(ctx context.Context) (*structpb.Struct, error) {
		sale, err := s.engine.CancelSale(ctx, saleID, notes)
		if err != nil {
			return nil, s.statusFromError(err, "CancelSale", log.Fields{"sale_id": saleID})
		}
		return toStruct(sale)
	})
}

// CancelInProcessQuote фиксирует отмену сметы, находящейся в процессе.
func (s *SaleService) CancelInProcessQuote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	quoteID, err := requiredID(req, fieldQuoteID)
	if err != nil {
		return nil, err
	}
	notes := optionalText(req, fieldNotes)

	return withIdempotency(s, ctx, SaleLifecycle_CancelInProcessQuote_FullMethodName, req, func(ctx context.Context) (*structpb.Struct, error) {
		sale, err := s.engine.CancelInProcessQuote(ctx, quoteID, notes)
		if err != nil {
			return nil, s.statusFromError(err, "CancelInProcessQuote", log.Fields{"quote_id": quoteID})
		}
		return toStruct(sale)
	})
}

// GetQuote возвращает смету с клиентом и продавцом.
func (s *SaleService) GetQuote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	quoteID, err := requiredID(req, fieldQuoteID)
	if err != nil {
		return nil, err
	}
	if s.reader == nil {
		return nil, status.Error(codes.Unimplemented, "quote reader is not configured")
	}

	agg, err := s.reader.LoadQuoteWithParties(ctx, quoteID)
	if err != nil {
		return nil, s.statusFromError(err, "GetQuote", log.Fields{"quote_id": quoteID})
	}
	return toStruct(agg)
}

// statusFromError переводит класс доменной ошибки в gRPC-код.
func (s *SaleService) statusFromError(err error, operation string, fields log.Fields) error {
	kind := domain.Classify(err)
	entry := s.logger.WithError(err).WithFields(fields).WithFields(log.Fields{
		"operation": operation,
		"kind":      string(kind),
	})

	var code codes.Code
	switch kind {
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindInvalidState:
		code = codes.FailedPrecondition
	case domain.KindPartialWrite:
		code = codes.DataLoss
	case domain.KindStoreFailure:
		code = codes.Unavailable
	case domain.KindTimeout:
		code = codes.DeadlineExceeded
	default:
		if errors.Is(err, context.Canceled) {
			code = codes.Canceled
		} else {
			code = codes.Internal
		}
	}

	switch code {
	case codes.NotFound, codes.FailedPrecondition, codes.Canceled:
		entry.Warn("request rejected")
	default:
		entry.Error("request failed")
	}
	return status.Error(code, err.Error())
}

func requiredID(req *structpb.Struct, field string) (int64, error) {
	if req == nil {
		return 0, status.Error(codes.InvalidArgument, "request is required")
	}
	value, ok := req.GetFields()[field]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}

	var id int64
	switch kind := value.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", field)
		}
		id = int64(n)
	case *structpb.Value_StringValue:
		parsed, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", field)
		}
		id = parsed
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", field)
	}
	if id <= 0 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be > 0", field)
	}
	return id, nil
}

func optionalText(req *structpb.Struct, field string) string {
	value, ok := req.GetFields()[field]
	if !ok {
		return ""
	}
	return value.GetStringValue()
}

// toStruct переводит JSON-представление значения в google.protobuf.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

var _ SaleLifecycleServer = (*SaleService)(nil)
