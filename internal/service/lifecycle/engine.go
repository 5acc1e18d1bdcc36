package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	"github.com/vladislavdragonenkov/orcamentos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orcamentos/internal/metrics"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/outbox"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/quotes"
)

// Engine управляет жизненным циклом смета → продажа:
// Quoted → InProcess (ConfirmSale) → Cancelled (CancelSale или CancelInProcessQuote).
// Движок не хранит состояние между вызовами; всё состояние лежит в хранилище.
type Engine struct {
	store                  domain.RecordStore
	logger                 *log.Entry
	metrics                *metrics.LifecycleMetrics
	now                    func() time.Time
	rejectDuplicateConfirm bool
	outboxEvents           bool
	compensationTimeout    time.Duration
}

// NewEngine создаёт движок поверх шлюза хранилища.
// Если store реализует domain.Transactor, многошаговые операции выполняются в одной транзакции.
func NewEngine(store domain.RecordStore, opts ...Option) *Engine {
	e := &Engine{
		store:               store,
		logger:              log.WithField("component", "sale-lifecycle"),
		now:                 func() time.Time { return time.Now().UTC() },
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ConfirmSale выставляет продажу по смете и помечает смету как faturada.
// Повторный вызов для той же сметы создаёт ещё одну продажу, если не включён WithRejectDuplicateConfirm.
func (e *Engine) ConfirmSale(ctx context.Context, quoteID int64, notes string) (sale domain.Sale, err error) {
	finish := e.begin(domain.LifecycleOpConfirmSale)
	defer func() { finish(err) }()

	logger := e.logger.WithFields(log.Fields{
		"operation": domain.LifecycleOpConfirmSale,
		"quote_id":  quoteID,
	})

	err = e.run(ctx, func(s domain.RecordStore, atomic bool) error {
		var opErr error
		sale, opErr = e.confirm(ctx, s, atomic, quoteID, notes, logger)
		return opErr
	})
	if err != nil {
		logFailure(logger, err, "confirm sale failed")
		return domain.Sale{}, err
	}

	e.recordEvent(domain.EventSaleConfirmed)
	logger.WithFields(log.Fields{
		"sale_id":     sale.ID,
		"valor_total": sale.TotalValue,
	}).Info("sale confirmed")
	return sale, nil
}

// CancelSale отменяет выставленную продажу. Флаг faturada сметы не меняется.
// Пустые notes сохраняют прежние observacoes.
func (e *Engine) CancelSale(ctx context.Context, saleID int64, notes string) (sale domain.Sale, err error) {
	finish := e.begin(domain.LifecycleOpCancelSale)
	defer func() { finish(err) }()

	logger := e.logger.WithFields(log.Fields{
		"operation": domain.LifecycleOpCancelSale,
		"sale_id":   saleID,
	})

	err = e.run(ctx, func(s domain.RecordStore, atomic bool) error {
		var opErr error
		sale, opErr = e.cancelSale(ctx, s, atomic, saleID, notes, logger)
		return opErr
	})
	if err != nil {
		logFailure(logger, err, "cancel sale failed")
		return domain.Sale{}, err
	}

	e.recordEvent(domain.EventSaleCancelled)
	logger.WithField("quote_id", sale.QuoteID).Info("sale cancelled")
	return sale, nil
}

// CancelInProcessQuote фиксирует отказ клиента по выставленной смете новой продажей
// в статусе cancelada. Смета остаётся faturada для истории.
func (e *Engine) CancelInProcessQuote(ctx context.Context, quoteID int64, notes string) (sale domain.Sale, err error) {
	finish := e.begin(domain.LifecycleOpCancelInProcessQuote)
	defer func() { finish(err) }()

	logger := e.logger.WithFields(log.Fields{
		"operation": domain.LifecycleOpCancelInProcessQuote,
		"quote_id":  quoteID,
	})

	err = e.run(ctx, func(s domain.RecordStore, atomic bool) error {
		var opErr error
		sale, opErr = e.cancelInProcess(ctx, s, atomic, quoteID, notes, logger)
		return opErr
	})
	if err != nil {
		logFailure(logger, err, "cancel in-process quote failed")
		return domain.Sale{}, err
	}

	e.recordEvent(domain.EventQuoteProcessCancelled)
	logger.WithField("sale_id", sale.ID).Info("in-process quote cancelled")
	return sale, nil
}

// run выполняет fn в транзакции, если хранилище её поддерживает.
// atomic=false означает, что каждая запись фиксируется сразу.
func (e *Engine) run(ctx context.Context, fn func(s domain.RecordStore, atomic bool) error) error {
	if tx, ok := e.store.(domain.Transactor); ok {
		return tx.WithinTx(ctx, func(s domain.RecordStore) error {
			return fn(s, true)
		})
	}
	return fn(e.store, false)
}

func (e *Engine) confirm(ctx context.Context, s domain.RecordStore, atomic bool, quoteID int64, notes string, logger *log.Entry) (domain.Sale, error) {
	agg, err := quotes.LoadQuoteWithParties(ctx, s, quoteID)
	if err != nil {
		return domain.Sale{}, err
	}

	if e.rejectDuplicateConfirm {
		open, err := s.Select(ctx, domain.CollectionSales,
			domain.Where(domain.SaleFieldQuoteID, quoteID).
				And(domain.SaleFieldStatus, string(domain.SaleStatusBilled)).
				Select(domain.FieldID).
				WithLimit(1))
		if err != nil {
			return domain.Sale{}, fmt.Errorf("check open sales for quote %d: %w", quoteID, err)
		}
		if len(open) > 0 {
			return domain.Sale{}, fmt.Errorf("quote %d: %w", quoteID, domain.ErrAlreadyBilled)
		}
	}

	created, err := insertSale(ctx, s, domain.NewSaleFromQuote(agg.Quote, domain.SaleStatusBilled, notes, nil))
	if err != nil {
		return domain.Sale{}, fmt.Errorf("insert sale for quote %d: %w", quoteID, err)
	}

	if err := markBilled(ctx, s, quoteID); err != nil {
		if atomic {
			return domain.Sale{}, fmt.Errorf("mark quote %d billed: %w", quoteID, err)
		}
		return domain.Sale{}, e.compensate(ctx, quoteID, created.ID, err, logger)
	}

	if err := e.enqueue(ctx, s, atomic, domain.EventSaleConfirmed, created, logger); err != nil {
		return domain.Sale{}, err
	}
	return created, nil
}

func (e *Engine) cancelSale(ctx context.Context, s domain.RecordStore, atomic bool, saleID int64, notes string, logger *log.Entry) (domain.Sale, error) {
	row, err := s.SelectOne(ctx, domain.CollectionSales, domain.ByID(saleID))
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.Sale{}, fmt.Errorf("sale %d: %w", saleID, domain.ErrSaleNotFound)
		}
		return domain.Sale{}, err
	}
	current, err := domain.SaleFromRow(row)
	if err != nil {
		return domain.Sale{}, err
	}
	if current.IsCancelled() {
		return domain.Sale{}, fmt.Errorf("sale %d: %w", saleID, domain.ErrAlreadyCancelled)
	}

	patch := domain.Row{
		domain.SaleFieldStatus:      string(domain.SaleStatusCancelled),
		domain.SaleFieldCancelledAt: e.now().UTC(),
	}
	if notes != "" {
		patch[domain.SaleFieldNotes] = notes
	}

	// Условие по статусу не даёт двум параллельным отменам перезаписать друг друга.
	updated, err := s.Update(ctx, domain.CollectionSales,
		domain.ByID(saleID).And(domain.SaleFieldStatus, string(domain.SaleStatusBilled)), patch)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("cancel sale %d: %w", saleID, err)
	}
	if len(updated) == 0 {
		return domain.Sale{}, lostUpdate(ctx, s, saleID)
	}

	sale, err := domain.SaleFromRow(updated[0])
	if err != nil {
		return domain.Sale{}, err
	}
	if err := e.enqueue(ctx, s, atomic, domain.EventSaleCancelled, sale, logger); err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

func (e *Engine) cancelInProcess(ctx context.Context, s domain.RecordStore, atomic bool, quoteID int64, notes string, logger *log.Entry) (domain.Sale, error) {
	agg, err := quotes.LoadQuoteWithParties(ctx, s, quoteID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !agg.Billed {
		return domain.Sale{}, fmt.Errorf("quote %d: %w", quoteID, domain.ErrNotInProcess)
	}

	cancelledAt := e.now().UTC()
	created, err := insertSale(ctx, s, domain.NewSaleFromQuote(agg.Quote, domain.SaleStatusCancelled, notes, &cancelledAt))
	if err != nil {
		return domain.Sale{}, fmt.Errorf("insert cancelled sale for quote %d: %w", quoteID, err)
	}

	if err := e.enqueue(ctx, s, atomic, domain.EventQuoteProcessCancelled, created, logger); err != nil {
		return domain.Sale{}, err
	}
	return created, nil
}

// compensate удаляет продажу, если смету не удалось пометить faturada.
// Удаление выполняется даже при отменённом ctx запроса, но с собственным таймаутом.
func (e *Engine) compensate(ctx context.Context, quoteID, saleID int64, cause error, logger *log.Entry) error {
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.compensationTimeout)
	defer cancel()

	logger = logger.WithField("sale_id", saleID)
	if _, err := e.store.Delete(compCtx, domain.CollectionSales, domain.ByID(saleID)); err != nil {
		if e.metrics != nil {
			e.metrics.RecordCompensation(false)
			e.metrics.RecordPartialWrite()
		}
		logger.WithError(err).Error("compensating delete failed: sale exists but quote is not billed, manual reconciliation required")
		return &domain.PartialWriteError{
			Op:              string(domain.LifecycleOpConfirmSale),
			QuoteID:         quoteID,
			SaleID:          saleID,
			Err:             cause,
			CompensationErr: err,
		}
	}

	if e.metrics != nil {
		e.metrics.RecordCompensation(true)
	}
	logger.WithError(cause).Warn("quote update failed, sale removed by compensation")
	return fmt.Errorf("mark quote %d billed: %w", quoteID, cause)
}

// enqueue пишет событие в outbox. Вне транзакции сбой не отменяет уже
// зафиксированные записи и только логируется.
func (e *Engine) enqueue(ctx context.Context, s domain.RecordStore, atomic bool, eventType string, sale domain.Sale, logger *log.Entry) error {
	if !e.outboxEvents {
		return nil
	}

	err := enqueueEvent(ctx, s, eventType, sale, e.now())
	if err == nil || atomic {
		return err
	}
	logger.WithError(err).WithFields(log.Fields{
		"sale_id":    sale.ID,
		"event_type": eventType,
	}).Warn("failed to enqueue lifecycle event")
	return nil
}

func enqueueEvent(ctx context.Context, s domain.RecordStore, eventType string, sale domain.Sale, at time.Time) error {
	payload, err := json.Marshal(kafka.NewSaleEvent(eventType, sale, at))
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	_, err = outbox.NewRepository(s).Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeSale,
		AggregateID:   strconv.FormatInt(sale.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	})
	return err
}

func (e *Engine) recordEvent(eventType string) {
	if e.outboxEvents && e.metrics != nil {
		e.metrics.RecordOutboxEvent(eventType)
	}
}

func (e *Engine) begin(op domain.LifecycleOp) func(error) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.OperationStarted()
	}
	return func(err error) {
		if e.metrics != nil {
			e.metrics.OperationFinished(string(op), outcome(err), time.Since(start))
		}
	}
}

func insertSale(ctx context.Context, s domain.RecordStore, sale domain.Sale) (domain.Sale, error) {
	row, err := s.Insert(ctx, domain.CollectionSales, sale.Row())
	if err != nil {
		return domain.Sale{}, err
	}
	return domain.SaleFromRow(row)
}

func markBilled(ctx context.Context, s domain.RecordStore, quoteID int64) error {
	updated, err := s.Update(ctx, domain.CollectionQuotes, domain.ByID(quoteID), domain.Row{
		domain.QuoteFieldBilled: true,
	})
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return fmt.Errorf("quote %d: %w", quoteID, domain.ErrQuoteNotFound)
	}
	return nil
}

// lostUpdate объясняет, почему условное обновление не затронуло ни одной строки.
func lostUpdate(ctx context.Context, s domain.RecordStore, saleID int64) error {
	_, err := s.SelectOne(ctx, domain.CollectionSales, domain.ByID(saleID).Select(domain.FieldID))
	switch {
	case err == nil:
		return fmt.Errorf("sale %d: %w", saleID, domain.ErrAlreadyCancelled)
	case errors.Is(err, domain.ErrRecordNotFound):
		return fmt.Errorf("sale %d: %w", saleID, domain.ErrSaleNotFound)
	default:
		return err
	}
}

func outcome(err error) string {
	switch domain.Classify(err) {
	case "":
		return metrics.OutcomeSuccess
	case domain.KindNotFound:
		return metrics.OutcomeNotFound
	case domain.KindInvalidState:
		return metrics.OutcomeInvalidState
	case domain.KindPartialWrite:
		return metrics.OutcomePartialWrite
	case domain.KindTimeout:
		return metrics.OutcomeTimeout
	case domain.KindStoreFailure:
		return metrics.OutcomeStoreFailure
	default:
		return metrics.OutcomeInternal
	}
}

func logFailure(logger *log.Entry, err error, msg string) {
	switch domain.Classify(err) {
	case domain.KindNotFound, domain.KindInvalidState:
		logger.WithError(err).Warn(msg)
	default:
		logger.WithError(err).Error(msg)
	}
}
