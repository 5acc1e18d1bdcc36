package cleanup

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// Service удаляет клиентов, продавцов и сметы вместе с зависимыми записями.
// Сметы, на которые ссылается хотя бы одна продажа, не удаляются: история продаж не должна терять смету.
type Service struct {
	store  domain.RecordStore
	logger *log.Entry
}

// NewService создаёт сервис каскадного удаления.
func NewService(store domain.RecordStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cleanup")
	}
	return &Service{store: store, logger: logger}
}

// DeleteCustomer удаляет клиента и все его сметы. Возвращает число удалённых смет.
func (s *Service) DeleteCustomer(ctx context.Context, customerID int64) (int, error) {
	return s.deleteParty(ctx, domain.CollectionCustomers, domain.QuoteFieldCustomerID, customerID, domain.ErrCustomerNotFound)
}

// DeleteSeller удаляет продавца и все его сметы. Возвращает число удалённых смет.
func (s *Service) DeleteSeller(ctx context.Context, sellerID int64) (int, error) {
	return s.deleteParty(ctx, domain.CollectionSellers, domain.QuoteFieldSellerID, sellerID, domain.ErrSellerNotFound)
}

// DeleteQuote удаляет смету и её позиции.
func (s *Service) DeleteQuote(ctx context.Context, quoteID int64) error {
	logger := s.logger.WithField("quote_id", quoteID)

	err := s.run(ctx, func(store domain.RecordStore) error {
		if err := ensureNoSales(ctx, store, []int64{quoteID}); err != nil {
			return err
		}
		if err := deleteQuoteChildren(ctx, store, quoteID); err != nil {
			return err
		}
		deleted, err := store.Delete(ctx, domain.CollectionQuotes, domain.ByID(quoteID))
		if err != nil {
			return fmt.Errorf("delete quote %d: %w", quoteID, err)
		}
		if deleted == 0 {
			return fmt.Errorf("quote %d: %w", quoteID, domain.ErrQuoteNotFound)
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Warn("quote delete failed")
		return err
	}

	logger.Info("quote deleted")
	return nil
}

func (s *Service) deleteParty(ctx context.Context, collection domain.Collection, quoteField string, partyID int64, notFound error) (int, error) {
	logger := s.logger.WithFields(log.Fields{
		"collection": collection,
		"party_id":   partyID,
	})

	var removed int
	err := s.run(ctx, func(store domain.RecordStore) error {
		rows, err := store.Select(ctx, domain.CollectionQuotes, domain.Where(quoteField, partyID).Select(domain.FieldID))
		if err != nil {
			return fmt.Errorf("select quotes of %s %d: %w", collection, partyID, err)
		}
		quoteIDs := make([]int64, 0, len(rows))
		for _, row := range rows {
			id, err := row.ID()
			if err != nil {
				return err
			}
			quoteIDs = append(quoteIDs, id)
		}

		if err := ensureNoSales(ctx, store, quoteIDs); err != nil {
			return err
		}
		for _, quoteID := range quoteIDs {
			if err := deleteQuoteChildren(ctx, store, quoteID); err != nil {
				return err
			}
		}
		if len(quoteIDs) > 0 {
			if _, err := store.Delete(ctx, domain.CollectionQuotes, domain.Where(quoteField, partyID)); err != nil {
				return fmt.Errorf("delete quotes of %s %d: %w", collection, partyID, err)
			}
		}

		deleted, err := store.Delete(ctx, collection, domain.ByID(partyID))
		if err != nil {
			return fmt.Errorf("delete %s %d: %w", collection, partyID, err)
		}
		if deleted == 0 {
			return fmt.Errorf("%s %d: %w", collection, partyID, notFound)
		}
		removed = len(quoteIDs)
		return nil
	})
	if err != nil {
		logger.WithError(err).Warn("cascade delete failed")
		return 0, err
	}

	logger.WithField("quotes_deleted", removed).Info("cascade delete completed")
	return removed, nil
}

// run выполняет fn в транзакции, если хранилище её поддерживает.
func (s *Service) run(ctx context.Context, fn func(store domain.RecordStore) error) error {
	if tx, ok := s.store.(domain.Transactor); ok {
		return tx.WithinTx(ctx, fn)
	}
	return fn(s.store)
}

func ensureNoSales(ctx context.Context, store domain.RecordStore, quoteIDs []int64) error {
	for _, quoteID := range quoteIDs {
		sales, err := store.Select(ctx, domain.CollectionSales,
			domain.Where(domain.SaleFieldQuoteID, quoteID).Select(domain.FieldID).WithLimit(1))
		if err != nil {
			return fmt.Errorf("check sales of quote %d: %w", quoteID, err)
		}
		if len(sales) > 0 {
			return fmt.Errorf("quote %d: %w", quoteID, domain.ErrQuoteHasSales)
		}
	}
	return nil
}

// deleteQuoteChildren удаляет позиции сметы и отвязывает от неё напоминания.
func deleteQuoteChildren(ctx context.Context, store domain.RecordStore, quoteID int64) error {
	if _, err := store.Delete(ctx, domain.CollectionQuoteItems, domain.Where(domain.QuoteItemFieldQuoteID, quoteID)); err != nil {
		return fmt.Errorf("delete items of quote %d: %w", quoteID, err)
	}
	if _, err := store.Update(ctx, domain.CollectionReminders, domain.Where(domain.ReminderFieldQuoteID, quoteID), domain.Row{
		domain.ReminderFieldQuoteID: nil,
	}); err != nil {
		return fmt.Errorf("detach reminders of quote %d: %w", quoteID, err)
	}
	return nil
}
