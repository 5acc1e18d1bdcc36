package quotes

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// SaleWithQuote — продажа вместе с исходной сметой (для вкладок «В процессе» и «Отменённые»).
type SaleWithQuote struct {
	domain.Sale
	Quote *domain.QuoteAggregate `json:"orcamentos"`
}

// ListSales возвращает все продажи, новые первыми.
func (r *Reader) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := r.store.Select(ctx, domain.CollectionSales, domain.Filter{}.Order(domain.FieldCreatedAt, true))
	if err != nil {
		return nil, err
	}
	return decodeSales(rows)
}

// ListSalesByStatus возвращает продажи в статусе status вместе со сметами.
// Смета может отсутствовать, если её удалили вручную; тогда Quote остаётся nil.
// Клиент или продавец, на которых ссылается смета, но которых уже нет, отдаются как null.
func (r *Reader) ListSalesByStatus(ctx context.Context, status domain.SaleStatus) ([]SaleWithQuote, error) {
	rows, err := r.store.Select(ctx, domain.CollectionSales,
		domain.Where(domain.SaleFieldStatus, string(status)).Order(domain.FieldCreatedAt, true))
	if err != nil {
		return nil, err
	}
	sales, err := decodeSales(rows)
	if err != nil {
		return nil, err
	}

	cache := make(map[int64]*domain.QuoteAggregate)
	out := make([]SaleWithQuote, 0, len(sales))
	for _, sale := range sales {
		agg, ok := cache[sale.QuoteID]
		if !ok {
			loaded, err := loadAggregate(ctx, r.store, sale.QuoteID, true)
			switch {
			case err == nil:
				agg = &loaded
			case errors.Is(err, domain.ErrQuoteNotFound):
				agg = nil
			default:
				return nil, err
			}
			cache[sale.QuoteID] = agg
		}
		out = append(out, SaleWithQuote{Sale: sale, Quote: agg})
	}
	return out, nil
}

func decodeSales(rows []domain.Row) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sale, err := domain.SaleFromRow(row)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}
