package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

// Reader собирает сметы вместе с клиентом и продавцом.
// Только чтение: ни один метод не изменяет хранилище.
type Reader struct {
	store domain.RecordStore
}

// NewReader создаёт Reader поверх шлюза хранилища.
func NewReader(store domain.RecordStore) *Reader {
	return &Reader{store: store}
}

// LoadQuoteWithParties читает смету и связанных с ней клиента и продавца.
// NULL во внешнем ключе даёт пустую сторону; ссылка на отсутствующую запись — ошибку NotFound.
func (r *Reader) LoadQuoteWithParties(ctx context.Context, quoteID int64) (domain.QuoteAggregate, error) {
	return LoadQuoteWithParties(ctx, r.store, quoteID)
}

// LoadQuoteWithParties — то же, что Reader.LoadQuoteWithParties, для произвольного store
// (например, представления внутри транзакции).
func LoadQuoteWithParties(ctx context.Context, store domain.RecordStore, quoteID int64) (domain.QuoteAggregate, error) {
	return loadAggregate(ctx, store, quoteID, false)
}

// partyQuery описывает, откуда читать сторону сметы.
type partyQuery struct {
	collection domain.Collection
	fields     []string
	notFound   error
}

var (
	customerQuery = partyQuery{
		collection: domain.CollectionCustomers,
		fields:     []string{domain.FieldID, domain.PartyFieldName, domain.CustomerFieldPhone},
		notFound:   domain.ErrCustomerNotFound,
	}
	sellerQuery = partyQuery{
		collection: domain.CollectionSellers,
		fields:     []string{domain.FieldID, domain.PartyFieldName},
		notFound:   domain.ErrSellerNotFound,
	}
)

// loadAggregate при danglingAsNull отдаёт пустую сторону вместо ошибки,
// если внешний ключ указывает на удалённую запись.
func loadAggregate(ctx context.Context, store domain.RecordStore, quoteID int64, danglingAsNull bool) (domain.QuoteAggregate, error) {
	row, err := store.SelectOne(ctx, domain.CollectionQuotes, domain.ByID(quoteID))
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.QuoteAggregate{}, fmt.Errorf("quote %d: %w", quoteID, domain.ErrQuoteNotFound)
		}
		return domain.QuoteAggregate{}, err
	}

	quote, err := domain.QuoteFromRow(row)
	if err != nil {
		return domain.QuoteAggregate{}, err
	}

	agg := domain.QuoteAggregate{Quote: quote}
	if agg.Customer, err = loadParty(ctx, store, customerQuery, quote.CustomerID, danglingAsNull); err != nil {
		return domain.QuoteAggregate{}, fmt.Errorf("quote %d: %w", quoteID, err)
	}
	if agg.Seller, err = loadParty(ctx, store, sellerQuery, quote.SellerID, danglingAsNull); err != nil {
		return domain.QuoteAggregate{}, fmt.Errorf("quote %d: %w", quoteID, err)
	}
	return agg, nil
}

func loadParty(ctx context.Context, store domain.RecordStore, q partyQuery, id *int64, danglingAsNull bool) (*domain.Party, error) {
	if id == nil {
		return nil, nil
	}
	row, err := store.SelectOne(ctx, q.collection, domain.ByID(*id).Select(q.fields...))
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			if danglingAsNull {
				return nil, nil
			}
			return nil, fmt.Errorf("%s %d: %w", q.collection, *id, q.notFound)
		}
		return nil, err
	}
	party, err := domain.PartyFromRow(row)
	if err != nil {
		return nil, err
	}
	return &party, nil
}
