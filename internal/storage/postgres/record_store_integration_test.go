package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

func TestRecordStore_PostgresQuoteAndSaleRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	customer, err := store.Insert(ctx, domain.CollectionCustomers, domain.Row{domain.PartyFieldName: "Maria"})
	require.NoError(t, err)
	customerID, err := customer.ID()
	require.NoError(t, err)

	quote, err := store.Insert(ctx, domain.CollectionQuotes, domain.Row{
		domain.QuoteFieldCustomerID: customerID,
		domain.QuoteFieldTotal:      500.0,
	})
	require.NoError(t, err)

	decoded, err := domain.QuoteFromRow(quote)
	require.NoError(t, err)
	require.Equal(t, 500.0, decoded.Total)
	require.False(t, decoded.Billed)
	require.Nil(t, decoded.SellerID)

	sale, err := store.Insert(ctx, domain.CollectionSales,
		domain.NewSaleFromQuote(decoded, domain.SaleStatusBilled, "primeira venda", nil).Row())
	require.NoError(t, err)

	saleDecoded, err := domain.SaleFromRow(sale)
	require.NoError(t, err)
	require.Equal(t, decoded.ID, saleDecoded.QuoteID)
	require.Equal(t, 500.0, saleDecoded.TotalValue)
	require.NotNil(t, saleDecoded.Notes)

	updated, err := store.Update(ctx, domain.CollectionSales,
		domain.ByID(saleDecoded.ID).And(domain.SaleFieldStatus, string(domain.SaleStatusBilled)),
		domain.Row{domain.SaleFieldStatus: string(domain.SaleStatusCancelled), domain.SaleFieldCancelledAt: time.Now().UTC()})
	require.NoError(t, err)
	require.Len(t, updated, 1)

	// Повторное условное обновление не находит строк.
	updated, err = store.Update(ctx, domain.CollectionSales,
		domain.ByID(saleDecoded.ID).And(domain.SaleFieldStatus, string(domain.SaleStatusBilled)),
		domain.Row{domain.SaleFieldStatus: string(domain.SaleStatusCancelled)})
	require.NoError(t, err)
	require.Empty(t, updated)

	rows, err := store.Select(ctx, domain.CollectionSales, domain.Where(domain.SaleFieldStatus, string(domain.SaleStatusCancelled)))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = store.SelectOne(ctx, domain.CollectionQuotes, domain.ByID(decoded.ID+100))
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestRecordStore_PostgresWithinTxRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errBoom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx domain.RecordStore) error {
		if _, err := tx.Insert(ctx, domain.CollectionSellers, domain.Row{domain.PartyFieldName: "João"}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	rows, err := store.Select(ctx, domain.CollectionSellers, domain.Filter{})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRecordStore_PostgresForeignKeyViolationIsStoreFailure(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := store.Insert(ctx, domain.CollectionSales, domain.Row{
		domain.SaleFieldQuoteID: int64(999),
		domain.SaleFieldStatus:  string(domain.SaleStatusBilled),
	})
	require.ErrorIs(t, err, domain.ErrStoreFailure)
	require.Contains(t, err.Error(), "foreign key violation")
}
