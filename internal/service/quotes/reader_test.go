package quotes_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/quotes"
	"github.com/vladislavdragonenkov/orcamentos/internal/storage/memory"
)

func insert(t *testing.T, store domain.RecordStore, collection domain.Collection, row domain.Row) int64 {
	t.Helper()
	stored, err := store.Insert(context.Background(), collection, row)
	require.NoError(t, err)
	id, err := stored.ID()
	require.NoError(t, err)
	return id
}

func TestLoadQuoteWithParties(t *testing.T) {
	store := memory.NewRecordStore()
	customerID := insert(t, store, domain.CollectionCustomers, domain.Row{domain.PartyFieldName: "Maria"})
	sellerID := insert(t, store, domain.CollectionSellers, domain.Row{domain.PartyFieldName: "João"})
	quoteID := insert(t, store, domain.CollectionQuotes, domain.Row{
		domain.QuoteFieldCustomerID: customerID,
		domain.QuoteFieldSellerID:   sellerID,
		domain.QuoteFieldTotal:      500.0,
		domain.QuoteFieldBilled:     false,
	})

	agg, err := quotes.NewReader(store).LoadQuoteWithParties(context.Background(), quoteID)
	require.NoError(t, err)
	require.Equal(t, quoteID, agg.ID)
	require.Equal(t, 500.0, agg.Total)
	require.False(t, agg.Billed)
	require.NotNil(t, agg.Customer)
	require.Equal(t, "Maria", agg.Customer.Name)
	require.NotNil(t, agg.Seller)
	require.Equal(t, "João", agg.Seller.Name)
}

func TestLoadQuoteWithParties_NullForeignKeys(t *testing.T) {
	store := memory.NewRecordStore()
	quoteID := insert(t, store, domain.CollectionQuotes, domain.Row{domain.QuoteFieldTotal: 10.0})

	agg, err := quotes.NewReader(store).LoadQuoteWithParties(context.Background(), quoteID)
	require.NoError(t, err)
	require.Nil(t, agg.Customer)
	require.Nil(t, agg.Seller)
}

func TestLoadQuoteWithParties_NotFound(t *testing.T) {
	store := memory.NewRecordStore()

	_, err := quotes.NewReader(store).LoadQuoteWithParties(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrQuoteNotFound)
	require.Equal(t, domain.KindNotFound, domain.Classify(err))
}

func TestLoadQuoteWithParties_DanglingCustomer(t *testing.T) {
	store := memory.NewRecordStore()
	quoteID := insert(t, store, domain.CollectionQuotes, domain.Row{
		domain.QuoteFieldCustomerID: int64(77),
		domain.QuoteFieldTotal:      10.0,
	})

	_, err := quotes.NewReader(store).LoadQuoteWithParties(context.Background(), quoteID)
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

func TestLoadQuoteWithParties_StoreFailure(t *testing.T) {
	store := memory.NewRecordStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := quotes.NewReader(store).LoadQuoteWithParties(ctx, 1)
	require.ErrorIs(t, err, domain.ErrStoreFailure)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestListSalesByStatus(t *testing.T) {
	store := memory.NewRecordStore()
	customerID := insert(t, store, domain.CollectionCustomers, domain.Row{domain.PartyFieldName: "Maria"})
	quoteID := insert(t, store, domain.CollectionQuotes, domain.Row{
		domain.QuoteFieldCustomerID: customerID,
		domain.QuoteFieldTotal:      300.0,
		domain.QuoteFieldBilled:     true,
	})
	insert(t, store, domain.CollectionSales, domain.Row{
		domain.SaleFieldQuoteID:    quoteID,
		domain.SaleFieldStatus:     string(domain.SaleStatusBilled),
		domain.SaleFieldTotalValue: 300.0,
	})
	insert(t, store, domain.CollectionSales, domain.Row{
		domain.SaleFieldQuoteID:    int64(999),
		domain.SaleFieldStatus:     string(domain.SaleStatusCancelled),
		domain.SaleFieldTotalValue: 50.0,
	})

	reader := quotes.NewReader(store)

	billed, err := reader.ListSalesByStatus(context.Background(), domain.SaleStatusBilled)
	require.NoError(t, err)
	require.Len(t, billed, 1)
	require.NotNil(t, billed[0].Quote)
	require.Equal(t, "Maria", billed[0].Quote.Customer.Name)

	cancelled, err := reader.ListSalesByStatus(context.Background(), domain.SaleStatusCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.Nil(t, cancelled[0].Quote)

	all, err := reader.ListSales(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestListSalesByStatus_DanglingPartyIsNull(t *testing.T) {
	store := memory.NewRecordStore()
	sellerID := insert(t, store, domain.CollectionSellers, domain.Row{domain.PartyFieldName: "João"})
	quoteID := insert(t, store, domain.CollectionQuotes, domain.Row{
		domain.QuoteFieldCustomerID: int64(77),
		domain.QuoteFieldSellerID:   sellerID,
		domain.QuoteFieldTotal:      120.0,
		domain.QuoteFieldBilled:     true,
	})
	insert(t, store, domain.CollectionSales, domain.Row{
		domain.SaleFieldQuoteID:    quoteID,
		domain.SaleFieldStatus:     string(domain.SaleStatusBilled),
		domain.SaleFieldTotalValue: 120.0,
	})

	reader := quotes.NewReader(store)

	billed, err := reader.ListSalesByStatus(context.Background(), domain.SaleStatusBilled)
	require.NoError(t, err)
	require.Len(t, billed, 1)
	require.NotNil(t, billed[0].Quote, "quote stays in the listing when its customer is gone")
	require.Equal(t, quoteID, billed[0].Quote.ID)
	require.Nil(t, billed[0].Quote.Customer)
	require.NotNil(t, billed[0].Quote.Seller)
	require.Equal(t, "João", billed[0].Quote.Seller.Name)

	// Чтение одной сметы по-прежнему сообщает о висячей ссылке.
	_, err = reader.LoadQuoteWithParties(context.Background(), quoteID)
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

func TestLoadQuoteWithParties_CustomerPhone(t *testing.T) {
	store := memory.NewRecordStore()
	withPhone := insert(t, store, domain.CollectionCustomers, domain.Row{
		domain.PartyFieldName:     "Maria",
		domain.CustomerFieldPhone: "11 99999-0000",
	})
	withoutPhone := insert(t, store, domain.CollectionCustomers, domain.Row{domain.PartyFieldName: "Ana"})

	reader := quotes.NewReader(store)
	for customerID, want := range map[int64]*string{withPhone: ptr("11 99999-0000"), withoutPhone: nil} {
		quoteID := insert(t, store, domain.CollectionQuotes, domain.Row{
			domain.QuoteFieldCustomerID: customerID,
			domain.QuoteFieldTotal:      10.0,
		})
		agg, err := reader.LoadQuoteWithParties(context.Background(), quoteID)
		require.NoError(t, err)
		require.NotNil(t, agg.Customer)
		require.Equal(t, want, agg.Customer.Phone)
	}
}

func ptr(s string) *string { return &s }
