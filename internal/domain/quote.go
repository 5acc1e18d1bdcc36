package domain

import (
	"fmt"
	"time"
)

// Поля коллекции orcamentos.
const (
	QuoteFieldCustomerID   = "clienteFK"
	QuoteFieldSellerID     = "vendedorFK"
	QuoteFieldTotal        = "totalOrcamento"
	QuoteFieldInstallments = "parcelas"
	QuoteFieldDiscount     = "desconto"
	QuoteFieldBilled       = "faturada"
)

// Поля коллекции itensOrcamento.
const (
	QuoteItemFieldQuoteID   = "orcamentoFK"
	QuoteItemFieldProductID = "produtoFK"
)

// Поля коллекций clientes/vendedores, которые нужны агрегату сметы.
const (
	PartyFieldName     = "nome"
	CustomerFieldPhone = "telefone"
)

// ReminderFieldQuoteID — ссылка напоминания (alerta) на смету.
const ReminderFieldQuoteID = "orcamentoFK"

// Quote — смета (orçamento) для клиента.
type Quote struct {
	ID           int64     `json:"id"`
	CustomerID   *int64    `json:"clienteFK"`
	SellerID     *int64    `json:"vendedorFK"`
	Total        float64   `json:"totalOrcamento"`
	Installments int64     `json:"parcelas"`
	Discount     float64   `json:"desconto"`
	Billed       bool      `json:"faturada"`
	CreatedAt    time.Time `json:"created_at"`
}

// Party — краткое представление клиента или продавца.
type Party struct {
	ID    int64   `json:"id"`
	Name  string  `json:"nome"`
	Phone *string `json:"telefone,omitempty"`
}

// QuoteAggregate — смета вместе с клиентом и продавцом.
type QuoteAggregate struct {
	Quote
	Customer *Party `json:"clientes"`
	Seller   *Party `json:"vendedores"`
}

// QuoteFromRow собирает смету из строки хранилища.
func QuoteFromRow(row Row) (Quote, error) {
	var (
		q   Quote
		err error
	)
	if q.ID, err = row.ID(); err != nil {
		return Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	if q.CustomerID, err = optionalInt64(row, QuoteFieldCustomerID); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", q.ID, err)
	}
	if q.SellerID, err = optionalInt64(row, QuoteFieldSellerID); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", q.ID, err)
	}
	if q.Total, _, err = row.Float64(QuoteFieldTotal); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", q.ID, err)
	}
	if q.Installments, _, err = row.Int64(QuoteFieldInstallments); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", q.ID, err)
	}
	if q.Discount, _, err = row.Float64(QuoteFieldDiscount); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", q.ID, err)
	}
	if q.Billed, err = row.Bool(QuoteFieldBilled); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", q.ID, err)
	}
	if q.CreatedAt, _, err = row.Time(FieldCreatedAt); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", q.ID, err)
	}
	return q, nil
}

// Row возвращает строку для вставки (без id и created_at).
func (q Quote) Row() Row {
	return Row{
		QuoteFieldCustomerID:   nullableInt64(q.CustomerID),
		QuoteFieldSellerID:     nullableInt64(q.SellerID),
		QuoteFieldTotal:        q.Total,
		QuoteFieldInstallments: q.Installments,
		QuoteFieldDiscount:     q.Discount,
		QuoteFieldBilled:       q.Billed,
	}
}

// PartyFromRow читает id и nome клиента или продавца; telefone есть только у клиента.
func PartyFromRow(row Row) (Party, error) {
	id, err := row.ID()
	if err != nil {
		return Party{}, fmt.Errorf("decode party: %w", err)
	}
	party := Party{ID: id}
	party.Name, _ = row.Text(PartyFieldName)
	if phone, ok := row.Text(CustomerFieldPhone); ok {
		party.Phone = &phone
	}
	return party, nil
}
