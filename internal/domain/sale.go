package domain

import (
	"fmt"
	"time"
)

// SaleStatus описывает жизненный цикл продажи: faturada → cancelada.
type SaleStatus string

const (
	// SaleStatusBilled — продажа выставлена по смете.
	SaleStatusBilled SaleStatus = "faturada"
	// SaleStatusCancelled — продажа отменена; конечный статус.
	SaleStatusCancelled SaleStatus = "cancelada"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusBilled, SaleStatusCancelled:
		return true
	default:
		return false
	}
}

// Поля коллекции vendas.
const (
	SaleFieldQuoteID     = "orcamento_id"
	SaleFieldCustomerID  = "cliente_id"
	SaleFieldSellerID    = "vendedor_id"
	SaleFieldStatus      = "status"
	SaleFieldTotalValue  = "valor_total"
	SaleFieldCancelledAt = "data_cancelada"
	SaleFieldNotes       = "observacoes"
)

// Sale — выставленная или отменённая продажа, созданная из сметы.
type Sale struct {
	ID          int64      `json:"id"`
	QuoteID     int64      `json:"orcamento_id"`
	CustomerID  *int64     `json:"cliente_id"`
	SellerID    *int64     `json:"vendedor_id"`
	Status      SaleStatus `json:"status"`
	TotalValue  float64    `json:"valor_total"`
	CancelledAt *time.Time `json:"data_cancelada"`
	Notes       *string    `json:"observacoes"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewSaleFromQuote копирует сумму и участников сметы в новую продажу.
// Пустые notes сохраняются как NULL.
func NewSaleFromQuote(q Quote, status SaleStatus, notes string, cancelledAt *time.Time) Sale {
	sale := Sale{
		QuoteID:     q.ID,
		CustomerID:  q.CustomerID,
		SellerID:    q.SellerID,
		Status:      status,
		TotalValue:  q.Total,
		CancelledAt: cancelledAt,
	}
	if notes != "" {
		sale.Notes = &notes
	}
	return sale
}

// IsCancelled сообщает, достигла ли продажа конечного статуса.
func (s Sale) IsCancelled() bool {
	return s.Status == SaleStatusCancelled
}

// Row возвращает строку для вставки (без id и created_at).
func (s Sale) Row() Row {
	return Row{
		SaleFieldQuoteID:     s.QuoteID,
		SaleFieldCustomerID:  nullableInt64(s.CustomerID),
		SaleFieldSellerID:    nullableInt64(s.SellerID),
		SaleFieldStatus:      string(s.Status),
		SaleFieldTotalValue:  s.TotalValue,
		SaleFieldCancelledAt: nullableTime(s.CancelledAt),
		SaleFieldNotes:       nullableString(s.Notes),
	}
}

// SaleFromRow собирает продажу из строки хранилища.
func SaleFromRow(row Row) (Sale, error) {
	var (
		s   Sale
		err error
		ok  bool
	)
	if s.ID, err = row.ID(); err != nil {
		return Sale{}, fmt.Errorf("decode sale: %w", err)
	}
	if s.QuoteID, _, err = row.Int64(SaleFieldQuoteID); err != nil {
		return Sale{}, fmt.Errorf("decode sale %d: %w", s.ID, err)
	}
	if s.CustomerID, err = optionalInt64(row, SaleFieldCustomerID); err != nil {
		return Sale{}, fmt.Errorf("decode sale %d: %w", s.ID, err)
	}
	if s.SellerID, err = optionalInt64(row, SaleFieldSellerID); err != nil {
		return Sale{}, fmt.Errorf("decode sale %d: %w", s.ID, err)
	}
	status, _ := row.Text(SaleFieldStatus)
	s.Status = SaleStatus(status)
	if !s.Status.Valid() {
		return Sale{}, fmt.Errorf("decode sale %d: unknown status %q", s.ID, status)
	}
	if s.TotalValue, _, err = row.Float64(SaleFieldTotalValue); err != nil {
		return Sale{}, fmt.Errorf("decode sale %d: %w", s.ID, err)
	}
	var cancelledAt time.Time
	if cancelledAt, ok, err = row.Time(SaleFieldCancelledAt); err != nil {
		return Sale{}, fmt.Errorf("decode sale %d: %w", s.ID, err)
	} else if ok {
		s.CancelledAt = &cancelledAt
	}
	if notes, present := row.Text(SaleFieldNotes); present {
		s.Notes = &notes
	}
	if s.CreatedAt, _, err = row.Time(FieldCreatedAt); err != nil {
		return Sale{}, fmt.Errorf("decode sale %d: %w", s.ID, err)
	}
	return s, nil
}
