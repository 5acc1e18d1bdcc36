package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound — базовая ошибка отсутствующей сущности.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState — операция недопустима в текущем состоянии сущности.
	ErrInvalidState = errors.New("invalid state")
	// ErrStoreFailure — базовая ошибка хранилища; ей соответствует любой *StoreError.
	ErrStoreFailure = errors.New("store failure")
	// ErrPartialWrite — первая запись транзакции прошла, следующая нет, откатить не удалось.
	ErrPartialWrite = errors.New("partial write")

	// ErrRecordNotFound возвращается шлюзом хранилища из SelectOne.
	ErrRecordNotFound = fmt.Errorf("record %w", ErrNotFound)
	// ErrQuoteNotFound возвращается, если сметы с таким id нет.
	ErrQuoteNotFound = fmt.Errorf("quote %w", ErrNotFound)
	// ErrSaleNotFound возвращается, если продажи с таким id нет.
	ErrSaleNotFound = fmt.Errorf("sale %w", ErrNotFound)
	// ErrCustomerNotFound возвращается, если clienteFK указывает на отсутствующего клиента.
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	// ErrSellerNotFound возвращается, если vendedorFK указывает на отсутствующего продавца.
	ErrSellerNotFound = fmt.Errorf("seller %w", ErrNotFound)

	// ErrAlreadyCancelled — продажа уже отменена, повторная отмена запрещена.
	ErrAlreadyCancelled = fmt.Errorf("%w: sale is already cancelled", ErrInvalidState)
	// ErrNotInProcess — смета не выставлена (faturada=false), отменять нечего.
	ErrNotInProcess = fmt.Errorf("%w: quote is not in process", ErrInvalidState)
	// ErrAlreadyBilled — у сметы уже есть открытая продажа (при включённой защите от дублей).
	ErrAlreadyBilled = fmt.Errorf("%w: quote already has a billed sale", ErrInvalidState)
	// ErrQuoteHasSales — смета связана с продажами и не может быть удалена.
	ErrQuoteHasSales = fmt.Errorf("%w: quote is referenced by sales", ErrInvalidState)
)

// StoreError описывает сбой вызова шлюза хранилища.
type StoreError struct {
	Op         string
	Collection Collection
	Err        error
}

// NewStoreError оборачивает ошибку драйвера. nil остаётся nil.
func NewStoreError(op string, collection Collection, err error) error {
	if err == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Op: op, Collection: collection, Err: err}
}

func (e *StoreError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is позволяет проверять errors.Is(err, ErrStoreFailure).
func (e *StoreError) Is(target error) bool { return target == ErrStoreFailure }

// PartialWriteError сообщает, что зависимая запись уже сохранена, а следующая — нет,
// и автоматическая компенсация не удалась. Требует ручной сверки.
type PartialWriteError struct {
	Op              string
	QuoteID         int64
	SaleID          int64
	Err             error
	CompensationErr error
}

func (e *PartialWriteError) Error() string {
	msg := fmt.Sprintf("%s: sale %d created but quote %d was not updated: %v", e.Op, e.SaleID, e.QuoteID, e.Err)
	if e.CompensationErr != nil {
		msg += fmt.Sprintf(" (compensation failed: %v)", e.CompensationErr)
	}
	return msg
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Is позволяет проверять errors.Is(err, ErrPartialWrite).
func (e *PartialWriteError) Is(target error) bool { return target == ErrPartialWrite }

// ErrorKind — класс ошибки для отображения на внешние протоколы.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindInvalidState ErrorKind = "invalid_state"
	KindPartialWrite ErrorKind = "partial_write"
	KindTimeout      ErrorKind = "timeout"
	KindStoreFailure ErrorKind = "store_failure"
	KindInternal     ErrorKind = "internal"
)

// Classify определяет класс ошибки. PartialWrite проверяется первым:
// он не должен смешиваться с обычным сбоем хранилища.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialWrite):
		return KindPartialWrite
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrStoreFailure):
		return KindStoreFailure
	default:
		return KindInternal
	}
}
