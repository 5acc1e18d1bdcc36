package domain

import (
	"context"
	"errors"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён успешно и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

var (
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key is used with a different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// IdempotencyRecord хранит результат повторяемого запроса (ConfirmSale и т.п.).
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	ResultCode   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRepository хранит ключи идемпотентности.
type IdempotencyRepository interface {
	// CreateProcessing резервирует ключ. Для существующего ключа возвращает запись
	// и ErrIdempotencyKeyAlreadyExists либо ErrIdempotencyHashMismatch.
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, resultCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, resultCode int) error
	// Delete снимает резерв ключа: следующий запрос с ним выполнится заново.
	Delete(ctx context.Context, key string) error
	// DeleteExpired удаляет не более limit записей с ttl <= before.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
