package domain

import (
	"errors"
	"strings"
)

var (
	// Ошибка проверки данных для оформления заказа.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork — транспортная ошибка, таймаут или временный отказ backend (5xx/408/429).
	ErrNetwork = errors.New("network error")
	// ErrGatewayUnavailable — backend не вернул токен платёжной сессии.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrReconciliationConflict — повторный терминальный исход для уже сверенного заказа.
	ErrReconciliationConflict = errors.New("reconciliation conflict")
	// Ошибка отсутствия действующего токена; её же даёт ответ backend 401.
	ErrUnauthenticated = errors.New("unauthenticated")
	// Ошибка отказа backend (4xx, кроме 401/408/429).
	ErrRequestRejected = errors.New("request rejected by backend")

	// Ошибка отрицательного количества позиции корзины.
	ErrInvalidQuantity = errors.New("quantity must be non-negative")
	// ErrCartItemNotFound возвращается, если позиции нет в корзине.
	ErrCartItemNotFound = errors.New("cart item not found")
	// Ошибка отсутствующего товара при добавлении в корзину.
	ErrProductRequired = errors.New("product_id is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderItemNotFound возвращается, если в заказе нет такой позиции.
	ErrOrderItemNotFound = errors.New("order item not found")
	// Отзыв можно оставить только по оплаченному заказу.
	ErrOrderNotCompleted = errors.New("order is not completed")
	// Ошибка повторного отзыва на позицию заказа.
	ErrReviewAlreadyExists = errors.New("review already exists")
	// Ошибка оценки вне диапазона 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrSessionNotFound возвращается, если по заказу нет активной платёжной сессии.
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrKeyNotFound возвращается, если ключа нет в локальном key/value хранилище.
	ErrKeyNotFound = errors.New("key not found")
	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибка пустого ключа попытки оформления.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка пустого хэша запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// Ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// Ключ уже использован для другого запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound возвращается, если записи по ключу нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// FieldError описывает одно нарушение валидации.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError перечисляет все некорректные поля сразу, а не первое найденное.
type ValidationError struct {
	Fields []FieldError
}

// Add добавляет нарушение.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Empty сообщает, что нарушений нет.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Has проверяет наличие нарушения по полю.
func (e *ValidationError) Has(field string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// FieldNames возвращает имена полей в порядке обнаружения.
func (e *ValidationError) FieldNames() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is делает ValidationError совместимой с errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsRetryable сообщает, можно ли повторить операцию с тем же ключом попытки.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrGatewayUnavailable)
}
