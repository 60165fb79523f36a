package domain

import "time"

// IdempotencyStatus описывает состояние попытки оформления, привязанной к Idempotency-Key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — create-transaction отправлен или будет повторён с тем же ключом.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// Backend создал заказ, платёжная сессия сохранена.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// Попытка закрыта без заказа, ключ больше не используется.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит попытку оформления. RequestHash содержит отпечаток
// снимка корзины и покупателя, ResponseBody сохранённую платёжную сессию для повторной выдачи.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Replayable сообщает, что по ключу уже есть заказ и его сессию можно отдать повторно.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone && len(r.ResponseBody) > 0
}

// Expired сообщает, что попытка пережила TTL и подлежит очистке.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}
