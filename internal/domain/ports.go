package domain

import (
	"context"
	"time"
)

// CartAPI описывает удалённое хранилище корзины коммерческого backend.
type CartAPI interface {
	// FetchCart возвращает подтверждённые backend позиции корзины пользователя.
	FetchCart(ctx context.Context, userID string) ([]CartItem, error)
	// AddCartItem создаёт новую строку корзины и возвращает её с серверным ID.
	AddCartItem(ctx context.Context, userID, productID string, quantity int) (CartItem, error)
	// UpdateCartItem меняет количество. Если backend не вернул позицию, ProductID будет пустым.
	UpdateCartItem(ctx context.Context, itemID string, quantity int) (CartItem, error)
	// DeleteCartItem удаляет строку; отсутствие строки на backend не считается ошибкой.
	DeleteCartItem(ctx context.Context, itemID string) error
}

// TransactionSession хранит ответ backend на создание заказа.
type TransactionSession struct {
	OrderID     string
	Token       string
	RedirectURL string
	HTTPStatus  int
}

// OrderAPI создаёт заказ и платёжную сессию у backend.
type OrderAPI interface {
	// CreateTransaction отправляет снимок с ключом идемпотентности.
	// Пустой токен в ответе даёт ErrGatewayUnavailable.
	CreateTransaction(ctx context.Context, idempotencyKey string, draft OrderDraft) (TransactionSession, error)
}

// StatusReporter сообщает backend итоговый статус транзакции.
type StatusReporter interface {
	ReportStatus(ctx context.Context, orderID, transactionStatus string) error
}

// RemoteOrderItem описывает позицию заказа в ответе backend.
type RemoteOrderItem struct {
	ID        string
	ProductID string
	Name      string
	Quantity  int
	Price     int64
}

// RemoteOrder описывает заказ в ответе backend.
type RemoteOrder struct {
	ID          string
	Status      string
	TotalAmount int64
	CreatedAt   time.Time
	Items       []RemoteOrderItem
}

// ReviewRequest содержит отзыв на позицию заказа.
type ReviewRequest struct {
	OrderItemID string
	ProductID   string
	Rating      int
	Comment     string
}

// HistoryAPI описывает историю заказов и отзывы на backend.
type HistoryAPI interface {
	ListOrders(ctx context.Context, userID string) ([]RemoteOrder, error)
	OrderDetail(ctx context.Context, orderID string) (RemoteOrder, error)
	SubmitReview(ctx context.Context, review ReviewRequest) error
}

// SessionProvider отдаёт текущего пользователя и bearer-токен.
type SessionProvider interface {
	Current(ctx context.Context) (Identity, error)
}

// KeyValueStore описывает локальное персистентное хранилище (токен, профиль, сохранённая форма, кэш истории).
type KeyValueStore interface {
	// Get возвращает ErrKeyNotFound, если ключа нет.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set сохраняет значение; ttl<=0 означает без срока.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CartCleaner убирает из корзины единицы оплаченного заказа.
type CartCleaner interface {
	RemoveItems(ctx context.Context, lines []PaidLine) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние попыток оформления по ключу идемпотентности.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// Типы событий outbox.
const (
	// OutboxEventStatusReport — отложенный отчёт о статусе транзакции для backend.
	OutboxEventStatusReport = "TransactionStatusReport"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
