package domain

import (
	"net/url"
	"strings"
	"time"
)

// Статусы транзакции, которые платёжный шлюз передаёт в параметре transaction_status.
const (
	TransactionCapture    = "capture"
	TransactionSettlement = "settlement"
	TransactionPending    = "pending"
	TransactionDeny       = "deny"
	TransactionExpire     = "expire"
	TransactionCancel     = "cancel"
)

// Причины неуспеха, которые не приходят от шлюза.
const (
	// Пользователь закрыл страницу оплаты без статуса.
	FailureDismissed = "dismissed"
	// Оформление прервано приложением (отмена, таймаут сессии).
	FailureCancelled = "cancelled"
)

// SessionState описывает жизненный цикл платёжной сессии.
type SessionState string

const (
	SessionCreated      SessionState = "created"
	SessionAwaitingUser SessionState = "awaiting_user"
	SessionResolved     SessionState = "resolved"
)

// PaymentSession описывает открытую у шлюза сессию по одному заказу.
type PaymentSession struct {
	OrderID        string
	SessionToken   string
	RedirectURL    string
	IdempotencyKey string
	Draft          OrderDraft
	State          SessionState
	CreatedAt      time.Time
}

// OutcomeKind задаёт вариант исхода платежа.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomePending OutcomeKind = "pending"
	OutcomeFailed  OutcomeKind = "failed"
)

// PaymentOutcome — терминальный исход платёжной сессии. После создания не меняется.
type PaymentOutcome struct {
	kind              OutcomeKind
	orderID           string
	transactionStatus string
	reason            string
}

// PaymentSucceeded создаёт исход успешного платежа (capture или settlement).
func PaymentSucceeded(orderID, transactionStatus string) PaymentOutcome {
	return PaymentOutcome{kind: OutcomeSuccess, orderID: orderID, transactionStatus: transactionStatus}
}

// PaymentPending создаёт исход платежа, ожидающего подтверждения.
func PaymentPending(orderID string) PaymentOutcome {
	return PaymentOutcome{kind: OutcomePending, orderID: orderID, transactionStatus: TransactionPending}
}

// PaymentFailed создаёт исход неуспешного платежа. В reason передаётся статус шлюза либо dismissed/cancelled.
func PaymentFailed(orderID, reason string) PaymentOutcome {
	return PaymentOutcome{kind: OutcomeFailed, orderID: orderID, transactionStatus: reason, reason: reason}
}

func (o PaymentOutcome) Kind() OutcomeKind         { return o.kind }
func (o PaymentOutcome) OrderID() string           { return o.orderID }
func (o PaymentOutcome) TransactionStatus() string { return o.transactionStatus }
func (o PaymentOutcome) Reason() string            { return o.reason }
func (o PaymentOutcome) IsZero() bool              { return o.kind == "" }

// ReportedStatus возвращает значение transaction_status для /orders/update-status.
// Закрытие страницы backend понимает как "cancelled".
func (o PaymentOutcome) ReportedStatus() string {
	switch o.kind {
	case OutcomeSuccess:
		return o.transactionStatus
	case OutcomePending:
		return TransactionPending
	default:
		if o.reason == FailureDismissed {
			return FailureCancelled
		}
		return o.reason
	}
}

// OrderStatus возвращает статус записи истории для данного исхода.
func (o PaymentOutcome) OrderStatus() OrderStatus {
	switch o.kind {
	case OutcomeSuccess:
		return OrderStatusCompleted
	case OutcomePending:
		return OrderStatusPending
	default:
		return OrderStatusFailed
	}
}

func (o PaymentOutcome) String() string {
	if o.reason != "" {
		return string(o.kind) + "(" + o.reason + ")"
	}
	return string(o.kind)
}

// NavigationEvent описывает сигнал платёжной страницы: переход по URL или закрытие.
// OrderID заполняет транспорт, если знает заказ страницы.
type NavigationEvent struct {
	OrderID    string
	URL        string
	Closed     bool
	ReceivedAt time.Time
}

// Params извлекает order_id и transaction_status из URL события.
func (e NavigationEvent) Params() (orderID, transactionStatus string) {
	if e.URL == "" {
		return "", ""
	}
	parsed, err := url.Parse(e.URL)
	if err != nil {
		return "", ""
	}
	query := parsed.Query()
	return strings.TrimSpace(query.Get("order_id")), strings.ToLower(strings.TrimSpace(query.Get("transaction_status")))
}

// ClosesSurface сообщает, что событие означает закрытие платёжной страницы.
func (e NavigationEvent) ClosesSurface() bool {
	if e.Closed {
		return true
	}
	parsed, err := url.Parse(e.URL)
	if err != nil {
		return false
	}
	return strings.Contains(parsed.Path, "/close")
}
