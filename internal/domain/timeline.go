package domain

import "time"

// Типы событий в истории заказа.
const (
	TimelineOrderCreated      = "OrderCreated"
	TimelinePaymentSucceeded  = "PaymentSucceeded"
	TimelinePaymentPending    = "PaymentPending"
	TimelinePaymentFailed     = "PaymentFailed"
	TimelinePaymentSettled    = "PaymentSettled"
	TimelineStatusReported    = "StatusReported"
	TimelineStatusReportQueue = "StatusReportQueued"
	TimelineCartCleared       = "CartCleared"
	TimelineReviewSubmitted   = "ReviewSubmitted"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
