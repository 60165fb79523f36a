package gateway

import (
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Classify определяет терминальный исход по навигационному событию.
// Функция чистая: второй результат false означает, что событие не терминальное
// либо относится к другому заказу.
func Classify(event domain.NavigationEvent, orderID string) (domain.PaymentOutcome, bool) {
	if event.OrderID != "" && event.OrderID != orderID {
		return domain.PaymentOutcome{}, false
	}

	paramOrderID, status := event.Params()
	if paramOrderID != "" && paramOrderID != orderID {
		return domain.PaymentOutcome{}, false
	}

	switch status {
	case domain.TransactionCapture, domain.TransactionSettlement:
		return domain.PaymentSucceeded(orderID, status), true
	case domain.TransactionPending:
		return domain.PaymentPending(orderID), true
	case domain.TransactionDeny, domain.TransactionExpire, domain.TransactionCancel:
		return domain.PaymentFailed(orderID, status), true
	}

	if event.ClosesSurface() {
		return domain.PaymentFailed(orderID, domain.FailureDismissed), true
	}
	return domain.PaymentOutcome{}, false
}
