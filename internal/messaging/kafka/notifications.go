package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// SettlementApplier применяет асинхронный статус шлюза к заказу.
type SettlementApplier interface {
	ApplySettlement(ctx context.Context, orderID, transactionStatus string) error
}

// NewPaymentNotificationHandler возвращает обработчик топика уведомлений шлюза.
// Битые сообщения пропускаются: повтор их не исправит.
func NewPaymentNotificationHandler(applier SettlementApplier, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-notifications")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		notification, err := ParsePaymentNotification(message)
		if err != nil {
			logger.WithError(err).WithField("offset", message.Offset).Warn("skipping malformed payment notification")
			return nil
		}

		status := notification.TransactionStatus
		if status == "capture" && !notification.Settled() {
			logger.WithFields(log.Fields{
				"order_id":     notification.OrderID,
				"fraud_status": notification.FraudStatus,
			}).Info("capture is not accepted yet, ignoring")
			return nil
		}

		return applier.ApplySettlement(ctx, notification.OrderID, status)
	}
}
