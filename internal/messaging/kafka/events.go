package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// EventType определяет тип события
type EventType string

const (
	// Оформление
	EventTypeCheckoutSubmitted EventType = "checkout.submitted"
	EventTypeCheckoutAbandoned EventType = "checkout.abandoned"

	// Исходы платежа
	EventTypePaymentSucceeded EventType = "payment.succeeded"
	EventTypePaymentPending   EventType = "payment.pending"
	EventTypePaymentFailed    EventType = "payment.failed"
	EventTypePaymentSettled   EventType = "payment.settled"

	// Отчёт о статусе backend
	EventTypeStatusReported EventType = "order.status_reported"
)

// Topics для Kafka
const (
	TopicCheckoutEvents       = "storefront.checkout.events"
	TopicPaymentNotifications = "storefront.payment.notifications"
	TopicDeadLetterQueue      = "storefront.dlq" // Dead Letter Queue для недоставленных сообщений
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// PaymentEvent описывает событие оформления или исхода платежа.
type PaymentEvent struct {
	EventType         EventType      `json:"event_type"`
	OrderID           string         `json:"order_id"`
	UserID            string         `json:"user_id,omitempty"`
	TransactionStatus string         `json:"transaction_status,omitempty"`
	TotalAmount       int64          `json:"total_amount,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// NewPaymentEvent создает новое событие
func NewPaymentEvent(eventType EventType, orderID, transactionStatus string, metadata map[string]any) *PaymentEvent {
	return &PaymentEvent{
		EventType:         eventType,
		OrderID:           orderID,
		TransactionStatus: transactionStatus,
		Timestamp:         time.Now().UTC(),
		Metadata:          metadata,
	}
}

// PaymentNotification содержит асинхронное уведомление шлюза о статусе транзакции
// (формат HTTP-notification Midtrans, переложенный в Kafka).
type PaymentNotification struct {
	OrderID           string    `json:"order_id"`
	TransactionStatus string    `json:"transaction_status"`
	FraudStatus       string    `json:"fraud_status,omitempty"`
	TransactionTime   string    `json:"transaction_time,omitempty"`
	ReceivedAt        time.Time `json:"received_at,omitempty"`
}

// Settled сообщает, что уведомление подтверждает успешное списание.
// capture с fraud_status=challenge ещё не является оплатой.
func (n PaymentNotification) Settled() bool {
	switch n.TransactionStatus {
	case "settlement":
		return true
	case "capture":
		return n.FraudStatus == "" || n.FraudStatus == "accept"
	default:
		return false
	}
}

// ParsePaymentNotification парсит уведомление из сообщения
func ParsePaymentNotification(message *sarama.ConsumerMessage) (*PaymentNotification, error) {
	var n PaymentNotification
	if err := json.Unmarshal(message.Value, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment notification: %w", err)
	}
	n.OrderID = strings.TrimSpace(n.OrderID)
	n.TransactionStatus = strings.ToLower(strings.TrimSpace(n.TransactionStatus))
	n.FraudStatus = strings.ToLower(strings.TrimSpace(n.FraudStatus))
	if n.OrderID == "" {
		return nil, fmt.Errorf("payment notification without order_id")
	}
	if n.TransactionStatus == "" {
		return nil, fmt.Errorf("payment notification for order %s without transaction_status", n.OrderID)
	}
	return &n, nil
}

// ParsePaymentEvent парсит PaymentEvent из сообщения
func ParsePaymentEvent(message *sarama.ConsumerMessage) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment event: %w", err)
	}
	return &event, nil
}
