package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

type candidateKind int

const (
	kindSkip candidateKind = iota
	// Уведомление шлюза, которое consumer не смог применить.
	kindNotification
	// Отчёт о статусе, который outbox не доставил backend.
	kindStatusReport
)

func (k candidateKind) String() string {
	switch k {
	case kindNotification:
		return "notification"
	case kindStatusReport:
		return "status_report"
	default:
		return "skip"
	}
}

// candidate хранит разобранное сообщение DLQ.
type candidate struct {
	kind         candidateKind
	notification replayMessage
	report       domain.OutboxMessage
}

type replayMessage struct {
	topic string
	key   string
	value []byte
}

// consumerDLQPayload пишет Kafka consumer, исчерпав попытки обработки.
type consumerDLQPayload struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	ErrorMessage  string `json:"error_message"`
}

// decodeCandidate определяет, что делать с сообщением DLQ.
// Нераспознанные сообщения пропускаются без ошибки; битые отчёты дают ошибку.
func decodeCandidate(msg *sarama.ConsumerMessage, notificationTopic string) (candidate, error) {
	var consumerPayload consumerDLQPayload
	if err := json.Unmarshal(msg.Value, &consumerPayload); err == nil && consumerPayload.OriginalValue != "" {
		topic := strings.TrimSpace(consumerPayload.OriginalTopic)
		if topic == "" {
			topic = notificationTopic
		}
		return candidate{
			kind: kindNotification,
			notification: replayMessage{
				topic: topic,
				key:   consumerPayload.OriginalKey,
				value: []byte(consumerPayload.OriginalValue),
			},
		}, nil
	}

	// Payload конверта outbox-DLQ содержит outbox.DLQMessage.
	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return candidate{}, nil
	}

	var dlq outbox.DLQMessage
	if err := json.Unmarshal(envelope.Payload, &dlq); err != nil {
		return candidate{}, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	report := dlq.Message()
	report.EventType = firstNonEmpty(report.EventType, envelope.EventType)
	report.AggregateID = firstNonEmpty(report.AggregateID, envelope.AggregateID)
	if report.EventType != domain.OutboxEventStatusReport {
		return candidate{}, nil
	}
	if len(report.Payload) == 0 {
		return candidate{}, fmt.Errorf("status report %s has no payload", firstNonEmpty(report.ID, envelope.ID))
	}
	return candidate{kind: kindStatusReport, report: report}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
