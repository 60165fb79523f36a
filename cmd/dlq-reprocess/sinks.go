package main

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// publishReplay возвращает уведомление в исходный topic.
func publishReplay(producer replayProducer, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// outboxRequeuer ставит отчёт обратно в outbox: его доставит работающий storefront.
type outboxRequeuer struct {
	repo domain.OutboxRepository
}

func (r outboxRequeuer) Publish(_ context.Context, msg domain.OutboxMessage) error {
	msg.ID = ""
	_, err := r.repo.Enqueue(msg)
	return err
}

// staticToken отдаёт API-клиенту токен, заданный флагом.
type staticToken string

func (t staticToken) Current(context.Context) (domain.Identity, error) {
	if t == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return domain.Identity{Token: string(t)}, nil
}
