package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	kafkaClientID          = "storefront"
	notificationMaxRetries = 3
)

// splitBrokers разбирает список брокеров через запятую, пустые элементы отбрасываются.
func splitBrokers(brokers string) []string {
	var list []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			list = append(list, broker)
		}
	}
	return list
}

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой; при ошибке клиент работает без Kafka.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, kafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initNotificationConsumer подписывается на уведомления шлюза об оплате.
// Без producer сообщения, исчерпавшие попытки, только логируются.
func initNotificationConsumer(cfg Config, applier kafka.SettlementApplier, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := splitBrokers(cfg.KafkaBrokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	handler := kafka.NewPaymentNotificationHandler(applier, logger.WithField("component", "payment-notifications"))
	consumer, err := kafka.NewConsumerWithDLQ(
		brokerList,
		cfg.KafkaGroupID,
		[]string{kafka.TopicPaymentNotifications},
		handler,
		producer,
		notificationMaxRetries,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, settlements arrive only via navigation")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"topic": kafka.TopicPaymentNotifications,
		"group": cfg.KafkaGroupID,
	}).Info("kafka consumer initialized")
	return consumer, nil
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopKafkaConsumer останавливает consumer если он не nil.
func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}

	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
