// Команда dlq-reprocess разбирает Dead Letter Queue клиента витрины: уведомления
// шлюза возвращаются в их topic, недоставленные отчёты о статусе идут в outbox
// (-dsn) или напрямую в backend (-api-base-url). По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/api"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/reconcile"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	defaultOpenTimeout = 10 * time.Second
)

type config struct {
	brokers           []string
	sourceTopic       string
	notificationTopic string
	limit             int
	execute           bool
	fromNewest        bool
	idleTimeout       time.Duration

	// Куда отправлять отчёты о статусе: outbox в Postgres или backend напрямую.
	postgresDSN string
	apiBaseURL  string
	apiToken    string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// replayDeps держит клиенты Kafka и приёмник отчётов о статусе.
type replayDeps struct {
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
	reports  domain.OutboxPublisher
	closers  []func() error
}

func (d *replayDeps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

var newReplayDependencies = func(ctx context.Context, cfg config) (*replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	deps := &replayDeps{client: client, closers: []func() error{client.Close}}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps.consumer = saramaConsumerAdapter{consumer: rawConsumer}
	deps.closers = append(deps.closers, deps.consumer.Close)

	if !cfg.execute {
		return deps, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	deps.producer = producer
	deps.closers = append(deps.closers, producer.Close)

	switch {
	case cfg.postgresDSN != "":
		openCtx, cancel := context.WithTimeout(ctx, defaultOpenTimeout)
		store, err := postgres.Open(openCtx, cfg.postgresDSN)
		cancel()
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		deps.reports = outboxRequeuer{repo: postgres.NewOutboxRepository(store)}
	case cfg.apiBaseURL != "":
		client := api.NewClient(cfg.apiBaseURL, api.WithSessions(staticToken(cfg.apiToken)))
		deps.reports = reconcile.NewStatusReportPublisher(client, nil)
	}

	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.notificationTopic, "notification-topic", kafka.TopicPaymentNotifications, "topic for notifications without original topic")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.StringVar(&cfg.postgresDSN, "dsn", "", "requeue status reports into the outbox of this PostgreSQL (fallback: STOREFRONT_POSTGRES_DSN)")
	flag.StringVar(&cfg.apiBaseURL, "api-base-url", "", "report statuses directly to this commerce API")
	flag.StringVar(&cfg.apiToken, "api-token", "", "bearer token for -api-base-url (fallback: STOREFRONT_API_TOKEN)")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	if strings.TrimSpace(cfg.postgresDSN) == "" {
		cfg.postgresDSN = os.Getenv("STOREFRONT_POSTGRES_DSN")
	}
	if strings.TrimSpace(cfg.apiToken) == "" {
		cfg.apiToken = os.Getenv("STOREFRONT_API_TOKEN")
	}
	cfg.postgresDSN = strings.TrimSpace(cfg.postgresDSN)
	cfg.apiBaseURL = strings.TrimSpace(cfg.apiBaseURL)
	cfg.apiToken = strings.TrimSpace(cfg.apiToken)

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if strings.TrimSpace(cfg.notificationTopic) == "" {
		return config{}, fmt.Errorf("notification-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	if cfg.apiBaseURL != "" && cfg.apiToken == "" && cfg.postgresDSN == "" {
		return config{}, fmt.Errorf("api-token is required with api-base-url")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic":       cfg.sourceTopic,
		"notification_topic": cfg.notificationTopic,
		"limit":              cfg.limit,
		"execute":            cfg.execute,
		"from_newest":        cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := newReplayDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	return runReplay(ctx, cfg, deps)
}

type replayStats struct {
	processed     int
	notifications int
	reports       int
	skipped       int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.notifications += other.notifications
	s.reports += other.reports
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, deps *replayDeps) error {
	if deps == nil || deps.client == nil || deps.consumer == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && deps.producer == nil {
		return fmt.Errorf("producer is required in execute mode")
	}
	if cfg.execute && deps.reports == nil {
		log.Warn("no -dsn or -api-base-url given, status reports will be skipped")
	}

	partitions, err := deps.client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total replayStats
	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, deps, cfg, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":          mode,
		"processed":     total.processed,
		"notifications": total.notifications,
		"reports":       total.reports,
		"skipped":       total.skipped,
	}).Info("dlq replay finished")

	return nil
}

func processPartition(ctx context.Context, deps *replayDeps, cfg config, partition int32, limit int) (replayStats, error) {
	var stats replayStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.fromNewest {
		startOffset = max(newest-int64(limit), oldest)
	}

	pc, err := deps.consumer.ConsumePartition(cfg.sourceTopic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-pc.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return stats, nil
			}
			idleTimer.Reset(cfg.idleTimeout)

			if msg.Offset >= newest {
				return stats, nil
			}

			entry := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})
			stats.processed++

			c, err := decodeCandidate(msg, cfg.notificationTopic)
			if err != nil {
				stats.skipped++
				entry.WithError(err).Warn("skip unsupported dlq message")
				continue
			}
			handled, err := handleCandidate(ctx, cfg, deps, c, entry)
			if err != nil {
				return stats, err
			}
			switch {
			case !handled:
				stats.skipped++
			case c.kind == kindNotification:
				stats.notifications++
			case c.kind == kindStatusReport:
				stats.reports++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idleTimer.C:
			return stats, nil
		}
	}

	return stats, nil
}

// handleCandidate возвращает true, если сообщение отправлено (или было бы отправлено в dry-run).
func handleCandidate(ctx context.Context, cfg config, deps *replayDeps, c candidate, entry *log.Entry) (bool, error) {
	switch c.kind {
	case kindNotification:
		if !cfg.execute {
			entry.WithFields(log.Fields{
				"kind":         c.kind,
				"target_topic": c.notification.topic,
				"key":          c.notification.key,
			}).Info("dlq replay candidate")
			return true, nil
		}
		if err := publishReplay(deps.producer, c.notification); err != nil {
			return false, fmt.Errorf("publish replay message: %w", err)
		}
		return true, nil

	case kindStatusReport:
		if !cfg.execute {
			entry.WithFields(log.Fields{
				"kind":     c.kind,
				"order_id": c.report.AggregateID,
			}).Info("dlq replay candidate")
			return true, nil
		}
		if deps.reports == nil {
			return false, nil
		}
		if err := deps.reports.Publish(ctx, c.report); err != nil {
			return false, fmt.Errorf("replay status report for order %s: %w", c.report.AggregateID, err)
		}
		return true, nil

	default:
		return false, nil
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
