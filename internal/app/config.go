package app

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
)

// Поддерживаемые драйверы хранилища истории заказов, outbox и попыток оформления.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска клиента витрины.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	APIBaseURL     string
	APITimeout     time.Duration
	HostedPageURL  string
	SessionTimeout time.Duration
	AttemptTTL     time.Duration

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr включает Redis для локального состояния (сессия, форма, кэш истории).
	RedisAddr       string
	HistoryCacheTTL time.Duration

	KafkaBrokers string
	KafkaGroupID string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// После такого backlog readiness сообщает degraded.
	OutboxMaxPending int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9090",
		APIBaseURL:     "http://localhost:8000/api",
		APITimeout:     5 * time.Second,
		HostedPageURL:  gateway.DefaultHostedPageURL,
		SessionTimeout: 30 * time.Minute,
		AttemptTTL:     24 * time.Hour,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		HistoryCacheTTL: 7 * 24 * time.Hour,

		KafkaGroupID: "storefront-payments",

		OutboxPollInterval: 5 * time.Second,
		OutboxBatchSize:    50,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   200 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyCleanupInterval:  30 * time.Minute,
		IdempotencyCleanupBatchSize: 200,
	}
}
