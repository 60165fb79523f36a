package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envHTTPAddr                    = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr                 = "STOREFRONT_METRICS_ADDR"
	envAPIBaseURL                  = "STOREFRONT_API_BASE_URL"
	envAPITimeout                  = "STOREFRONT_API_TIMEOUT"
	envHostedPageURL               = "STOREFRONT_HOSTED_PAGE_URL"
	envSessionTimeout              = "STOREFRONT_SESSION_TIMEOUT"
	envAttemptTTL                  = "STOREFRONT_ATTEMPT_TTL"
	envStorageDriver               = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN                 = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate         = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "STOREFRONT_REDIS_ADDR"
	envHistoryCacheTTL             = "STOREFRONT_HISTORY_CACHE_TTL"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaGroupID                = "STOREFRONT_KAFKA_GROUP_ID"
	envOutboxPollInterval          = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "STOREFRONT_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval  = "STOREFRONT_ATTEMPT_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_ATTEMPT_CLEANUP_BATCH_SIZE"
	envLogLevel                    = "STOREFRONT_LOG_LEVEL"
)

type envLookup func(string) (string, bool)

// readConfig читает конфигурацию из переменных окружения процесса.
func readConfig() (app.Config, []string) {
	return readConfigFromEnv(os.LookupEnv)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}
	positiveInt := func(v int) bool { return v > 0 }
	nonNegativeInt := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	setString := func(key string, target *string) {
		if raw, ok := lookup(key); ok {
			if v := strings.TrimSpace(raw); v != "" {
				*target = v
			}
		}
	}
	setDuration := func(key string, target *time.Duration, valid func(time.Duration) bool, msg string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		v, err := parseDuration(raw, valid, msg)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*target = v
	}
	setInt := func(key string, target *int, valid func(int) bool, msg string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		v, err := parseInt(raw, valid, msg)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*target = v
	}

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envAPIBaseURL, &cfg.APIBaseURL)
	setDuration(envAPITimeout, &cfg.APITimeout, positiveDuration, "must be > 0")
	setString(envHostedPageURL, &cfg.HostedPageURL)
	setDuration(envSessionTimeout, &cfg.SessionTimeout, positiveDuration, "must be > 0")
	setDuration(envAttemptTTL, &cfg.AttemptTTL, positiveDuration, "must be > 0")

	if raw, ok := lookup(envStorageDriver); ok {
		if v := strings.ToLower(strings.TrimSpace(raw)); v != "" {
			cfg.StorageDriver = v
		}
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	if raw, ok := lookup(envPostgresAutoMigrate); ok {
		v, err := parseBool(raw)
		if err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = v
		}
	}

	setString(envRedisAddr, &cfg.RedisAddr)
	setDuration(envHistoryCacheTTL, &cfg.HistoryCacheTTL, positiveDuration, "must be > 0")

	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envKafkaGroupID, &cfg.KafkaGroupID)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	setInt(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegativeInt, "must be >= 0")

	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	setInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, msg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%s", msg)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, msg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%s", msg)
	}
	return value, nil
}
