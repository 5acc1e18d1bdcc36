package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orcamentos/internal/app"
)

const (
	envGRPCAddr                    = "ORC_GRPC_ADDR"
	envHTTPAddr                    = "ORC_HTTP_ADDR"
	envMetricsAddr                 = "ORC_METRICS_ADDR"
	envStorageDriver               = "ORC_STORAGE_DRIVER"
	envPostgresDSN                 = "ORC_POSTGRES_DSN"
	envDatabaseURL                 = "DATABASE_URL"
	envPostgresAutoMigrate         = "ORC_POSTGRES_AUTO_MIGRATE"
	envStoreTimeout                = "ORC_STORE_TIMEOUT"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaTopic                  = "ORC_KAFKA_TOPIC"
	envOutboxPollInterval          = "ORC_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "ORC_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "ORC_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "ORC_OUTBOX_RETRY_DELAY"
	envOutboxMaxLag                = "ORC_OUTBOX_MAX_LAG"
	envIdempotencyCleanupInterval  = "ORC_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "ORC_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envRejectDuplicateConfirm      = "ORC_REJECT_DUPLICATE_CONFIRM"
	envLogLevel                    = "ORC_LOG_LEVEL"
	envLogFormat                   = "ORC_LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

// configWarning — некорректное значение переменной, вместо которого взят default.
type configWarning struct {
	key   string
	value string
	err   error
}

func (w configWarning) String() string {
	return fmt.Sprintf("%s=%q ignored: %v", w.key, w.value, w.err)
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не прерывают запуск: они попадают в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []configWarning) {
	cfg := app.DefaultConfig()
	var warnings []configWarning

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}
	positiveInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)

	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envDatabaseURL, &cfg.PostgresDSN)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	duration(envStoreTimeout, &cfg.StoreTimeout, positive, "must be > 0")

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaTopic, &cfg.KafkaTopic)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")
	duration(envOutboxMaxLag, &cfg.OutboxMaxLag, positive, "must be > 0")

	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	boolean(envRejectDuplicateConfirm, &cfg.RejectDuplicateConfirm)

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

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("duration %s %s", value, rule)
	}
	return value, nil
}
