package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orcamentos/internal/health"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/outbox"
	"github.com/vladislavdragonenkov/orcamentos/internal/storage/memory"
	"github.com/vladislavdragonenkov/orcamentos/internal/storage/postgres"
)

// runtimeDependencies — хранилище и репозитории поверх него, общие для gRPC и HTTP.
type runtimeDependencies struct {
	store           domain.RecordStore
	outboxRepo      *outbox.Repository
	idempotencyRepo *idempotency.Repository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

// initRuntimeDependencies выбирает драйвер хранилища и собирает репозитории.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		store := memory.NewRecordStore()
		logger.WithField("storage_driver", StorageDriverMemory).Info("storage initialized")
		return newRuntimeDependencies(store, store, nil), nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres storage driver requires ORC_POSTGRES_DSN")
		}

		store, err := postgres.Open(ctx, dsn,
			postgres.WithLogger(logger.WithField("layer", "postgres")),
			postgres.WithOpTimeout(cfg.StoreTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		logger.WithFields(log.Fields{
			"storage_driver": StorageDriverPostgres,
			"auto_migrate":   cfg.PostgresAutoMigrate,
		}).Info("storage initialized")
		return newRuntimeDependencies(store, store, store.Close), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q (use %s|%s)", cfg.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}
}

func newRuntimeDependencies(store domain.RecordStore, pinger domain.Pinger, closeFn func() error) *runtimeDependencies {
	return &runtimeDependencies{
		store:           store,
		outboxRepo:      outbox.NewRepository(store),
		idempotencyRepo: idempotency.NewRepository(store),
		storageChecker:  healthcheck.NewStoreChecker(pinger),
		closeFn:         closeFn,
	}
}

// closeRuntimeDependencies освобождает подключение к хранилищу.
func closeRuntimeDependencies(deps *runtimeDependencies, logger *log.Entry) {
	if deps == nil || deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
		return
	}
	logger.Info("storage closed")
}
