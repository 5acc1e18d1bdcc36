package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	"github.com/vladislavdragonenkov/orcamentos/internal/metrics"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/lifecycle"
)

// createLifecycleEngine создаёт движок продаж. События в outbox пишутся только
// при наличии Kafka: без publisher их некому доставить.
func createLifecycleEngine(
	cfg Config,
	store domain.RecordStore,
	lifecycleMetrics *metrics.LifecycleMetrics,
	publishEvents bool,
	logger *log.Entry,
) *lifecycle.Engine {
	return lifecycle.NewEngine(store,
		lifecycle.WithLogger(logger.WithField("layer", "lifecycle")),
		lifecycle.WithMetrics(lifecycleMetrics),
		lifecycle.WithRejectDuplicateConfirm(cfg.RejectDuplicateConfirm),
		lifecycle.WithOutboxEvents(publishEvents),
		lifecycle.WithCompensationTimeout(cfg.StoreTimeout),
	)
}
