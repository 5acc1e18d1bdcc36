package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/orcamentos/internal/health"
	"github.com/vladislavdragonenkov/orcamentos/internal/httpapi"
	"github.com/vladislavdragonenkov/orcamentos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orcamentos/internal/metrics"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/cleanup"
	grpcsvc "github.com/vladislavdragonenkov/orcamentos/internal/service/grpc"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/outbox"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/quotes"
	"github.com/vladislavdragonenkov/orcamentos/internal/version"
)

const (
	gracefulStopTimeout   = 5 * time.Second
	workerShutdownTimeout = 5 * time.Second
	readHeaderTimeout     = 5 * time.Second
)

// Run поднимает gRPC, HTTP API и сервер метрик и блокируется до отмены ctx
// или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting quote service")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRuntimeDependencies(deps, logger)

	// Kafka опциональна: без неё продажи работают, но события не пишутся в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(kafkaProducer, logger)

	engine := createLifecycleEngine(cfg, deps.store, metrics.NewLifecycleMetrics(), kafkaProducer != nil, logger)
	reader := quotes.NewReader(deps.store)
	cleanupSvc := cleanup.NewService(deps.store, logger.WithField("layer", "cleanup"))

	stopOutbox, outboxDone := startOutboxWorker(ctx, cfg, deps.outboxRepo, kafkaProducer, logger)
	defer shutdownWorker(stopOutbox, outboxDone, logger.WithField("worker", "outbox"))

	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("worker", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithCleanupMetrics(metrics.NewIdempotencyMetrics()),
	)
	stopCleanup, cleanupDone := startWorker(ctx, cleanupWorker.Run)
	defer shutdownWorker(stopCleanup, cleanupDone, logger.WithField("worker", "idempotency-cleanup"))

	saleService := grpcsvc.NewSaleService(engine, reader, deps.idempotencyRepo, logger.WithField("layer", "grpc"))
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcsvc.RegisterSaleLifecycleServer(grpcServer, saleService)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.SaleLifecycleServiceName, healthpb.HealthCheckResponse_SERVING)

	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterChecker("store", deps.storageChecker)
	if kafkaProducer != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.outboxRepo, cfg.OutboxMaxLag))
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.NewHandler(engine, reader, cleanupSvc, logger.WithField("layer", "http")))
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: readHeaderTimeout}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc: %w", err)
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen http api: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api server: %w", err)
		}
	}()

	stopServers := func() {
		healthServer.Shutdown()
		stopGRPC(grpcServer, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopServers()
		return ctx.Err()
	case err := <-errCh:
		stopServers()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// stopGRPC ждёт завершения активных RPC, но не дольше gracefulStopTimeout.
func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(gracefulStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startOutboxWorker запускает публикацию outbox в Kafka. Без producer воркер не нужен.
func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	repo *outbox.Repository,
	producer *kafka.Producer,
	logger *log.Entry,
) (context.CancelFunc, <-chan struct{}) {
	if producer == nil {
		return nil, nil
	}

	worker := outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithLogger(logger.WithField("worker", "outbox")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	return startWorker(ctx, worker.Run)
}

// startWorker запускает run в отдельной горутине; done закрывается после выхода из run.
func startWorker(parent context.Context, run func(context.Context)) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return cancel, done
}

// shutdownWorker отменяет воркер и ждёт его остановки.
func shutdownWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(workerShutdownTimeout):
		logger.Warn("worker did not stop in time")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulStopTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http server shutdown with error")
	}
}
