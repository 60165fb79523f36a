package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	shutdownTimeout       = 5 * time.Second
	workerShutdownTimeout = 5 * time.Second
)

// Run поднимает локальный API, фоновые воркеры и сервер метрик; блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Kafka опциональна: без неё уведомления шлюза приходят только через навигацию.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(producer, logger)

	checkoutMetrics := metrics.NewCheckoutMetrics()
	svc := buildServices(cfg, deps, producer, checkoutMetrics, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	outboxDone := make(chan struct{})
	go func() {
		defer close(outboxDone)
		svc.outboxWorker.Run(workerCtx)
	}()
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		svc.cleanupWorker.Run(workerCtx)
	}()

	consumer, _ := initNotificationConsumer(cfg, svc.reconciler, producer, logger)
	if consumer != nil {
		if err := consumer.Start(workerCtx); err != nil {
			logger.WithError(err).Warn("failed to start kafka consumer")
			consumer = nil
		}
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	registerHealthCheckers(healthHandler, cfg, deps, svc)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		stopKafkaConsumer(consumer, logger)
		shutdownWorker(cancelWorkers, outboxDone, "outbox", logger)
		shutdownWorker(cancelWorkers, cleanupDone, "attempt-cleanup", logger)
		return err
	}

	apiSrv := &http.Server{
		Handler:           svc.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("локальный API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.Serve(lis)
	}()

	stop := func() {
		flowCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := svc.flow.Shutdown(flowCtx); err != nil {
			logger.WithError(err).Warn("checkout sessions did not finish in time")
		}
		cancel()
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopKafkaConsumer(consumer, logger)
		shutdownWorker(cancelWorkers, outboxDone, "outbox", logger)
		shutdownWorker(cancelWorkers, cleanupDone, "attempt-cleanup", logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем локальный API")
		stop()
		return ctx.Err()
	case err := <-errCh:
		stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// shutdownWorker отменяет контекст воркера и ждёт его завершения не дольше workerShutdownTimeout.
func shutdownWorker(cancel context.CancelFunc, done <-chan struct{}, name string, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(workerShutdownTimeout):
		logger.WithField("worker", name).Warn("worker did not stop in time")
	}
}
