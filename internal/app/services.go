package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/api"
	"github.com/vladislavdragonenkov/storefront/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/service/history"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/reconcile"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

// services хранит собранный граф компонентов клиента.
type services struct {
	session    *auth.Session
	client     *api.Client
	cart       *cart.Store
	orders     *checkout.Orchestrator
	reconciler *reconcile.Reconciler
	flow       *checkout.Flow
	history    *history.Store
	bus        *httpapi.Bus
	server     *httpapi.Server

	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
}

// buildServices связывает хранилища, клиент backend и сервисы оформления.
// producer может быть nil: тогда события и DLQ не публикуются.
func buildServices(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, m *metrics.CheckoutMetrics, logger *log.Entry) *services {
	session := auth.NewSession(deps.kv, logger.WithField("component", "session"))

	client := api.NewClient(cfg.APIBaseURL,
		api.WithTimeout(cfg.APITimeout),
		api.WithSessions(session),
		api.WithUnauthorizedHook(session.ClearOnUnauthorized),
		api.WithLogger(logger.WithField("component", "commerce-api")),
	)

	cartStore := cart.NewStore(client, session,
		cart.WithLogger(logger.WithField("component", "cart")),
		cart.WithMetrics(m),
	)

	gw := gateway.New(cfg.HostedPageURL,
		gateway.WithLogger(logger.WithField("component", "gateway")),
		gateway.WithMetrics(m),
	)

	orchestratorOpts := []checkout.Option{
		checkout.WithTimeline(deps.timelineRepo),
		checkout.WithMetrics(m),
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithAttemptTTL(cfg.AttemptTTL),
	}
	reconcilerOpts := []reconcile.Option{
		reconcile.WithOutbox(deps.outboxRepo),
		reconcile.WithTimeline(deps.timelineRepo),
		reconcile.WithMetrics(m),
		reconcile.WithLogger(logger.WithField("component", "reconciler")),
	}
	if producer != nil {
		orchestratorOpts = append(orchestratorOpts, checkout.WithEventPublisher(producer))
		reconcilerOpts = append(reconcilerOpts, reconcile.WithEventPublisher(producer))
	}

	orders := checkout.NewOrchestrator(client, deps.repo, deps.idempotencyRepo, orchestratorOpts...)
	reconciler := reconcile.New(deps.repo, client, cartStore, reconcilerOpts...)

	bus := httpapi.NewBus(0, logger.WithField("component", "navigation-bus"))
	flow := checkout.NewFlow(cartStore, orders, gw, reconciler, bus,
		checkout.WithSessionTimeout(cfg.SessionTimeout),
		checkout.WithFlowLogger(logger.WithField("component", "checkout-flow")),
	)

	historyStore := history.NewStore(deps.repo, client, session,
		history.WithCache(deps.kv, cfg.HistoryCacheTTL),
		history.WithTimeline(deps.timelineRepo),
		history.WithLogger(logger.WithField("component", "history")),
	)

	server := httpapi.NewServer(cartStore, flow, historyStore, session, bus,
		httpapi.WithLogger(logger.WithField("layer", "http")),
	)

	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if producer != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)))
	}
	outboxWorker := outbox.NewWorker(deps.outboxRepo, reconcile.NewStatusReportPublisher(client, nil), outboxOpts...)

	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "attempt-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	return &services{
		session:       session,
		client:        client,
		cart:          cartStore,
		orders:        orders,
		reconciler:    reconciler,
		flow:          flow,
		history:       historyStore,
		bus:           bus,
		server:        server,
		outboxWorker:  outboxWorker,
		cleanupWorker: cleanupWorker,
	}
}

// registerHealthCheckers регистрирует проверки хранилищ, backend и backlog outbox.
func registerHealthCheckers(h *healthcheck.Handler, cfg Config, deps *runtimeDependencies, svc *services) {
	h.RegisterChecker("storage", deps.storageChecker)
	if deps.kvChecker != nil {
		h.RegisterChecker("kv-store", deps.kvChecker)
	}
	h.RegisterChecker("commerce-api", healthcheck.NewOptionalChecker("commerce-api", svc.client.Ping))
	h.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", func(context.Context) error {
		stats, err := deps.outboxRepo.Stats()
		if err != nil {
			return err
		}
		if cfg.OutboxMaxPending > 0 && stats.PendingCount > cfg.OutboxMaxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, cfg.OutboxMaxPending)
		}
		return nil
	}))
}
