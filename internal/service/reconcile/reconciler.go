// Package reconcile применяет терминальный исход платежа к заказу ровно один раз:
// отчёт backend, очистка корзины, статус в локальной истории.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/api"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// EventPublisher публикует события исхода платежа (Kafka producer).
type EventPublisher interface {
	PublishPaymentEvent(event *kafka.PaymentEvent) error
}

// StatusReportPayload хранит тело отложенного отчёта в outbox.
type StatusReportPayload struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
}

// Reconciler сверяет исходы платежей.
type Reconciler struct {
	orders   domain.OrderRepository
	reporter domain.StatusReporter
	cart     domain.CartCleaner
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	events   EventPublisher
	retry    api.RetryConfig
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	now      func() time.Time

	locks *orderLocks

	// claimed помнит исходы, статус которых не сохранён в истории: заказ
	// неизвестен локально или запись не удалась. Остальные повторы отсекает
	// сохранённый статус.
	mu      sync.Mutex
	claimed map[string]struct{}
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithOutbox включает отложенную доставку отчётов, не прошедших с первой серии попыток.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(r *Reconciler) { r.outbox = outbox }
}

// WithTimeline включает запись событий заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(r *Reconciler) { r.timeline = timeline }
}

// WithEventPublisher подключает публикацию событий в Kafka.
func WithEventPublisher(events EventPublisher) Option {
	return func(r *Reconciler) { r.events = events }
}

// WithRetryConfig задаёт backoff отчёта о статусе.
func WithRetryConfig(cfg api.RetryConfig) Option {
	return func(r *Reconciler) { r.retry = cfg }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New создаёт Reconciler.
func New(orders domain.OrderRepository, reporter domain.StatusReporter, cart domain.CartCleaner, opts ...Option) *Reconciler {
	r := &Reconciler{
		orders:   orders,
		reporter: reporter,
		cart:     cart,
		retry:    api.DefaultRetryConfig(),
		logger:   log.WithField("component", "order-reconciler"),
		now:      time.Now,
		locks:    newOrderLocks(),
		claimed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile применяет исход. Повторный исход по тому же заказу логируется и
// отбрасывается с ErrReconciliationConflict. Ошибки шагов логируются, заказ
// всё равно переводится в итоговый статус.
func (r *Reconciler) Reconcile(ctx context.Context, outcome domain.PaymentOutcome) error {
	if outcome.IsZero() {
		return fmt.Errorf("reconcile: empty outcome")
	}
	unlock := r.locks.lock(outcome.OrderID())
	defer unlock()

	return r.reconcileLocked(ctx, outcome)
}

// reconcileLocked вызывается под блокировкой заказа.
func (r *Reconciler) reconcileLocked(ctx context.Context, outcome domain.PaymentOutcome) error {
	orderID := outcome.OrderID()
	logger := r.logger.WithFields(log.Fields{
		"order_id": orderID,
		"outcome":  outcome.String(),
	})

	if r.isClaimed(orderID) {
		r.metrics.RecordReconcileConflict()
		logger.Warn("Duplicate terminal outcome dropped")
		return fmt.Errorf("order %s: %w", orderID, domain.ErrReconciliationConflict)
	}

	record, err := r.orders.Get(orderID)
	switch {
	case err == nil:
		if record.Status.Reconciled() {
			r.metrics.RecordReconcileConflict()
			logger.WithField("status", record.Status).Warn("Order already reconciled, outcome dropped")
			return fmt.Errorf("order %s already %s: %w", orderID, record.Status, domain.ErrReconciliationConflict)
		}
	case errors.Is(err, domain.ErrOrderNotFound):
		logger.Warn("Order is missing from local history, reporting status only")
		r.claim(orderID)
	default:
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	r.reportStatus(ctx, orderID, outcome.ReportedStatus(), logger)

	if err == nil {
		if outcome.Kind() == domain.OutcomeSuccess {
			r.clearCart(ctx, &record, logger)
		}
		if updErr := r.updateStatus(&record, outcome.OrderStatus()); updErr != nil {
			r.claim(orderID)
			logger.WithError(updErr).Error("Failed to persist reconciled status")
		}
	}

	r.recordOutcome(orderID, outcome, record)
	r.metrics.RecordPaymentOutcome(string(outcome.Kind()))
	logger.Info("Payment outcome reconciled")
	return nil
}

// ApplySettlement применяет асинхронное уведомление шлюза. Заказ, ещё ждущий
// исхода, сверяется обычным путём; pending переводится в completed или failed;
// завершённые заказы не меняются. Уведомление ждёт сверку того же заказа,
// идущую параллельно, и применяется к её результату.
func (r *Reconciler) ApplySettlement(ctx context.Context, orderID, transactionStatus string) error {
	outcome, ok := outcomeForStatus(orderID, transactionStatus)
	if !ok {
		r.logger.WithFields(log.Fields{
			"order_id":           orderID,
			"transaction_status": transactionStatus,
		}).Debug("Notification status is not terminal, ignoring")
		return nil
	}

	unlock := r.locks.lock(orderID)
	defer unlock()

	record, err := r.orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			r.logger.WithField("order_id", orderID).Info("Notification for unknown order ignored")
			return nil
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	switch record.Status {
	case domain.OrderStatusAwaitingPayment:
		err := r.reconcileLocked(ctx, outcome)
		if errors.Is(err, domain.ErrReconciliationConflict) {
			return nil
		}
		return err
	case domain.OrderStatusPending:
		if outcome.Kind() == domain.OutcomePending {
			return nil
		}
	default:
		return nil
	}

	logger := r.logger.WithFields(log.Fields{
		"order_id": orderID,
		"outcome":  outcome.String(),
	})
	if outcome.Kind() == domain.OutcomeSuccess {
		r.clearCart(ctx, &record, logger)
	}
	if err := r.updateStatus(&record, outcome.OrderStatus()); err != nil {
		return fmt.Errorf("settle order %s: %w", orderID, err)
	}

	r.emitTimeline(orderID, domain.TimelinePaymentSettled, transactionStatus)
	r.publish(kafka.EventTypePaymentSettled, orderID, transactionStatus, record)
	r.metrics.RecordPaymentOutcome(string(outcome.Kind()))
	logger.Info("Pending order settled by gateway notification")
	return nil
}

func outcomeForStatus(orderID, status string) (domain.PaymentOutcome, bool) {
	switch status {
	case domain.TransactionCapture, domain.TransactionSettlement:
		return domain.PaymentSucceeded(orderID, status), true
	case domain.TransactionPending:
		return domain.PaymentPending(orderID), true
	case domain.TransactionDeny, domain.TransactionExpire, domain.TransactionCancel:
		return domain.PaymentFailed(orderID, status), true
	default:
		return domain.PaymentOutcome{}, false
	}
}

func (r *Reconciler) claim(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed[orderID] = struct{}{}
}

func (r *Reconciler) isClaimed(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.claimed[orderID]
	return ok
}

// reportStatus отправляет статус с backoff; если backend так и не ответил,
// отчёт уходит в outbox.
func (r *Reconciler) reportStatus(ctx context.Context, orderID, status string, logger *log.Entry) {
	start := r.now()
	defer func() { r.metrics.RecordStepDuration("report_status", r.now().Sub(start)) }()

	err := api.Retry(ctx, r.retry, func(ctx context.Context) error {
		return r.reporter.ReportStatus(ctx, orderID, status)
	}, func(attempt int, delay time.Duration, err error) {
		logger.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Status report failed, retrying")
	})
	if err == nil {
		r.metrics.RecordStatusReport("sent")
		r.emitTimeline(orderID, domain.TimelineStatusReported, status)
		return
	}

	logger.WithError(err).Warn("Status report failed")
	if r.outbox == nil || !domain.IsRetryable(err) {
		r.metrics.RecordStatusReport("failed")
		return
	}

	payload, _ := json.Marshal(StatusReportPayload{OrderID: orderID, TransactionStatus: status})
	if _, enqErr := r.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     domain.OutboxEventStatusReport,
		Payload:       payload,
	}); enqErr != nil {
		r.metrics.RecordStatusReport("failed")
		logger.WithError(enqErr).Error("Failed to queue status report")
		return
	}
	r.metrics.RecordStatusReport("queued")
	r.metrics.RecordOutboxEvent()
	r.emitTimeline(orderID, domain.TimelineStatusReportQueue, status)
}

func (r *Reconciler) clearCart(ctx context.Context, record *domain.OrderRecord, logger *log.Entry) {
	lines := record.PaidLines()
	if len(lines) == 0 || r.cart == nil {
		return
	}
	start := r.now()
	defer func() { r.metrics.RecordStepDuration("clear_cart", r.now().Sub(start)) }()

	if err := r.cart.RemoveItems(ctx, lines); err != nil {
		logger.WithError(err).WithField("items", len(lines)).Warn("Failed to clear paid items from cart")
		return
	}
	r.emitTimeline(record.ID, domain.TimelineCartCleared, "")
}

// updateStatus меняет статус заказа с повтором при конфликте версий. Если
// перечитанный заказ уже completed или failed, он не перезаписывается.
func (r *Reconciler) updateStatus(order *domain.OrderRecord, newStatus domain.OrderStatus) error {
	if order.Status == newStatus {
		return nil
	}

	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		previous := *order
		order.Status = newStatus
		order.UpdatedAt = r.now().UTC()

		err := r.orders.Save(*order)
		if err == nil {
			order.Version = previous.Version + 1
			return nil
		}

		if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
			r.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
				"version":  order.Version,
			}).Warn("version conflict detected, retrying")

			fresh, loadErr := r.orders.Get(order.ID)
			if loadErr != nil {
				return loadErr
			}
			*order = fresh
			if order.Status == newStatus {
				return nil
			}
			if order.Status.Final() {
				return fmt.Errorf("order %s already %s: %w", order.ID, order.Status, domain.ErrReconciliationConflict)
			}

			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}

		*order = previous
		return err
	}
	return domain.ErrOrderVersionConflict
}

func (r *Reconciler) recordOutcome(orderID string, outcome domain.PaymentOutcome, record domain.OrderRecord) {
	var (
		timelineType string
		eventType    kafka.EventType
	)
	switch outcome.Kind() {
	case domain.OutcomeSuccess:
		timelineType, eventType = domain.TimelinePaymentSucceeded, kafka.EventTypePaymentSucceeded
	case domain.OutcomePending:
		timelineType, eventType = domain.TimelinePaymentPending, kafka.EventTypePaymentPending
	default:
		timelineType, eventType = domain.TimelinePaymentFailed, kafka.EventTypePaymentFailed
	}
	r.emitTimeline(orderID, timelineType, outcome.Reason())
	r.publish(eventType, orderID, outcome.TransactionStatus(), record)
}

func (r *Reconciler) emitTimeline(orderID, eventType, reason string) {
	if r.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: r.now().UTC(),
	}
	if err := r.timeline.Append(event); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		return
	}
	r.metrics.RecordTimelineEvent()
}

// publish отправляет событие в Kafka, если producer настроен. Ошибка не прерывает сверку.
func (r *Reconciler) publish(eventType kafka.EventType, orderID, status string, record domain.OrderRecord) {
	if r.events == nil {
		return
	}
	event := kafka.NewPaymentEvent(eventType, orderID, status, nil)
	event.UserID = record.UserID
	event.TotalAmount = record.TotalAmount
	if err := r.events.PublishPaymentEvent(event); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish payment event to kafka")
	}
}
