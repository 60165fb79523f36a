// Package checkout превращает корзину и данные покупателя в заказ с платёжной сессией.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
)

const defaultAttemptTTL = 24 * time.Hour

// EventPublisher публикует события оформления (Kafka producer).
type EventPublisher interface {
	PublishPaymentEvent(event *kafka.PaymentEvent) error
}

// attempt хранит незавершённую попытку оформления пользователя.
type attempt struct {
	key         string
	fingerprint string
}

// storedSession сохраняется в записи идемпотентности как ответ backend.
type storedSession struct {
	OrderID      string    `json:"order_id"`
	SessionToken string    `json:"session_token"`
	RedirectURL  string    `json:"redirect_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Orchestrator проверяет данные, создаёт заказ у backend и ведёт ключ идемпотентности.
type Orchestrator struct {
	orders      domain.OrderAPI
	history     domain.OrderRepository
	idempotency domain.IdempotencyRepository
	timeline    domain.TimelineRepository
	events      EventPublisher
	metrics     *metrics.CheckoutMetrics
	logger      *log.Entry
	attemptTTL  time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]attempt
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithTimeline включает запись событий заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(o *Orchestrator) { o.timeline = timeline }
}

// WithEventPublisher подключает публикацию событий в Kafka.
func WithEventPublisher(events EventPublisher) Option {
	return func(o *Orchestrator) { o.events = events }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAttemptTTL задаёт срок хранения записи о попытке.
func WithAttemptTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.attemptTTL = ttl
		}
	}
}

// NewOrchestrator создаёт Orchestrator.
func NewOrchestrator(orders domain.OrderAPI, history domain.OrderRepository, idempotency domain.IdempotencyRepository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		orders:      orders,
		history:     history,
		idempotency: idempotency,
		logger:      log.WithField("component", "checkout-orchestrator"),
		attemptTTL:  defaultAttemptTTL,
		now:         time.Now,
		attempts:    make(map[string]attempt),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit проверяет корзину и покупателя, создаёт заказ и возвращает платёжную сессию.
// Повтор того же снимка после временной ошибки отправляется с тем же ключом.
func (o *Orchestrator) Submit(ctx context.Context, cart domain.Cart, customer domain.CustomerInfo) (domain.PaymentSession, error) {
	start := o.now()
	customer = customer.Normalize()

	if strings.TrimSpace(cart.UserID) == "" {
		return domain.PaymentSession{}, fmt.Errorf("checkout without user: %w", domain.ErrUnauthenticated)
	}
	if verr := Validate(cart, customer); !verr.Empty() {
		o.metrics.RecordCheckout("invalid", o.now().Sub(start))
		return domain.PaymentSession{}, verr
	}

	draft := buildDraft(cart, customer, start)
	key, err := o.attemptKey(cart.UserID, draft.Fingerprint())
	if err != nil {
		return domain.PaymentSession{}, err
	}
	logger := o.logger.WithFields(log.Fields{
		"user_id":         cart.UserID,
		"idempotency_key": key,
	})

	if session, ok := o.replay(key, draft, logger); ok {
		o.metrics.RecordCheckout("replayed", o.now().Sub(start))
		return session, nil
	}

	stepStart := o.now()
	tx, err := o.orders.CreateTransaction(ctx, key, draft)
	o.metrics.RecordStepDuration("create_transaction", o.now().Sub(stepStart))
	if err != nil {
		if domain.IsRetryable(err) {
			o.metrics.RecordCheckout("retryable_error", o.now().Sub(start))
			logger.WithError(err).Warn("Order creation failed, key kept for retry")
			return domain.PaymentSession{}, fmt.Errorf("create order: %w", err)
		}
		o.fail(key, err, logger)
		o.metrics.RecordCheckout("error", o.now().Sub(start))
		return domain.PaymentSession{}, fmt.Errorf("create order: %w", err)
	}

	session := domain.PaymentSession{
		OrderID:        tx.OrderID,
		SessionToken:   tx.Token,
		RedirectURL:    tx.RedirectURL,
		IdempotencyKey: key,
		Draft:          draft,
		State:          domain.SessionCreated,
		CreatedAt:      o.now().UTC(),
	}

	o.recordOrder(session, logger)
	o.complete(key, session, tx.HTTPStatus, logger)
	o.publish(kafka.EventTypeCheckoutSubmitted, session)

	o.metrics.RecordCheckout("success", o.now().Sub(start))
	logger.WithField("order_id", session.OrderID).Info("Order created, payment session ready")
	return session, nil
}

// Finish закрывает попытку после сверки исхода: следующее оформление получит новый ключ.
func (o *Orchestrator) Finish(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for userID, a := range o.attempts {
		if a.key == key {
			delete(o.attempts, userID)
		}
	}
}

// Abandoned публикует событие об отказе от оплаты.
func (o *Orchestrator) Abandoned(session domain.PaymentSession) {
	o.publish(kafka.EventTypeCheckoutAbandoned, session)
}

// Validate собирает все нарушения сразу.
func Validate(cart domain.Cart, customer domain.CustomerInfo) *domain.ValidationError {
	verr := &domain.ValidationError{}

	if cart.IsEmpty() {
		verr.Add("cart", "cart is empty")
	}
	if customer.Name == "" {
		verr.Add("name", "name is required")
	}
	switch {
	case customer.Email == "":
		verr.Add("email", "email is required")
	case !validEmail(customer.Email):
		verr.Add("email", "email is malformed")
	}
	if customer.Address == "" {
		verr.Add("address", "address is required")
	}
	if customer.Phone == "" {
		verr.Add("phone", "phone is required")
	}

	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			verr.Add("items["+item.ID+"].quantity", "quantity must be positive")
		}
		if pricing.EffectivePrice(item) <= 0 {
			verr.Add("items["+item.ID+"].price", "price must be positive")
		}
	}
	return verr
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

func buildDraft(cart domain.Cart, customer domain.CustomerInfo, now time.Time) domain.OrderDraft {
	totals := pricing.ComputeTotals(cart)
	lines := make([]domain.DraftLine, 0, len(totals.Lines))
	for i, line := range totals.Lines {
		lines = append(lines, domain.DraftLine{
			CartItemID:     line.CartItemID,
			ProductID:      line.ProductID,
			Name:           cart.Items[i].Name,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			DiscountAmount: line.DiscountAmount,
			Subtotal:       line.Subtotal,
		})
	}
	return domain.NewOrderDraft(cart.UserID, customer, lines, totals.GrandTotal, now)
}

// attemptKey возвращает ключ текущей попытки пользователя. Новый ключ выдаётся,
// если попытки нет или снимок изменился.
func (o *Orchestrator) attemptKey(userID, fingerprint string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if a, ok := o.attempts[userID]; ok && a.fingerprint == fingerprint {
		return a.key, nil
	}

	key := uuid.NewString()
	if o.idempotency != nil {
		ttlAt := o.now().Add(o.attemptTTL).UTC()
		if _, err := o.idempotency.CreateProcessing(key, fingerprint, ttlAt); err != nil {
			return "", fmt.Errorf("register checkout attempt: %w", err)
		}
	}
	o.attempts[userID] = attempt{key: key, fingerprint: fingerprint}
	return key, nil
}

// replay отдаёт сохранённую сессию, если backend уже создал заказ по этому ключу.
func (o *Orchestrator) replay(key string, draft domain.OrderDraft, logger *log.Entry) (domain.PaymentSession, bool) {
	if o.idempotency == nil {
		return domain.PaymentSession{}, false
	}
	record, err := o.idempotency.Get(key)
	if err != nil {
		if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			logger.WithError(err).Warn("Failed to load checkout attempt")
		}
		return domain.PaymentSession{}, false
	}
	if !record.Replayable() {
		return domain.PaymentSession{}, false
	}

	var stored storedSession
	if err := json.Unmarshal(record.ResponseBody, &stored); err != nil {
		logger.WithError(err).Warn("Stored checkout response is corrupted")
		return domain.PaymentSession{}, false
	}
	logger.WithField("order_id", stored.OrderID).Info("Returning stored payment session")
	return domain.PaymentSession{
		OrderID:        stored.OrderID,
		SessionToken:   stored.SessionToken,
		RedirectURL:    stored.RedirectURL,
		IdempotencyKey: key,
		Draft:          draft,
		State:          domain.SessionCreated,
		CreatedAt:      stored.CreatedAt,
	}, true
}

func (o *Orchestrator) complete(key string, session domain.PaymentSession, httpStatus int, logger *log.Entry) {
	if o.idempotency == nil {
		return
	}
	body, _ := json.Marshal(storedSession{
		OrderID:      session.OrderID,
		SessionToken: session.SessionToken,
		RedirectURL:  session.RedirectURL,
		CreatedAt:    session.CreatedAt,
	})
	if err := o.idempotency.MarkDone(key, body, httpStatus); err != nil {
		logger.WithError(err).Warn("Failed to mark checkout attempt done")
	}
}

// fail закрывает попытку, которую повтор не исправит.
func (o *Orchestrator) fail(key string, cause error, logger *log.Entry) {
	o.Finish(key)
	logger.WithError(cause).Warn("Order creation rejected, attempt closed")
	if o.idempotency == nil {
		return
	}
	body, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := o.idempotency.MarkFailed(key, body, 0); err != nil {
		logger.WithError(err).Warn("Failed to mark checkout attempt failed")
	}
}

func (o *Orchestrator) recordOrder(session domain.PaymentSession, logger *log.Entry) {
	if o.history == nil {
		return
	}
	record := domain.NewOrderRecord(session.OrderID, session.IdempotencyKey, session.Draft, session.CreatedAt)
	if err := o.history.Create(record); err != nil {
		if errors.Is(err, domain.ErrOrderVersionConflict) {
			logger.WithField("order_id", session.OrderID).Debug("Order already recorded")
			return
		}
		logger.WithError(err).Error("Failed to record order in history")
		return
	}

	if o.timeline == nil {
		return
	}
	if err := o.timeline.Append(domain.TimelineEvent{
		OrderID:  session.OrderID,
		Type:     domain.TimelineOrderCreated,
		Occurred: session.CreatedAt,
	}); err != nil {
		logger.WithError(err).Warn("append timeline event failed")
		return
	}
	o.metrics.RecordTimelineEvent()
}

func (o *Orchestrator) publish(eventType kafka.EventType, session domain.PaymentSession) {
	if o.events == nil {
		return
	}
	event := kafka.NewPaymentEvent(eventType, session.OrderID, "", map[string]any{
		"total_items": session.Draft.TotalItems(),
	})
	event.UserID = session.Draft.UserID()
	event.TotalAmount = session.Draft.TotalAmount()
	if err := o.events.PublishPaymentEvent(event); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   session.OrderID,
		}).Warn("failed to publish checkout event to kafka")
	}
}
