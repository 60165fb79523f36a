// Package gateway ведёт платёжную сессию на hosted-странице шлюза и превращает
// навигационные сигналы страницы в единственный терминальный исход.
package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// DefaultHostedPageURL — страница оплаты Midtrans Snap (sandbox).
const DefaultHostedPageURL = "https://app.sandbox.midtrans.com/snap/v2/vtweb"

// Gateway открывает платёжные сессии.
type Gateway struct {
	hostedPageURL string
	metrics       *metrics.CheckoutMetrics
	logger        *log.Entry
	now           func() time.Time
}

// Option настраивает Gateway.
type Option func(*Gateway)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New создаёт Gateway. Пустой hostedPageURL означает DefaultHostedPageURL.
func New(hostedPageURL string, opts ...Option) *Gateway {
	hostedPageURL = strings.TrimRight(strings.TrimSpace(hostedPageURL), "/")
	if hostedPageURL == "" {
		hostedPageURL = DefaultHostedPageURL
	}
	g := &Gateway{
		hostedPageURL: hostedPageURL,
		logger:        log.WithField("component", "payment-gateway"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open переводит сессию в awaiting_user и возвращает её для наблюдения.
func (g *Gateway) Open(info domain.PaymentSession) *Session {
	info.State = domain.SessionAwaitingUser
	if info.CreatedAt.IsZero() {
		info.CreatedAt = g.now().UTC()
	}

	hosted := strings.TrimSpace(info.RedirectURL)
	if hosted == "" {
		hosted = g.hostedPageURL + "/" + info.SessionToken
	}

	g.metrics.RecordSessionOpened()
	g.logger.WithFields(log.Fields{
		"order_id": info.OrderID,
	}).Info("Payment session opened")

	return &Session{
		info:      info,
		hostedURL: hosted,
		done:      make(chan struct{}),
		metrics:   g.metrics,
		logger:    g.logger.WithField("order_id", info.OrderID),
	}
}

// Session описывает одну открытую сессию. Первый терминальный сигнал фиксирует исход,
// все последующие игнорируются.
type Session struct {
	mu        sync.Mutex
	info      domain.PaymentSession
	hostedURL string
	outcome   domain.PaymentOutcome
	done      chan struct{}
	metrics   *metrics.CheckoutMetrics
	logger    *log.Entry
}

// OrderID возвращает заказ сессии.
func (s *Session) OrderID() string {
	return s.info.OrderID
}

// HostedURL возвращает адрес страницы оплаты.
func (s *Session) HostedURL() string {
	return s.hostedURL
}

// Info возвращает копию описания сессии с текущим состоянием.
func (s *Session) Info() domain.PaymentSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// State возвращает текущее состояние сессии.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.State
}

// Done закрывается, когда исход зафиксирован.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outcome возвращает исход, если он уже есть.
func (s *Session) Outcome() (domain.PaymentOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, !s.outcome.IsZero()
}

// Handle применяет навигационное событие. Возвращает true, если событие стало исходом сессии.
func (s *Session) Handle(event domain.NavigationEvent) bool {
	outcome, terminal := Classify(event, s.info.OrderID)
	if !terminal {
		return false
	}
	return s.resolve(outcome)
}

// Dismiss фиксирует закрытие страницы без статуса.
func (s *Session) Dismiss() bool {
	return s.resolve(domain.PaymentFailed(s.info.OrderID, domain.FailureDismissed))
}

// Cancel фиксирует отмену оформления приложением.
func (s *Session) Cancel() bool {
	return s.resolve(domain.PaymentFailed(s.info.OrderID, domain.FailureCancelled))
}

// Observe читает события по порядку до исхода. Отмена ctx даёт Failed("cancelled"),
// закрытый канал даёт Failed("dismissed").
func (s *Session) Observe(ctx context.Context, events <-chan domain.NavigationEvent) domain.PaymentOutcome {
	for {
		select {
		case <-s.done:
		case <-ctx.Done():
			s.Cancel()
		case event, ok := <-events:
			if !ok {
				s.Dismiss()
				break
			}
			if !s.Handle(event) {
				continue
			}
		}
		outcome, _ := s.Outcome()
		return outcome
	}
}

func (s *Session) resolve(outcome domain.PaymentOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.outcome.IsZero() {
		s.logger.WithField("ignored", outcome.String()).Debug("Session already resolved, signal ignored")
		return false
	}
	s.outcome = outcome
	s.info.State = domain.SessionResolved
	close(s.done)

	s.metrics.RecordSessionResolved()
	s.logger.WithField("outcome", outcome.String()).Info("Payment session resolved")
	return true
}
