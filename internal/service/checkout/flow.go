package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
)

// CartSource отдаёт текущую корзину пользователя.
type CartSource interface {
	List() domain.Cart
}

// Reconciler применяет исход платежа.
type Reconciler interface {
	Reconcile(ctx context.Context, outcome domain.PaymentOutcome) error
}

// NavigationSource выдаёт поток навигационных событий страницы оплаты по заказу.
// unsubscribe закрывает поток.
type NavigationSource interface {
	Subscribe(orderID string) (events <-chan domain.NavigationEvent, unsubscribe func())
}

// Checkout описывает запущенное оформление с открытой платёжной сессией.
type Checkout struct {
	session *gateway.Session
	info    domain.PaymentSession
	done    chan struct{}
	outcome domain.PaymentOutcome
}

// OrderID возвращает заказ оформления.
func (c *Checkout) OrderID() string { return c.info.OrderID }

// HostedURL возвращает страницу оплаты, которую нужно показать пользователю.
func (c *Checkout) HostedURL() string { return c.session.HostedURL() }

// Session возвращает описание платёжной сессии.
func (c *Checkout) Session() domain.PaymentSession { return c.session.Info() }

// Done закрывается после сверки исхода.
func (c *Checkout) Done() <-chan struct{} { return c.done }

// Wait ждёт сверенный исход.
func (c *Checkout) Wait(ctx context.Context) (domain.PaymentOutcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return domain.PaymentOutcome{}, ctx.Err()
	}
}

// FlowOption настраивает Flow.
type FlowOption func(*Flow)

// WithSessionTimeout ограничивает время ожидания пользователя на странице оплаты.
// По истечении сессия закрывается как отменённая.
func WithSessionTimeout(timeout time.Duration) FlowOption {
	return func(f *Flow) { f.sessionTimeout = timeout }
}

// WithFlowLogger задаёт logger.
func WithFlowLogger(logger *log.Entry) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Flow связывает корзину, оформление, платёжную сессию и сверку.
type Flow struct {
	cart           CartSource
	orchestrator   *Orchestrator
	gateway        *gateway.Gateway
	reconciler     Reconciler
	navigation     NavigationSource
	sessionTimeout time.Duration
	logger         *log.Entry

	mu     sync.Mutex
	active map[string]*Checkout
	wg     sync.WaitGroup
}

// NewFlow создаёт Flow.
func NewFlow(cart CartSource, orchestrator *Orchestrator, gw *gateway.Gateway, reconciler Reconciler, navigation NavigationSource, opts ...FlowOption) *Flow {
	f := &Flow{
		cart:         cart,
		orchestrator: orchestrator,
		gateway:      gw,
		reconciler:   reconciler,
		navigation:   navigation,
		logger:       log.WithField("component", "checkout-flow"),
		active:       make(map[string]*Checkout),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Begin оформляет текущую корзину и открывает платёжную сессию. Исход наблюдается
// в фоне и сверяется независимо от отмены ctx.
func (f *Flow) Begin(ctx context.Context, customer domain.CustomerInfo) (*Checkout, error) {
	info, err := f.orchestrator.Submit(ctx, f.cart.List(), customer)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if existing, ok := f.active[info.OrderID]; ok {
		f.mu.Unlock()
		return existing, nil
	}
	c := &Checkout{
		session: f.gateway.Open(info),
		info:    info,
		done:    make(chan struct{}),
	}
	f.active[info.OrderID] = c
	f.mu.Unlock()

	events, unsubscribe := f.navigation.Subscribe(info.OrderID)

	var (
		observeCtx context.Context
		cancel     context.CancelFunc
	)
	if f.sessionTimeout > 0 {
		observeCtx, cancel = context.WithTimeout(context.Background(), f.sessionTimeout)
	} else {
		observeCtx, cancel = context.WithCancel(context.Background())
	}
	reconcileCtx := context.WithoutCancel(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()

		outcome := c.session.Observe(observeCtx, events)
		unsubscribe()
		f.finish(reconcileCtx, c, outcome)
	}()

	return c, nil
}

// Run оформляет корзину и ждёт сверенный исход. Отмена ctx прерывает оплату
// с исходом Failed("cancelled").
func (f *Flow) Run(ctx context.Context, customer domain.CustomerInfo) (domain.PaymentOutcome, error) {
	c, err := f.Begin(ctx, customer)
	if err != nil {
		return domain.PaymentOutcome{}, err
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		c.session.Cancel()
		<-c.done
	}
	return c.outcome, nil
}

// Abandon закрывает ожидающую сессию по заказу как отменённую.
func (f *Flow) Abandon(orderID string) error {
	f.mu.Lock()
	c, ok := f.active[orderID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrSessionNotFound)
	}
	c.session.Cancel()
	return nil
}

// Active возвращает оформление по заказу, если оно ещё не сверено.
func (f *Flow) Active(orderID string) (*Checkout, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.active[orderID]
	return c, ok
}

// Shutdown отменяет все открытые сессии и ждёт их сверки.
func (f *Flow) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	for _, c := range f.active {
		c.session.Cancel()
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flow) finish(ctx context.Context, c *Checkout, outcome domain.PaymentOutcome) {
	logger := f.logger.WithFields(log.Fields{
		"order_id": c.info.OrderID,
		"outcome":  outcome.String(),
	})

	if outcome.Kind() == domain.OutcomeFailed && outcome.Reason() == domain.FailureCancelled {
		f.orchestrator.Abandoned(c.info)
	}

	if err := f.reconciler.Reconcile(ctx, outcome); err != nil {
		if errors.Is(err, domain.ErrReconciliationConflict) {
			logger.Debug("Outcome already reconciled")
		} else {
			logger.WithError(err).Error("Failed to reconcile payment outcome")
		}
	}
	f.orchestrator.Finish(c.info.IdempotencyKey)

	f.mu.Lock()
	delete(f.active, c.info.OrderID)
	f.mu.Unlock()

	c.outcome = outcome
	close(c.done)
}
