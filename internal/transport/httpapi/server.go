// Package httpapi реализует локальный HTTP-интерфейс для UI-оболочки: корзина, оформление,
// сигналы страницы оплаты и история заказов.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

const defaultRequestTimeout = 30 * time.Second

// CartService описывает операции корзины.
type CartService interface {
	List() domain.Cart
	Totals() pricing.Totals
	Refresh(ctx context.Context) (domain.Cart, error)
	Add(ctx context.Context, productID string, quantity int) (domain.CartItem, error)
	SetQuantity(ctx context.Context, id string, quantity int) (domain.CartItem, error)
	Remove(ctx context.Context, id string) error
}

// CheckoutFlow запускает и прерывает оформление.
type CheckoutFlow interface {
	Begin(ctx context.Context, customer domain.CustomerInfo) (*checkout.Checkout, error)
	Abandon(orderID string) error
}

// HistoryService отдаёт историю заказов и принимает отзывы.
type HistoryService interface {
	List(ctx context.Context) ([]domain.OrderRecord, error)
	Get(ctx context.Context, orderID string) (domain.OrderRecord, error)
	Sync(ctx context.Context) ([]domain.OrderRecord, error)
	Cached(ctx context.Context) ([]domain.OrderRecord, error)
	Review(ctx context.Context, orderID, orderItemID string, rating int, comment string) (domain.OrderRecord, error)
}

// AccountService управляет локальной сессией пользователя и сохранённая форма покупателя.
type AccountService interface {
	Store(ctx context.Context, token string, profile domain.Profile) error
	Clear(ctx context.Context) error
	Profile(ctx context.Context) (domain.Profile, error)
	SaveCustomer(ctx context.Context, customer domain.CustomerInfo) error
	SavedCustomer(ctx context.Context) (domain.CustomerInfo, error)
}

// Server собирает обработчики локального API.
type Server struct {
	cart    CartService
	flow    CheckoutFlow
	history HistoryService
	account AccountService
	bus     *Bus
	logger  *log.Entry
	timeout time.Duration
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestTimeout ограничивает время обработки запроса.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewServer создаёт Server.
func NewServer(cart CartService, flow CheckoutFlow, history HistoryService, account AccountService, bus *Bus, opts ...Option) *Server {
	s := &Server{
		cart:    cart,
		flow:    flow,
		history: history,
		account: account,
		bus:     bus,
		logger:  log.WithField("component", "http-api"),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes возвращает chi-роутер без внешней обвязки.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(s.timeout))

	r.Route("/session", func(r chi.Router) {
		r.Post("/", s.login)
		r.Delete("/", s.logout)
		r.Get("/profile", s.profile)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.getCart)
		r.Get("/totals", s.getTotals)
		r.Post("/refresh", s.refreshCart)
		r.Post("/items", s.addItem)
		r.Put("/items/{itemID}", s.updateItem)
		r.Delete("/items/{itemID}", s.removeItem)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", s.beginCheckout)
		r.Get("/customer", s.savedCustomer)
		r.Put("/customer", s.saveCustomer)
		r.Delete("/{orderID}", s.abandonCheckout)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/navigation", s.navigation)
		r.Get("/return", s.paymentReturn)
		r.Get("/close", s.paymentClose)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", s.listOrders)
		r.Get("/cached", s.cachedOrders)
		r.Post("/sync", s.syncOrders)
		r.Get("/{orderID}", s.getOrder)
		r.Post("/{orderID}/items/{itemID}/review", s.reviewItem)
	})

	return r
}

// Handler возвращает роутер, обёрнутый otelhttp.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Routes(), "storefront-http")
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		entry := s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(started).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP request failed")
			return
		}
		entry.Debug("HTTP request served")
	})
}
