// Package api реализует HTTP-клиент коммерческого backend: корзина, создание заказа,
// отчёт о статусе и история заказов.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	defaultTimeout             = 5 * time.Second
	defaultCreateTransaction   = "/create-transaction"
	defaultBreakerMaxFailures  = 5
	defaultBreakerResetTimeout = 10 * time.Second
	maxErrorBody               = 4 << 10
)

// StatusError описывает неуспешный HTTP-ответ backend. Через errors.Is сводится к
// ErrUnauthenticated (401), ErrNetwork (408, 429, 5xx) или ErrRequestRejected (прочие 4xx).
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests, e.Code >= 500:
		return domain.ErrNetwork
	default:
		return domain.ErrRequestRejected
	}
}

// Client обращается к backend по JSON API с bearer-токеном текущей сессии.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	sessions          domain.SessionProvider
	onUnauthorized    func(ctx context.Context)
	breaker           *CircuitBreaker
	createTransaction string
	logger            *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт собственный http.Client (тесты, особые таймауты).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithSessions подключает источник токена.
func WithSessions(sessions domain.SessionProvider) Option {
	return func(c *Client) { c.sessions = sessions }
}

// WithUnauthorizedHook вызывается на каждый ответ 401 (обычно очищает сохранённую сессию).
func WithUnauthorizedHook(fn func(ctx context.Context)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithBreaker заменяет circuit breaker; nil отключает его.
func WithBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithCreateTransactionPath переопределяет путь создания заказа.
func WithCreateTransactionPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.createTransaction = "/" + strings.TrimPrefix(path, "/")
		}
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient создаёт клиента для baseURL вида "http://host:8000/api".
func NewClient(baseURL string, opts ...Option) *Client {
	logger := log.WithField("component", "commerce-api")
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:           NewCircuitBreaker(defaultBreakerMaxFailures, defaultBreakerResetTimeout, logger),
		createTransaction: defaultCreateTransaction,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping проверяет, что backend отвечает; любой HTTP-ответ считается доступностью.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping commerce api: %w", domain.ErrNetwork)
	}
	_ = resp.Body.Close()
	return nil
}

// do выполняет запрос и декодирует ответ в out (если out != nil).
// Тело ответа может быть обёрнуто в {"data": ...}.
func (c *Client) do(ctx context.Context, method, path string, in, out any, headers map[string]string) (int, error) {
	var status int
	err := c.breaker.Execute(method+" "+path, func() error {
		var err error
		status, err = c.roundTrip(ctx, method, path, in, out, headers)
		return err
	})
	return status, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any, headers map[string]string) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.sessions != nil {
		identity, err := c.sessions.Current(ctx)
		if err != nil {
			return 0, err
		}
		if identity.Token != "" {
			req.Header.Set("Authorization", "Bearer "+identity.Token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.logger.WithField("path", path).Warn("Backend rejected bearer token, clearing session")
			c.onUnauthorized(ctx)
		}
		return resp.StatusCode, statusErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s %s: %v: %w", method, path, err, domain.ErrNetwork)
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

// decodeEnvelope разбирает ответ, снимая обёртку {"data": ...}, если она есть.
func decodeEnvelope(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err == nil {
			if data, ok := envelope["data"]; ok && len(data) > 0 && string(data) != "null" {
				raw = data
			}
		}
	}
	return json.Unmarshal(raw, out)
}

func escape(segment string) string {
	return url.PathEscape(segment)
}

func isNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}
