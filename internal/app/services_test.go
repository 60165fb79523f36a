package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// fakeCommerce изображает commerce backend в сквозных тестах.
type fakeCommerce struct {
	mu       sync.Mutex
	cart     []map[string]any
	deleted  []string
	reports  []map[string]string
	orderIDs int
}

func newFakeCommerce(t *testing.T) (*fakeCommerce, *httptest.Server) {
	t.Helper()

	f := &fakeCommerce{
		cart: []map[string]any{
			{"id": 10, "product_id": 1, "name": "Batik", "price": "50000.00", "quantity": 2},
		},
	}
	r := chi.NewRouter()
	r.Get("/api/cart/{userID}", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.cart)
	})
	r.Delete("/api/cart/{itemID}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleted = append(f.deleted, chi.URLParam(r, "itemID"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/create-transaction", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing key"})
			return
		}
		f.mu.Lock()
		f.orderIDs++
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"order_id": "ord-1", "snap_token": "tok-1"})
	})
	r.Post("/api/orders/update-status", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.reports = append(f.reports, body)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCommerce) snapshot() (deleted []string, reports []map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...), append([]map[string]string(nil), f.reports...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestServices(t *testing.T, apiBaseURL string) (*services, *runtimeDependencies) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.APIBaseURL = apiBaseURL
	cfg.HostedPageURL = "https://pay.test/snap"
	cfg.SessionTimeout = 5 * time.Second

	logger := log.WithField("test", "services")
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	m := metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())
	svc := buildServices(cfg, deps, nil, m, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.flow.Shutdown(ctx)
		deps.close(logger)
	})
	return svc, deps
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServices_CheckoutSettlementEndToEnd(t *testing.T) {
	backend, srv := newFakeCommerce(t)
	svc, _ := newTestServices(t, srv.URL+"/api")
	handler := svc.server.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/session", map[string]any{
		"token": "opaque-token",
		"user":  map[string]string{"id": "u-1", "name": "Sari", "email": "sari@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, handler, http.MethodPost, "/cart/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, handler, http.MethodGet, "/cart/totals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rp. 100.000")

	rec = doRequest(t, handler, http.MethodPost, "/checkout", map[string]any{
		"customer": map[string]string{
			"name":    "Sari",
			"email":   "sari@example.com",
			"address": "Jl. Merdeka 1",
			"phone":   "08123456789",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var started struct {
		OrderID     string `json:"order_id"`
		RedirectURL string `json:"redirect_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "ord-1", started.OrderID)
	assert.Equal(t, "https://pay.test/snap/tok-1", started.RedirectURL)

	rec = doRequest(t, handler, http.MethodGet, "/payments/return?order_id=ord-1&transaction_status=settlement", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		deleted, reports := backend.snapshot()
		return len(deleted) == 1 && len(reports) == 1
	}, 2*time.Second, 10*time.Millisecond)

	deleted, reports := backend.snapshot()
	assert.Equal(t, []string{"10"}, deleted)
	assert.Equal(t, "ord-1", reports[0]["order_id"])
	assert.Equal(t, "settlement", reports[0]["transaction_status"])

	rec = doRequest(t, handler, http.MethodGet, "/orders/ord-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestServices_BackendUnavailable(t *testing.T) {
	svc, _ := newTestServices(t, "http://127.0.0.1:1/api")
	handler := svc.server.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/session", map[string]any{
		"token": "opaque-token",
		"user":  map[string]string{"id": "u-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/cart/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
}

func TestRegisterHealthCheckers_OptionalBackend(t *testing.T) {
	svc, deps := newTestServices(t, "http://127.0.0.1:1/api")

	h := healthcheck.NewHandler(version.GetVersion())
	h.SetTimeout(500 * time.Millisecond)
	registerHealthCheckers(h, DefaultConfig(), deps, svc)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthcheck.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthcheck.StatusDegraded, resp.Status)
	assert.Equal(t, healthcheck.StatusHealthy, resp.Checks["storage"].Status)
	assert.Equal(t, healthcheck.StatusDegraded, resp.Checks["commerce-api"].Status)
	assert.Equal(t, healthcheck.StatusHealthy, resp.Checks["outbox"].Status)

	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ready"))
}
