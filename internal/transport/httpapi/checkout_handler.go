package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type checkoutRequest struct {
	Customer *domain.CustomerInfo `json:"customer,omitempty"`
	// SaveCustomer сохраняет форму для следующих оформлений.
	SaveCustomer bool `json:"save_customer,omitempty"`
}

type checkoutResponse struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

type navigationRequest struct {
	OrderID string `json:"order_id"`
	URL     string `json:"url"`
	Closed  bool   `json:"closed"`
}

func (s *Server) beginCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var customer domain.CustomerInfo
	if req.Customer != nil {
		customer = *req.Customer
	} else {
		saved, err := s.account.SavedCustomer(r.Context())
		if err != nil {
			s.respondDomainError(w, r, err)
			return
		}
		customer = saved
	}

	c, err := s.flow.Begin(r.Context(), customer)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	if req.SaveCustomer {
		if err := s.account.SaveCustomer(r.Context(), customer); err != nil {
			s.logger.WithError(err).WithField("order_id", c.OrderID()).Warn("Failed to save customer form")
		}
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:     c.OrderID(),
		RedirectURL: c.HostedURL(),
	})
}

func (s *Server) abandonCheckout(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.Abandon(chi.URLParam(r, "orderID")); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) savedCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := s.account.SavedCustomer(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

func (s *Server) saveCustomer(w http.ResponseWriter, r *http.Request) {
	var customer domain.CustomerInfo
	if err := decodeJSON(r, &customer); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := s.account.SaveCustomer(r.Context(), customer); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, customer.Normalize())
}

// navigation принимает события навигации встроенной страницы оплаты.
func (s *Server) navigation(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.URL == "" && !req.Closed {
		respondError(w, http.StatusBadRequest, "invalid_request", "url or closed is required")
		return
	}

	s.publish(w, domain.NavigationEvent{OrderID: req.OrderID, URL: req.URL, Closed: req.Closed})
}

// paymentReturn принимает возврат со страницы оплаты (finish/unfinish/error).
func (s *Server) paymentReturn(w http.ResponseWriter, r *http.Request) {
	s.publish(w, domain.NavigationEvent{URL: requestURL(r)})
}

// paymentClose вызывается, когда пользователь закрыл страницу оплаты.
func (s *Server) paymentClose(w http.ResponseWriter, r *http.Request) {
	s.publish(w, domain.NavigationEvent{
		OrderID: r.URL.Query().Get("order_id"),
		URL:     requestURL(r),
		Closed:  true,
	})
}

func (s *Server) publish(w http.ResponseWriter, event domain.NavigationEvent) {
	delivered := s.bus.Publish(event)
	s.logger.WithFields(log.Fields{
		"order_id":  event.OrderID,
		"closed":    event.Closed,
		"delivered": delivered,
	}).Debug("Navigation event received")
	respondJSON(w, http.StatusAccepted, map[string]int{"delivered": delivered})
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
