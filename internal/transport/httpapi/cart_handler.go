package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
)

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type lineTotalDTO struct {
	CartItemID     string `json:"cart_item_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	DiscountAmount int64  `json:"discount_amount"`
	EffectivePrice int64  `json:"effective_price"`
	Subtotal       int64  `json:"subtotal"`
}

type totalsDTO struct {
	Lines         []lineTotalDTO `json:"lines"`
	Gross         int64          `json:"gross"`
	DiscountTotal int64          `json:"discount_total"`
	Subtotal      int64          `json:"subtotal"`
	GrandTotal    int64          `json:"grand_total"`
	ItemCount     int            `json:"item_count"`
	Formatted     string         `json:"formatted_total"`
}

func toTotalsDTO(t pricing.Totals) totalsDTO {
	lines := make([]lineTotalDTO, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, lineTotalDTO{
			CartItemID:     l.CartItemID,
			ProductID:      l.ProductID,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			DiscountAmount: l.DiscountAmount,
			EffectivePrice: l.EffectivePrice,
			Subtotal:       l.Subtotal,
		})
	}
	return totalsDTO{
		Lines:         lines,
		Gross:         t.Gross,
		DiscountTotal: t.DiscountTotal,
		Subtotal:      t.Subtotal,
		GrandTotal:    t.GrandTotal,
		ItemCount:     t.ItemCount,
		Formatted:     pricing.FormatRupiah(t.GrandTotal),
	}
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cart.List())
}

func (s *Server) getTotals(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toTotalsDTO(s.cart.Totals()))
}

func (s *Server) refreshCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.cart.Refresh(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		s.respondDomainError(w, r, domain.ErrInvalidQuantity)
		return
	}

	item, err := s.cart.Add(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	itemID := chi.URLParam(r, "itemID")
	item, err := s.cart.SetQuantity(r.Context(), itemID, req.Quantity)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if req.Quantity == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := s.cart.Remove(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
