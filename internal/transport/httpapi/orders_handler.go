package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type reviewDTO struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

type orderItemDTO struct {
	ID             string     `json:"id,omitempty"`
	ProductID      string     `json:"product_id"`
	Name           string     `json:"name,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPrice      int64      `json:"unit_price"`
	DiscountAmount int64      `json:"discount_amount"`
	Subtotal       int64      `json:"subtotal"`
	Review         *reviewDTO `json:"review,omitempty"`
}

type orderDTO struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	TotalAmount int64          `json:"total_amount"`
	Items       []orderItemDTO `json:"items"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func toOrderDTO(record domain.OrderRecord) orderDTO {
	items := make([]orderItemDTO, 0, len(record.Items))
	for _, item := range record.Items {
		dto := orderItemDTO{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			Subtotal:       item.Subtotal,
		}
		if item.Review != nil {
			dto.Review = &reviewDTO{
				Rating:    item.Review.Rating,
				Comment:   item.Review.Comment,
				CreatedAt: item.Review.CreatedAt,
			}
		}
		items = append(items, dto)
	}
	return orderDTO{
		ID:          record.ID,
		Status:      string(record.Status),
		TotalAmount: record.TotalAmount,
		Items:       items,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func toOrderDTOs(records []domain.OrderRecord) []orderDTO {
	out := make([]orderDTO, 0, len(records))
	for _, record := range records {
		out = append(out, toOrderDTO(record))
	}
	return out
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(records))
}

// cachedOrders отдаёт офлайн-копию истории.
func (s *Server) cachedOrders(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.Cached(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(records))
}

func (s *Server) syncOrders(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.Sync(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(records))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	record, err := s.history.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(record))
}

func (s *Server) reviewItem(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	record, err := s.history.Review(r.Context(),
		chi.URLParam(r, "orderID"),
		chi.URLParam(r, "itemID"),
		req.Rating,
		req.Comment,
	)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderDTO(record))
}
