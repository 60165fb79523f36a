package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cachedReview struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type cachedItem struct {
	ID             string        `json:"id,omitempty"`
	CartItemID     string        `json:"cart_item_id,omitempty"`
	ProductID      string        `json:"product_id"`
	Name           string        `json:"name,omitempty"`
	Quantity       int           `json:"quantity"`
	UnitPrice      int64         `json:"price"`
	DiscountAmount int64         `json:"discount,omitempty"`
	Subtotal       int64         `json:"subtotal"`
	Review         *cachedReview `json:"review,omitempty"`
}

type cachedOrder struct {
	ID          string       `json:"order_id"`
	Status      string       `json:"status"`
	TotalAmount int64        `json:"total_amount"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Items       []cachedItem `json:"items"`
}

func toCached(record domain.OrderRecord) cachedOrder {
	items := make([]cachedItem, 0, len(record.Items))
	for _, item := range record.Items {
		c := cachedItem{
			ID:             item.ID,
			CartItemID:     item.CartItemID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			Subtotal:       item.Subtotal,
		}
		if item.Review != nil {
			c.Review = &cachedReview{Rating: item.Review.Rating, Comment: item.Review.Comment, CreatedAt: item.Review.CreatedAt}
		}
		items = append(items, c)
	}
	return cachedOrder{
		ID:          record.ID,
		Status:      string(record.Status),
		TotalAmount: record.TotalAmount,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
		Items:       items,
	}
}

func (c cachedOrder) toRecord(userID string) domain.OrderRecord {
	items := make([]domain.OrderItem, 0, len(c.Items))
	for _, item := range c.Items {
		o := domain.OrderItem{
			ID:             item.ID,
			CartItemID:     item.CartItemID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			Subtotal:       item.Subtotal,
		}
		if item.Review != nil {
			o.Review = &domain.Review{Rating: item.Review.Rating, Comment: item.Review.Comment, CreatedAt: item.Review.CreatedAt}
		}
		items = append(items, o)
	}
	return domain.OrderRecord{
		ID:          c.ID,
		UserID:      userID,
		Items:       items,
		TotalAmount: c.TotalAmount,
		Status:      domain.OrderStatus(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (s *Store) writeCache(ctx context.Context, userID string, records []domain.OrderRecord, logger *log.Entry) {
	if s.cache == nil {
		return
	}
	payload := make([]cachedOrder, 0, len(records))
	for _, record := range records {
		payload = append(payload, toCached(record))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Warn("Failed to encode history cache")
		return
	}
	if err := s.cache.Set(ctx, CacheKeyPrefix+userID, body, s.cacheTTL); err != nil {
		logger.WithError(err).Warn("Failed to write history cache")
	}
}

// Cached возвращает историю из офлайн-кэша последней синхронизации.
// Если кэша нет, возвращается пустой список без ошибки.
func (s *Store) Cached(ctx context.Context) ([]domain.OrderRecord, error) {
	identity, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return []domain.OrderRecord{}, nil
	}

	body, err := s.cache.Get(ctx, CacheKeyPrefix+identity.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return []domain.OrderRecord{}, nil
		}
		return nil, fmt.Errorf("read history cache: %w", err)
	}

	var cached []cachedOrder
	if err := json.Unmarshal(body, &cached); err != nil {
		s.logger.WithError(err).WithField("user_id", identity.UserID).Warn("History cache is corrupted, ignoring")
		return []domain.OrderRecord{}, nil
	}
	records := make([]domain.OrderRecord, 0, len(cached))
	for _, c := range cached {
		records = append(records, c.toRecord(identity.UserID))
	}
	return records, nil
}
