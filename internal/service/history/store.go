// Package history ведёт локальную историю заказов пользователя, синхронизация с backend,
// офлайн-кэш и отзывы на позиции оплаченных заказов.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Префикс ключа офлайн-кэша истории, за ним идёт id пользователя.
const CacheKeyPrefix = "transactionHistory:"

const defaultListLimit = 100

// Store отдаёт историю текущего пользователя.
type Store struct {
	orders    domain.OrderRepository
	remote    domain.HistoryAPI
	sessions  domain.SessionProvider
	cache     domain.KeyValueStore
	timeline  domain.TimelineRepository
	logger    *log.Entry
	cacheTTL  time.Duration
	listLimit int
	now       func() time.Time

	inflight singleflight.Group
	reviewMu sync.Mutex
}

// Option настраивает Store.
type Option func(*Store)

// WithCache включает офлайн-кэш в key/value хранилище.
func WithCache(cache domain.KeyValueStore, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithTimeline включает запись событий по отзывам.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Store) { s.timeline = timeline }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListLimit ограничивает число заказов в выдаче.
func WithListLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

// NewStore создаёт Store.
func NewStore(orders domain.OrderRepository, remote domain.HistoryAPI, sessions domain.SessionProvider, opts ...Option) *Store {
	s := &Store{
		orders:    orders,
		remote:    remote,
		sessions:  sessions,
		logger:    log.WithField("component", "order-history"),
		listLimit: defaultListLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List возвращает заказы текущего пользователя, новые первыми.
func (s *Store) List(ctx context.Context) ([]domain.OrderRecord, error) {
	identity, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.orders.ListByUser(identity.UserID, s.listLimit)
}

// Get возвращает заказ текущего пользователя.
func (s *Store) Get(ctx context.Context, orderID string) (domain.OrderRecord, error) {
	identity, err := s.sessions.Current(ctx)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	record, err := s.orders.Get(orderID)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if record.UserID != identity.UserID {
		return domain.OrderRecord{}, domain.ErrOrderNotFound
	}
	return record, nil
}

// Sync подтягивает историю с backend. Недостающие заказы создаются, у существующих
// обновляются только идентификаторы позиций; статус меняет лишь сверка платежа.
// Параллельные вызовы для одного пользователя объединяются.
func (s *Store) Sync(ctx context.Context) ([]domain.OrderRecord, error) {
	identity, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}

	result, err, _ := s.inflight.Do(identity.UserID, func() (interface{}, error) {
		return s.syncUser(ctx, identity.UserID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.OrderRecord), nil
}

func (s *Store) syncUser(ctx context.Context, userID string) ([]domain.OrderRecord, error) {
	logger := s.logger.WithField("user_id", userID)

	remote, err := s.remote.ListOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sync history: %w", err)
	}

	var created, updated int
	for _, order := range remote {
		if order.ID == "" {
			continue
		}
		if len(order.Items) == 0 {
			detail, err := s.remote.OrderDetail(ctx, order.ID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("sync history: %w", ctx.Err())
				}
				logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to load order detail")
			} else {
				order.Items = detail.Items
			}
		}

		changed, isNew, err := s.merge(userID, order)
		if err != nil {
			logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to merge remote order")
			continue
		}
		if isNew {
			created++
		} else if changed {
			updated++
		}
	}

	records, err := s.orders.ListByUser(userID, s.listLimit)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, userID, records, logger)

	logger.WithFields(log.Fields{
		"remote":  len(remote),
		"created": created,
		"updated": updated,
	}).Info("Order history synced")
	return records, nil
}

// merge применяет удалённый заказ к локальной истории.
func (s *Store) merge(userID string, remote domain.RemoteOrder) (changed, created bool, err error) {
	existing, err := s.orders.Get(remote.ID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		if err := s.orders.Create(recordFromRemote(userID, remote, s.now().UTC())); err != nil {
			if errors.Is(err, domain.ErrOrderVersionConflict) {
				return false, false, nil
			}
			return false, false, err
		}
		return true, true, nil
	}
	if err != nil {
		return false, false, err
	}

	if !attachRemoteItemIDs(&existing, remote.Items) {
		return false, false, nil
	}
	existing.UpdatedAt = s.now().UTC()
	if err := s.orders.Save(existing); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// attachRemoteItemIDs проставляет backend-идентификаторы позициям без них, сопоставляя по товару.
func attachRemoteItemIDs(record *domain.OrderRecord, items []domain.RemoteOrderItem) bool {
	used := make(map[string]bool, len(record.Items))
	for _, item := range record.Items {
		if item.ID != "" {
			used[item.ID] = true
		}
	}

	changed := false
	for i := range record.Items {
		if record.Items[i].ID != "" {
			continue
		}
		for _, remote := range items {
			if remote.ID == "" || used[remote.ID] || remote.ProductID != record.Items[i].ProductID {
				continue
			}
			record.Items[i].ID = remote.ID
			used[remote.ID] = true
			changed = true
			break
		}
	}
	return changed
}

func recordFromRemote(userID string, remote domain.RemoteOrder, now time.Time) domain.OrderRecord {
	items := make([]domain.OrderItem, 0, len(remote.Items))
	var total int64
	for _, item := range remote.Items {
		subtotal := item.Price * int64(item.Quantity)
		total += subtotal
		items = append(items, domain.OrderItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
			Subtotal:  subtotal,
		})
	}
	if remote.TotalAmount > 0 {
		total = remote.TotalAmount
	}
	createdAt := remote.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return domain.OrderRecord{
		ID:          remote.ID,
		UserID:      userID,
		Items:       items,
		TotalAmount: total,
		Status:      statusFromRemote(remote.Status),
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   now,
	}
}

// statusFromRemote переводит статус backend в статус локальной истории.
func statusFromRemote(status string) domain.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "success", "paid", domain.TransactionSettlement, domain.TransactionCapture:
		return domain.OrderStatusCompleted
	case "failed", "cancelled", domain.TransactionDeny, domain.TransactionExpire, domain.TransactionCancel:
		return domain.OrderStatusFailed
	case domain.TransactionPending:
		return domain.OrderStatusPending
	default:
		return domain.OrderStatusAwaitingPayment
	}
}

// Review оставляет отзыв на позицию оплаченного заказа. На позицию допускается один отзыв.
func (s *Store) Review(ctx context.Context, orderID, orderItemID string, rating int, comment string) (domain.OrderRecord, error) {
	if rating < 1 || rating > 5 {
		return domain.OrderRecord{}, domain.ErrInvalidRating
	}

	s.reviewMu.Lock()
	defer s.reviewMu.Unlock()

	record, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if record.Status != domain.OrderStatusCompleted {
		return domain.OrderRecord{}, fmt.Errorf("order %s is %s: %w", orderID, record.Status, domain.ErrOrderNotCompleted)
	}
	idx := findItem(record, orderItemID)
	if idx < 0 {
		return domain.OrderRecord{}, fmt.Errorf("order %s item %s: %w", orderID, orderItemID, domain.ErrOrderItemNotFound)
	}
	if record.Items[idx].Review != nil {
		return domain.OrderRecord{}, domain.ErrReviewAlreadyExists
	}

	comment = strings.TrimSpace(comment)
	if err := s.remote.SubmitReview(ctx, domain.ReviewRequest{
		OrderItemID: orderItemID,
		ProductID:   record.Items[idx].ProductID,
		Rating:      rating,
		Comment:     comment,
	}); err != nil {
		return domain.OrderRecord{}, err
	}

	review := &domain.Review{Rating: rating, Comment: comment, CreatedAt: s.now().UTC()}
	record, err = s.saveReview(record, orderItemID, review)
	if err != nil {
		return domain.OrderRecord{}, err
	}

	if s.timeline != nil {
		if err := s.timeline.Append(domain.TimelineEvent{
			OrderID:  orderID,
			Type:     domain.TimelineReviewSubmitted,
			Reason:   orderItemID,
			Occurred: review.CreatedAt,
		}); err != nil {
			s.logger.WithError(err).WithField("order_id", orderID).Warn("append timeline event failed")
		}
	}
	return record, nil
}

// saveReview сохраняет отзыв с повтором при конфликте версий.
func (s *Store) saveReview(record domain.OrderRecord, orderItemID string, review *domain.Review) (domain.OrderRecord, error) {
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		idx := findItem(record, orderItemID)
		if idx < 0 {
			return domain.OrderRecord{}, domain.ErrOrderItemNotFound
		}
		if record.Items[idx].Review != nil {
			return record, nil
		}
		updated := record.Clone()
		updated.Items[idx].Review = review
		updated.UpdatedAt = review.CreatedAt

		err := s.orders.Save(updated)
		if err == nil {
			updated.Version = record.Version + 1
			return updated, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.OrderRecord{}, err
		}
		fresh, err := s.orders.Get(record.ID)
		if err != nil {
			return domain.OrderRecord{}, err
		}
		record = fresh
	}
	return domain.OrderRecord{}, domain.ErrOrderVersionConflict
}

func findItem(record domain.OrderRecord, orderItemID string) int {
	if orderItemID == "" {
		return -1
	}
	for i, item := range record.Items {
		if item.ID == orderItemID {
			return i
		}
	}
	return -1
}
