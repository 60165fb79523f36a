// Package cart хранит локальную корзину с оптимистичными изменениями и синхронизирует её с backend.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
)

const provisionalPrefix = "local-"

// row хранит строку корзины вместе с последним подтверждённым значением.
type row struct {
	item      domain.CartItem
	confirmed domain.CartItem
	removed   bool
	inflight  int
}

// Store владеет состоянием корзины. Изменения одной позиции выполняются строго
// последовательно, разных позиций параллельно.
type Store struct {
	api      domain.CartAPI
	sessions domain.SessionProvider
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry

	locks   *keyedMutex
	refresh singleflight.Group

	mu     sync.RWMutex
	userID string
	rows   map[string]*row
	order  []string
}

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore создаёт пустую корзину; содержимое загружается через Refresh.
func NewStore(api domain.CartAPI, sessions domain.SessionProvider, opts ...Option) *Store {
	s := &Store{
		api:      api,
		sessions: sessions,
		logger:   log.WithField("component", "cart-store"),
		locks:    newKeyedMutex(),
		rows:     make(map[string]*row),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List возвращает снимок корзины. Позиции в процессе удаления не показываются.
func (s *Store) List() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart := domain.Cart{UserID: s.userID, Items: make([]domain.CartItem, 0, len(s.order))}
	for _, id := range s.order {
		r := s.rows[id]
		if r == nil || r.removed {
			continue
		}
		cart.Items = append(cart.Items, r.item)
	}
	return cart
}

// Totals пересчитывает итоги текущего снимка.
func (s *Store) Totals() pricing.Totals {
	return pricing.ComputeTotals(s.List())
}

// Refresh загружает корзину с backend. Параллельные вызовы объединяются;
// строки с незавершёнными изменениями сохраняют локальное значение.
func (s *Store) Refresh(ctx context.Context) (domain.Cart, error) {
	identity, err := s.sessions.Current(ctx)
	if err != nil {
		return domain.Cart{}, err
	}

	v, err, shared := s.refresh.Do(identity.UserID, func() (any, error) {
		return s.api.FetchCart(ctx, identity.UserID)
	})
	if err != nil {
		s.metrics.RecordCartMutation("refresh", "error")
		return domain.Cart{}, fmt.Errorf("refresh cart: %w", err)
	}
	s.metrics.RecordCartMutation("refresh", "ok")

	remote := v.([]domain.CartItem)
	s.mu.Lock()
	s.merge(identity.UserID, remote)
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{
		"user_id": identity.UserID,
		"items":   len(remote),
		"shared":  shared,
	}).Debug("Cart refreshed")
	return s.List(), nil
}

// merge заменяет подтверждённое состояние ответом backend. Вызывается под s.mu.
func (s *Store) merge(userID string, remote []domain.CartItem) {
	if s.userID != userID {
		s.rows = make(map[string]*row)
		s.order = nil
		s.userID = userID
	}

	rows := make(map[string]*row, len(remote))
	order := make([]string, 0, len(remote))
	for _, item := range remote {
		if item.ID == "" {
			continue
		}
		if _, dup := rows[item.ID]; dup {
			continue
		}
		if existing := s.rows[item.ID]; existing != nil && existing.inflight > 0 {
			rows[item.ID] = existing
		} else {
			item.State = domain.CartItemConfirmed
			rows[item.ID] = &row{item: item, confirmed: item}
		}
		order = append(order, item.ID)
	}
	for _, id := range s.order {
		r := s.rows[id]
		if r == nil || r.inflight == 0 {
			continue
		}
		if _, ok := rows[id]; !ok {
			rows[id] = r
			order = append(order, id)
		}
	}
	s.rows = rows
	s.order = order
}

// Add добавляет quantity единиц товара. Если строка с этим товаром уже есть,
// увеличивается её количество; иначе создаётся новая строка.
func (s *Store) Add(ctx context.Context, productID string, quantity int) (domain.CartItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CartItem{}, domain.ErrProductRequired
	}
	if quantity < 1 {
		return domain.CartItem{}, fmt.Errorf("add %d units: %w", quantity, domain.ErrInvalidQuantity)
	}

	identity, err := s.sessions.Current(ctx)
	if err != nil {
		return domain.CartItem{}, err
	}

	unlock, err := s.locks.Lock(ctx, "product:"+productID)
	if err != nil {
		return domain.CartItem{}, err
	}
	defer unlock()

	// итоговое количество считается под блокировкой строки: незавершённое
	// изменение той же строки может ещё откатиться
	if existing, ok := s.findByProduct(productID); ok {
		item, err := s.updateQuantity(ctx, existing.ID, func(current int) int { return current + quantity }, "add")
		if !errors.Is(err, domain.ErrCartItemNotFound) {
			return item, err
		}
	}
	return s.create(ctx, identity.UserID, productID, quantity)
}

func (s *Store) create(ctx context.Context, userID, productID string, quantity int) (domain.CartItem, error) {
	localID := provisionalPrefix + uuid.NewString()
	provisional := domain.CartItem{
		ID:        localID,
		ProductID: productID,
		Quantity:  quantity,
		State:     domain.CartItemRequested,
	}

	s.mu.Lock()
	if s.userID == "" {
		s.userID = userID
	}
	s.rows[localID] = &row{item: provisional, inflight: 1}
	s.order = append(s.order, localID)
	s.mu.Unlock()

	created, err := s.api.AddCartItem(ctx, userID, productID, quantity)
	if err != nil {
		s.mu.Lock()
		s.dropRow(localID)
		s.mu.Unlock()

		s.metrics.RecordCartMutation("add", "rolled_back")
		s.metrics.RecordCartRollback()
		s.logger.WithError(err).WithField("product_id", productID).Warn("Add to cart rejected, rolled back")
		return domain.CartItem{}, fmt.Errorf("add product %s: %w", productID, err)
	}

	created.State = domain.CartItemConfirmed
	s.mu.Lock()
	if existing := s.rows[created.ID]; existing != nil {
		// backend слил добавление с уже известной строкой
		existing.item = created
		existing.confirmed = created
		existing.removed = false
		s.dropRow(localID)
	} else {
		s.rows[created.ID] = &row{item: created, confirmed: created}
		for i, id := range s.order {
			if id == localID {
				s.order[i] = created.ID
			}
		}
		delete(s.rows, localID)
	}
	s.mu.Unlock()

	s.metrics.RecordCartMutation("add", "ok")
	return created, nil
}

// SetQuantity задаёт количество. Ноль равносилен Remove.
func (s *Store) SetQuantity(ctx context.Context, id string, quantity int) (domain.CartItem, error) {
	if quantity < 0 {
		return domain.CartItem{}, fmt.Errorf("set quantity %d for item %s: %w", quantity, id, domain.ErrInvalidQuantity)
	}
	if quantity == 0 {
		return domain.CartItem{}, s.Remove(ctx, id)
	}
	return s.updateQuantity(ctx, id, func(int) int { return quantity }, "set_quantity")
}

// updateQuantity захватывает строку и выставляет количество target(текущее).
func (s *Store) updateQuantity(ctx context.Context, id string, target func(current int) int, op string) (domain.CartItem, error) {
	unlock, err := s.locks.Lock(ctx, "item:"+id)
	if err != nil {
		return domain.CartItem{}, err
	}
	defer unlock()

	return s.applyQuantity(ctx, id, target, op)
}

// applyQuantity вызывается под блокировкой "item:<id>".
func (s *Store) applyQuantity(ctx context.Context, id string, target func(current int) int, op string) (domain.CartItem, error) {
	s.mu.Lock()
	r := s.rows[id]
	if r == nil || r.removed {
		s.mu.Unlock()
		return domain.CartItem{}, fmt.Errorf("item %s: %w", id, domain.ErrCartItemNotFound)
	}
	snapshot := r.item
	quantity := target(r.item.Quantity)
	r.item.Quantity = quantity
	r.item.State = domain.CartItemRequested
	r.inflight++
	s.mu.Unlock()

	updated, err := s.api.UpdateCartItem(ctx, id, quantity)

	s.mu.Lock()
	defer s.mu.Unlock()
	r.inflight--
	if err != nil {
		r.item = snapshot
		r.item.State = domain.CartItemRolledBack
		s.metrics.RecordCartMutation(op, "rolled_back")
		s.metrics.RecordCartRollback()
		s.logger.WithError(err).WithFields(log.Fields{
			"item_id":  id,
			"quantity": quantity,
		}).Warn("Cart update rejected, rolled back")
		return domain.CartItem{}, fmt.Errorf("update item %s: %w", id, err)
	}

	if updated.ProductID != "" {
		r.item.ProductID = updated.ProductID
		if updated.Quantity > 0 {
			r.item.Quantity = updated.Quantity
		}
		if updated.UnitPrice > 0 {
			r.item.UnitPrice = updated.UnitPrice
		}
		r.item.DiscountAmount = updated.DiscountAmount
		if updated.Name != "" {
			r.item.Name = updated.Name
		}
	}
	r.item.State = domain.CartItemConfirmed
	r.confirmed = r.item
	s.metrics.RecordCartMutation(op, "ok")
	return r.item, nil
}

// Remove удаляет строку целиком.
func (s *Store) Remove(ctx context.Context, id string) error {
	unlock, err := s.locks.Lock(ctx, "item:"+id)
	if err != nil {
		return err
	}
	defer unlock()

	return s.removeRow(ctx, id)
}

// removeRow вызывается под блокировкой "item:<id>".
func (s *Store) removeRow(ctx context.Context, id string) error {
	s.mu.Lock()
	r := s.rows[id]
	if r == nil || r.removed {
		s.mu.Unlock()
		return fmt.Errorf("item %s: %w", id, domain.ErrCartItemNotFound)
	}
	r.removed = true
	r.inflight++
	s.mu.Unlock()

	err := s.api.DeleteCartItem(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	r.inflight--
	if err != nil {
		r.removed = false
		r.item.State = domain.CartItemRolledBack
		s.metrics.RecordCartMutation("remove", "rolled_back")
		s.metrics.RecordCartRollback()
		s.logger.WithError(err).WithField("item_id", id).Warn("Cart removal rejected, rolled back")
		return fmt.Errorf("remove item %s: %w", id, err)
	}
	s.dropRow(id)
	s.metrics.RecordCartMutation("remove", "ok")
	return nil
}

// RemoveItems убирает из корзины оплаченные единицы. Если после оформления
// в строку добавили ещё товара, строка остаётся с разницей. Строки, неизвестные
// локально, удаляются только на backend (там отсутствие строки не ошибка).
func (s *Store) RemoveItems(ctx context.Context, lines []domain.PaidLine) error {
	var errs []error
	for _, line := range lines {
		if line.CartItemID == "" {
			continue
		}
		if err := s.removePaid(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) removePaid(ctx context.Context, line domain.PaidLine) error {
	unlock, err := s.locks.Lock(ctx, "item:"+line.CartItemID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	r := s.rows[line.CartItemID]
	known := r != nil && !r.removed
	current := 0
	if known {
		current = r.item.Quantity
	}
	s.mu.RUnlock()

	switch {
	case !known:
		return s.api.DeleteCartItem(ctx, line.CartItemID)
	case line.Quantity > 0 && current > line.Quantity:
		_, err := s.applyQuantity(ctx, line.CartItemID, func(current int) int { return current - line.Quantity }, "clear_paid")
		return err
	default:
		return s.removeRow(ctx, line.CartItemID)
	}
}

func (s *Store) findByProduct(productID string) (domain.CartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		r := s.rows[id]
		if r != nil && !r.removed && r.item.ProductID == productID && !strings.HasPrefix(id, provisionalPrefix) {
			return r.item, true
		}
	}
	return domain.CartItem{}, false
}

// dropRow удаляет строку из состояния. Вызывается под s.mu.
func (s *Store) dropRow(id string) {
	delete(s.rows, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

var _ domain.CartCleaner = (*Store)(nil)
