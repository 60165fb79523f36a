package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FetchCart загружает корзину: GET /cart/{userId}.
func (c *Client) FetchCart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	var items []cartItemDTO
	if _, err := c.do(ctx, http.MethodGet, "/cart/"+escape(userID), nil, &items, nil); err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}

	result := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		result = append(result, item.toDomain())
	}
	return result, nil
}

// AddCartItem вызывает POST /cart. Без серверного ID ответ считается неполным.
func (c *Client) AddCartItem(ctx context.Context, userID, productID string, quantity int) (domain.CartItem, error) {
	var created cartItemDTO
	req := addCartItemRequest{UserID: userID, ProductID: productID, Quantity: quantity}
	if _, err := c.do(ctx, http.MethodPost, "/cart", req, &created, nil); err != nil {
		return domain.CartItem{}, fmt.Errorf("add cart item: %w", err)
	}

	item := created.toDomain()
	if item.ID == "" {
		return domain.CartItem{}, fmt.Errorf("add cart item: response without id: %w", domain.ErrRequestRejected)
	}
	if item.ProductID == "" {
		item.ProductID = productID
	}
	if item.Quantity == 0 {
		item.Quantity = quantity
	}
	return item, nil
}

// UpdateCartItem вызывает PUT /cart/{id}. Если backend не вернул позицию, ProductID пуст.
func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) (domain.CartItem, error) {
	var updated cartItemDTO
	if _, err := c.do(ctx, http.MethodPut, "/cart/"+escape(itemID), updateCartItemRequest{Quantity: quantity}, &updated, nil); err != nil {
		if isNotFound(err) {
			return domain.CartItem{}, fmt.Errorf("update cart item %s: %w", itemID, domain.ErrCartItemNotFound)
		}
		return domain.CartItem{}, fmt.Errorf("update cart item %s: %w", itemID, err)
	}

	item := updated.toDomain()
	if item.ID == "" {
		item.ID = itemID
	}
	return item, nil
}

// DeleteCartItem вызывает DELETE /cart/{id}. Ответ 404 означает, что строки уже нет.
func (c *Client) DeleteCartItem(ctx context.Context, itemID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/cart/"+escape(itemID), nil, nil, nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete cart item %s: %w", itemID, err)
	}
	return nil
}

var _ domain.CartAPI = (*Client)(nil)
