package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CreateTransaction создаёт заказ и платёжную сессию. Ключ идемпотентности
// передаётся и в теле, и в заголовке Idempotency-Key.
func (c *Client) CreateTransaction(ctx context.Context, idempotencyKey string, draft domain.OrderDraft) (domain.TransactionSession, error) {
	var resp createTransactionResponse
	status, err := c.do(ctx, http.MethodPost, c.createTransaction,
		newCreateTransactionRequest(idempotencyKey, draft), &resp,
		map[string]string{"Idempotency-Key": idempotencyKey},
	)
	if err != nil {
		return domain.TransactionSession{}, fmt.Errorf("create transaction: %w", err)
	}

	session := domain.TransactionSession{
		OrderID:     string(resp.OrderID),
		Token:       resp.token(),
		RedirectURL: strings.TrimSpace(resp.RedirectURL),
		HTTPStatus:  status,
	}
	if session.OrderID == "" || session.Token == "" {
		return domain.TransactionSession{}, fmt.Errorf("create transaction: response without order id or session token: %w", domain.ErrGatewayUnavailable)
	}
	return session, nil
}

// ReportStatus вызывает POST /orders/update-status. Статус шлюза передаётся без изменений.
func (c *Client) ReportStatus(ctx context.Context, orderID, transactionStatus string) error {
	req := statusReportRequest{OrderID: orderID, TransactionStatus: transactionStatus}
	if _, err := c.do(ctx, http.MethodPost, "/orders/update-status", req, nil, nil); err != nil {
		return fmt.Errorf("report status %s for order %s: %w", transactionStatus, orderID, err)
	}
	return nil
}

// ListOrders загружает GET /order/{userId}.
func (c *Client) ListOrders(ctx context.Context, userID string) ([]domain.RemoteOrder, error) {
	var orders []remoteOrderDTO
	if _, err := c.do(ctx, http.MethodGet, "/order/"+escape(userID), nil, &orders, nil); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	result := make([]domain.RemoteOrder, 0, len(orders))
	for _, order := range orders {
		result = append(result, order.toDomain())
	}
	return result, nil
}

// OrderDetail загружает GET /order-detail/{orderId}. Backend отдаёт либо заказ с items,
// либо голый список позиций.
func (c *Client) OrderDetail(ctx context.Context, orderID string) (domain.RemoteOrder, error) {
	var raw jsonRaw
	if _, err := c.do(ctx, http.MethodGet, "/order-detail/"+escape(orderID), nil, &raw, nil); err != nil {
		if isNotFound(err) {
			return domain.RemoteOrder{}, fmt.Errorf("order detail %s: %w", orderID, domain.ErrOrderNotFound)
		}
		return domain.RemoteOrder{}, fmt.Errorf("order detail %s: %w", orderID, err)
	}

	var order remoteOrderDTO
	if raw.isArray() {
		if err := raw.decode(&order.Items); err != nil {
			return domain.RemoteOrder{}, fmt.Errorf("decode order detail %s: %w", orderID, err)
		}
	} else if err := raw.decode(&order); err != nil {
		return domain.RemoteOrder{}, fmt.Errorf("decode order detail %s: %w", orderID, err)
	}

	result := order.toDomain()
	if result.ID == "" {
		result.ID = orderID
	}
	return result, nil
}

// SubmitReview отправляет POST /reviews.
func (c *Client) SubmitReview(ctx context.Context, review domain.ReviewRequest) error {
	req := reviewRequest{
		OrderItemID: review.OrderItemID,
		ProductID:   review.ProductID,
		Rating:      review.Rating,
		Review:      review.Comment,
	}
	if _, err := c.do(ctx, http.MethodPost, "/reviews", req, nil, nil); err != nil {
		return fmt.Errorf("submit review for item %s: %w", review.OrderItemID, err)
	}
	return nil
}

var (
	_ domain.OrderAPI       = (*Client)(nil)
	_ domain.StatusReporter = (*Client)(nil)
	_ domain.HistoryAPI     = (*Client)(nil)
)
