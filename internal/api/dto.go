package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
)

// flexID принимает идентификатор как JSON-число или строку.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// flexAmount принимает сумму как число или десятичную строку ("15000.00").
type flexAmount int64

func (f *flexAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	amount, err := pricing.ParseAmount(raw, 0)
	if err != nil {
		return err
	}
	*f = flexAmount(amount)
	return nil
}

// flexInt принимает целое как число или строку.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var id flexID
	if err := id.UnmarshalJSON(data); err != nil {
		return err
	}
	if id == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", id, err)
	}
	*f = flexInt(n)
	return nil
}

type productDTO struct {
	ID    flexID     `json:"id"`
	Name  string     `json:"name"`
	Price flexAmount `json:"price"`
	Image string     `json:"image"`
}

type cartItemDTO struct {
	ID        flexID      `json:"id"`
	ProductID flexID      `json:"product_id"`
	Quantity  flexInt     `json:"quantity"`
	Price     *flexAmount `json:"price"`
	Discount  flexAmount  `json:"discount"`
	Name      string      `json:"name"`
	Product   *productDTO `json:"product"`
}

func (d cartItemDTO) toDomain() domain.CartItem {
	item := domain.CartItem{
		ID:             string(d.ID),
		ProductID:      string(d.ProductID),
		Name:           d.Name,
		Quantity:       int(d.Quantity),
		DiscountAmount: int64(d.Discount),
		State:          domain.CartItemConfirmed,
	}
	if d.Price != nil {
		item.UnitPrice = int64(*d.Price)
	}
	if d.Product != nil {
		if item.ProductID == "" {
			item.ProductID = string(d.Product.ID)
		}
		if item.Name == "" {
			item.Name = d.Product.Name
		}
		if d.Price == nil {
			item.UnitPrice = int64(d.Product.Price)
		}
	}
	return item
}

type addCartItemRequest struct {
	UserID    string `json:"user_id,omitempty"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type customerDTO struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type orderLineDTO struct {
	CartItemID string `json:"cart_item_id,omitempty"`
	ProductID  string `json:"product_id"`
	Name       string `json:"name,omitempty"`
	Price      int64  `json:"price"`
	Quantity   int    `json:"quantity"`
	Subtotal   int64  `json:"subtotal"`
}

type orderSummaryDTO struct {
	TotalAmount int64  `json:"total_amount"`
	TotalItems  int    `json:"total_items"`
	OrderDate   string `json:"order_date"`
	OrderTime   string `json:"order_time"`
}

type createTransactionRequest struct {
	Customer       customerDTO     `json:"customer"`
	Items          []orderLineDTO  `json:"items"`
	OrderSummary   orderSummaryDTO `json:"order_summary"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func newCreateTransactionRequest(key string, draft domain.OrderDraft) createTransactionRequest {
	customer := draft.Customer()
	lines := draft.Items()
	items := make([]orderLineDTO, 0, len(lines))
	for _, line := range lines {
		price := line.UnitPrice - line.DiscountAmount
		if price < 0 {
			price = 0
		}
		items = append(items, orderLineDTO{
			CartItemID: line.CartItemID,
			ProductID:  line.ProductID,
			Name:       line.Name,
			Price:      price,
			Quantity:   line.Quantity,
			Subtotal:   line.Subtotal,
		})
	}
	created := draft.CreatedAt()
	return createTransactionRequest{
		Customer: customerDTO{
			UserID:  draft.UserID(),
			Name:    customer.Name,
			Email:   customer.Email,
			Address: customer.Address,
			Phone:   customer.Phone,
		},
		Items: items,
		OrderSummary: orderSummaryDTO{
			TotalAmount: draft.TotalAmount(),
			TotalItems:  draft.TotalItems(),
			OrderDate:   created.Format("2006-01-02"),
			OrderTime:   created.Format("15:04:05"),
		},
		IdempotencyKey: key,
	}
}

type createTransactionResponse struct {
	OrderID      flexID `json:"order_id"`
	SnapToken    string `json:"snap_token"`
	SessionToken string `json:"session_token"`
	Token        string `json:"token"`
	RedirectURL  string `json:"redirect_url"`
}

func (r createTransactionResponse) token() string {
	for _, candidate := range []string{r.SnapToken, r.SessionToken, r.Token} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

type statusReportRequest struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
}

type remoteOrderItemDTO struct {
	ID        flexID      `json:"id"`
	ProductID flexID      `json:"product_id"`
	Quantity  flexInt     `json:"quantity"`
	Price     flexAmount  `json:"price"`
	Product   *productDTO `json:"product"`
}

type remoteOrderDTO struct {
	ID          flexID               `json:"id"`
	OrderID     flexID               `json:"order_id"`
	Status      string               `json:"status"`
	TotalAmount flexAmount           `json:"total_amount"`
	CreatedAt   string               `json:"created_at"`
	Items       []remoteOrderItemDTO `json:"items"`
	OrderItems  []remoteOrderItemDTO `json:"order_items"`
}

func (d remoteOrderDTO) toDomain() domain.RemoteOrder {
	order := domain.RemoteOrder{
		ID:          string(d.ID),
		Status:      d.Status,
		TotalAmount: int64(d.TotalAmount),
		CreatedAt:   parseTimestamp(d.CreatedAt),
	}
	if order.ID == "" {
		order.ID = string(d.OrderID)
	}
	items := d.Items
	if len(items) == 0 {
		items = d.OrderItems
	}
	order.Items = make([]domain.RemoteOrderItem, 0, len(items))
	for _, it := range items {
		item := domain.RemoteOrderItem{
			ID:        string(it.ID),
			ProductID: string(it.ProductID),
			Quantity:  int(it.Quantity),
			Price:     int64(it.Price),
		}
		if it.Product != nil {
			item.Name = it.Product.Name
			if item.ProductID == "" {
				item.ProductID = string(it.Product.ID)
			}
		}
		order.Items = append(order.Items, item)
	}
	return order
}

type reviewRequest struct {
	OrderItemID string `json:"order_item_id"`
	ProductID   string `json:"product_id"`
	Rating      int    `json:"rating"`
	Review      string `json:"review"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// jsonRaw откладывает разбор ответа, форма которого заранее неизвестна.
type jsonRaw []byte

func (r *jsonRaw) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

func (r jsonRaw) isArray() bool {
	trimmed := bytes.TrimSpace(r)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func (r jsonRaw) decode(out any) error {
	return json.Unmarshal(r, out)
}
