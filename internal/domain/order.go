package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа на стороне клиента.
type OrderStatus string

const (
	// Заказ создан и ждёт сверки исхода платёжной сессии.
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	// Шлюз сообщил, что платёж ожидает подтверждения.
	OrderStatusPending OrderStatus = "pending"
	// Платёж прошёл (capture/settlement).
	OrderStatusCompleted OrderStatus = "completed"
	// Платёж не прошёл либо страница оплаты закрыта.
	OrderStatusFailed OrderStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusAwaitingPayment, OrderStatusPending, OrderStatusCompleted, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Reconciled сообщает, что по заказу уже был применён терминальный исход.
func (s OrderStatus) Reconciled() bool {
	return s != OrderStatusAwaitingPayment
}

// Final сообщает, что статус больше не меняется: оплата прошла или отклонена.
func (s OrderStatus) Final() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// DraftLine описывает позицию снимка корзины на момент оформления.
type DraftLine struct {
	CartItemID     string
	ProductID      string
	Name           string
	Quantity       int
	UnitPrice      int64
	DiscountAmount int64
	Subtotal       int64
}

// OrderDraft хранит неизменяемый снимок корзины и покупателя, отправляемый на создание заказа.
// Поля закрыты, геттеры возвращают копии.
type OrderDraft struct {
	userID    string
	customer  CustomerInfo
	lines     []DraftLine
	total     int64
	createdAt time.Time
}

// NewOrderDraft фиксирует снимок; входной слайс копируется.
func NewOrderDraft(userID string, customer CustomerInfo, lines []DraftLine, total int64, createdAt time.Time) OrderDraft {
	copied := make([]DraftLine, len(lines))
	copy(copied, lines)
	return OrderDraft{
		userID:    userID,
		customer:  customer,
		lines:     copied,
		total:     total,
		createdAt: createdAt.UTC(),
	}
}

func (d OrderDraft) UserID() string         { return d.userID }
func (d OrderDraft) Customer() CustomerInfo { return d.customer }
func (d OrderDraft) TotalAmount() int64     { return d.total }
func (d OrderDraft) CreatedAt() time.Time   { return d.createdAt }

// Items возвращает копию позиций снимка.
func (d OrderDraft) Items() []DraftLine {
	out := make([]DraftLine, len(d.lines))
	copy(out, d.lines)
	return out
}

// TotalItems считает суммарное количество единиц товара.
func (d OrderDraft) TotalItems() int {
	total := 0
	for _, line := range d.lines {
		total += line.Quantity
	}
	return total
}

// CartItemIDs перечисляет строки корзины, вошедшие в заказ.
func (d OrderDraft) CartItemIDs() []string {
	ids := make([]string, 0, len(d.lines))
	for _, line := range d.lines {
		ids = append(ids, line.CartItemID)
	}
	return ids
}

// Fingerprint считает хэш содержимого запроса. Время создания в него не входит,
// поэтому повтор того же снимка даёт тот же отпечаток.
func (d OrderDraft) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "user=%s\n", d.userID)
	fmt.Fprintf(&b, "customer=%s|%s|%s|%s\n", d.customer.Name, d.customer.Email, d.customer.Address, d.customer.Phone)
	for _, line := range d.lines {
		fmt.Fprintf(&b, "line=%s|%s|%d|%d|%d\n", line.CartItemID, line.ProductID, line.Quantity, line.UnitPrice, line.DiscountAmount)
	}
	fmt.Fprintf(&b, "total=%d", d.total)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Review хранит отзыв на позицию оплаченного заказа.
type Review struct {
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// OrderItem представляет позицию заказа в локальной истории.
type OrderItem struct {
	// Идентификатор позиции на стороне backend нужен для отзывов и пуст до синхронизации.
	ID             string
	CartItemID     string
	ProductID      string
	Name           string
	Quantity       int
	UnitPrice      int64
	DiscountAmount int64
	Subtotal       int64
	Review         *Review
}

// OrderRecord хранит заказ в локальной истории. Статус меняет только сверка исхода платежа.
type OrderRecord struct {
	ID             string
	UserID         string
	IdempotencyKey string
	Items          []OrderItem
	TotalAmount    int64
	Status         OrderStatus
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrderRecord создаёт запись истории из снимка в статусе awaiting_payment.
func NewOrderRecord(orderID, idempotencyKey string, draft OrderDraft, now time.Time) OrderRecord {
	lines := draft.Items()
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, OrderItem{
			CartItemID:     line.CartItemID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			DiscountAmount: line.DiscountAmount,
			Subtotal:       line.Subtotal,
		})
	}
	now = now.UTC()
	return OrderRecord{
		ID:             orderID,
		UserID:         draft.UserID(),
		IdempotencyKey: idempotencyKey,
		Items:          items,
		TotalAmount:    draft.TotalAmount(),
		Status:         OrderStatusAwaitingPayment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// PaidLine связывает строку корзины с оплаченным по ней количеством.
type PaidLine struct {
	CartItemID string
	Quantity   int
}

// PaidLines перечисляет оплаченные единицы по строкам корзины.
func (o OrderRecord) PaidLines() []PaidLine {
	lines := make([]PaidLine, 0, len(o.Items))
	for _, item := range o.Items {
		if item.CartItemID != "" {
			lines = append(lines, PaidLine{CartItemID: item.CartItemID, Quantity: item.Quantity})
		}
	}
	return lines
}

// Clone возвращает глубокую копию записи, включая отзывы.
func (o OrderRecord) Clone() OrderRecord {
	out := o
	out.Items = make([]OrderItem, len(o.Items))
	for i, item := range o.Items {
		if item.Review != nil {
			review := *item.Review
			item.Review = &review
		}
		out.Items[i] = item
	}
	return out
}
