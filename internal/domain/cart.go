package domain

// CartItemState описывает переходы оптимистичной мутации позиции корзины.
type CartItemState string

const (
	// Локальное изменение применено, ответ backend ещё не получен.
	CartItemRequested CartItemState = "requested"
	// Backend подтвердил текущее значение.
	CartItemConfirmed CartItemState = "confirmed"
	// Backend отказал, позиция возвращена к последнему подтверждённому значению.
	CartItemRolledBack CartItemState = "rolled_back"
)

// CartItem представляет строку корзины. Цены в минимальных единицах валюты (для IDR это рупии).
type CartItem struct {
	ID             string        `json:"id"`
	ProductID      string        `json:"product_id"`
	Name           string        `json:"name,omitempty"`
	UnitPrice      int64         `json:"unit_price"`
	DiscountAmount int64         `json:"discount_amount"`
	Quantity       int           `json:"quantity"`
	State          CartItemState `json:"state,omitempty"`
}

// Cart хранит снимок корзины пользователя. Итоги не хранятся и всегда пересчитываются.
type Cart struct {
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Find ищет позицию по идентификатору.
func (c Cart) Find(id string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return CartItem{}, false
}

// Clone возвращает глубокую копию корзины.
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return Cart{UserID: c.UserID, Items: items}
}
