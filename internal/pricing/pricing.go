// Package pricing считает итоги корзины. Все суммы целые, в минимальных единицах валюты.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// LineTotal хранит расчёт по одной строке корзины.
type LineTotal struct {
	CartItemID     string
	ProductID      string
	Quantity       int
	UnitPrice      int64
	DiscountAmount int64
	EffectivePrice int64
	Subtotal       int64
}

// Totals содержит итоги корзины.
type Totals struct {
	Lines []LineTotal
	// Сумма без скидок.
	Gross int64
	// DiscountTotal — фактически применённая скидка (не больше цены позиции).
	DiscountTotal int64
	// Сумма после скидок.
	Subtotal   int64
	GrandTotal int64
	ItemCount  int
}

// EffectivePrice возвращает цену единицы после скидки, не ниже нуля.
func EffectivePrice(item domain.CartItem) int64 {
	price := item.UnitPrice - item.DiscountAmount
	if price < 0 {
		return 0
	}
	return price
}

// ComputeTotals считает итоги: Σ max(unit − discount, 0) × qty.
func ComputeTotals(cart domain.Cart) Totals {
	totals := Totals{Lines: make([]LineTotal, 0, len(cart.Items))}
	for _, item := range cart.Items {
		qty := int64(item.Quantity)
		if qty < 0 {
			qty = 0
		}
		effective := EffectivePrice(item)
		line := LineTotal{
			CartItemID:     item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			EffectivePrice: effective,
			Subtotal:       effective * qty,
		}
		totals.Lines = append(totals.Lines, line)

		if item.UnitPrice > 0 {
			totals.Gross += item.UnitPrice * qty
		}
		totals.Subtotal += line.Subtotal
		totals.ItemCount += int(qty)
	}
	totals.DiscountTotal = totals.Gross - totals.Subtotal
	if totals.DiscountTotal < 0 {
		totals.DiscountTotal = 0
	}
	totals.GrandTotal = totals.Subtotal
	return totals
}

// ParseAmount переводит десятичную строку backend ("15000.00") в минимальные единицы.
// Число знаков после запятой у валюты (0 для IDR).
func ParseAmount(raw string, exponent int32) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return value.Shift(exponent).Round(0).IntPart(), nil
}

// FormatAmount переводит минимальные единицы обратно в десятичную строку для API.
func FormatAmount(amount int64, exponent int32) string {
	return decimal.New(amount, -exponent).StringFixed(exponent)
}

// FormatRupiah форматирует сумму для отображения: 50000 → "Rp. 50.000".
func FormatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := decimal.NewFromInt(amount).String()

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return "Rp. " + sign + b.String()
}
