package pricing

import (
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestComputeTotals_DiscountedCart(t *testing.T) {
	cart := domain.Cart{Items: []domain.CartItem{
		{ID: "c-1", ProductID: "p-1", UnitPrice: 20000, Quantity: 2},
		{ID: "c-2", ProductID: "p-2", UnitPrice: 15000, DiscountAmount: 5000, Quantity: 1},
	}}

	totals := ComputeTotals(cart)

	if totals.Subtotal != 50000 {
		t.Fatalf("expected subtotal 50000, got %d", totals.Subtotal)
	}
	if totals.GrandTotal != 50000 {
		t.Fatalf("expected grand total 50000, got %d", totals.GrandTotal)
	}
	if totals.Gross != 55000 {
		t.Fatalf("expected gross 55000, got %d", totals.Gross)
	}
	if totals.DiscountTotal != 5000 {
		t.Fatalf("expected discount 5000, got %d", totals.DiscountTotal)
	}
	if totals.ItemCount != 3 {
		t.Fatalf("expected 3 units, got %d", totals.ItemCount)
	}
	if len(totals.Lines) != 2 || totals.Lines[1].EffectivePrice != 10000 {
		t.Fatalf("unexpected lines: %+v", totals.Lines)
	}
}

func TestComputeTotals_DiscountAbovePriceNeverNegative(t *testing.T) {
	cart := domain.Cart{Items: []domain.CartItem{
		{ID: "c-1", UnitPrice: 1000, DiscountAmount: 5000, Quantity: 3},
		{ID: "c-2", UnitPrice: 2000, Quantity: 1},
	}}

	totals := ComputeTotals(cart)

	if totals.Lines[0].Subtotal != 0 {
		t.Fatalf("line with discount above price must be zero, got %d", totals.Lines[0].Subtotal)
	}
	if totals.GrandTotal != 2000 {
		t.Fatalf("expected grand total 2000, got %d", totals.GrandTotal)
	}
	if totals.DiscountTotal != 3000 {
		t.Fatalf("applied discount must be capped at price, got %d", totals.DiscountTotal)
	}
}

func TestComputeTotals_MatchesFormula(t *testing.T) {
	items := []domain.CartItem{
		{ID: "a", UnitPrice: 7, DiscountAmount: 2, Quantity: 4},
		{ID: "b", UnitPrice: 0, DiscountAmount: 0, Quantity: 9},
		{ID: "c", UnitPrice: 12345, DiscountAmount: 345, Quantity: 2},
		{ID: "d", UnitPrice: 10, DiscountAmount: 11, Quantity: 1},
	}

	var want int64
	for _, item := range items {
		p := item.UnitPrice - item.DiscountAmount
		if p < 0 {
			p = 0
		}
		want += p * int64(item.Quantity)
	}

	got := ComputeTotals(domain.Cart{Items: items}).GrandTotal
	if got != want {
		t.Fatalf("grand total %d does not match formula %d", got, want)
	}
	if got < 0 {
		t.Fatal("grand total must never be negative")
	}
}

func TestComputeTotals_EmptyCart(t *testing.T) {
	totals := ComputeTotals(domain.Cart{})
	if totals.GrandTotal != 0 || len(totals.Lines) != 0 {
		t.Fatalf("empty cart must have zero totals: %+v", totals)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw      string
		exponent int32
		want     int64
		wantErr  bool
	}{
		{raw: "15000.00", exponent: 0, want: 15000},
		{raw: "15000", exponent: 0, want: 15000},
		{raw: "12.34", exponent: 2, want: 1234},
		{raw: "12.345", exponent: 2, want: 1235},
		{raw: "", exponent: 0, want: 0},
		{raw: "abc", exponent: 0, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.raw, tt.exponent)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseAmount(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseAmount(%q) failed: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(50000, 0); got != "50000" {
		t.Fatalf("unexpected amount: %s", got)
	}
	if got := FormatAmount(1234, 2); got != "12.34" {
		t.Fatalf("unexpected amount: %s", got)
	}
}

func TestFormatRupiah(t *testing.T) {
	tests := map[int64]string{
		0:       "Rp. 0",
		500:     "Rp. 500",
		50000:   "Rp. 50.000",
		1250000: "Rp. 1.250.000",
		-15000:  "Rp. -15.000",
	}
	for amount, want := range tests {
		if got := FormatRupiah(amount); got != want {
			t.Fatalf("FormatRupiah(%d) = %q, want %q", amount, got, want)
		}
	}
}
