package domain

import "testing"

func TestPaymentOutcomeMapping(t *testing.T) {
	tests := []struct {
		name     string
		outcome  PaymentOutcome
		status   OrderStatus
		reported string
	}{
		{name: "settlement", outcome: PaymentSucceeded("o-1", TransactionSettlement), status: OrderStatusCompleted, reported: "settlement"},
		{name: "capture", outcome: PaymentSucceeded("o-1", TransactionCapture), status: OrderStatusCompleted, reported: "capture"},
		{name: "pending", outcome: PaymentPending("o-1"), status: OrderStatusPending, reported: "pending"},
		{name: "deny", outcome: PaymentFailed("o-1", TransactionDeny), status: OrderStatusFailed, reported: "deny"},
		{name: "dismissed", outcome: PaymentFailed("o-1", FailureDismissed), status: OrderStatusFailed, reported: "cancelled"},
		{name: "cancelled", outcome: PaymentFailed("o-1", FailureCancelled), status: OrderStatusFailed, reported: "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.OrderStatus(); got != tt.status {
				t.Errorf("OrderStatus() = %s, want %s", got, tt.status)
			}
			if got := tt.outcome.ReportedStatus(); got != tt.reported {
				t.Errorf("ReportedStatus() = %s, want %s", got, tt.reported)
			}
			if tt.outcome.OrderID() != "o-1" {
				t.Errorf("unexpected order id %s", tt.outcome.OrderID())
			}
		})
	}
}

func TestPaymentOutcomeZero(t *testing.T) {
	var outcome PaymentOutcome
	if !outcome.IsZero() {
		t.Fatal("zero outcome must report IsZero")
	}
	if PaymentPending("o").IsZero() {
		t.Fatal("constructed outcome must not be zero")
	}
}

func TestNavigationEventParams(t *testing.T) {
	ev := NavigationEvent{URL: "https://shop.example/finish?order_id=ORD-1&transaction_status=Settlement"}
	orderID, status := ev.Params()
	if orderID != "ORD-1" || status != "settlement" {
		t.Fatalf("unexpected params: %s %s", orderID, status)
	}

	if id, st := (NavigationEvent{URL: "::bad"}).Params(); id != "" || st != "" {
		t.Fatal("malformed url must yield empty params")
	}
}

func TestNavigationEventClosesSurface(t *testing.T) {
	if !(NavigationEvent{Closed: true}).ClosesSurface() {
		t.Fatal("explicit close must close the surface")
	}
	if !(NavigationEvent{URL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/close"}).ClosesSurface() {
		t.Fatal("/close url must close the surface")
	}
	if (NavigationEvent{URL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/token"}).ClosesSurface() {
		t.Fatal("regular navigation must not close the surface")
	}
}
