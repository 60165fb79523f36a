package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
)

type recordingApplier struct {
	calls []string
	err   error
}

func (r *recordingApplier) ApplySettlement(_ context.Context, orderID, status string) error {
	r.calls = append(r.calls, orderID+":"+status)
	return r.err
}

func TestPaymentNotificationHandler(t *testing.T) {
	applier := &recordingApplier{}
	handler := NewPaymentNotificationHandler(applier, nil)
	ctx := context.Background()

	messages := []string{
		`{"order_id":"1001","transaction_status":"settlement"}`,
		`{"order_id":"1002","transaction_status":"capture","fraud_status":"challenge"}`,
		`{"order_id":"1003","transaction_status":"expire"}`,
		`not json`,
	}
	for _, value := range messages {
		if err := handler(ctx, &sarama.ConsumerMessage{Value: []byte(value)}); err != nil {
			t.Fatalf("handler returned error for %s: %v", value, err)
		}
	}

	want := []string{"1001:settlement", "1003:expire"}
	if len(applier.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, applier.calls)
	}
	for i := range want {
		if applier.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, applier.calls)
		}
	}
}

func TestPaymentNotificationHandler_PropagatesApplyError(t *testing.T) {
	applier := &recordingApplier{err: errors.New("db down")}
	handler := NewPaymentNotificationHandler(applier, nil)

	err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"order_id":"1001","transaction_status":"settlement"}`)})
	if err == nil {
		t.Fatal("expected apply error to be returned for retry")
	}
}
