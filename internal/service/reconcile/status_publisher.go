package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StatusReportPublisher доставляет отложенные отчёты о статусе из outbox в backend.
// Остальные типы событий передаются в next, если он задан.
type StatusReportPublisher struct {
	reporter domain.StatusReporter
	next     domain.OutboxPublisher
}

// NewStatusReportPublisher создаёт publisher для outbox worker.
func NewStatusReportPublisher(reporter domain.StatusReporter, next domain.OutboxPublisher) *StatusReportPublisher {
	return &StatusReportPublisher{reporter: reporter, next: next}
}

// Publish реализует domain.OutboxPublisher.
func (p *StatusReportPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if event.EventType != domain.OutboxEventStatusReport {
		if p.next == nil {
			return fmt.Errorf("unsupported outbox event %q: %w", event.EventType, domain.ErrOutboxPublish)
		}
		return p.next.Publish(ctx, event)
	}

	var payload StatusReportPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode status report: %w", err)
	}
	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		orderID = event.AggregateID
	}
	if orderID == "" || payload.TransactionStatus == "" {
		return fmt.Errorf("status report without order or status: %w", domain.ErrOutboxPublish)
	}
	return p.reporter.ReportStatus(ctx, orderID, payload.TransactionStatus)
}

var _ domain.OutboxPublisher = (*StatusReportPublisher)(nil)
