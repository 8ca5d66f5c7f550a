package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/lucia/backend/internal/domain/invoicing"
	"github.com/lucia/backend/internal/domain/shared"
)

// NewInvoiceAuditLogger returns a handler that writes one structured log
// line per invoice lifecycle event. Issued events include the chain link
// so the log doubles as an append-only audit trail.
func NewInvoiceAuditLogger(logger *zap.Logger) Handler {
	return func(ctx context.Context, event shared.DomainEvent) error {
		fields := []zap.Field{
			zap.String("event_id", event.EventID().String()),
			zap.String("tenant_id", event.TenantID().String()),
			zap.String("aggregate_id", event.AggregateID().String()),
		}

		switch e := event.(type) {
		case *invoicing.InvoiceCreatedEvent:
			fields = append(fields,
				zap.String("series", e.Series),
				zap.String("invoice_type", string(e.Type)),
				zap.String("total", e.Total.StringFixed(2)),
			)
			logger.Info("invoice draft created", fields...)
		case *invoicing.InvoiceIssuedEvent:
			fields = append(fields,
				zap.String("invoice_code", e.InvoiceCode),
				zap.Int("number", e.Number),
				zap.String("content_hash", e.ContentHash),
				zap.String("previous_hash", e.PreviousHash),
				zap.Time("registered_at", e.RegisteredAt),
			)
			logger.Info("invoice issued", fields...)
		case *invoicing.InvoicePaidEvent:
			fields = append(fields,
				zap.String("invoice_code", e.InvoiceCode),
				zap.String("total", e.Total.StringFixed(2)),
			)
			logger.Info("invoice paid", fields...)
		default:
			fields = append(fields, zap.String("event_type", event.EventType()))
			logger.Info("invoice event", fields...)
		}
		return nil
	}
}

// InvoiceEventTypes lists the lifecycle events the audit logger consumes
func InvoiceEventTypes() []string {
	return []string{
		invoicing.EventTypeInvoiceCreated,
		invoicing.EventTypeInvoiceIssued,
		invoicing.EventTypeInvoicePaid,
	}
}
