package invoicing

import (
	"time"

	"github.com/lucia/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeInvoice = "Invoice"

// Event type constants
const (
	EventTypeInvoiceCreated = "InvoiceCreated"
	EventTypeInvoiceIssued  = "InvoiceIssued"
	EventTypeInvoicePaid    = "InvoicePaid"
)

// InvoiceCreatedEvent is raised when a new draft invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Series    string          `json:"series"`
	Type      InvoiceType     `json:"invoice_type"`
	Total     decimal.Decimal `json:"total"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		Series:          inv.Series,
		Type:            inv.Type,
		Total:           inv.Total,
	}
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return EventTypeInvoiceCreated
}

// InvoiceIssuedEvent is raised when a draft is issued into the ledger.
// It carries the assigned code and chain link so downstream consumers
// (e.g. a future tax-authority submitter) never re-read mutable state.
type InvoiceIssuedEvent struct {
	shared.BaseDomainEvent
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	InvoiceCode  string          `json:"invoice_code"`
	Series       string          `json:"series"`
	Number       int             `json:"number"`
	ContentHash  string          `json:"content_hash"`
	PreviousHash string          `json:"previous_hash,omitempty"`
	Total        decimal.Decimal `json:"total"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// NewInvoiceIssuedEvent creates a new InvoiceIssuedEvent
func NewInvoiceIssuedEvent(inv *Invoice) *InvoiceIssuedEvent {
	number := 0
	if inv.Number != nil {
		number = *inv.Number
	}
	contentHash := ""
	if inv.ContentHash != nil {
		contentHash = *inv.ContentHash
	}
	previousHash := ""
	if inv.PreviousHash != nil {
		previousHash = *inv.PreviousHash
	}
	registeredAt := time.Time{}
	if inv.RegisteredAt != nil {
		registeredAt = *inv.RegisteredAt
	}
	return &InvoiceIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceIssued, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceCode:     inv.InvoiceCode,
		Series:          inv.Series,
		Number:          number,
		ContentHash:     contentHash,
		PreviousHash:    previousHash,
		Total:           inv.Total,
		RegisteredAt:    registeredAt,
	}
}

// EventType returns the event type name
func (e *InvoiceIssuedEvent) EventType() string {
	return EventTypeInvoiceIssued
}

// InvoicePaidEvent is raised when an invoice is marked as paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	InvoiceCode string          `json:"invoice_code"`
	Total       decimal.Decimal `json:"total"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceCode:     inv.InvoiceCode,
		Total:           inv.Total,
	}
}

// EventType returns the event type name
func (e *InvoicePaidEvent) EventType() string {
	return EventTypeInvoicePaid
}
