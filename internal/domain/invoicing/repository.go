package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucia/backend/internal/domain/shared"
)

// ListFilter holds the typed query options for listing invoices. Search
// matches invoice code, customer name and customer tax id.
type ListFilter struct {
	shared.Filter
	ClientID  *uuid.UUID
	Status    *InvoiceStatus
	StartDate *time.Time
	EndDate   *time.Time
}

// StatusBreakdown aggregates invoices sharing one status
type StatusBreakdown struct {
	Status InvoiceStatus   `json:"status"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// InvoiceStats summarizes a tenant's invoices. Drafts and cancelled
// documents are excluded from the headline figures.
type InvoiceStats struct {
	TotalInvoiced decimal.Decimal   `json:"total_invoiced"`
	TotalVat      decimal.Decimal   `json:"total_vat"`
	TotalNet      decimal.Decimal   `json:"total_net"`
	InvoiceCount  int64             `json:"invoice_count"`
	ByStatus      []StatusBreakdown `json:"by_status"`
}

// ChainLink is the tail reference read when linking a new invoice into the
// tenant's hash chain.
type ChainLink struct {
	InvoiceID    uuid.UUID
	ContentHash  string
	RegisteredAt time.Time
	Number       int
}

// InvoiceRepository defines read and draft-write access to invoices.
// Every method is scoped to an explicit tenant identifier; the repository
// never infers tenancy from ambient state.
type InvoiceRepository interface {
	// FindByIDForTenant loads an invoice with its lines
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// FindAllForTenant lists invoices matching the filter, returning the
	// page of items and the total match count
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Invoice, int64, error)

	// FindIssuedChain returns all issued (or later-state) invoices of a
	// tenant ordered from chain root to tail: registration time ascending,
	// ties broken by sequence number
	FindIssuedChain(ctx context.Context, tenantID uuid.UUID) ([]Invoice, error)

	// FindRectifiedBy returns invoices that rectify the given invoice
	FindRectifiedBy(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Invoice, error)

	// Create inserts a new draft invoice with its lines
	Create(ctx context.Context, inv *Invoice) error

	// SaveDraft persists edits to a draft invoice, replacing its lines.
	// The update is guarded on DRAFT status and the version loaded with the
	// aggregate; returns shared.ErrConcurrencyConflict when the row was
	// issued or modified concurrently, so a stale save can never rewrite an
	// issued record.
	SaveDraft(ctx context.Context, inv *Invoice) error

	// UpdateStatusForTenant performs a status transition as a single guarded
	// column update. Returns shared.ErrConcurrencyConflict when the row is
	// no longer in one of the from statuses.
	UpdateStatusForTenant(ctx context.Context, tenantID, id uuid.UUID, from []InvoiceStatus, to InvoiceStatus) error

	// DeleteDraftForTenant removes a draft invoice. Returns
	// shared.ErrInvalidState when the invoice has been issued.
	DeleteDraftForTenant(ctx context.Context, tenantID, id uuid.UUID) error

	// Stats aggregates invoice totals for a tenant within an optional
	// issue-date range
	Stats(ctx context.Context, tenantID uuid.UUID, startDate, endDate *time.Time) (*InvoiceStats, error)
}

// LedgerOperations is the typed contract the issuance critical section runs
// against. All three operations execute inside one storage transaction: the
// allocated number, the observed chain tail and the issued record commit or
// roll back as a unit, so a failed issue never leaves a permanent gap or a
// forked chain.
type LedgerOperations interface {
	// FindDraft loads the draft to be issued, with lines
	FindDraft(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// NextSequenceNumber returns the next contiguous number for the
	// (tenant, series, year) key, starting at 1
	NextSequenceNumber(ctx context.Context, tenantID uuid.UUID, series string, year int) (int, error)

	// ChainTail returns the most recently issued invoice's hash for the
	// tenant, or nil when the chain is empty
	ChainTail(ctx context.Context, tenantID uuid.UUID) (*ChainLink, error)

	// SaveIssued persists the issued invoice as a single durable write.
	// Returns shared.ErrConcurrencyConflict when the row is no longer a
	// draft at the version that was read, and shared.ErrSequenceConflict
	// when the allocated number was taken by a concurrent writer.
	SaveIssued(ctx context.Context, inv *Invoice) error
}

// LedgerStore runs issuance work transactionally against durable storage
type LedgerStore interface {
	// ExecuteIssue runs fn inside one transaction. If fn returns an error
	// the transaction is rolled back and no state change survives.
	ExecuteIssue(ctx context.Context, fn func(ops LedgerOperations) error) error
}
