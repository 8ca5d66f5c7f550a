package invoicing

import (
	"fmt"
	"time"

	"github.com/lucia/backend/internal/domain/shared"
	"github.com/lucia/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusSubmitted InvoiceStatus = "SUBMITTED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusSubmitted, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status.
// Issuance is irreversible: once past DRAFT, status only moves forward.
// There is no transition into CANCELLED; cancelling an issued invoice is
// done by issuing a rectifying invoice, never by mutating the original.
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return target == InvoiceStatusIssued
	case InvoiceStatusIssued:
		return target == InvoiceStatusSubmitted || target == InvoiceStatusPaid
	case InvoiceStatusSubmitted:
		return target == InvoiceStatusPaid
	case InvoiceStatusPaid, InvoiceStatusCancelled:
		return false // Terminal states
	}
	return false
}

// IsIssuedOrLater reports whether the invoice has left DRAFT and carries
// ledger guarantees (sequence number, content hash, chain link).
func (s InvoiceStatus) IsIssuedOrLater() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusSubmitted, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// InvoiceType represents the legal kind of invoice document
type InvoiceType string

const (
	InvoiceTypeStandard   InvoiceType = "STANDARD"
	InvoiceTypeSimplified InvoiceType = "SIMPLIFIED"
	InvoiceTypeRectifying InvoiceType = "RECTIFYING"
)

// IsValid checks if the type is a valid InvoiceType
func (t InvoiceType) IsValid() bool {
	switch t {
	case InvoiceTypeStandard, InvoiceTypeSimplified, InvoiceTypeRectifying:
		return true
	}
	return false
}

// String returns the string representation of InvoiceType
func (t InvoiceType) String() string {
	return string(t)
}

// DefaultSeries is used when a draft is created without an explicit series
const DefaultSeries = "A"

// AnonymousCustomerName is the snapshot fallback for simplified invoices
// issued without any customer identity.
const AnonymousCustomerName = "Cliente anónimo"

// CustomerSnapshot holds the customer identity copied onto the invoice.
// Once issued it is never re-derived from the live client record.
type CustomerSnapshot struct {
	Name    string
	TaxID   *string
	Address *string
}

// LineInput carries the raw quantities for one invoice line
type LineInput struct {
	ServiceID       *uuid.UUID
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	VatCategory     VatCategory
}

// InvoiceLine represents a single billed line within an invoice.
// Monetary fields are computed once via CalculateLineAmounts and stored.
type InvoiceLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	ServiceID   *uuid.UUID      `gorm:"type:uuid"`
	Description string          `gorm:"size:500;not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount    decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	VatCategory VatCategory     `gorm:"size:20;not null"`
	VatRate     decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	VatAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	SortOrder   int             `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

// NewInvoiceLine builds a line from raw input, computing its amounts
func NewInvoiceLine(invoiceID uuid.UUID, input LineInput, sortOrder int) (*InvoiceLine, error) {
	if input.Description == "" {
		return nil, shared.NewDomainError("INVALID_DESCRIPTION", "Line description cannot be empty")
	}
	if len(input.Description) > 500 {
		return nil, shared.NewDomainError("INVALID_DESCRIPTION", "Line description cannot exceed 500 characters")
	}

	category := input.VatCategory
	if category == "" {
		category = VatCategoryStandard
	}
	amounts, err := CalculateLineAmounts(input.Quantity, input.UnitPrice, input.DiscountPercent, category)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &InvoiceLine{
		ID:          uuid.New(),
		InvoiceID:   invoiceID,
		ServiceID:   input.ServiceID,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Discount:    input.DiscountPercent,
		VatCategory: category,
		VatRate:     amounts.VatRate,
		Subtotal:    amounts.Subtotal,
		VatAmount:   amounts.VatAmount,
		Total:       amounts.Total,
		SortOrder:   sortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TotalMoney returns the line total as a Money value object
func (l *InvoiceLine) TotalMoney() valueobject.Money {
	return valueobject.NewMoneyEUR(l.Total)
}

// Invoice is the aggregate root of the issuance ledger. A DRAFT is freely
// mutable; issuing assigns the sequence number, invoice code, content hash
// and chain link in a single durable write, after which the financial and
// identity fields are immutable.
type Invoice struct {
	shared.TenantAggregateRoot
	ClientID           *uuid.UUID      `gorm:"type:uuid;index"`
	Series             string          `gorm:"size:10;not null;index"`
	Number             *int            `gorm:"index"`
	Year               *int            `gorm:"index"`
	InvoiceCode        string          `gorm:"size:30;index"`
	Type               InvoiceType     `gorm:"size:20;not null"`
	RectifiesInvoiceID *uuid.UUID      `gorm:"type:uuid;index"`
	IssueDate          time.Time       `gorm:"not null;index"`
	DueDate            *time.Time      ``
	CustomerName       string          `gorm:"size:200;not null"`
	CustomerTaxID      *string         `gorm:"size:20"`
	CustomerAddress    *string         `gorm:"size:500"`
	Lines              []InvoiceLine   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalVat           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total              decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status             InvoiceStatus   `gorm:"size:20;not null;index"`
	Notes              string          `gorm:"size:1000"`
	ContentHash        *string         `gorm:"size:64"`
	PreviousHash       *string         `gorm:"size:64"`
	RegisteredAt       *time.Time      `gorm:"index"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice creates a new invoice in DRAFT status
func NewInvoice(tenantID uuid.UUID, invType InvoiceType, series string, issueDate time.Time, dueDate *time.Time, customer CustomerSnapshot, clientID, rectifiesInvoiceID *uuid.UUID) (*Invoice, error) {
	if invType == "" {
		invType = InvoiceTypeStandard
	}
	if !invType.IsValid() {
		return nil, shared.NewDomainError("INVALID_TYPE", fmt.Sprintf("Unknown invoice type %q", string(invType)))
	}
	if series == "" {
		series = DefaultSeries
	}
	if len(series) > 10 {
		return nil, shared.NewDomainError("INVALID_SERIES", "Series cannot exceed 10 characters")
	}
	if invType == InvoiceTypeRectifying && rectifiesInvoiceID == nil {
		return nil, shared.NewDomainError("INVALID_RECTIFICATION", "Rectifying invoices must reference the invoice they rectify")
	}
	if invType != InvoiceTypeRectifying && rectifiesInvoiceID != nil {
		return nil, shared.NewDomainError("INVALID_RECTIFICATION", "Only rectifying invoices may reference another invoice")
	}
	if invType != InvoiceTypeSimplified && customer.Name == "" {
		return nil, shared.NewDomainError("MISSING_CUSTOMER", "Client or customer name is required for standard invoices")
	}
	if customer.Name == "" {
		customer.Name = AnonymousCustomerName
	}

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		ClientID:            clientID,
		Series:              series,
		Type:                invType,
		RectifiesInvoiceID:  rectifiesInvoiceID,
		IssueDate:           issueDate,
		DueDate:             dueDate,
		CustomerName:        customer.Name,
		CustomerTaxID:       customer.TaxID,
		CustomerAddress:     customer.Address,
		Lines:               make([]InvoiceLine, 0),
		Subtotal:            decimal.Zero,
		TotalVat:            decimal.Zero,
		Total:               decimal.Zero,
		Status:              InvoiceStatusDraft,
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// AddLine appends a line to a draft invoice and recomputes totals
func (i *Invoice) AddLine(input LineInput) (*InvoiceLine, error) {
	if err := i.ensureDraft("add lines to"); err != nil {
		return nil, err
	}

	line, err := NewInvoiceLine(i.ID, input, len(i.Lines))
	if err != nil {
		return nil, err
	}

	i.Lines = append(i.Lines, *line)
	i.recalculateTotals()
	i.UpdatedAt = time.Now()

	return line, nil
}

// ReplaceLines swaps the full line list of a draft and recomputes totals
func (i *Invoice) ReplaceLines(inputs []LineInput) error {
	if err := i.ensureDraft("edit"); err != nil {
		return err
	}

	lines := make([]InvoiceLine, 0, len(inputs))
	for idx, input := range inputs {
		line, err := NewInvoiceLine(i.ID, input, idx)
		if err != nil {
			return err
		}
		lines = append(lines, *line)
	}

	i.Lines = lines
	i.recalculateTotals()
	i.UpdatedAt = time.Now()

	return nil
}

// UpdateCustomer replaces the customer snapshot of a draft
func (i *Invoice) UpdateCustomer(customer CustomerSnapshot) error {
	if err := i.ensureDraft("edit"); err != nil {
		return err
	}
	if i.Type != InvoiceTypeSimplified && customer.Name == "" {
		return shared.NewDomainError("MISSING_CUSTOMER", "Client or customer name is required for standard invoices")
	}
	if customer.Name == "" {
		customer.Name = AnonymousCustomerName
	}

	i.CustomerName = customer.Name
	i.CustomerTaxID = customer.TaxID
	i.CustomerAddress = customer.Address
	i.UpdatedAt = time.Now()

	return nil
}

// UpdateDates changes issue and due dates of a draft
func (i *Invoice) UpdateDates(issueDate *time.Time, dueDate *time.Time) error {
	if err := i.ensureDraft("edit"); err != nil {
		return err
	}
	if issueDate != nil {
		i.IssueDate = *issueDate
	}
	if dueDate != nil {
		i.DueDate = dueDate
	}
	i.UpdatedAt = time.Now()
	return nil
}

// SetNotes sets the free-text notes of a draft
func (i *Invoice) SetNotes(notes string) error {
	if err := i.ensureDraft("edit"); err != nil {
		return err
	}
	i.Notes = notes
	i.UpdatedAt = time.Now()
	return nil
}

// Issue transitions the invoice from DRAFT to ISSUED. It assigns the
// allocated sequence number, derives the invoice code, computes the content
// hash and links to the chain tail. All of this must be persisted as one
// durable write by the caller; on failure the invoice stays DRAFT with no
// partial state.
//
// previousHash is the content hash of the tenant's most recently issued
// invoice, or empty for the chain root.
func (i *Invoice) Issue(number, year int, previousHash string, now time.Time) error {
	if !i.Status.CanTransitionTo(InvoiceStatusIssued) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot issue invoice in %s status; only drafts can be issued", i.Status))
	}
	if len(i.Lines) == 0 {
		return shared.NewDomainError("NO_LINES", "Cannot issue an invoice without lines")
	}
	if number < 1 {
		return shared.NewDomainError("INVALID_NUMBER", "Sequence number must be positive")
	}
	if i.Type != InvoiceTypeSimplified && i.CustomerName == "" {
		return shared.NewDomainError("MISSING_CUSTOMER", "Client or customer name is required for standard invoices")
	}

	i.Number = &number
	i.Year = &year
	i.InvoiceCode = FormatInvoiceCode(i.Series, year, number)

	contentHash := ComputeContentHash(i)
	i.ContentHash = &contentHash
	if previousHash != "" {
		i.PreviousHash = &previousHash
	}
	i.RegisteredAt = &now
	i.Status = InvoiceStatusIssued
	i.UpdatedAt = now

	i.AddDomainEvent(NewInvoiceIssuedEvent(i))

	return nil
}

// MarkSubmitted records submission to the tax authority collaborator
func (i *Invoice) MarkSubmitted() error {
	if !i.Status.CanTransitionTo(InvoiceStatusSubmitted) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot submit invoice in %s status", i.Status))
	}
	i.Status = InvoiceStatusSubmitted
	i.UpdatedAt = time.Now()
	return nil
}

// MarkPaid transitions an issued or submitted invoice to PAID
func (i *Invoice) MarkPaid() error {
	if !i.Status.CanTransitionTo(InvoiceStatusPaid) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot mark invoice in %s status as paid; only issued or submitted invoices can be paid", i.Status))
	}
	i.Status = InvoiceStatusPaid
	i.UpdatedAt = time.Now()

	i.AddDomainEvent(NewInvoicePaidEvent(i))

	return nil
}

// CanDelete reports whether the invoice may be destroyed. Only drafts can
// be deleted; issued invoices are superseded via rectification.
func (i *Invoice) CanDelete() bool {
	return i.Status == InvoiceStatusDraft
}

// TotalMoney returns the invoice total as a Money value object
func (i *Invoice) TotalMoney() valueobject.Money {
	return valueobject.NewMoneyEUR(i.Total)
}

// ensureDraft rejects mutation of issued documents, naming the legal path
// forward in the error message.
func (i *Invoice) ensureDraft(action string) error {
	if i.Status == InvoiceStatusDraft {
		return nil
	}
	return shared.NewDomainError("INVALID_STATE",
		fmt.Sprintf("Cannot %s an invoice in %s status; issued invoices require a rectifying invoice", action, i.Status))
}

// recalculateTotals sums the already-rounded line values. No re-rounding
// happens at the invoice level.
func (i *Invoice) recalculateTotals() {
	subtotal := decimal.Zero
	totalVat := decimal.Zero
	total := decimal.Zero
	for idx := range i.Lines {
		subtotal = subtotal.Add(i.Lines[idx].Subtotal)
		totalVat = totalVat.Add(i.Lines[idx].VatAmount)
		total = total.Add(i.Lines[idx].Total)
	}
	i.Subtotal = subtotal
	i.TotalVat = totalVat
	i.Total = total
}

// FormatInvoiceCode renders the fixed code format {series}-{year}-{number},
// number zero-padded to 5 digits, e.g. "A-2025-00001".
func FormatInvoiceCode(series string, year, number int) string {
	return fmt.Sprintf("%s-%d-%05d", series, year, number)
}
