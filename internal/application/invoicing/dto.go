package invoicing

import (
	"time"

	"github.com/lucia/backend/internal/domain/invoicing"
	"github.com/google/uuid"
)

// LineRequest carries the raw quantities for one invoice line
type LineRequest struct {
	ServiceID       *uuid.UUID
	Description     string
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
	VatCategory     string
}

// CreateDraftRequest is the input for CreateDraft
type CreateDraftRequest struct {
	ClientID           *uuid.UUID
	Type               string
	Series             string
	IssueDate          *time.Time
	DueDate            *time.Time
	CustomerName       string
	CustomerTaxID      *string
	CustomerAddress    *string
	Notes              string
	RectifiesInvoiceID *uuid.UUID
	Lines              []LineRequest
}

// UpdateDraftRequest is the patch applied by UpdateDraft. Nil fields are
// left untouched; a non-nil Lines slice replaces the full line list.
type UpdateDraftRequest struct {
	IssueDate       *time.Time
	DueDate         *time.Time
	CustomerName    *string
	CustomerTaxID   *string
	CustomerAddress *string
	Notes           *string
	Lines           []LineRequest
}

// ListRequest carries list filters and pagination
type ListRequest struct {
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
	ClientID  *uuid.UUID
	Status    *string
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
}

// LineResponse mirrors one persisted invoice line
type LineResponse struct {
	ID          uuid.UUID  `json:"id"`
	ServiceID   *uuid.UUID `json:"service_id,omitempty"`
	Description string     `json:"description"`
	Quantity    string     `json:"quantity"`
	UnitPrice   string     `json:"unit_price"`
	Discount    string     `json:"discount"`
	VatCategory string     `json:"vat_category"`
	VatRate     string     `json:"vat_rate"`
	Subtotal    string     `json:"subtotal"`
	VatAmount   string     `json:"vat_amount"`
	Total       string     `json:"total"`
	SortOrder   int        `json:"sort_order"`
}

// RectificationRef points at an invoice on the other side of a
// rectification link
type RectificationRef struct {
	ID          uuid.UUID `json:"id"`
	InvoiceCode string    `json:"invoice_code,omitempty"`
}

// InvoiceResponse mirrors a persisted invoice. Rectification links are
// resolved both ways on detail reads only.
type InvoiceResponse struct {
	ID                 uuid.UUID          `json:"id"`
	TenantID           uuid.UUID          `json:"tenant_id"`
	ClientID           *uuid.UUID         `json:"client_id,omitempty"`
	Series             string             `json:"series"`
	Number             *int               `json:"number,omitempty"`
	InvoiceCode        string             `json:"invoice_code,omitempty"`
	Type               string             `json:"type"`
	RectifiesInvoiceID *uuid.UUID         `json:"rectifies_invoice_id,omitempty"`
	Rectifies          *RectificationRef  `json:"rectifies,omitempty"`
	RectifiedBy        []RectificationRef `json:"rectified_by,omitempty"`
	IssueDate          time.Time          `json:"issue_date"`
	DueDate            *time.Time         `json:"due_date,omitempty"`
	CustomerName       string             `json:"customer_name"`
	CustomerTaxID      *string            `json:"customer_tax_id,omitempty"`
	CustomerAddress    *string            `json:"customer_address,omitempty"`
	Lines              []LineResponse     `json:"lines"`
	Subtotal           string             `json:"subtotal"`
	TotalVat           string             `json:"total_vat"`
	Total              string             `json:"total"`
	Status             string             `json:"status"`
	Notes              string             `json:"notes,omitempty"`
	ContentHash        *string            `json:"content_hash,omitempty"`
	PreviousHash       *string            `json:"previous_hash,omitempty"`
	RegisteredAt       *time.Time         `json:"registered_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// VerificationResponse is the result of an integrity check
type VerificationResponse struct {
	InvoiceID   uuid.UUID `json:"invoice_id"`
	InvoiceCode string    `json:"invoice_code"`
	HashValid   bool      `json:"hash_valid"`
	ChainValid  *bool     `json:"chain_valid,omitempty"`
	Valid       bool      `json:"valid"`
}

// ToLineResponse converts a domain invoice line to its response form
func ToLineResponse(line *invoicing.InvoiceLine) LineResponse {
	return LineResponse{
		ID:          line.ID,
		ServiceID:   line.ServiceID,
		Description: line.Description,
		Quantity:    line.Quantity.StringFixed(3),
		UnitPrice:   line.UnitPrice.StringFixed(2),
		Discount:    line.Discount.StringFixed(2),
		VatCategory: line.VatCategory.String(),
		VatRate:     line.VatRate.StringFixed(2),
		Subtotal:    line.Subtotal.StringFixed(2),
		VatAmount:   line.VatAmount.StringFixed(2),
		Total:       line.Total.StringFixed(2),
		SortOrder:   line.SortOrder,
	}
}

// ToInvoiceResponse converts a domain invoice to its response form
func ToInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	lines := make([]LineResponse, len(inv.Lines))
	for i := range inv.Lines {
		lines[i] = ToLineResponse(&inv.Lines[i])
	}
	return InvoiceResponse{
		ID:                 inv.ID,
		TenantID:           inv.TenantID,
		ClientID:           inv.ClientID,
		Series:             inv.Series,
		Number:             inv.Number,
		InvoiceCode:        inv.InvoiceCode,
		Type:               inv.Type.String(),
		RectifiesInvoiceID: inv.RectifiesInvoiceID,
		IssueDate:          inv.IssueDate,
		DueDate:            inv.DueDate,
		CustomerName:       inv.CustomerName,
		CustomerTaxID:      inv.CustomerTaxID,
		CustomerAddress:    inv.CustomerAddress,
		Lines:              lines,
		Subtotal:           inv.Subtotal.StringFixed(2),
		TotalVat:           inv.TotalVat.StringFixed(2),
		Total:              inv.Total.StringFixed(2),
		Status:             inv.Status.String(),
		Notes:              inv.Notes,
		ContentHash:        inv.ContentHash,
		PreviousHash:       inv.PreviousHash,
		RegisteredAt:       inv.RegisteredAt,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
}
