package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appinvoicing "github.com/lucia/backend/internal/application/invoicing"
)

// InvoiceHandler handles invoice-related API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *appinvoicing.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *appinvoicing.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// RegisterRoutes registers invoice routes on the given group
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.Create)
		invoices.GET("", h.List)
		invoices.GET("/stats", h.Stats)
		invoices.GET("/:id", h.GetByID)
		invoices.PATCH("/:id", h.Update)
		invoices.DELETE("/:id", h.Delete)
		invoices.POST("/:id/issue", h.Issue)
		invoices.POST("/:id/pay", h.MarkPaid)
		invoices.GET("/:id/verify", h.Verify)
	}
}

// InvoiceLineRequest represents one line in a create or update request
type InvoiceLineRequest struct {
	ServiceID       *string `json:"service_id" binding:"omitempty,uuid"`
	Description     string  `json:"description" binding:"required,min=1,max=500"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0"`
	UnitPrice       float64 `json:"unit_price" binding:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" binding:"gte=0,lte=100"`
	VatCategory     string  `json:"vat_category"`
}

// CreateInvoiceRequest represents a request to create a draft invoice
type CreateInvoiceRequest struct {
	ClientID           *string              `json:"client_id" binding:"omitempty,uuid"`
	Type               string               `json:"type"`
	Series             string               `json:"series"`
	IssueDate          *string              `json:"issue_date"`
	DueDate            *string              `json:"due_date"`
	CustomerName       string               `json:"customer_name" binding:"max=200"`
	CustomerTaxID      *string              `json:"customer_tax_id"`
	CustomerAddress    *string              `json:"customer_address"`
	Notes              string               `json:"notes" binding:"max=2000"`
	RectifiesInvoiceID *string              `json:"rectifies_invoice_id" binding:"omitempty,uuid"`
	Lines              []InvoiceLineRequest `json:"lines"`
}

// UpdateInvoiceRequest represents a patch to a draft invoice.
// Absent fields are left untouched; lines, when present, replace the full list.
type UpdateInvoiceRequest struct {
	IssueDate       *string              `json:"issue_date"`
	DueDate         *string              `json:"due_date"`
	CustomerName    *string              `json:"customer_name" binding:"omitempty,max=200"`
	CustomerTaxID   *string              `json:"customer_tax_id"`
	CustomerAddress *string              `json:"customer_address"`
	Notes           *string              `json:"notes" binding:"omitempty,max=2000"`
	Lines           []InvoiceLineRequest `json:"lines"`
}

// ListInvoicesQuery represents invoice list filters
type ListInvoicesQuery struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size" binding:"lte=100"`
	OrderBy   string `form:"order_by"`
	OrderDir  string `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
	ClientID  string `form:"client_id" binding:"omitempty,uuid"`
	Status    string `form:"status"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

// Create creates a new draft invoice
func (h *InvoiceHandler) Create(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := appinvoicing.CreateDraftRequest{
		Type:            req.Type,
		Series:          req.Series,
		CustomerName:    req.CustomerName,
		CustomerTaxID:   req.CustomerTaxID,
		CustomerAddress: req.CustomerAddress,
		Notes:           req.Notes,
	}

	if appReq.ClientID, err = parseOptionalUUID(req.ClientID); err != nil {
		h.BadRequest(c, "Invalid client ID format")
		return
	}
	if appReq.RectifiesInvoiceID, err = parseOptionalUUID(req.RectifiesInvoiceID); err != nil {
		h.BadRequest(c, "Invalid rectified invoice ID format")
		return
	}
	if appReq.IssueDate, err = parseOptionalDate(req.IssueDate); err != nil {
		h.BadRequest(c, "Invalid issue date, expected YYYY-MM-DD")
		return
	}
	if appReq.DueDate, err = parseOptionalDate(req.DueDate); err != nil {
		h.BadRequest(c, "Invalid due date, expected YYYY-MM-DD")
		return
	}

	appReq.Lines, err = toLineRequests(req.Lines)
	if err != nil {
		h.BadRequest(c, "Invalid service ID format")
		return
	}

	invoice, err := h.invoiceService.CreateDraft(c.Request.Context(), tenantID, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, invoice)
}

// GetByID retrieves an invoice by its ID
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	tenantID, invoiceID, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetByID(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// List retrieves a paginated list of invoices with optional filtering
func (h *InvoiceHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var query ListInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := appinvoicing.ListRequest{
		Page:     query.Page,
		PageSize: query.PageSize,
		OrderBy:  query.OrderBy,
		OrderDir: query.OrderDir,
		Search:   query.Search,
	}
	if appReq.Page <= 0 {
		appReq.Page = 1
	}
	if appReq.PageSize <= 0 {
		appReq.PageSize = 20
	}

	if query.ClientID != "" {
		clientID, err := uuid.Parse(query.ClientID)
		if err != nil {
			h.BadRequest(c, "Invalid client ID format")
			return
		}
		appReq.ClientID = &clientID
	}
	if query.Status != "" {
		appReq.Status = &query.Status
	}
	if appReq.StartDate, err = parseOptionalDate(optional(query.StartDate)); err != nil {
		h.BadRequest(c, "Invalid start date, expected YYYY-MM-DD")
		return
	}
	if appReq.EndDate, err = parseOptionalDate(optional(query.EndDate)); err != nil {
		h.BadRequest(c, "Invalid end date, expected YYYY-MM-DD")
		return
	}

	invoices, total, err := h.invoiceService.List(c.Request.Context(), tenantID, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, invoices, total, appReq.Page, appReq.PageSize)
}

// Update patches a draft invoice
func (h *InvoiceHandler) Update(c *gin.Context) {
	tenantID, invoiceID, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := appinvoicing.UpdateDraftRequest{
		CustomerName:    req.CustomerName,
		CustomerTaxID:   req.CustomerTaxID,
		CustomerAddress: req.CustomerAddress,
		Notes:           req.Notes,
	}

	var err error
	if appReq.IssueDate, err = parseOptionalDate(req.IssueDate); err != nil {
		h.BadRequest(c, "Invalid issue date, expected YYYY-MM-DD")
		return
	}
	if appReq.DueDate, err = parseOptionalDate(req.DueDate); err != nil {
		h.BadRequest(c, "Invalid due date, expected YYYY-MM-DD")
		return
	}
	if req.Lines != nil {
		appReq.Lines, err = toLineRequests(req.Lines)
		if err != nil {
			h.BadRequest(c, "Invalid service ID format")
			return
		}
	}

	invoice, err := h.invoiceService.UpdateDraft(c.Request.Context(), tenantID, invoiceID, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Issue registers a draft invoice in the ledger, assigning its sequential
// number and chaining its content hash to the tenant's previous invoice
func (h *InvoiceHandler) Issue(c *gin.Context) {
	tenantID, invoiceID, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.Issue(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// MarkPaid marks an issued invoice as paid
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	tenantID, invoiceID, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.MarkPaid(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Delete removes a draft invoice. Issued invoices are refused; they can
// only be corrected with a rectifying invoice.
func (h *InvoiceHandler) Delete(c *gin.Context) {
	tenantID, invoiceID, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	if err := h.invoiceService.DeleteOrReject(c.Request.Context(), tenantID, invoiceID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// Verify recomputes the invoice content hash and, with ?chain=true, walks
// the tenant's full hash chain
func (h *InvoiceHandler) Verify(c *gin.Context) {
	tenantID, invoiceID, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	walkChain := strings.EqualFold(c.Query("chain"), "true")

	result, err := h.invoiceService.VerifyIntegrity(c.Request.Context(), tenantID, invoiceID, walkChain)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Stats returns issued invoice aggregates for the tenant
func (h *InvoiceHandler) Stats(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	startDate, err := parseOptionalDate(optional(c.Query("start_date")))
	if err != nil {
		h.BadRequest(c, "Invalid start date, expected YYYY-MM-DD")
		return
	}
	endDate, err := parseOptionalDate(optional(c.Query("end_date")))
	if err != nil {
		h.BadRequest(c, "Invalid end date, expected YYYY-MM-DD")
		return
	}

	stats, err := h.invoiceService.Stats(c.Request.Context(), tenantID, startDate, endDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, stats)
}

func (h *InvoiceHandler) tenantAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return uuid.Nil, uuid.Nil, false
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return uuid.Nil, uuid.Nil, false
	}

	return tenantID, invoiceID, true
}

func toLineRequests(lines []InvoiceLineRequest) ([]appinvoicing.LineRequest, error) {
	result := make([]appinvoicing.LineRequest, 0, len(lines))
	for _, line := range lines {
		serviceID, err := parseOptionalUUID(line.ServiceID)
		if err != nil {
			return nil, err
		}
		result = append(result, appinvoicing.LineRequest{
			ServiceID:       serviceID,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
			VatCategory:     line.VatCategory,
		})
	}
	return result, nil
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseOptionalDate accepts a calendar date or a full RFC 3339 timestamp
func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", *s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
