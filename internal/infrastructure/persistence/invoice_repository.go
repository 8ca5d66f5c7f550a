package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lucia/backend/internal/domain/invoicing"
	"github.com/lucia/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// issuedStatuses are the states of invoices that live on the hash chain
var issuedStatuses = []invoicing.InvoiceStatus{
	invoicing.InvoiceStatusIssued,
	invoicing.InvoiceStatusSubmitted,
	invoicing.InvoiceStatusPaid,
}

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Order("invoice_lines.sort_order ASC")
}

// sortableColumns whitelists user-supplied order fields
var sortableColumns = map[string]string{
	"created_at": "created_at",
	"issue_date": "issue_date",
	"number":     "number",
	"total":      "total",
}

func orderClause(filter shared.Filter) string {
	column, ok := sortableColumns[filter.OrderBy]
	if !ok {
		column = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(filter.OrderDir, "asc") {
		dir = "ASC"
	}
	return column + " " + dir
}

// FindByIDForTenant loads an invoice with its lines
func (r *GormInvoiceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	var inv invoicing.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Lines", preloadLines).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindAllForTenant lists invoices matching the filter
func (r *GormInvoiceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter invoicing.ListFilter) ([]invoicing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&invoicing.Invoice{}).
		Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.StartDate != nil {
		query = query.Where("issue_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("issue_date <= ?", *filter.EndDate)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(invoice_code) LIKE ? OR LOWER(customer_name) LIKE ? OR LOWER(customer_tax_id) LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []invoicing.Invoice
	if err := query.
		Preload("Lines", preloadLines).
		Order(orderClause(filter.Filter)).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

// FindIssuedChain returns the tenant's issued invoices ordered from chain
// root to tail
func (r *GormInvoiceRepository) FindIssuedChain(ctx context.Context, tenantID uuid.UUID) ([]invoicing.Invoice, error) {
	var invoices []invoicing.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Lines", preloadLines).
		Where("tenant_id = ? AND status IN ?", tenantID, issuedStatuses).
		Order("registered_at ASC, number ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// FindRectifiedBy returns invoices that rectify the given invoice
func (r *GormInvoiceRepository) FindRectifiedBy(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.Invoice, error) {
	var invoices []invoicing.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Lines", preloadLines).
		Where("tenant_id = ? AND rectifies_invoice_id = ?", tenantID, invoiceID).
		Order("created_at ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// Create inserts a new draft invoice with its lines
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *invoicing.Invoice) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

// SaveDraft persists edits to a draft invoice. The update is guarded on
// DRAFT status and the loaded version, so a copy that lost a race to a
// concurrent issue (or edit) can never rewrite the row. Line replacement
// rewrites the full line set inside the same transaction.
func (r *GormInvoiceRepository) SaveDraft(ctx context.Context, inv *invoicing.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&invoicing.Invoice{}).
			Where("id = ? AND tenant_id = ? AND status = ? AND version = ?",
				inv.ID, inv.TenantID, invoicing.InvoiceStatusDraft, inv.Version).
			Updates(map[string]any{
				"client_id":        inv.ClientID,
				"issue_date":       inv.IssueDate,
				"due_date":         inv.DueDate,
				"customer_name":    inv.CustomerName,
				"customer_tax_id":  inv.CustomerTaxID,
				"customer_address": inv.CustomerAddress,
				"subtotal":         inv.Subtotal,
				"total_vat":        inv.TotalVat,
				"total":            inv.Total,
				"notes":            inv.Notes,
				"updated_at":       inv.UpdatedAt,
				"version":          inv.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		inv.IncrementVersion()

		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&invoicing.InvoiceLine{}).Error; err != nil {
			return err
		}
		if len(inv.Lines) == 0 {
			return nil
		}
		return tx.Create(&inv.Lines).Error
	})
}

// UpdateStatusForTenant performs a status transition as a single guarded
// column update. Issued rows are never rewritten wholesale; lifecycle
// changes only ever touch the status column.
func (r *GormInvoiceRepository) UpdateStatusForTenant(ctx context.Context, tenantID, id uuid.UUID, from []invoicing.InvoiceStatus, to invoicing.InvoiceStatus) error {
	res := r.db.WithContext(ctx).
		Model(&invoicing.Invoice{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// DeleteDraftForTenant removes a draft invoice with its lines
func (r *GormInvoiceRepository) DeleteDraftForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv invoicing.Invoice
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		if inv.Status != invoicing.InvoiceStatusDraft {
			return shared.ErrInvalidState
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&invoicing.InvoiceLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&invoicing.Invoice{}, "id = ?", id).Error
	})
}

// Stats aggregates invoice totals for a tenant within an optional
// issue-date range
func (r *GormInvoiceRepository) Stats(ctx context.Context, tenantID uuid.UUID, startDate, endDate *time.Time) (*invoicing.InvoiceStats, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).
			Model(&invoicing.Invoice{}).
			Where("tenant_id = ?", tenantID)
		if startDate != nil {
			query = query.Where("issue_date >= ?", *startDate)
		}
		if endDate != nil {
			query = query.Where("issue_date <= ?", *endDate)
		}
		return query
	}

	var stats invoicing.InvoiceStats
	if err := scoped().
		Where("status IN ?", issuedStatuses).
		Select(
			"COALESCE(SUM(total), 0) AS total_invoiced," +
				" COALESCE(SUM(total_vat), 0) AS total_vat," +
				" COALESCE(SUM(subtotal), 0) AS total_net," +
				" COUNT(*) AS invoice_count",
		).
		Scan(&stats).Error; err != nil {
		return nil, err
	}

	if err := scoped().
		Select("status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total").
		Group("status").
		Scan(&stats.ByStatus).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}
