package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/lucia/backend/internal/domain/invoicing"
	"github.com/lucia/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLedgerStore implements invoicing.LedgerStore using GORM transactions.
// One ExecuteIssue call maps to exactly one database transaction: number
// allocation, chain-tail read and the issued write commit or roll back as a
// unit.
type GormLedgerStore struct {
	db *gorm.DB
}

// NewGormLedgerStore creates a new GormLedgerStore
func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

// ExecuteIssue runs fn inside a database transaction
func (s *GormLedgerStore) ExecuteIssue(ctx context.Context, fn func(ops invoicing.LedgerOperations) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerOperations{tx: tx})
	})
}

type gormLedgerOperations struct {
	tx *gorm.DB
}

// FindDraft loads the draft to be issued, with lines
func (o *gormLedgerOperations) FindDraft(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	var inv invoicing.Invoice
	if err := o.tx.
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

// NextSequenceNumber returns MAX(number)+1 for the numbering stream
func (o *gormLedgerOperations) NextSequenceNumber(ctx context.Context, tenantID uuid.UUID, series string, year int) (int, error) {
	var max int
	if err := o.tx.
		Model(&invoicing.Invoice{}).
		Select("COALESCE(MAX(number), 0)").
		Where("tenant_id = ? AND series = ? AND year = ? AND number IS NOT NULL", tenantID, series, year).
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max + 1, nil
}

// ChainTail returns the most recently registered invoice of the tenant, or
// nil when the chain is empty. Ties on registration time are broken by
// sequence number.
func (o *gormLedgerOperations) ChainTail(ctx context.Context, tenantID uuid.UUID) (*invoicing.ChainLink, error) {
	var link invoicing.ChainLink
	res := o.tx.
		Model(&invoicing.Invoice{}).
		Select("id AS invoice_id, content_hash, registered_at, number").
		Where("tenant_id = ? AND status IN ?", tenantID, issuedStatuses).
		Order("registered_at DESC, number DESC").
		Limit(1).
		Scan(&link)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &link, nil
}

// SaveIssued persists the issuance as one guarded update. The status and
// version guards catch rows issued or edited by a concurrent writer, so the
// persisted content always matches the hashed content; the sequence index
// catches duplicate number allocation.
func (o *gormLedgerOperations) SaveIssued(ctx context.Context, inv *invoicing.Invoice) error {
	res := o.tx.
		Model(&invoicing.Invoice{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND version = ?",
			inv.ID, inv.TenantID, invoicing.InvoiceStatusDraft, inv.Version).
		Updates(map[string]any{
			"number":        inv.Number,
			"year":          inv.Year,
			"invoice_code":  inv.InvoiceCode,
			"status":        inv.Status,
			"content_hash":  inv.ContentHash,
			"previous_hash": inv.PreviousHash,
			"registered_at": inv.RegisteredAt,
			"updated_at":    inv.UpdatedAt,
			"version":       inv.Version + 1,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return shared.ErrSequenceConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	inv.IncrementVersion()
	return nil
}

// isUniqueViolation reports whether err is a unique index violation, for
// postgres and for the sqlite driver used in tests
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
