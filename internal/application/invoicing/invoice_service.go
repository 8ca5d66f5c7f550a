package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucia/backend/internal/domain/invoicing"
	"github.com/lucia/backend/internal/domain/partner"
	"github.com/lucia/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxIssueAttempts bounds the internal retries on sequence conflicts before
// the error surfaces to the caller
const maxIssueAttempts = 3

// errStaleIssueKey aborts an issuance attempt whose lock key no longer
// matches the stored draft's series or issue year
var errStaleIssueKey = errors.New("issuance key out of date")

// InvoiceService implements the public operations of the issuance ledger.
// Every operation takes an explicit, already-resolved tenant identifier.
type InvoiceService struct {
	invoiceRepo    invoicing.InvoiceRepository
	ledger         invoicing.LedgerStore
	clientRepo     partner.ClientRepository
	locks          *issueLocks
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(invoiceRepo invoicing.InvoiceRepository, ledger invoicing.LedgerStore, clientRepo partner.ClientRepository) *InvoiceService {
	return &InvoiceService{
		invoiceRepo: invoiceRepo,
		ledger:      ledger,
		clientRepo:  clientRepo,
		locks:       newIssueLocks(),
		now:         time.Now,
	}
}

// SetEventPublisher sets the publisher for domain events
func (s *InvoiceService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// CreateDraft creates a new invoice in DRAFT status. Totals are computed
// from the lines; the customer snapshot is copied now and never re-derived
// from the live client record.
func (s *InvoiceService) CreateDraft(ctx context.Context, tenantID uuid.UUID, req CreateDraftRequest) (*InvoiceResponse, error) {
	invType := invoicing.InvoiceType(strings.ToUpper(req.Type))
	if req.Type == "" {
		invType = invoicing.InvoiceTypeStandard
	}

	var client *partner.Client
	if req.ClientID != nil {
		found, err := s.clientRepo.FindByIDForTenant(ctx, tenantID, *req.ClientID)
		if err != nil {
			return nil, err
		}
		client = found
	}

	if req.RectifiesInvoiceID != nil {
		if err := s.validateRectificationTarget(ctx, tenantID, *req.RectifiesInvoiceID); err != nil {
			return nil, err
		}
	}

	customer := s.customerSnapshot(req, client)

	issueDate := s.now()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	inv, err := invoicing.NewInvoice(tenantID, invType, req.Series, issueDate, req.DueDate, customer, req.ClientID, req.RectifiesInvoiceID)
	if err != nil {
		return nil, err
	}

	for _, lineReq := range req.Lines {
		if _, err := inv.AddLine(toLineInput(lineReq)); err != nil {
			return nil, err
		}
	}

	if req.Notes != "" {
		if err := inv.SetNotes(req.Notes); err != nil {
			return nil, err
		}
	}

	if err := s.invoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, inv)

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetByID retrieves an invoice with its lines and both sides of any
// rectification link
func (s *InvoiceService) GetByID(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)

	if inv.RectifiesInvoiceID != nil {
		original, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, *inv.RectifiesInvoiceID)
		if err == nil {
			resp.Rectifies = &RectificationRef{ID: original.ID, InvoiceCode: original.InvoiceCode}
		} else if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	rectifiers, err := s.invoiceRepo.FindRectifiedBy(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	for i := range rectifiers {
		resp.RectifiedBy = append(resp.RectifiedBy, RectificationRef{
			ID:          rectifiers[i].ID,
			InvoiceCode: rectifiers[i].InvoiceCode,
		})
	}

	return &resp, nil
}

// List retrieves invoices matching the filter
func (s *InvoiceService) List(ctx context.Context, tenantID uuid.UUID, req ListRequest) ([]InvoiceResponse, int64, error) {
	filter := invoicing.ListFilter{
		Filter: shared.Filter{
			Page:     req.Page,
			PageSize: req.PageSize,
			OrderBy:  req.OrderBy,
			OrderDir: req.OrderDir,
			Search:   req.Search,
		},
		ClientID:  req.ClientID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if req.Status != nil {
		status := invoicing.InvoiceStatus(strings.ToUpper(*req.Status))
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown invoice status %q", *req.Status))
		}
		filter.Status = &status
	}

	invoices, total, err := s.invoiceRepo.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		responses[i] = ToInvoiceResponse(&invoices[i])
	}
	return responses, total, nil
}

// UpdateDraft applies a patch to a draft invoice and recalculates totals.
// Fails with an invalid-state error for any invoice past DRAFT.
func (s *InvoiceService) UpdateDraft(ctx context.Context, tenantID, invoiceID uuid.UUID, req UpdateDraftRequest) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	if req.CustomerName != nil || req.CustomerTaxID != nil || req.CustomerAddress != nil {
		customer := invoicing.CustomerSnapshot{
			Name:    inv.CustomerName,
			TaxID:   inv.CustomerTaxID,
			Address: inv.CustomerAddress,
		}
		if req.CustomerName != nil {
			customer.Name = *req.CustomerName
		}
		if req.CustomerTaxID != nil {
			customer.TaxID = req.CustomerTaxID
		}
		if req.CustomerAddress != nil {
			customer.Address = req.CustomerAddress
		}
		if err := inv.UpdateCustomer(customer); err != nil {
			return nil, err
		}
	}

	if req.IssueDate != nil || req.DueDate != nil {
		if err := inv.UpdateDates(req.IssueDate, req.DueDate); err != nil {
			return nil, err
		}
	}

	if req.Notes != nil {
		if err := inv.SetNotes(*req.Notes); err != nil {
			return nil, err
		}
	}

	if req.Lines != nil {
		inputs := make([]invoicing.LineInput, len(req.Lines))
		for i, lineReq := range req.Lines {
			inputs[i] = toLineInput(lineReq)
		}
		if err := inv.ReplaceLines(inputs); err != nil {
			return nil, err
		}
	}

	// A patch with no recognized fields still has to respect immutability
	if inv.Status != invoicing.InvoiceStatusDraft {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot edit an invoice in %s status; issued invoices require a rectifying invoice", inv.Status))
	}

	// the guarded write catches a draft issued between the read above and
	// this save; a stale copy must never rewrite an issued record
	if err := s.invoiceRepo.SaveDraft(ctx, inv); err != nil {
		return nil, err
	}

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// Issue transitions a draft into the ledger: it allocates the next
// contiguous number for the (tenant, series, issue-year) key, computes the
// content hash, links to the tenant's chain tail and persists the issued
// record, all inside one critical section. Allocation races are retried a
// bounded number of times before surfacing a sequence conflict.
func (s *InvoiceService) Issue(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoicing.InvoiceStatusDraft {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot issue invoice in %s status; only drafts can be issued", inv.Status))
	}
	if inv.RectifiesInvoiceID != nil {
		if err := s.validateRectificationTarget(ctx, tenantID, *inv.RectifiesInvoiceID); err != nil {
			return nil, err
		}
	}

	series := inv.Series
	year := inv.IssueDate.Year()

	var issued *invoicing.Invoice
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		issued, err = s.issueOnce(ctx, tenantID, invoiceID, series, year)
		if err == nil {
			break
		}
		if errors.Is(err, errStaleIssueKey) {
			// a concurrent draft edit moved the invoice to another
			// numbering stream; re-read the key and lock the right one
			fresh, readErr := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
			if readErr != nil {
				return nil, readErr
			}
			series = fresh.Series
			year = fresh.IssueDate.Year()
			continue
		}
		if !errors.Is(err, shared.ErrSequenceConflict) {
			return nil, err
		}
	}
	if err != nil {
		if errors.Is(err, errStaleIssueKey) {
			return nil, shared.ErrConcurrencyConflict
		}
		return nil, err
	}

	s.publishEvents(ctx, issued)
	resp := ToInvoiceResponse(issued)
	return &resp, nil
}

// issueOnce performs a single issuance attempt under the key-scoped lock
func (s *InvoiceService) issueOnce(ctx context.Context, tenantID, invoiceID uuid.UUID, series string, year int) (*invoicing.Invoice, error) {
	unlock := s.locks.Lock(issueKey(tenantID, series, year))
	defer unlock()

	var issued *invoicing.Invoice
	err := s.ledger.ExecuteIssue(ctx, func(ops invoicing.LedgerOperations) error {
		inv, err := ops.FindDraft(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		// the held lock and the allocated number are only valid for the
		// key the draft actually carries inside this transaction
		if inv.Series != series || inv.IssueDate.Year() != year {
			return errStaleIssueKey
		}

		number, err := ops.NextSequenceNumber(ctx, tenantID, series, year)
		if err != nil {
			return err
		}

		tail, err := ops.ChainTail(ctx, tenantID)
		if err != nil {
			return err
		}
		previousHash := ""
		if tail != nil {
			previousHash = tail.ContentHash
		}

		if err := inv.Issue(number, year, previousHash, s.now()); err != nil {
			return err
		}
		if err := ops.SaveIssued(ctx, inv); err != nil {
			return err
		}

		issued = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// MarkPaid transitions an issued or submitted invoice to PAID
func (s *InvoiceService) MarkPaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	if err := inv.MarkPaid(); err != nil {
		return nil, err
	}

	// lifecycle changes only touch the status column; the full row of an
	// issued invoice is never rewritten
	payableFrom := []invoicing.InvoiceStatus{invoicing.InvoiceStatusIssued, invoicing.InvoiceStatusSubmitted}
	if err := s.invoiceRepo.UpdateStatusForTenant(ctx, tenantID, invoiceID, payableFrom, invoicing.InvoiceStatusPaid); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, inv)

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// DeleteOrReject deletes a draft invoice. For any invoice past DRAFT it
// fails and directs the caller to create a rectifying invoice, which is the
// only sanctioned way to invalidate issued financial data.
func (s *InvoiceService) DeleteOrReject(ctx context.Context, tenantID, invoiceID uuid.UUID) error {
	inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return err
	}

	if !inv.CanDelete() {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot delete an invoice in %s status; issued invoices must be cancelled with a rectifying invoice", inv.Status))
	}

	return s.invoiceRepo.DeleteDraftForTenant(ctx, tenantID, invoiceID)
}

// VerifyIntegrity recomputes the content hash of an issued invoice and
// compares it to the stored digest. With walkChain set it additionally
// walks the tenant's chain from root to tail checking every previous-hash
// link. A mismatch is surfaced, never auto-corrected.
func (s *InvoiceService) VerifyIntegrity(ctx context.Context, tenantID, invoiceID uuid.UUID, walkChain bool) (*VerificationResponse, error) {
	inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.Status.IsIssuedOrLater() {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot verify an invoice in %s status; only issued invoices carry a content hash", inv.Status))
	}

	result := &VerificationResponse{
		InvoiceID:   inv.ID,
		InvoiceCode: inv.InvoiceCode,
		HashValid:   invoicing.VerifyContentHash(inv),
	}
	result.Valid = result.HashValid

	if walkChain {
		chainValid, err := s.verifyChain(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		result.ChainValid = &chainValid
		result.Valid = result.Valid && chainValid
	}

	return result, nil
}

// Stats aggregates invoice totals for a tenant within an optional
// issue-date range
func (s *InvoiceService) Stats(ctx context.Context, tenantID uuid.UUID, startDate, endDate *time.Time) (*invoicing.InvoiceStats, error) {
	return s.invoiceRepo.Stats(ctx, tenantID, startDate, endDate)
}

// verifyChain walks the issued chain from root to tail
func (s *InvoiceService) verifyChain(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	chain, err := s.invoiceRepo.FindIssuedChain(ctx, tenantID)
	if err != nil {
		return false, err
	}

	var previousHash *string
	for i := range chain {
		if !invoicing.VerifyContentHash(&chain[i]) {
			return false, nil
		}
		if i == 0 {
			if chain[i].PreviousHash != nil {
				return false, nil
			}
		} else {
			if chain[i].PreviousHash == nil || previousHash == nil || *chain[i].PreviousHash != *previousHash {
				return false, nil
			}
		}
		previousHash = chain[i].ContentHash
	}
	return true, nil
}

// validateRectificationTarget checks that the referenced invoice exists for
// the tenant and has been issued
func (s *InvoiceService) validateRectificationTarget(ctx context.Context, tenantID, originalID uuid.UUID) error {
	original, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, originalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError("NOT_FOUND", "Original invoice not found")
		}
		return err
	}
	if !original.Status.IsIssuedOrLater() {
		return shared.NewDomainError("INVALID_RECTIFICATION", "Rectifying invoices must reference an issued invoice")
	}
	return nil
}

// customerSnapshot resolves the customer identity copied onto the invoice:
// explicit overrides win, then the client record, then nothing (the domain
// applies the anonymous fallback for simplified invoices).
func (s *InvoiceService) customerSnapshot(req CreateDraftRequest, client *partner.Client) invoicing.CustomerSnapshot {
	snapshot := invoicing.CustomerSnapshot{
		Name:    req.CustomerName,
		TaxID:   req.CustomerTaxID,
		Address: req.CustomerAddress,
	}
	if client == nil {
		return snapshot
	}
	if snapshot.Name == "" {
		snapshot.Name = client.FullName()
	}
	if snapshot.TaxID == nil && client.DocumentNumber != nil {
		snapshot.TaxID = client.DocumentNumber
	}
	if snapshot.Address == nil {
		if addr := client.FullAddress(); addr != "" {
			snapshot.Address = &addr
		}
	}
	return snapshot
}

// publishEvents publishes and clears pending domain events best-effort;
// event delivery never fails a committed operation
func (s *InvoiceService) publishEvents(ctx context.Context, inv *invoicing.Invoice) {
	if s.eventPublisher == nil {
		return
	}
	events := inv.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	inv.ClearDomainEvents()
}

func toLineInput(req LineRequest) invoicing.LineInput {
	return invoicing.LineInput{
		ServiceID:       req.ServiceID,
		Description:     req.Description,
		Quantity:        decimal.NewFromFloat(req.Quantity),
		UnitPrice:       decimal.NewFromFloat(req.UnitPrice),
		DiscountPercent: decimal.NewFromFloat(req.DiscountPercent),
		VatCategory:     invoicing.VatCategory(strings.ToUpper(req.VatCategory)),
	}
}
