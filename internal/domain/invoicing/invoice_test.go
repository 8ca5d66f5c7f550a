package invoicing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers

func createTestInvoice(t *testing.T) *Invoice {
	t.Helper()
	tenantID := uuid.New()
	taxID := "B12345678"
	inv, err := NewInvoice(tenantID, InvoiceTypeStandard, "A", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), nil,
		CustomerSnapshot{Name: "María García", TaxID: &taxID}, nil, nil)
	require.NoError(t, err)
	return inv
}

func addTestLine(t *testing.T, inv *Invoice, description string, qty, price float64) *InvoiceLine {
	t.Helper()
	line, err := inv.AddLine(LineInput{
		Description: description,
		Quantity:    decimal.NewFromFloat(qty),
		UnitPrice:   decimal.NewFromFloat(price),
		VatCategory: VatCategoryStandard,
	})
	require.NoError(t, err)
	return line
}

func issueTestInvoice(t *testing.T, inv *Invoice, number, year int, previousHash string) {
	t.Helper()
	require.NoError(t, inv.Issue(number, year, previousHash, time.Now()))
}

// ============================================
// InvoiceStatus Tests
// ============================================

func TestInvoiceStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  InvoiceStatus
		isValid bool
	}{
		{InvoiceStatusDraft, true},
		{InvoiceStatusIssued, true},
		{InvoiceStatusSubmitted, true},
		{InvoiceStatusPaid, true},
		{InvoiceStatusCancelled, true},
		{InvoiceStatus("INVALID"), false},
		{InvoiceStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestInvoiceStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     InvoiceStatus
		to       InvoiceStatus
		canTrans bool
	}{
		// From DRAFT
		{InvoiceStatusDraft, InvoiceStatusIssued, true},
		{InvoiceStatusDraft, InvoiceStatusSubmitted, false},
		{InvoiceStatusDraft, InvoiceStatusPaid, false},
		{InvoiceStatusDraft, InvoiceStatusCancelled, false},
		// From ISSUED
		{InvoiceStatusIssued, InvoiceStatusSubmitted, true},
		{InvoiceStatusIssued, InvoiceStatusPaid, true},
		{InvoiceStatusIssued, InvoiceStatusDraft, false},
		{InvoiceStatusIssued, InvoiceStatusCancelled, false},
		// From SUBMITTED
		{InvoiceStatusSubmitted, InvoiceStatusPaid, true},
		{InvoiceStatusSubmitted, InvoiceStatusDraft, false},
		{InvoiceStatusSubmitted, InvoiceStatusIssued, false},
		// Terminal states
		{InvoiceStatusPaid, InvoiceStatusDraft, false},
		{InvoiceStatusPaid, InvoiceStatusIssued, false},
		{InvoiceStatusCancelled, InvoiceStatusDraft, false},
		{InvoiceStatusCancelled, InvoiceStatusIssued, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.canTrans, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestInvoiceStatus_IsIssuedOrLater(t *testing.T) {
	assert.False(t, InvoiceStatusDraft.IsIssuedOrLater())
	assert.True(t, InvoiceStatusIssued.IsIssuedOrLater())
	assert.True(t, InvoiceStatusSubmitted.IsIssuedOrLater())
	assert.True(t, InvoiceStatusPaid.IsIssuedOrLater())
	assert.True(t, InvoiceStatusCancelled.IsIssuedOrLater())
}

// ============================================
// NewInvoice Tests
// ============================================

func TestNewInvoice(t *testing.T) {
	tenantID := uuid.New()
	issueDate := time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC)

	t.Run("creates draft with valid inputs", func(t *testing.T) {
		inv, err := NewInvoice(tenantID, InvoiceTypeStandard, "A", issueDate, nil,
			CustomerSnapshot{Name: "María García"}, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, tenantID, inv.TenantID)
		assert.Equal(t, InvoiceStatusDraft, inv.Status)
		assert.Equal(t, "A", inv.Series)
		assert.Nil(t, inv.Number)
		assert.Empty(t, inv.InvoiceCode)
		assert.Nil(t, inv.ContentHash)
		assert.Nil(t, inv.PreviousHash)
		assert.Nil(t, inv.RegisteredAt)
		assert.True(t, inv.Total.IsZero())

		events := inv.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeInvoiceCreated, events[0].EventType())
	})

	t.Run("defaults series and type", func(t *testing.T) {
		inv, err := NewInvoice(tenantID, "", "", issueDate, nil,
			CustomerSnapshot{Name: "María García"}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultSeries, inv.Series)
		assert.Equal(t, InvoiceTypeStandard, inv.Type)
	})

	t.Run("standard invoice requires customer name", func(t *testing.T) {
		_, err := NewInvoice(tenantID, InvoiceTypeStandard, "A", issueDate, nil,
			CustomerSnapshot{}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("simplified invoice falls back to anonymous customer", func(t *testing.T) {
		inv, err := NewInvoice(tenantID, InvoiceTypeSimplified, "A", issueDate, nil,
			CustomerSnapshot{}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, AnonymousCustomerName, inv.CustomerName)
	})

	t.Run("rectifying invoice requires a reference", func(t *testing.T) {
		_, err := NewInvoice(tenantID, InvoiceTypeRectifying, "A", issueDate, nil,
			CustomerSnapshot{Name: "María García"}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("non-rectifying invoice cannot carry a reference", func(t *testing.T) {
		ref := uuid.New()
		_, err := NewInvoice(tenantID, InvoiceTypeStandard, "A", issueDate, nil,
			CustomerSnapshot{Name: "María García"}, nil, &ref)
		assert.Error(t, err)
	})

	t.Run("rejects overlong series", func(t *testing.T) {
		_, err := NewInvoice(tenantID, InvoiceTypeStandard, "ABCDEFGHIJK", issueDate, nil,
			CustomerSnapshot{Name: "María García"}, nil, nil)
		assert.Error(t, err)
	})
}

// ============================================
// Line and totals Tests
// ============================================

func TestInvoice_AddLine(t *testing.T) {
	t.Run("accumulates totals from rounded line values", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)
		addTestLine(t, inv, "Tinte", 2, 10.00)

		assert.Len(t, inv.Lines, 2)
		assert.Equal(t, 0, inv.Lines[0].SortOrder)
		assert.Equal(t, 1, inv.Lines[1].SortOrder)
		// 25.00 + 20.00 / vat 5.25 + 4.20
		assert.Equal(t, "45.00", inv.Subtotal.StringFixed(2))
		assert.Equal(t, "9.45", inv.TotalVat.StringFixed(2))
		assert.Equal(t, "54.45", inv.Total.StringFixed(2))
	})

	t.Run("rejects empty description", func(t *testing.T) {
		inv := createTestInvoice(t)
		_, err := inv.AddLine(LineInput{
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: decimal.NewFromInt(10),
		})
		assert.Error(t, err)
	})

	t.Run("rejects lines on issued invoice", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)
		issueTestInvoice(t, inv, 1, 2025, "")

		_, err := inv.AddLine(LineInput{
			Description: "Extra",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(5),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rectifying invoice")
	})
}

func TestInvoice_ReplaceLines(t *testing.T) {
	inv := createTestInvoice(t)
	addTestLine(t, inv, "Corte de pelo", 1, 25.00)

	err := inv.ReplaceLines([]LineInput{
		{Description: "Manicura", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(15.00), VatCategory: VatCategoryReduced},
	})
	require.NoError(t, err)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "Manicura", inv.Lines[0].Description)
	assert.Equal(t, "15.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "1.50", inv.TotalVat.StringFixed(2))
	assert.Equal(t, "16.50", inv.Total.StringFixed(2))
}

// ============================================
// Issue Tests
// ============================================

func TestInvoice_Issue(t *testing.T) {
	t.Run("assigns code, hash and chain link exactly once", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)

		now := time.Now()
		require.NoError(t, inv.Issue(1, 2025, "", now))

		assert.Equal(t, InvoiceStatusIssued, inv.Status)
		require.NotNil(t, inv.Number)
		assert.Equal(t, 1, *inv.Number)
		assert.Equal(t, "A-2025-00001", inv.InvoiceCode)
		require.NotNil(t, inv.ContentHash)
		assert.Len(t, *inv.ContentHash, 64)
		assert.Nil(t, inv.PreviousHash, "chain root has no previous hash")
		require.NotNil(t, inv.RegisteredAt)
		assert.Equal(t, now, *inv.RegisteredAt)

		// Second issue attempt must fail and leave state untouched
		err := inv.Issue(2, 2025, "", time.Now())
		require.Error(t, err)
		assert.Equal(t, 1, *inv.Number)
	})

	t.Run("links to previous hash", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)

		prev := "ab12cd34"
		require.NoError(t, inv.Issue(2, 2025, prev, time.Now()))
		require.NotNil(t, inv.PreviousHash)
		assert.Equal(t, prev, *inv.PreviousHash)
	})

	t.Run("rejects issue without lines", func(t *testing.T) {
		inv := createTestInvoice(t)
		err := inv.Issue(1, 2025, "", time.Now())
		assert.Error(t, err)
		assert.Equal(t, InvoiceStatusDraft, inv.Status)
	})

	t.Run("rejects non-positive number", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)
		assert.Error(t, inv.Issue(0, 2025, "", time.Now()))
	})

	t.Run("raises issued event", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)
		inv.ClearDomainEvents()
		issueTestInvoice(t, inv, 1, 2025, "")

		events := inv.GetDomainEvents()
		require.Len(t, events, 1)
		issued, ok := events[0].(*InvoiceIssuedEvent)
		require.True(t, ok)
		assert.Equal(t, "A-2025-00001", issued.InvoiceCode)
		assert.Equal(t, *inv.ContentHash, issued.ContentHash)
	})
}

// ============================================
// Post-issuance transition Tests
// ============================================

func TestInvoice_MarkPaid(t *testing.T) {
	t.Run("from issued", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)
		issueTestInvoice(t, inv, 1, 2025, "")

		require.NoError(t, inv.MarkPaid())
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
	})

	t.Run("from submitted", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)
		issueTestInvoice(t, inv, 1, 2025, "")
		require.NoError(t, inv.MarkSubmitted())

		require.NoError(t, inv.MarkPaid())
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
	})

	t.Run("rejects paying a draft", func(t *testing.T) {
		inv := createTestInvoice(t)
		assert.Error(t, inv.MarkPaid())
	})

	t.Run("rejects paying twice", func(t *testing.T) {
		inv := createTestInvoice(t)
		addTestLine(t, inv, "Corte de pelo", 1, 25.00)
		issueTestInvoice(t, inv, 1, 2025, "")
		require.NoError(t, inv.MarkPaid())
		assert.Error(t, inv.MarkPaid())
	})
}

// ============================================
// Immutability Tests
// ============================================

func TestInvoice_ImmutabilityAfterIssue(t *testing.T) {
	inv := createTestInvoice(t)
	addTestLine(t, inv, "Corte de pelo", 1, 25.00)
	issueTestInvoice(t, inv, 1, 2025, "")

	subtotalBefore := inv.Subtotal
	hashBefore := *inv.ContentHash

	assert.Error(t, inv.ReplaceLines([]LineInput{
		{Description: "X", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1)},
	}))
	assert.Error(t, inv.UpdateCustomer(CustomerSnapshot{Name: "Otro"}))
	now := time.Now()
	assert.Error(t, inv.UpdateDates(&now, nil))
	assert.Error(t, inv.SetNotes("tamper"))
	assert.False(t, inv.CanDelete())

	assert.True(t, inv.Subtotal.Equal(subtotalBefore))
	assert.Equal(t, hashBefore, *inv.ContentHash)
}

func TestInvoice_CanDelete(t *testing.T) {
	inv := createTestInvoice(t)
	assert.True(t, inv.CanDelete())
}

func TestFormatInvoiceCode(t *testing.T) {
	assert.Equal(t, "A-2025-00001", FormatInvoiceCode("A", 2025, 1))
	assert.Equal(t, "B-2024-00042", FormatInvoiceCode("B", 2024, 42))
	assert.Equal(t, "A-2025-12345", FormatInvoiceCode("A", 2025, 12345))
}
