package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appinvoicing "github.com/lucia/backend/internal/application/invoicing"
	"github.com/lucia/backend/internal/infrastructure/persistence"
	"github.com/lucia/backend/internal/interfaces/http/middleware"
	"github.com/lucia/backend/internal/interfaces/http/router"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		PageSize   int   `json:"page_size"`
		TotalPages int   `json:"total_pages"`
	} `json:"meta"`
}

type invoicePayload struct {
	ID           uuid.UUID `json:"id"`
	Series       string    `json:"series"`
	Number       *int      `json:"number"`
	InvoiceCode  string    `json:"invoice_code"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	CustomerName string    `json:"customer_name"`
	Subtotal     string    `json:"subtotal"`
	TotalVat     string    `json:"total_vat"`
	Total        string    `json:"total"`
	ContentHash  *string   `json:"content_hash"`
	PreviousHash *string   `json:"previous_hash"`
}

type verificationPayload struct {
	InvoiceID  uuid.UUID `json:"invoice_id"`
	HashValid  bool      `json:"hash_valid"`
	ChainValid *bool     `json:"chain_valid"`
	Valid      bool      `json:"valid"`
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, persistence.Migrate(db))

	service := appinvoicing.NewInvoiceService(
		persistence.NewGormInvoiceRepository(db),
		persistence.NewGormLedgerStore(db),
		persistence.NewGormClientRepository(db),
	)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TenantMiddleware())
	router.NewRouter(engine).
		Register(NewInvoiceHandler(service)).
		Setup()
	return engine
}

func performRequest(t *testing.T, engine *gin.Engine, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var envelope apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func decodeInvoice(t *testing.T, w *httptest.ResponseRecorder) invoicePayload {
	t.Helper()
	envelope := decodeEnvelope(t, w)
	require.True(t, envelope.Success, "expected success envelope, got %s", w.Body.String())
	var invoice invoicePayload
	require.NoError(t, json.Unmarshal(envelope.Data, &invoice))
	return invoice
}

func draftBody() map[string]any {
	return map[string]any{
		"series":        "A",
		"issue_date":    "2025-03-15",
		"customer_name": "Acme SL",
		"lines": []map[string]any{
			{
				"description":  "Consulting services",
				"quantity":     1,
				"unit_price":   100.00,
				"vat_category": "STANDARD",
			},
		},
	}
}

func TestInvoiceHandler_TenantRequired(t *testing.T) {
	engine := setupTestRouter(t)

	w := performRequest(t, engine, http.MethodGet, "/api/v1/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(t, engine, http.MethodGet, "/api/v1/invoices", "not-a-uuid", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvoiceHandler_CreateDraft(t *testing.T) {
	engine := setupTestRouter(t)
	tenantID := uuid.NewString()

	t.Run("creates draft with computed totals", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		invoice := decodeInvoice(t, w)
		assert.Equal(t, "DRAFT", invoice.Status)
		assert.Nil(t, invoice.Number)
		assert.Equal(t, "100.00", invoice.Subtotal)
		assert.Equal(t, "21.00", invoice.TotalVat)
		assert.Equal(t, "121.00", invoice.Total)
	})

	t.Run("rejects line without description", func(t *testing.T) {
		body := draftBody()
		body["lines"] = []map[string]any{{"quantity": 1, "unit_price": 10}}
		w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed issue date", func(t *testing.T) {
		body := draftBody()
		body["issue_date"] = "15/03/2025"
		w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		body := draftBody()
		body["lines"] = []map[string]any{{"description": "x", "quantity": 0, "unit_price": 10}}
		w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInvoiceHandler_IssueFlow(t *testing.T) {
	engine := setupTestRouter(t)
	tenantID := uuid.NewString()

	w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
	require.Equal(t, http.StatusCreated, w.Code)
	draft := decodeInvoice(t, w)

	w = performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/issue", draft.ID), tenantID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	issued := decodeInvoice(t, w)

	assert.Equal(t, "ISSUED", issued.Status)
	require.NotNil(t, issued.Number)
	assert.Equal(t, 1, *issued.Number)
	assert.Equal(t, "A-2025-00001", issued.InvoiceCode)
	require.NotNil(t, issued.ContentHash)
	assert.Len(t, *issued.ContentHash, 64)
	assert.Nil(t, issued.PreviousHash)

	t.Run("second invoice chains to the first", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
		require.Equal(t, http.StatusCreated, w.Code)
		second := decodeInvoice(t, w)

		w = performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/issue", second.ID), tenantID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		issuedSecond := decodeInvoice(t, w)

		assert.Equal(t, "A-2025-00002", issuedSecond.InvoiceCode)
		require.NotNil(t, issuedSecond.PreviousHash)
		assert.Equal(t, *issued.ContentHash, *issuedSecond.PreviousHash)
	})

	t.Run("re-issuing is refused", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/issue", draft.ID), tenantID, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		envelope := decodeEnvelope(t, w)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, "ERR_INVALID_STATE", envelope.Error.Code)
	})

	t.Run("updating an issued invoice is refused", func(t *testing.T) {
		notes := map[string]any{"notes": "late edit"}
		w := performRequest(t, engine, http.MethodPatch, fmt.Sprintf("/api/v1/invoices/%s", draft.ID), tenantID, notes)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("deleting an issued invoice is refused", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodDelete, fmt.Sprintf("/api/v1/invoices/%s", draft.ID), tenantID, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("issued invoice can be paid", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/pay", draft.ID), tenantID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		paid := decodeInvoice(t, w)
		assert.Equal(t, "PAID", paid.Status)
	})
}

func TestInvoiceHandler_Verify(t *testing.T) {
	engine := setupTestRouter(t)
	tenantID := uuid.NewString()

	w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
	require.Equal(t, http.StatusCreated, w.Code)
	draft := decodeInvoice(t, w)

	t.Run("draft cannot be verified", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%s/verify", draft.ID), tenantID, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	w = performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/issue", draft.ID), tenantID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("hash check only", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%s/verify", draft.ID), tenantID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		envelope := decodeEnvelope(t, w)
		var result verificationPayload
		require.NoError(t, json.Unmarshal(envelope.Data, &result))
		assert.True(t, result.HashValid)
		assert.True(t, result.Valid)
		assert.Nil(t, result.ChainValid)
	})

	t.Run("full chain walk", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%s/verify?chain=true", draft.ID), tenantID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		envelope := decodeEnvelope(t, w)
		var result verificationPayload
		require.NoError(t, json.Unmarshal(envelope.Data, &result))
		require.NotNil(t, result.ChainValid)
		assert.True(t, *result.ChainValid)
		assert.True(t, result.Valid)
	})
}

func TestInvoiceHandler_ListAndDelete(t *testing.T) {
	engine := setupTestRouter(t)
	tenantID := uuid.NewString()
	otherTenant := uuid.NewString()

	w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
	require.Equal(t, http.StatusCreated, w.Code)
	first := decodeInvoice(t, w)

	w = performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
	require.Equal(t, http.StatusCreated, w.Code)
	second := decodeInvoice(t, w)

	w = performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/issue", second.ID), tenantID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("lists with pagination meta", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, "/api/v1/invoices?page=1&page_size=10", tenantID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		envelope := decodeEnvelope(t, w)
		require.NotNil(t, envelope.Meta)
		assert.Equal(t, int64(2), envelope.Meta.Total)
		assert.Equal(t, 1, envelope.Meta.TotalPages)
	})

	t.Run("filters by status", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, "/api/v1/invoices?status=issued", tenantID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		envelope := decodeEnvelope(t, w)
		require.NotNil(t, envelope.Meta)
		assert.Equal(t, int64(1), envelope.Meta.Total)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, "/api/v1/invoices?status=SHREDDED", tenantID, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, "/api/v1/invoices", otherTenant, nil)
		require.Equal(t, http.StatusOK, w.Code)
		envelope := decodeEnvelope(t, w)
		require.NotNil(t, envelope.Meta)
		assert.Equal(t, int64(0), envelope.Meta.Total)
	})

	t.Run("other tenant cannot fetch by ID", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%s", first.ID), otherTenant, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("draft can be deleted", func(t *testing.T) {
		w := performRequest(t, engine, http.MethodDelete, fmt.Sprintf("/api/v1/invoices/%s", first.ID), tenantID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = performRequest(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%s", first.ID), tenantID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestInvoiceHandler_Rectification(t *testing.T) {
	engine := setupTestRouter(t)
	tenantID := uuid.NewString()

	w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
	require.Equal(t, http.StatusCreated, w.Code)
	original := decodeInvoice(t, w)

	t.Run("rectifying a draft is refused", func(t *testing.T) {
		body := draftBody()
		body["type"] = "RECTIFYING"
		body["rectifies_invoice_id"] = original.ID.String()
		w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w = performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/issue", original.ID), tenantID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("rectifying an issued invoice succeeds", func(t *testing.T) {
		body := draftBody()
		body["type"] = "RECTIFYING"
		body["rectifies_invoice_id"] = original.ID.String()
		w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		rectifying := decodeInvoice(t, w)
		assert.Equal(t, "RECTIFYING", rectifying.Type)
	})
}

func TestInvoiceHandler_Stats(t *testing.T) {
	engine := setupTestRouter(t)
	tenantID := uuid.NewString()

	w := performRequest(t, engine, http.MethodPost, "/api/v1/invoices", tenantID, draftBody())
	require.Equal(t, http.StatusCreated, w.Code)
	draft := decodeInvoice(t, w)

	w = performRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%s/issue", draft.ID), tenantID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(t, engine, http.MethodGet, "/api/v1/invoices/stats", tenantID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)

	var stats struct {
		TotalInvoiced decimal.Decimal `json:"total_invoiced"`
		TotalVat      decimal.Decimal `json:"total_vat"`
		InvoiceCount  int64           `json:"invoice_count"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &stats))
	assert.True(t, stats.TotalInvoiced.Equal(decimal.RequireFromString("121.00")), "got %s", stats.TotalInvoiced)
	assert.True(t, stats.TotalVat.Equal(decimal.RequireFromString("21.00")), "got %s", stats.TotalVat)
	assert.Equal(t, int64(1), stats.InvoiceCount)
}
