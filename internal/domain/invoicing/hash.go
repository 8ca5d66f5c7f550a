package invoicing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// ComputeContentHash produces the tamper-evidence digest of an invoice's
// immutable fields: a lowercase hex SHA-256 over a canonical serialization.
// The serialization is field-order-stable and uses fixed decimal rendering
// (2 decimals for amounts, 3 for quantities, ISO dates), so the same logical
// invoice always yields the same digest regardless of process. Values are
// written Go-quoted, which keeps the serialization injective: a newline or
// other control byte inside a user-supplied field stays inside that field's
// quoted value and cannot forge a boundary between fields.
//
// The invoice code must already be assigned, which is why hashing happens
// inside the issuance critical section, after sequence allocation.
func ComputeContentHash(inv *Invoice) string {
	var b strings.Builder

	writeField(&b, "code", inv.InvoiceCode)
	writeField(&b, "issued", inv.IssueDate.Format("2006-01-02"))
	writeField(&b, "customer", inv.CustomerName)
	taxID := ""
	if inv.CustomerTaxID != nil {
		taxID = *inv.CustomerTaxID
	}
	writeField(&b, "tax_id", taxID)
	writeField(&b, "subtotal", inv.Subtotal.StringFixed(2))
	writeField(&b, "vat", inv.TotalVat.StringFixed(2))
	writeField(&b, "total", inv.Total.StringFixed(2))

	lines := make([]InvoiceLine, len(inv.Lines))
	copy(lines, inv.Lines)
	sort.SliceStable(lines, func(a, z int) bool {
		return lines[a].SortOrder < lines[z].SortOrder
	})
	for idx := range lines {
		writeField(&b, "line.description", lines[idx].Description)
		writeField(&b, "line.quantity", lines[idx].Quantity.StringFixed(3))
		writeField(&b, "line.unit_price", lines[idx].UnitPrice.StringFixed(2))
		writeField(&b, "line.vat_rate", lines[idx].VatRate.StringFixed(2))
		writeField(&b, "line.total", lines[idx].Total.StringFixed(2))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyContentHash recomputes the digest of a persisted invoice and
// compares it to the stored value. A mismatch means the record was tampered
// with after issuance. Returns false for invoices that carry no hash yet.
func VerifyContentHash(inv *Invoice) bool {
	if inv.ContentHash == nil || *inv.ContentHash == "" {
		return false
	}
	return ComputeContentHash(inv) == *inv.ContentHash
}

func writeField(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.Quote(value))
	b.WriteByte('\n')
}
