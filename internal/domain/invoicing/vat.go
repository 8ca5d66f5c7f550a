package invoicing

import (
	"fmt"

	"github.com/lucia/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// VatCategory identifies the Spanish VAT bracket applied to a line
type VatCategory string

const (
	VatCategoryStandard     VatCategory = "STANDARD"      // 21%
	VatCategoryReduced      VatCategory = "REDUCED"       // 10%
	VatCategorySuperReduced VatCategory = "SUPER_REDUCED" // 4%
	VatCategoryExempt       VatCategory = "EXEMPT"        // 0%
)

var vatRates = map[VatCategory]decimal.Decimal{
	VatCategoryStandard:     decimal.NewFromInt(21),
	VatCategoryReduced:      decimal.NewFromInt(10),
	VatCategorySuperReduced: decimal.NewFromInt(4),
	VatCategoryExempt:       decimal.Zero,
}

// IsValid checks if the category is a known VAT bracket
func (c VatCategory) IsValid() bool {
	_, ok := vatRates[c]
	return ok
}

// String returns the string representation of VatCategory
func (c VatCategory) String() string {
	return string(c)
}

// Rate returns the percentage rate for the category. An unknown category is
// a configuration error, not a silent default.
func (c VatCategory) Rate() (decimal.Decimal, error) {
	rate, ok := vatRates[c]
	if !ok {
		return decimal.Decimal{}, shared.NewDomainError("INVALID_VAT_CATEGORY",
			fmt.Sprintf("Unknown VAT category %q", string(c)))
	}
	return rate, nil
}

// LineAmounts holds the monetary results computed for a single invoice line
type LineAmounts struct {
	VatRate   decimal.Decimal
	Subtotal  decimal.Decimal
	VatAmount decimal.Decimal
	Total     decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// CalculateLineAmounts turns a line's raw quantities into rounded monetary
// amounts:
//
//	gross    = quantity * unitPrice
//	subtotal = round2(gross - gross * discount/100)
//	vat      = round2(subtotal * rate/100)
//	total    = subtotal + vat
//
// Rounding is half-up to 2 decimals, applied independently to subtotal and
// VAT before summation. Invoice totals are sums of these already-rounded
// line values, which is the figure audit reconciliation is based on.
func CalculateLineAmounts(quantity, unitPrice, discountPercent decimal.Decimal, category VatCategory) (LineAmounts, error) {
	rate, err := category.Rate()
	if err != nil {
		return LineAmounts{}, err
	}
	if quantity.LessThan(decimal.NewFromFloat(0.001)) {
		return LineAmounts{}, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be at least 0.001")
	}
	if unitPrice.IsNegative() {
		return LineAmounts{}, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(oneHundred) {
		return LineAmounts{}, shared.NewDomainError("INVALID_DISCOUNT", "Discount must be between 0 and 100 percent")
	}

	gross := quantity.Mul(unitPrice)
	discountAmount := gross.Mul(discountPercent).Div(oneHundred)
	subtotal := gross.Sub(discountAmount).Round(2)
	vatAmount := subtotal.Mul(rate).Div(oneHundred).Round(2)

	return LineAmounts{
		VatRate:   rate,
		Subtotal:  subtotal,
		VatAmount: vatAmount,
		Total:     subtotal.Add(vatAmount),
	}, nil
}
