// Package billing holds the pure rules shared by quotes and invoices: line
// math, inclusion, status transitions, payments, numbering and time-entry
// grouping. Nothing here touches storage.
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/models"
)

var hundred = decimal.NewFromInt(100)

var taxRates = map[models.TaxType]decimal.Decimal{
	models.TaxStandard:      decimal.NewFromInt(21),
	models.TaxReduced:       decimal.NewFromInt(9),
	models.TaxZero:          decimal.Zero,
	models.TaxExempt:        decimal.Zero,
	models.TaxReverseCharge: decimal.Zero,
}

// LineAmounts is the computed money of one line item.
type LineAmounts struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

func ValidTaxType(t models.TaxType) bool {
	_, ok := taxRates[t]
	return ok
}

// ResolveTaxRate returns the explicit rate when given, otherwise the table rate for taxType.
func ResolveTaxRate(taxType models.TaxType, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if explicit != nil {
		if explicit.IsNegative() {
			return decimal.Zero, InvalidArgument("resolve tax rate", "tax rate must not be negative, got %s", explicit)
		}
		return *explicit, nil
	}
	rate, ok := taxRates[taxType]
	if !ok {
		return decimal.Zero, InvalidArgument("resolve tax rate", "unknown tax type %q", taxType)
	}
	return rate, nil
}

// ValidateLine enforces the preconditions of ComputeLine.
func ValidateLine(quantity, unitPrice decimal.Decimal) error {
	if !quantity.IsPositive() {
		return InvalidArgument("validate line", "quantity must be greater than 0, got %s", quantity)
	}
	if unitPrice.IsNegative() {
		return InvalidArgument("validate line", "unit price must not be negative, got %s", unitPrice)
	}
	return nil
}

// ComputeLine performs no rounding; presentation formats the amounts.
func ComputeLine(quantity, unitPrice, taxRate decimal.Decimal) LineAmounts {
	subtotal := quantity.Mul(unitPrice)
	tax := subtotal.Mul(taxRate).Div(hundred)
	return LineAmounts{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}

// Apply writes the computed amounts onto item.
func (a LineAmounts) Apply(item *models.LineItem) {
	item.Subtotal = a.Subtotal
	item.TaxAmount = a.TaxAmount
	item.Total = a.Total
}
