package billing

import (
	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/models"
)

// Totals is the aggregate of the included items of a document.
type Totals struct {
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
	ReverseCharge bool
}

// Included reports whether item counts toward the totals of a document of kind.
// Optional items only exist on quotes; invoices count every item.
func Included(kind models.DocumentKind, item *models.LineItem) bool {
	if kind == models.KindInvoice {
		return true
	}
	return !item.IsOptional || item.IsSelected
}

func SumTotals(kind models.DocumentKind, items []*models.LineItem) Totals {
	t := Totals{Subtotal: decimal.Zero, TaxAmount: decimal.Zero, Total: decimal.Zero}
	for _, item := range items {
		if !Included(kind, item) {
			continue
		}
		t.Subtotal = t.Subtotal.Add(item.Subtotal)
		t.TaxAmount = t.TaxAmount.Add(item.TaxAmount)
		t.Total = t.Total.Add(item.Total)
		if item.TaxType == models.TaxReverseCharge {
			t.ReverseCharge = true
		}
	}
	return t
}

// Apply overwrites the document aggregates.
func (t Totals) Apply(doc *models.Document) {
	doc.Subtotal = t.Subtotal
	doc.TaxAmount = t.TaxAmount
	doc.Total = t.Total
	doc.ReverseCharge = t.ReverseCharge
}

// NextSortOrder is 1 + the highest sort order, or 0 for an empty document.
func NextSortOrder(items []*models.LineItem) int {
	highest := -1
	for _, item := range items {
		if item.SortOrder > highest {
			highest = item.SortOrder
		}
	}
	return highest + 1
}

// Editable reports whether line items of doc may change.
func Editable(doc *models.Document) bool {
	return doc.Status == models.StatusDraft
}
