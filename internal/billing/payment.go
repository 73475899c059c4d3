package billing

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/models"
)

func checkPayable(op string, doc *models.Document) error {
	if doc.Kind != models.KindInvoice {
		return InvalidState(op, "payments can only be recorded against invoices")
	}
	if !slices.Contains(payableStatuses, doc.Status) {
		return InvalidState(op, "invoice %s is %s and cannot take payments", doc.Number, doc.Status)
	}
	return nil
}

// ApplyPayment adds amount to the invoice's paid amount and derives the new
// status. paidAt is only stamped when the PAID threshold is first crossed.
func ApplyPayment(doc *models.Document, amount decimal.Decimal, at time.Time) error {
	const op = "record payment"
	if !amount.IsPositive() {
		return InvalidArgument(op, "payment amount must be greater than 0, got %s", amount)
	}
	if err := checkPayable(op, doc); err != nil {
		return err
	}

	paid := doc.PaidAmount.Add(amount)
	doc.PaidAmount = paid
	switch {
	case paid.GreaterThanOrEqual(doc.Total):
		doc.Status = models.StatusPaid
		if doc.PaidAt == nil {
			doc.PaidAt = &at
		}
	case paid.IsPositive():
		doc.Status = models.StatusPartiallyPaid
	}
	return nil
}

// AdjustPayment applies a signed correction to the paid amount. Unlike
// ApplyPayment the status and paidAt are recomputed from the result, so an
// invoice can move back from PAID.
func AdjustPayment(doc *models.Document, delta decimal.Decimal, at time.Time) error {
	const op = "adjust payment"
	if delta.IsZero() {
		return InvalidArgument(op, "adjustment must not be zero")
	}
	if err := checkPayable(op, doc); err != nil {
		return err
	}
	paid := doc.PaidAmount.Add(delta)
	if paid.IsNegative() {
		return InvalidArgument(op, "adjustment of %s would make paid amount negative", delta)
	}

	doc.PaidAmount = paid
	switch {
	case paid.IsPositive() && paid.GreaterThanOrEqual(doc.Total):
		doc.Status = models.StatusPaid
		if doc.PaidAt == nil {
			doc.PaidAt = &at
		}
	case paid.IsPositive():
		doc.Status = models.StatusPartiallyPaid
		doc.PaidAt = nil
	default:
		doc.PaidAt = nil
		if doc.Status == models.StatusPaid || doc.Status == models.StatusPartiallyPaid {
			if doc.SentAt != nil {
				doc.Status = models.StatusSent
			} else {
				doc.Status = models.StatusFinalized
			}
		}
	}
	return nil
}

// Overdue reports whether the invoice should be marked overdue at now.
func Overdue(doc *models.Document, now time.Time) bool {
	return doc.DueDate != nil && doc.DueDate.Before(now) &&
		CanTransition(doc.Kind, doc.Status, ActionOverdue)
}

// Expired reports whether the quote's validity has passed at now.
func Expired(doc *models.Document, now time.Time) bool {
	return doc.ValidUntil != nil && doc.ValidUntil.Before(now) &&
		CanTransition(doc.Kind, doc.Status, ActionExpire)
}
