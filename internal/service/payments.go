package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/database"
	"github.com/jesses-code-adventures/billing/internal/models"
)

// RecordPayment adds amount to the invoice. paidAt defaults to now and is
// only kept when the payment settles the invoice.
func (s *BillingService) RecordPayment(ctx context.Context, organizationID, invoiceID string, amount decimal.Decimal, paidAt *time.Time) (*models.Document, error) {
	const op = "record payment"
	doc, err := s.mutate(ctx, op, organizationID, invoiceID, func(_ database.Queries, doc *models.Document) error {
		if doc.Kind != models.KindInvoice {
			return billing.NotFound(op, "invoice %s does not exist", invoiceID)
		}
		return billing.ApplyPayment(doc, amount, s.paymentTime(paidAt))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Payment("payment")
	s.log.Info().
		Str("document_id", doc.ID).
		Str("number", doc.Number).
		Str("amount", amount.String()).
		Str("paid_amount", doc.PaidAmount.String()).
		Str("status", string(doc.Status)).
		Msg("payment recorded")
	return doc, nil
}

// AdjustPayment corrects the paid amount by a signed delta, moving the
// invoice back from PAID when it no longer covers the total.
func (s *BillingService) AdjustPayment(ctx context.Context, organizationID, invoiceID string, delta decimal.Decimal, at *time.Time) (*models.Document, error) {
	const op = "adjust payment"
	doc, err := s.mutate(ctx, op, organizationID, invoiceID, func(_ database.Queries, doc *models.Document) error {
		if doc.Kind != models.KindInvoice {
			return billing.NotFound(op, "invoice %s does not exist", invoiceID)
		}
		return billing.AdjustPayment(doc, delta, s.paymentTime(at))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Payment("adjustment")
	s.log.Info().
		Str("document_id", doc.ID).
		Str("delta", delta.String()).
		Str("paid_amount", doc.PaidAmount.String()).
		Str("status", string(doc.Status)).
		Msg("payment adjusted")
	return doc, nil
}

func (s *BillingService) paymentTime(at *time.Time) time.Time {
	if at != nil {
		return *at
	}
	return s.now()
}
