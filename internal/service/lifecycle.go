package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/database"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/notify"
	"github.com/jesses-code-adventures/billing/internal/render"
)

var errSkip = errors.New("skip")

// Finalize locks a DRAFT document. Finalizing an invoice promotes its client
// to CLIENT.
func (s *BillingService) Finalize(ctx context.Context, organizationID, documentID string) (*models.Document, error) {
	return s.transition(ctx, organizationID, documentID, "", billing.ActionFinalize, nil)
}

// Send marks the document SENT and publishes it to the portal. The PDF and
// email go out after the commit and never fail the call.
func (s *BillingService) Send(ctx context.Context, organizationID, documentID string) (*models.Document, error) {
	doc, err := s.transition(ctx, organizationID, documentID, "", billing.ActionSend, func(_ database.Queries, doc *models.Document) error {
		doc.PortalVisible = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, doc)
	return doc, nil
}

func (s *BillingService) MarkViewed(ctx context.Context, organizationID, documentID string) (*models.Document, error) {
	return s.transition(ctx, organizationID, documentID, "", billing.ActionView, nil)
}

func (s *BillingService) Accept(ctx context.Context, organizationID, quoteID string) (*models.Document, error) {
	return s.transition(ctx, organizationID, quoteID, models.KindQuote, billing.ActionAccept, nil)
}

func (s *BillingService) Reject(ctx context.Context, organizationID, quoteID string) (*models.Document, error) {
	return s.transition(ctx, organizationID, quoteID, models.KindQuote, billing.ActionReject, nil)
}

func (s *BillingService) Cancel(ctx context.Context, organizationID, invoiceID string) (*models.Document, error) {
	return s.transition(ctx, organizationID, invoiceID, models.KindInvoice, billing.ActionCancel, func(_ database.Queries, doc *models.Document) error {
		doc.PortalVisible = false
		return nil
	})
}

func (s *BillingService) Refund(ctx context.Context, organizationID, invoiceID string) (*models.Document, error) {
	return s.transition(ctx, organizationID, invoiceID, models.KindInvoice, billing.ActionRefund, nil)
}

// SetPortalVisible toggles whether the client portal shows the document.
func (s *BillingService) SetPortalVisible(ctx context.Context, organizationID, documentID string, visible bool) (*models.Document, error) {
	const op = "set portal visibility"
	return s.mutate(ctx, op, organizationID, documentID, func(_ database.Queries, doc *models.Document) error {
		if visible && doc.Status == models.StatusDraft {
			return billing.InvalidState(op, "%s %s is still a draft", kindName(doc.Kind), doc.Number)
		}
		doc.PortalVisible = visible
		return nil
	})
}

// MarkOverdue moves every SENT, VIEWED or PARTIALLY_PAID invoice past its due
// date to OVERDUE. An empty organizationID covers all organizations.
func (s *BillingService) MarkOverdue(ctx context.Context, organizationID string) ([]*models.Document, error) {
	return s.sweep(ctx, organizationID, models.KindInvoice, billing.ActionOverdue, billing.Overdue)
}

// ExpireQuotes moves open quotes whose validUntil has passed to EXPIRED.
func (s *BillingService) ExpireQuotes(ctx context.Context, organizationID string) ([]*models.Document, error) {
	return s.sweep(ctx, organizationID, models.KindQuote, billing.ActionExpire, billing.Expired)
}

func (s *BillingService) sweep(ctx context.Context, organizationID string, kind models.DocumentKind, action billing.Action, due func(*models.Document, time.Time) bool) ([]*models.Document, error) {
	candidates, err := s.db.FindDocumentsByStatus(ctx, organizationID, kind, billing.Transitions[kind][action].From)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s candidates: %w", action, err)
	}

	var changed []*models.Document
	for _, c := range candidates {
		now := s.now()
		if !due(c, now) {
			continue
		}
		doc, err := s.mutate(ctx, string(action), c.OrganizationID, c.ID, func(_ database.Queries, doc *models.Document) error {
			if !due(doc, now) {
				return errSkip
			}
			return billing.Apply(doc, action, now)
		})
		switch {
		case errors.Is(err, errSkip):
			continue
		case billing.KindOf(err) == billing.ErrConflict:
			s.log.Warn().Str("document_id", c.ID).Str("action", string(action)).Msg("document changed during sweep, skipped")
			continue
		case err != nil:
			return changed, err
		}
		s.metrics.Transition(string(kind), string(action))
		changed = append(changed, doc)
	}

	s.log.Info().Str("action", string(action)).Int("documents", len(changed)).Msg("sweep finished")
	return changed, nil
}

// transition applies action plus its client side effect inside one
// transaction. A non-empty kind restricts the action to that kind.
func (s *BillingService) transition(ctx context.Context, organizationID, documentID string, kind models.DocumentKind, action billing.Action, extra func(q database.Queries, doc *models.Document) error) (*models.Document, error) {
	op := string(action)
	doc, err := s.mutate(ctx, op, organizationID, documentID, func(q database.Queries, doc *models.Document) error {
		if kind != "" && doc.Kind != kind {
			return billing.NotFound(op, "%s %s does not exist", kindName(kind), documentID)
		}
		if err := billing.Apply(doc, action, s.now()); err != nil {
			return err
		}
		if err := s.promoteClient(ctx, q, doc, action); err != nil {
			return err
		}
		if extra != nil {
			return extra(q, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition(string(doc.Kind), string(action))
	s.log.Info().
		Str("document_id", doc.ID).
		Str("number", doc.Number).
		Str("action", string(action)).
		Str("status", string(doc.Status)).
		Msg("document transitioned")
	return doc, nil
}

func (s *BillingService) promoteClient(ctx context.Context, q database.Queries, doc *models.Document, action billing.Action) error {
	client, err := q.GetClient(ctx, doc.ClientID, doc.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to get client: %w", err)
	}
	if client == nil {
		return nil
	}
	next, ok := billing.ClientPromotion(doc.Kind, action, client.Status)
	if !ok {
		return nil
	}
	if err := q.UpdateClientStatus(ctx, client.ID, next, s.now()); err != nil {
		return fmt.Errorf("failed to promote client: %w", err)
	}
	s.log.Info().Str("client_id", client.ID).Str("status", string(next)).Msg("client promoted")
	return nil
}

// deliver renders and mails a sent document. Failures are logged only.
func (s *BillingService) deliver(ctx context.Context, doc *models.Document) {
	log := s.log.With().Str("document_id", doc.ID).Str("number", doc.Number).Logger()

	org, err := s.db.GetOrganization(ctx, doc.OrganizationID)
	if err != nil {
		log.Error().Err(err).Msg("notification failed: organization lookup")
		s.metrics.Notification("failed")
		return
	}
	client, err := s.db.GetClient(ctx, doc.ClientID, doc.OrganizationID)
	if err != nil || client == nil {
		log.Error().Err(err).Msg("notification failed: client lookup")
		s.metrics.Notification("failed")
		return
	}

	to := client.Recipient()
	if to == "" {
		log.Warn().Str("client_id", client.ID).Msg("client has no email address, notification skipped")
		s.metrics.Notification("skipped")
		return
	}

	pdf, err := s.renderer.Render(org, client, doc)
	if err != nil {
		log.Error().Err(err).Msg("notification failed: rendering")
		s.metrics.Notification("failed")
		return
	}

	sender := "billing"
	if org != nil {
		sender = org.Name
	}
	msg := notify.Message{
		To:      to,
		Subject: fmt.Sprintf("%s %s from %s", title(doc.Kind), doc.Number, sender),
		Body: fmt.Sprintf("Hello %s,\n\nPlease find %s %s attached. Total: %s %s.\n",
			client.Name, kindName(doc.Kind), doc.Number, doc.Currency, doc.Total.StringFixed(2)),
		Attachments: []notify.Attachment{{
			Name:        render.FileName(doc),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("to", to).Msg("notification failed: delivery")
		s.metrics.Notification("failed")
		return
	}
	log.Info().Str("to", to).Msg("document notification sent")
	s.metrics.Notification("sent")
}

func title(kind models.DocumentKind) string {
	if kind == models.KindQuote {
		return "Quote"
	}
	return "Invoice"
}
