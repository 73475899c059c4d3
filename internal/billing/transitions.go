package billing

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jesses-code-adventures/billing/internal/models"
)

type Action string

const (
	ActionFinalize Action = "finalize"
	ActionSend     Action = "send"
	ActionView     Action = "view"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionExpire   Action = "expire"
	ActionOverdue  Action = "overdue"
	ActionCancel   Action = "cancel"
	ActionRefund   Action = "refund"
)

// Transition is one legal status change.
type Transition struct {
	From []models.DocumentStatus
	To   models.DocumentStatus
}

// Transitions is the per-kind state machine. Payment driven statuses
// (PARTIALLY_PAID, PAID) are derived by ApplyPayment, not listed here.
var Transitions = map[models.DocumentKind]map[Action]Transition{
	models.KindInvoice: {
		ActionFinalize: {From: []models.DocumentStatus{models.StatusDraft}, To: models.StatusFinalized},
		ActionSend: {
			From: []models.DocumentStatus{models.StatusFinalized, models.StatusSent, models.StatusViewed, models.StatusOverdue},
			To:   models.StatusSent,
		},
		ActionView: {From: []models.DocumentStatus{models.StatusSent}, To: models.StatusViewed},
		ActionOverdue: {
			From: []models.DocumentStatus{models.StatusSent, models.StatusViewed, models.StatusPartiallyPaid},
			To:   models.StatusOverdue,
		},
		ActionCancel: {
			From: []models.DocumentStatus{models.StatusDraft, models.StatusFinalized, models.StatusSent, models.StatusViewed, models.StatusOverdue},
			To:   models.StatusCancelled,
		},
		ActionRefund: {
			From: []models.DocumentStatus{models.StatusPaid, models.StatusPartiallyPaid},
			To:   models.StatusRefunded,
		},
	},
	models.KindQuote: {
		ActionFinalize: {From: []models.DocumentStatus{models.StatusDraft}, To: models.StatusFinalized},
		ActionSend: {
			From: []models.DocumentStatus{models.StatusDraft, models.StatusFinalized, models.StatusSent, models.StatusViewed},
			To:   models.StatusSent,
		},
		ActionView:   {From: []models.DocumentStatus{models.StatusSent}, To: models.StatusViewed},
		ActionAccept: {From: []models.DocumentStatus{models.StatusSent, models.StatusViewed}, To: models.StatusAccepted},
		ActionReject: {From: []models.DocumentStatus{models.StatusSent, models.StatusViewed}, To: models.StatusRejected},
		ActionExpire: {
			From: []models.DocumentStatus{models.StatusFinalized, models.StatusSent, models.StatusViewed},
			To:   models.StatusExpired,
		},
	},
}

// payableStatuses are the invoice statuses a payment may be recorded against.
var payableStatuses = []models.DocumentStatus{
	models.StatusFinalized,
	models.StatusSent,
	models.StatusViewed,
	models.StatusPartiallyPaid,
	models.StatusOverdue,
	models.StatusPaid,
}

// CanTransition reports whether action is legal for a document of kind in status.
func CanTransition(kind models.DocumentKind, status models.DocumentStatus, action Action) bool {
	t, ok := Transitions[kind][action]
	return ok && slices.Contains(t.From, status)
}

// Next returns the status action leads to from the document's current status.
func Next(doc *models.Document, action Action) (models.DocumentStatus, error) {
	op := string(action)
	t, ok := Transitions[doc.Kind][action]
	if !ok {
		return "", InvalidState(op, "%s is not supported for %s documents", action, strings.ToLower(string(doc.Kind)))
	}
	if slices.Contains(t.From, doc.Status) {
		return t.To, nil
	}
	if doc.Kind == models.KindInvoice && action == ActionSend && doc.Status == models.StatusDraft {
		return "", InvalidState(op, "invoice %s must be finalized before sending", doc.Number)
	}
	return "", InvalidState(op, "%s %s is %s, %s requires one of %s",
		strings.ToLower(string(doc.Kind)), doc.Number, doc.Status, action, joinStatuses(t.From))
}

// Apply moves doc through action, stamping the matching timestamp. sentAt is
// stamped on every send so a resend is visible, the others only once.
func Apply(doc *models.Document, action Action, now time.Time) error {
	next, err := Next(doc, action)
	if err != nil {
		return err
	}
	doc.Status = next
	switch action {
	case ActionSend:
		doc.SentAt = &now
	case ActionView:
		if doc.ViewedAt == nil {
			doc.ViewedAt = &now
		}
	case ActionAccept:
		if doc.AcceptedAt == nil {
			doc.AcceptedAt = &now
		}
	case ActionReject:
		if doc.RejectedAt == nil {
			doc.RejectedAt = &now
		}
	}
	return nil
}

// ClientPromotion returns the status a client moves to as a side effect of
// action, and false when the client stays as is.
func ClientPromotion(kind models.DocumentKind, action Action, current models.ClientStatus) (models.ClientStatus, bool) {
	switch {
	case kind == models.KindInvoice && action == ActionFinalize:
		if current == models.ClientClient || current == models.ClientArchived {
			return current, false
		}
		return models.ClientClient, true
	case kind == models.KindQuote && action == ActionSend:
		if current == models.ClientLead {
			return models.ClientProspect, true
		}
	}
	return current, false
}

func joinStatuses(statuses []models.DocumentStatus) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
