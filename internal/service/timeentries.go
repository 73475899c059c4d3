package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/database"
	"github.com/jesses-code-adventures/billing/internal/models"
)

type CreateTimeEntryInput struct {
	ClientID        string    `json:"client_id"`
	ProjectID       *string   `json:"project_id,omitempty"`
	ProjectName     *string   `json:"project_name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int64     `json:"duration_minutes"`
	Billable        *bool     `json:"billable,omitempty"`
}

func (s *BillingService) CreateTimeEntry(ctx context.Context, organizationID string, in CreateTimeEntryInput) (*models.TimeEntry, error) {
	const op = "create time entry"
	if in.DurationMinutes <= 0 {
		return nil, billing.InvalidArgument(op, "duration must be greater than 0 minutes")
	}
	if in.StartTime.IsZero() {
		return nil, billing.InvalidArgument(op, "start time is required")
	}
	client, err := s.GetClient(ctx, organizationID, in.ClientID)
	if err != nil {
		return nil, err
	}

	billable := true
	if in.Billable != nil {
		billable = *in.Billable
	}
	now := s.now()
	entry := &models.TimeEntry{
		ID:              models.NewUUID(),
		OrganizationID:  organizationID,
		ClientID:        client.ID,
		ProjectID:       in.ProjectID,
		ProjectName:     in.ProjectName,
		Description:     in.Description,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		Billable:        billable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.CreateTimeEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create time entry: %w", err)
	}
	return entry, nil
}

func (s *BillingService) ListUnbilledTimeEntries(ctx context.Context, organizationID, clientID string) ([]*models.TimeEntry, error) {
	client, err := s.GetClient(ctx, organizationID, clientID)
	if err != nil {
		return nil, err
	}
	entries, err := s.db.FindUnbilledTimeEntries(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unbilled time entries: %w", err)
	}
	return entries, nil
}

type BuildInvoiceInput struct {
	ClientID     string          `json:"client_id"`
	TimeEntryIDs []string        `json:"time_entry_ids"`
	GroupBy      billing.GroupBy `json:"group_by"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	Notes        *string         `json:"notes,omitempty"`
}

// BuildInvoiceFromTimeEntries bills the selected unbilled entries of a client
// as a new DRAFT invoice and links the entries to it.
func (s *BillingService) BuildInvoiceFromTimeEntries(ctx context.Context, organizationID string, in BuildInvoiceInput) (*models.Document, error) {
	const op = "build invoice from time entries"
	if len(in.TimeEntryIDs) == 0 {
		return nil, billing.InvalidArgument(op, "no time entries selected")
	}
	ids := slices.Clone(in.TimeEntryIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	groupBy := in.GroupBy
	if groupBy == "" {
		groupBy = billing.GroupNone
	}
	if _, err := billing.ParseGroupBy(string(groupBy)); err != nil {
		return nil, err
	}

	return s.createNumbered(ctx, op, organizationID, models.KindInvoice, "time_entries", func(q database.Queries, number string) (*models.Document, error) {
		org, client, err := party(ctx, q, op, organizationID, in.ClientID)
		if err != nil {
			return nil, err
		}
		unbilled, err := q.FindUnbilledTimeEntries(ctx, client.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find unbilled time entries: %w", err)
		}

		selected := make([]*models.TimeEntry, 0, len(ids))
		for _, id := range ids {
			idx := slices.IndexFunc(unbilled, func(e *models.TimeEntry) bool { return e.ID == id })
			if idx < 0 {
				return nil, billing.InvalidArgument(op, "time entry %s is not an unbilled entry of client %s", id, client.ID)
			}
			selected = append(selected, unbilled[idx])
		}

		fields, err := billing.GroupTimeEntries(selected, groupBy, in.HourlyRate, org.DefaultTaxType)
		if err != nil {
			return nil, err
		}
		doc := s.newDocument(org, client.ID, models.KindInvoice, number, nil)
		doc.Notes = in.Notes
		if err := s.insert(ctx, q, doc, fields, org.DefaultTaxType); err != nil {
			return nil, err
		}
		if err := q.MarkTimeEntriesBilled(ctx, ids, doc.ID, s.now()); err != nil {
			return nil, err
		}
		return doc, nil
	})
}
