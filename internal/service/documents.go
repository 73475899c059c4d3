package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/database"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/render"
)

type CreateDocumentInput struct {
	Kind       models.DocumentKind  `json:"kind"`
	ClientID   string               `json:"client_id"`
	IssueDate  *time.Time           `json:"issue_date,omitempty"`
	DueDate    *time.Time           `json:"due_date,omitempty"`
	ValidUntil *time.Time           `json:"valid_until,omitempty"`
	Notes      *string              `json:"notes,omitempty"`
	Items      []billing.ItemFields `json:"items,omitempty"`
}

func (s *BillingService) CreateDocument(ctx context.Context, organizationID string, in CreateDocumentInput) (*models.Document, error) {
	const op = "create document"
	if !in.Kind.Valid() {
		return nil, billing.InvalidArgument(op, "unknown document kind %q", in.Kind)
	}
	if in.ClientID == "" {
		return nil, billing.InvalidArgument(op, "client is required")
	}
	if in.Kind == models.KindQuote && in.DueDate != nil {
		return nil, billing.InvalidArgument(op, "quotes have no due date")
	}
	if in.Kind == models.KindInvoice && in.ValidUntil != nil {
		return nil, billing.InvalidArgument(op, "invoices have no validity date")
	}

	return s.createNumbered(ctx, op, organizationID, in.Kind, "new", func(q database.Queries, number string) (*models.Document, error) {
		org, client, err := party(ctx, q, op, organizationID, in.ClientID)
		if err != nil {
			return nil, err
		}
		doc := s.newDocument(org, client.ID, in.Kind, number, in.IssueDate)
		if in.DueDate != nil {
			doc.DueDate = in.DueDate
		}
		if in.ValidUntil != nil {
			doc.ValidUntil = in.ValidUntil
		}
		doc.Notes = in.Notes
		if err := s.insert(ctx, q, doc, in.Items, org.DefaultTaxType); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func (s *BillingService) GetDocument(ctx context.Context, organizationID, documentID string) (*models.Document, error) {
	var doc *models.Document
	err := s.db.WithTx(ctx, func(q database.Queries) error {
		var err error
		doc, err = load(ctx, q, "get document", organizationID, documentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// RenderDocument returns the PDF of a document along with its file name.
func (s *BillingService) RenderDocument(ctx context.Context, organizationID, documentID string) ([]byte, string, error) {
	const op = "render document"
	var (
		doc    *models.Document
		org    *models.Organization
		client *models.Client
	)
	err := s.db.WithTx(ctx, func(q database.Queries) error {
		var err error
		if doc, err = load(ctx, q, op, organizationID, documentID); err != nil {
			return err
		}
		org, client, err = party(ctx, q, op, organizationID, doc.ClientID)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.renderer.Render(org, client, doc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render %s %s: %w", kindName(doc.Kind), doc.Number, err)
	}
	return pdf, render.FileName(doc), nil
}

// ListDocuments returns document headers without line items. An empty kind lists both.
func (s *BillingService) ListDocuments(ctx context.Context, organizationID string, kind models.DocumentKind) ([]*models.Document, error) {
	if kind != "" && !kind.Valid() {
		return nil, billing.InvalidArgument("list documents", "unknown document kind %q", kind)
	}
	docs, err := s.db.ListDocuments(ctx, organizationID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// NextNumber reserves and returns the next number for kind in the current year.
func (s *BillingService) NextNumber(ctx context.Context, organizationID string, kind models.DocumentKind) (string, error) {
	const op = "next number"
	if !kind.Valid() {
		return "", billing.InvalidArgument(op, "unknown document kind %q", kind)
	}
	var number string
	err := s.db.WithTx(ctx, func(q database.Queries) error {
		org, err := q.GetOrganization(ctx, organizationID)
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return billing.NotFound(op, "organization %s does not exist", organizationID)
		}
		number, err = allocate(ctx, q, organizationID, kind, s.now().Year())
		return err
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// Duplicate copies a document into a new DRAFT with a fresh number. Status,
// payments and timestamps start over; date terms keep their length.
func (s *BillingService) Duplicate(ctx context.Context, organizationID, documentID string) (*models.Document, error) {
	const op = "duplicate document"
	var kind models.DocumentKind
	err := s.db.WithTx(ctx, func(q database.Queries) error {
		doc, err := q.FindDocument(ctx, documentID, organizationID)
		if err != nil {
			return fmt.Errorf("failed to load document: %w", err)
		}
		if doc == nil {
			return billing.NotFound(op, "document %s does not exist", documentID)
		}
		kind = doc.Kind
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.createNumbered(ctx, op, organizationID, kind, "duplicate", func(q database.Queries, number string) (*models.Document, error) {
		source, err := load(ctx, q, op, organizationID, documentID)
		if err != nil {
			return nil, err
		}
		org, client, err := party(ctx, q, op, organizationID, source.ClientID)
		if err != nil {
			return nil, err
		}
		doc := s.newDocument(org, client.ID, source.Kind, number, nil)
		doc.Currency = source.Currency
		doc.Notes = source.Notes
		doc.DueDate = shiftTerm(source.IssueDate, source.DueDate, doc.IssueDate)
		doc.ValidUntil = shiftTerm(source.IssueDate, source.ValidUntil, doc.IssueDate)

		fields := make([]billing.ItemFields, len(source.Items))
		for i, item := range source.Items {
			fields[i] = billing.CopyItem(item)
		}
		if err := s.insert(ctx, q, doc, fields, org.DefaultTaxType); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// ConvertQuoteToInvoice creates a DRAFT invoice from the included items of an
// accepted quote. A quote converts at most once.
func (s *BillingService) ConvertQuoteToInvoice(ctx context.Context, organizationID, quoteID string) (*models.Document, error) {
	const op = "convert quote"
	return s.createNumbered(ctx, op, organizationID, models.KindInvoice, "conversion", func(q database.Queries, number string) (*models.Document, error) {
		quote, err := loadKind(ctx, q, op, organizationID, quoteID, models.KindQuote)
		if err != nil {
			return nil, err
		}
		if quote.Status != models.StatusAccepted {
			return nil, billing.InvalidState(op, "quote %s is %s, only accepted quotes can be converted", quote.Number, quote.Status)
		}
		invoices, err := q.ListDocuments(ctx, organizationID, models.KindInvoice)
		if err != nil {
			return nil, fmt.Errorf("failed to list invoices: %w", err)
		}
		for _, inv := range invoices {
			if inv.SourceQuoteID != nil && *inv.SourceQuoteID == quote.ID {
				return nil, billing.InvalidState(op, "quote %s was already converted to invoice %s", quote.Number, inv.Number)
			}
		}

		org, client, err := party(ctx, q, op, organizationID, quote.ClientID)
		if err != nil {
			return nil, err
		}
		doc := s.newDocument(org, client.ID, models.KindInvoice, number, nil)
		doc.Currency = quote.Currency
		doc.Notes = quote.Notes
		doc.SourceQuoteID = &quote.ID

		var fields []billing.ItemFields
		for _, item := range quote.Items {
			if !billing.Included(quote.Kind, item) {
				continue
			}
			f := billing.CopyItem(item)
			f.IsOptional = nil
			f.IsSelected = nil
			fields = append(fields, f)
		}
		if err := s.insert(ctx, q, doc, fields, org.DefaultTaxType); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// createNumbered allocates a number and runs build in one transaction,
// retrying with a fresh number when the insert hits a taken one.
func (s *BillingService) createNumbered(ctx context.Context, op, organizationID string, kind models.DocumentKind, origin string, build func(q database.Queries, number string) (*models.Document, error)) (*models.Document, error) {
	for attempt := 1; ; attempt++ {
		var doc *models.Document
		err := s.db.WithTx(ctx, func(q database.Queries) error {
			number, err := allocate(ctx, q, organizationID, kind, s.now().Year())
			if err != nil {
				return err
			}
			doc, err = build(q, number)
			return err
		})
		if err == nil {
			s.metrics.DocumentCreated(string(kind), origin)
			s.log.Info().
				Str("organization_id", organizationID).
				Str("document_id", doc.ID).
				Str("number", doc.Number).
				Str("origin", origin).
				Msg("document created")
			return doc, nil
		}
		if !errors.Is(err, database.ErrDuplicateNumber) {
			return nil, storeError(op, err)
		}
		if attempt == numberAttempts {
			return nil, billing.Conflict(op, "could not allocate a free %s number after %d attempts", kindName(kind), numberAttempts)
		}
		s.metrics.NumberRetry()
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("document number taken, retrying")
	}
}

func allocate(ctx context.Context, q database.Queries, organizationID string, kind models.DocumentKind, year int) (string, error) {
	seq, err := q.NextSequence(ctx, organizationID, kind.Prefix(), year)
	if err != nil {
		return "", fmt.Errorf("failed to allocate document number: %w", err)
	}
	return billing.FormatNumber(kind.Prefix(), year, seq), nil
}

func party(ctx context.Context, q database.Queries, op, organizationID, clientID string) (*models.Organization, *models.Client, error) {
	org, err := q.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if org == nil {
		return nil, nil, billing.NotFound(op, "organization %s does not exist", organizationID)
	}
	client, err := q.GetClient(ctx, clientID, organizationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get client: %w", err)
	}
	if client == nil {
		return nil, nil, billing.NotFound(op, "client %s does not exist", clientID)
	}
	return org, client, nil
}

func (s *BillingService) newDocument(org *models.Organization, clientID string, kind models.DocumentKind, number string, issueDate *time.Time) *models.Document {
	now := s.now()
	issue := startOfDay(now)
	if issueDate != nil {
		issue = *issueDate
	}
	doc := &models.Document{
		ID:             models.NewUUID(),
		OrganizationID: org.ID,
		ClientID:       clientID,
		Kind:           kind,
		Number:         number,
		Status:         models.StatusDraft,
		Currency:       org.Currency,
		Subtotal:       decimal.Zero,
		TaxAmount:      decimal.Zero,
		Total:          decimal.Zero,
		PaidAmount:     decimal.Zero,
		IssueDate:      issue,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch kind {
	case models.KindInvoice:
		due := issue.AddDate(0, 0, s.cfg.InvoiceDueDays)
		doc.DueDate = &due
	case models.KindQuote:
		valid := issue.AddDate(0, 0, s.cfg.QuoteValidDays)
		doc.ValidUntil = &valid
	}
	return doc
}

// insert computes the items of a new document, derives its totals and
// stores both.
func (s *BillingService) insert(ctx context.Context, q database.Queries, doc *models.Document, fields []billing.ItemFields, defaultTax models.TaxType) error {
	now := s.now()
	doc.Items = make([]*models.LineItem, 0, len(fields))
	for i, f := range fields {
		item, err := billing.NewLineItem(doc.Kind, f, defaultTax)
		if err != nil {
			return err
		}
		item.ID = models.NewUUID()
		item.DocumentID = doc.ID
		item.SortOrder = i
		item.CreatedAt = now
		item.UpdatedAt = now
		doc.Items = append(doc.Items, item)
	}
	recalculate(doc)

	if err := q.InsertDocument(ctx, doc); err != nil {
		return err
	}
	for _, item := range doc.Items {
		if err := q.SaveLineItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func shiftTerm(fromIssue time.Time, term *time.Time, toIssue time.Time) *time.Time {
	if term == nil {
		return nil
	}
	shifted := toIssue.Add(term.Sub(fromIssue))
	return &shifted
}
