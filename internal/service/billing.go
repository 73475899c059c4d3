package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/config"
	"github.com/jesses-code-adventures/billing/internal/database"
	"github.com/jesses-code-adventures/billing/internal/logger"
	"github.com/jesses-code-adventures/billing/internal/metrics"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/notify"
	"github.com/jesses-code-adventures/billing/internal/render"
)

// numberAttempts bounds retries when a generated number collides.
const numberAttempts = 3

type BillingService struct {
	db       database.DB
	cfg      *config.Config
	now      func() time.Time
	mailer   notify.Mailer
	renderer render.Renderer
	metrics  *metrics.BillingMetrics
	log      zerolog.Logger
}

type Option func(*BillingService)

func WithClock(now func() time.Time) Option {
	return func(s *BillingService) { s.now = now }
}

func WithMailer(m notify.Mailer) Option {
	return func(s *BillingService) { s.mailer = m }
}

func WithRenderer(r render.Renderer) Option {
	return func(s *BillingService) { s.renderer = r }
}

func WithMetrics(m *metrics.BillingMetrics) Option {
	return func(s *BillingService) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *BillingService) { s.log = l }
}

func NewBillingService(db database.DB, cfg *config.Config, opts ...Option) *BillingService {
	s := &BillingService{
		db:       db,
		cfg:      cfg,
		now:      time.Now,
		renderer: render.NewPDFRenderer(),
		log:      logger.WithComponent("billing"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = notify.New(cfg, s.log)
	}
	return s
}

// load fetches a document of the organization with its items in sort order.
func load(ctx context.Context, q database.Queries, op, organizationID, documentID string) (*models.Document, error) {
	doc, err := q.FindDocument(ctx, documentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, billing.NotFound(op, "document %s does not exist", documentID)
	}
	items, err := q.FindLineItems(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	doc.Items = items
	return doc, nil
}

func loadKind(ctx context.Context, q database.Queries, op, organizationID, documentID string, kind models.DocumentKind) (*models.Document, error) {
	doc, err := load(ctx, q, op, organizationID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Kind != kind {
		return nil, billing.NotFound(op, "%s %s does not exist", kindName(kind), documentID)
	}
	return doc, nil
}

// mutate loads a document, applies fn and writes the document back in one
// transaction. A concurrent writer surfaces as a Conflict.
func (s *BillingService) mutate(ctx context.Context, op, organizationID, documentID string, fn func(q database.Queries, doc *models.Document) error) (*models.Document, error) {
	var out *models.Document
	err := s.db.WithTx(ctx, func(q database.Queries) error {
		doc, err := load(ctx, q, op, organizationID, documentID)
		if err != nil {
			return err
		}
		if err := fn(q, doc); err != nil {
			return err
		}
		doc.UpdatedAt = s.now()
		if err := q.SaveDocument(ctx, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, storeError(op, err)
	}
	return out, nil
}

// storeError maps storage sentinels onto billing error kinds.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrVersionConflict):
		return billing.Conflict(op, "document was modified concurrently, reload and retry")
	case errors.Is(err, database.ErrDuplicateNumber):
		return billing.Conflict(op, "document number already taken")
	}
	return err
}

func requireEditable(op string, doc *models.Document) error {
	if !billing.Editable(doc) {
		return billing.InvalidState(op, "%s %s is %s and can no longer be edited",
			kindName(doc.Kind), doc.Number, doc.Status)
	}
	return nil
}

func recalculate(doc *models.Document) {
	billing.SumTotals(doc.Kind, doc.Items).Apply(doc)
}

func kindName(kind models.DocumentKind) string {
	if kind == models.KindQuote {
		return "quote"
	}
	return "invoice"
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
