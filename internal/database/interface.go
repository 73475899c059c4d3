package database

import (
	"context"
	"errors"
	"time"

	"github.com/jesses-code-adventures/billing/internal/models"
)

var (
	// ErrVersionConflict is returned by SaveDocument when the stored version moved.
	ErrVersionConflict = errors.New("document was modified concurrently")
	// ErrDuplicateNumber is returned when a document number is already taken in the organization.
	ErrDuplicateNumber = errors.New("document number already exists")
)

// Queries is the storage surface the billing service needs. Lookups return
// nil, nil when a row does not exist.
type Queries interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)

	CreateClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, id, organizationID string) (*models.Client, error)
	ListClients(ctx context.Context, organizationID string) ([]*models.Client, error)
	UpdateClientStatus(ctx context.Context, clientID string, status models.ClientStatus, at time.Time) error

	CreateTimeEntry(ctx context.Context, entry *models.TimeEntry) error
	FindUnbilledTimeEntries(ctx context.Context, clientID string) ([]*models.TimeEntry, error)
	MarkTimeEntriesBilled(ctx context.Context, ids []string, invoiceID string, at time.Time) error

	InsertDocument(ctx context.Context, doc *models.Document) error
	FindDocument(ctx context.Context, id, organizationID string) (*models.Document, error)
	ListDocuments(ctx context.Context, organizationID string, kind models.DocumentKind) ([]*models.Document, error)
	// FindDocumentsByStatus searches every organization when organizationID is empty.
	FindDocumentsByStatus(ctx context.Context, organizationID string, kind models.DocumentKind, statuses []models.DocumentStatus) ([]*models.Document, error)
	// SaveDocument writes doc when its version still matches and bumps it.
	SaveDocument(ctx context.Context, doc *models.Document) error

	FindLineItems(ctx context.Context, documentID string) ([]*models.LineItem, error)
	FindLineItem(ctx context.Context, id string) (*models.LineItem, error)
	SaveLineItem(ctx context.Context, item *models.LineItem) error
	DeleteLineItem(ctx context.Context, id string) error

	// NextSequence atomically allocates the next number for (organization, prefix, year).
	// The counter never falls behind the highest number already stored.
	NextSequence(ctx context.Context, organizationID, prefix string, year int) (int, error)
}

type DB interface {
	Queries
	Close() error
	// WithTx runs fn in one transaction, committing when it returns nil.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
