package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DocumentKind string

const (
	KindQuote   DocumentKind = "QUOTE"
	KindInvoice DocumentKind = "INVOICE"
)

// Prefix is the document number prefix for the kind.
func (k DocumentKind) Prefix() string {
	switch k {
	case KindQuote:
		return "QUO"
	case KindInvoice:
		return "INV"
	default:
		return ""
	}
}

func (k DocumentKind) Valid() bool {
	return k == KindQuote || k == KindInvoice
}

type DocumentStatus string

const (
	StatusDraft         DocumentStatus = "DRAFT"
	StatusFinalized     DocumentStatus = "FINALIZED"
	StatusSent          DocumentStatus = "SENT"
	StatusViewed        DocumentStatus = "VIEWED"
	StatusPartiallyPaid DocumentStatus = "PARTIALLY_PAID"
	StatusPaid          DocumentStatus = "PAID"
	StatusOverdue       DocumentStatus = "OVERDUE"
	StatusCancelled     DocumentStatus = "CANCELLED"
	StatusRefunded      DocumentStatus = "REFUNDED"
	StatusAccepted      DocumentStatus = "ACCEPTED"
	StatusRejected      DocumentStatus = "REJECTED"
	StatusExpired       DocumentStatus = "EXPIRED"
)

type TaxType string

const (
	TaxStandard      TaxType = "STANDARD"
	TaxReduced       TaxType = "REDUCED"
	TaxZero          TaxType = "ZERO"
	TaxReverseCharge TaxType = "REVERSE_CHARGE"
	TaxExempt        TaxType = "EXEMPT"
)

type ClientStatus string

const (
	ClientLead     ClientStatus = "LEAD"
	ClientProspect ClientStatus = "PROSPECT"
	ClientClient   ClientStatus = "CLIENT"
	ClientArchived ClientStatus = "ARCHIVED"
)

type Organization struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Currency       string    `json:"currency" db:"currency"`
	DefaultTaxType TaxType   `json:"default_tax_type" db:"default_tax_type"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type Client struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	Name           string       `json:"name" db:"name"`
	Status         ClientStatus `json:"status" db:"status"`
	Email          *string      `json:"email,omitempty" db:"email"`
	ContactName    *string      `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail   *string      `json:"contact_email,omitempty" db:"contact_email"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// Recipient returns the address billing mail goes to, preferring the contact.
func (c *Client) Recipient() string {
	if c.ContactEmail != nil && *c.ContactEmail != "" {
		return *c.ContactEmail
	}
	if c.Email != nil {
		return *c.Email
	}
	return ""
}

type TimeEntry struct {
	ID              string     `json:"id" db:"id"`
	OrganizationID  string     `json:"organization_id" db:"organization_id"`
	ClientID        string     `json:"client_id" db:"client_id"`
	ProjectID       *string    `json:"project_id,omitempty" db:"project_id"`
	ProjectName     *string    `json:"project_name,omitempty" db:"project_name"`
	Description     *string    `json:"description,omitempty" db:"description"`
	StartTime       time.Time  `json:"start_time" db:"start_time"`
	DurationMinutes int64      `json:"duration_minutes" db:"duration_minutes"`
	Billable        bool       `json:"billable" db:"billable"`
	Billed          bool       `json:"billed" db:"billed"`
	InvoiceID       *string    `json:"invoice_id,omitempty" db:"invoice_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	BilledAt        *time.Time `json:"billed_at,omitempty" db:"billed_at"`
}

// HoursPlaces is the precision billed hours are rounded to.
const HoursPlaces = 2

// HoursFromMinutes converts minutes to hours rounded half away from zero to
// HoursPlaces, so 20 minutes bill as 0.33.
func HoursFromMinutes(minutes int64) decimal.Decimal {
	return decimal.NewFromInt(minutes).DivRound(decimal.NewFromInt(60), HoursPlaces)
}

// Hours is the entry duration in billed hours.
func (t *TimeEntry) Hours() decimal.Decimal {
	return HoursFromMinutes(t.DurationMinutes)
}

type Document struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	ClientID       string          `json:"client_id" db:"client_id"`
	Kind           DocumentKind    `json:"kind" db:"kind"`
	Number         string          `json:"number" db:"number"`
	Status         DocumentStatus  `json:"status" db:"status"`
	Currency       string          `json:"currency" db:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	Total          decimal.Decimal `json:"total" db:"total"`
	ReverseCharge  bool            `json:"reverse_charge" db:"reverse_charge"`
	Notes          *string         `json:"notes,omitempty" db:"notes"`
	IssueDate      time.Time       `json:"issue_date" db:"issue_date"`
	DueDate        *time.Time      `json:"due_date,omitempty" db:"due_date"`
	ValidUntil     *time.Time      `json:"valid_until,omitempty" db:"valid_until"`
	SentAt         *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	ViewedAt       *time.Time      `json:"viewed_at,omitempty" db:"viewed_at"`
	AcceptedAt     *time.Time      `json:"accepted_at,omitempty" db:"accepted_at"`
	RejectedAt     *time.Time      `json:"rejected_at,omitempty" db:"rejected_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	PaidAmount     decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	PortalVisible  bool            `json:"portal_visible" db:"portal_visible"`
	SourceQuoteID  *string         `json:"source_quote_id,omitempty" db:"source_quote_id"`
	Version        int64           `json:"version" db:"version"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`

	Items []*LineItem `json:"items,omitempty" db:"-"`
}

type LineItem struct {
	ID          string          `json:"id" db:"id"`
	DocumentID  string          `json:"document_id" db:"document_id"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TaxType     TaxType         `json:"tax_type" db:"tax_type"`
	TaxRate     decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	Subtotal    decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	Total       decimal.Decimal `json:"total" db:"total"`
	SortOrder   int             `json:"sort_order" db:"sort_order"`
	IsOptional  bool            `json:"is_optional" db:"is_optional"`
	IsSelected  bool            `json:"is_selected" db:"is_selected"`
	ServiceID   *string         `json:"service_id,omitempty" db:"service_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

func NewUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}
