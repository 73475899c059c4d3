package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/config"
	"github.com/jesses-code-adventures/billing/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteDB struct {
	*sqlQueries
	conn *sql.DB
}

// Open returns the store selected by cfg.DatabaseDriver.
func Open(cfg *config.Config) (DB, error) {
	if cfg.DatabaseDriver == "memory" {
		return NewMemoryDB(), nil
	}
	return NewDB(cfg)
}

func NewDB(cfg *config.Config) (*SQLiteDB, error) {
	dsn := cfg.DatabaseURL
	if cfg.DatabaseDriver == "sqlite3" {
		dsn = sqliteDSN(dsn)
	}
	conn, err := sql.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.DatabaseDriver == "sqlite3" {
		// one writer; immediate transactions serialize read-modify-write
		conn.SetMaxOpenConns(1)
	}
	return &SQLiteDB{
		sqlQueries: &sqlQueries{q: conn},
		conn:       conn,
	}, nil
}

func sqliteDSN(dsn string) string {
	params := []string{"_txlock=immediate", "_foreign_keys=on", "_busy_timeout=5000"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *SQLiteDB) Close() error {
	return s.conn.Close()
}

func (s *SQLiteDB) GetConnection() *sql.DB {
	return s.conn
}

func (s *SQLiteDB) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqlQueries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Migrate applies the embedded migrations that have not run yet, in file order.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := strings.TrimSuffix(strings.TrimPrefix(file, "migrations/"), ".sql")
		var applied int
		if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", version, err)
		}
		err = s.WithTx(ctx, func(q Queries) error {
			sq := q.(*sqlQueries)
			if _, err := sq.q.ExecContext(ctx, string(content)); err != nil {
				return err
			}
			_, err := sq.q.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", version, err)
		}
	}
	return nil
}

type sqlQueries struct {
	q querier
}

func (s *sqlQueries) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO organizations (id, name, currency, default_tax_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.Currency, org.DefaultTaxType, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (s *sqlQueries) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, currency, default_tax_type, created_at, updated_at FROM organizations WHERE id = ?`, id).
		Scan(&org.ID, &org.Name, &org.Currency, &org.DefaultTaxType, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

const clientColumns = `id, organization_id, name, status, email, contact_name, contact_email, created_at, updated_at`

func (s *sqlQueries) CreateClient(ctx context.Context, client *models.Client) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID, client.OrganizationID, client.Name, client.Status,
		ptrToNullString(client.Email), ptrToNullString(client.ContactName), ptrToNullString(client.ContactEmail),
		client.CreatedAt, client.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *sqlQueries) GetClient(ctx context.Context, id, organizationID string) (*models.Client, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ? AND organization_id = ?`, id, organizationID)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

func (s *sqlQueries) ListClients(ctx context.Context, organizationID string) ([]*models.Client, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE organization_id = ? ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *sqlQueries) UpdateClientStatus(ctx context.Context, clientID string, status models.ClientStatus, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE clients SET status = ?, updated_at = ? WHERE id = ?`, status, at, clientID)
	if err != nil {
		return fmt.Errorf("failed to update client status: %w", err)
	}
	return nil
}

const timeEntryColumns = `id, organization_id, client_id, project_id, project_name, description, start_time,
	duration_minutes, billable, billed, invoice_id, billed_at, created_at, updated_at`

func (s *sqlQueries) CreateTimeEntry(ctx context.Context, entry *models.TimeEntry) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO time_entries (`+timeEntryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrganizationID, entry.ClientID,
		ptrToNullString(entry.ProjectID), ptrToNullString(entry.ProjectName), ptrToNullString(entry.Description),
		entry.StartTime, entry.DurationMinutes, entry.Billable, entry.Billed,
		ptrToNullString(entry.InvoiceID), ptrToNullTime(entry.BilledAt), entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create time entry: %w", err)
	}
	return nil
}

func (s *sqlQueries) FindUnbilledTimeEntries(ctx context.Context, clientID string) ([]*models.TimeEntry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries
		 WHERE client_id = ? AND billable = 1 AND billed = 0
		 ORDER BY start_time`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find unbilled time entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.TimeEntry
	for rows.Next() {
		var e models.TimeEntry
		var projectID, projectName, description, invoiceID sql.NullString
		var billedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ClientID, &projectID, &projectName, &description,
			&e.StartTime, &e.DurationMinutes, &e.Billable, &e.Billed, &invoiceID, &billedAt,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		e.ProjectID = nullStringToPtr(projectID)
		e.ProjectName = nullStringToPtr(projectName)
		e.Description = nullStringToPtr(description)
		e.InvoiceID = nullStringToPtr(invoiceID)
		e.BilledAt = nullTimeToPtr(billedAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *sqlQueries) MarkTimeEntriesBilled(ctx context.Context, ids []string, invoiceID string, at time.Time) error {
	for _, id := range ids {
		res, err := s.q.ExecContext(ctx,
			`UPDATE time_entries SET billed = 1, invoice_id = ?, billed_at = ?, updated_at = ? WHERE id = ? AND billed = 0`,
			invoiceID, at, at, id)
		if err != nil {
			return fmt.Errorf("failed to mark time entry billed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("failed to mark time entry billed: %s is missing or already billed", id)
		}
	}
	return nil
}

const documentColumns = `id, organization_id, client_id, kind, number, status, currency, subtotal, tax_amount, total,
	reverse_charge, notes, issue_date, due_date, valid_until, sent_at, viewed_at, accepted_at, rejected_at, paid_at,
	paid_amount, portal_visible, source_quote_id, version, created_at, updated_at`

func (s *sqlQueries) InsertDocument(ctx context.Context, doc *models.Document) error {
	doc.Version = 1
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OrganizationID, doc.ClientID, doc.Kind, doc.Number, doc.Status, doc.Currency,
		doc.Subtotal, doc.TaxAmount, doc.Total, doc.ReverseCharge, ptrToNullString(doc.Notes), doc.IssueDate,
		ptrToNullTime(doc.DueDate), ptrToNullTime(doc.ValidUntil), ptrToNullTime(doc.SentAt), ptrToNullTime(doc.ViewedAt),
		ptrToNullTime(doc.AcceptedAt), ptrToNullTime(doc.RejectedAt), ptrToNullTime(doc.PaidAt),
		doc.PaidAmount, doc.PortalVisible, ptrToNullString(doc.SourceQuoteID), doc.Version, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert document %s: %w", doc.Number, ErrDuplicateNumber)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *sqlQueries) FindDocument(ctx context.Context, id, organizationID string) (*models.Document, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND organization_id = ?`, id, organizationID)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return doc, nil
}

func (s *sqlQueries) ListDocuments(ctx context.Context, organizationID string, kind models.DocumentKind) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE organization_id = ?`
	args := []any{organizationID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	return s.queryDocuments(ctx, query+` ORDER BY number`, args...)
}

func (s *sqlQueries) FindDocumentsByStatus(ctx context.Context, organizationID string, kind models.DocumentKind, statuses []models.DocumentStatus) ([]*models.Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := `SELECT ` + documentColumns + ` FROM documents WHERE kind = ? AND status IN (` + placeholders + `)`
	args := []any{kind}
	for _, st := range statuses {
		args = append(args, st)
	}
	if organizationID != "" {
		query += ` AND organization_id = ?`
		args = append(args, organizationID)
	}
	return s.queryDocuments(ctx, query+` ORDER BY number`, args...)
}

func (s *sqlQueries) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *sqlQueries) SaveDocument(ctx context.Context, doc *models.Document) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE documents SET
			status = ?, subtotal = ?, tax_amount = ?, total = ?, reverse_charge = ?, notes = ?,
			issue_date = ?, due_date = ?, valid_until = ?, sent_at = ?, viewed_at = ?, accepted_at = ?,
			rejected_at = ?, paid_at = ?, paid_amount = ?, portal_visible = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		doc.Status, doc.Subtotal, doc.TaxAmount, doc.Total, doc.ReverseCharge, ptrToNullString(doc.Notes),
		doc.IssueDate, ptrToNullTime(doc.DueDate), ptrToNullTime(doc.ValidUntil), ptrToNullTime(doc.SentAt),
		ptrToNullTime(doc.ViewedAt), ptrToNullTime(doc.AcceptedAt), ptrToNullTime(doc.RejectedAt),
		ptrToNullTime(doc.PaidAt), doc.PaidAmount, doc.PortalVisible, doc.UpdatedAt,
		doc.ID, doc.Version)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to save document %s: %w", doc.Number, ErrVersionConflict)
	}
	doc.Version++
	return nil
}

const lineItemColumns = `id, document_id, description, quantity, unit_price, tax_type, tax_rate, subtotal, tax_amount,
	total, sort_order, is_optional, is_selected, service_id, created_at, updated_at`

func (s *sqlQueries) FindLineItems(ctx context.Context, documentID string) ([]*models.LineItem, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+lineItemColumns+` FROM line_items WHERE document_id = ? ORDER BY sort_order`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find line items: %w", err)
	}
	defer rows.Close()

	var items []*models.LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *sqlQueries) FindLineItem(ctx context.Context, id string) (*models.LineItem, error) {
	item, err := scanLineItem(s.q.QueryRowContext(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find line item: %w", err)
	}
	return item, nil
}

func (s *sqlQueries) SaveLineItem(ctx context.Context, item *models.LineItem) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO line_items (`+lineItemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			description = excluded.description, quantity = excluded.quantity, unit_price = excluded.unit_price,
			tax_type = excluded.tax_type, tax_rate = excluded.tax_rate, subtotal = excluded.subtotal,
			tax_amount = excluded.tax_amount, total = excluded.total, sort_order = excluded.sort_order,
			is_optional = excluded.is_optional, is_selected = excluded.is_selected,
			service_id = excluded.service_id, updated_at = excluded.updated_at`,
		item.ID, item.DocumentID, item.Description, item.Quantity, item.UnitPrice, item.TaxType, item.TaxRate,
		item.Subtotal, item.TaxAmount, item.Total, item.SortOrder, item.IsOptional, item.IsSelected,
		ptrToNullString(item.ServiceID), item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save line item: %w", err)
	}
	return nil
}

func (s *sqlQueries) DeleteLineItem(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM line_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	return nil
}

func (s *sqlQueries) NextSequence(ctx context.Context, organizationID, prefix string, year int) (int, error) {
	seed, err := s.highestNumber(ctx, organizationID, prefix, year)
	if err != nil {
		return 0, err
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO document_sequences (organization_id, prefix, year, last_value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (organization_id, prefix, year) DO UPDATE SET last_value = MAX(last_value, excluded.last_value)`,
		organizationID, prefix, year, seed); err != nil {
		return 0, fmt.Errorf("failed to seed sequence: %w", err)
	}

	var next int
	if err := s.q.QueryRowContext(ctx,
		`UPDATE document_sequences SET last_value = last_value + 1
		 WHERE organization_id = ? AND prefix = ? AND year = ?
		 RETURNING last_value`,
		organizationID, prefix, year).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}
	return next, nil
}

func (s *sqlQueries) highestNumber(ctx context.Context, organizationID, prefix string, year int) (int, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT number FROM documents WHERE organization_id = ? AND number LIKE ?`,
		organizationID, billing.NumberPattern(prefix, year)+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to read existing numbers: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to scan number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return billing.HighestSequence(numbers, prefix, year), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*models.Client, error) {
	var c models.Client
	var email, contactName, contactEmail sql.NullString
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Status, &email, &contactName, &contactEmail,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Email = nullStringToPtr(email)
	c.ContactName = nullStringToPtr(contactName)
	c.ContactEmail = nullStringToPtr(contactEmail)
	return &c, nil
}

func scanDocument(row scanner) (*models.Document, error) {
	var d models.Document
	var notes, sourceQuoteID sql.NullString
	var dueDate, validUntil, sentAt, viewedAt, acceptedAt, rejectedAt, paidAt sql.NullTime
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.ClientID, &d.Kind, &d.Number, &d.Status, &d.Currency,
		&d.Subtotal, &d.TaxAmount, &d.Total, &d.ReverseCharge, &notes, &d.IssueDate, &dueDate, &validUntil,
		&sentAt, &viewedAt, &acceptedAt, &rejectedAt, &paidAt, &d.PaidAmount, &d.PortalVisible, &sourceQuoteID,
		&d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Notes = nullStringToPtr(notes)
	d.SourceQuoteID = nullStringToPtr(sourceQuoteID)
	d.DueDate = nullTimeToPtr(dueDate)
	d.ValidUntil = nullTimeToPtr(validUntil)
	d.SentAt = nullTimeToPtr(sentAt)
	d.ViewedAt = nullTimeToPtr(viewedAt)
	d.AcceptedAt = nullTimeToPtr(acceptedAt)
	d.RejectedAt = nullTimeToPtr(rejectedAt)
	d.PaidAt = nullTimeToPtr(paidAt)
	return &d, nil
}

func scanLineItem(row scanner) (*models.LineItem, error) {
	var it models.LineItem
	var serviceID sql.NullString
	if err := row.Scan(&it.ID, &it.DocumentID, &it.Description, &it.Quantity, &it.UnitPrice, &it.TaxType,
		&it.TaxRate, &it.Subtotal, &it.TaxAmount, &it.Total, &it.SortOrder, &it.IsOptional, &it.IsSelected,
		&serviceID, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.ServiceID = nullStringToPtr(serviceID)
	return &it, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func nullStringToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func ptrToNullString(s *string) sql.NullString {
	if s != nil {
		return sql.NullString{String: *s, Valid: true}
	}
	return sql.NullString{Valid: false}
}

func ptrToNullTime(t *time.Time) sql.NullTime {
	if t != nil {
		return sql.NullTime{Time: *t, Valid: true}
	}
	return sql.NullTime{Valid: false}
}
