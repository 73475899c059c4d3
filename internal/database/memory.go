package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/models"
)

type memoryState struct {
	orgs      map[string]models.Organization
	clients   map[string]models.Client
	entries   map[string]models.TimeEntry
	docs      map[string]models.Document
	items     map[string]models.LineItem
	sequences map[string]int
}

func newMemoryState() *memoryState {
	return &memoryState{
		orgs:      make(map[string]models.Organization),
		clients:   make(map[string]models.Client),
		entries:   make(map[string]models.TimeEntry),
		docs:      make(map[string]models.Document),
		items:     make(map[string]models.LineItem),
		sequences: make(map[string]int),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.orgs {
		c.orgs[k] = v
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.docs {
		c.docs[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// MemoryDB keeps everything in process. Transactions are serialized by one
// mutex and roll back by restoring a snapshot.
type MemoryDB struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{state: newMemoryState()}
}

func (m *MemoryDB) Close() error {
	return nil
}

func (m *MemoryDB) WithTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memoryQueries{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryDB) do(fn func(q *memoryQueries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memoryQueries{state: m.state})
}

func (m *MemoryDB) CreateOrganization(ctx context.Context, org *models.Organization) error {
	return m.do(func(q *memoryQueries) error { return q.CreateOrganization(ctx, org) })
}

func (m *MemoryDB) GetOrganization(ctx context.Context, id string) (org *models.Organization, err error) {
	err = m.do(func(q *memoryQueries) error { org, err = q.GetOrganization(ctx, id); return err })
	return org, err
}

func (m *MemoryDB) CreateClient(ctx context.Context, client *models.Client) error {
	return m.do(func(q *memoryQueries) error { return q.CreateClient(ctx, client) })
}

func (m *MemoryDB) GetClient(ctx context.Context, id, organizationID string) (client *models.Client, err error) {
	err = m.do(func(q *memoryQueries) error { client, err = q.GetClient(ctx, id, organizationID); return err })
	return client, err
}

func (m *MemoryDB) ListClients(ctx context.Context, organizationID string) (clients []*models.Client, err error) {
	err = m.do(func(q *memoryQueries) error { clients, err = q.ListClients(ctx, organizationID); return err })
	return clients, err
}

func (m *MemoryDB) UpdateClientStatus(ctx context.Context, clientID string, status models.ClientStatus, at time.Time) error {
	return m.do(func(q *memoryQueries) error { return q.UpdateClientStatus(ctx, clientID, status, at) })
}

func (m *MemoryDB) CreateTimeEntry(ctx context.Context, entry *models.TimeEntry) error {
	return m.do(func(q *memoryQueries) error { return q.CreateTimeEntry(ctx, entry) })
}

func (m *MemoryDB) FindUnbilledTimeEntries(ctx context.Context, clientID string) (entries []*models.TimeEntry, err error) {
	err = m.do(func(q *memoryQueries) error { entries, err = q.FindUnbilledTimeEntries(ctx, clientID); return err })
	return entries, err
}

func (m *MemoryDB) MarkTimeEntriesBilled(ctx context.Context, ids []string, invoiceID string, at time.Time) error {
	return m.do(func(q *memoryQueries) error { return q.MarkTimeEntriesBilled(ctx, ids, invoiceID, at) })
}

func (m *MemoryDB) InsertDocument(ctx context.Context, doc *models.Document) error {
	return m.do(func(q *memoryQueries) error { return q.InsertDocument(ctx, doc) })
}

func (m *MemoryDB) FindDocument(ctx context.Context, id, organizationID string) (doc *models.Document, err error) {
	err = m.do(func(q *memoryQueries) error { doc, err = q.FindDocument(ctx, id, organizationID); return err })
	return doc, err
}

func (m *MemoryDB) ListDocuments(ctx context.Context, organizationID string, kind models.DocumentKind) (docs []*models.Document, err error) {
	err = m.do(func(q *memoryQueries) error { docs, err = q.ListDocuments(ctx, organizationID, kind); return err })
	return docs, err
}

func (m *MemoryDB) FindDocumentsByStatus(ctx context.Context, organizationID string, kind models.DocumentKind, statuses []models.DocumentStatus) (docs []*models.Document, err error) {
	err = m.do(func(q *memoryQueries) error {
		docs, err = q.FindDocumentsByStatus(ctx, organizationID, kind, statuses)
		return err
	})
	return docs, err
}

func (m *MemoryDB) SaveDocument(ctx context.Context, doc *models.Document) error {
	return m.do(func(q *memoryQueries) error { return q.SaveDocument(ctx, doc) })
}

func (m *MemoryDB) FindLineItems(ctx context.Context, documentID string) (items []*models.LineItem, err error) {
	err = m.do(func(q *memoryQueries) error { items, err = q.FindLineItems(ctx, documentID); return err })
	return items, err
}

func (m *MemoryDB) FindLineItem(ctx context.Context, id string) (item *models.LineItem, err error) {
	err = m.do(func(q *memoryQueries) error { item, err = q.FindLineItem(ctx, id); return err })
	return item, err
}

func (m *MemoryDB) SaveLineItem(ctx context.Context, item *models.LineItem) error {
	return m.do(func(q *memoryQueries) error { return q.SaveLineItem(ctx, item) })
}

func (m *MemoryDB) DeleteLineItem(ctx context.Context, id string) error {
	return m.do(func(q *memoryQueries) error { return q.DeleteLineItem(ctx, id) })
}

func (m *MemoryDB) NextSequence(ctx context.Context, organizationID, prefix string, year int) (seq int, err error) {
	err = m.do(func(q *memoryQueries) error { seq, err = q.NextSequence(ctx, organizationID, prefix, year); return err })
	return seq, err
}

type memoryQueries struct {
	state *memoryState
}

func (q *memoryQueries) CreateOrganization(_ context.Context, org *models.Organization) error {
	if _, ok := q.state.orgs[org.ID]; ok {
		return fmt.Errorf("failed to create organization: %s already exists", org.ID)
	}
	q.state.orgs[org.ID] = *org
	return nil
}

func (q *memoryQueries) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	org, ok := q.state.orgs[id]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

func (q *memoryQueries) CreateClient(_ context.Context, client *models.Client) error {
	if _, ok := q.state.orgs[client.OrganizationID]; !ok {
		return fmt.Errorf("failed to create client: organization %s does not exist", client.OrganizationID)
	}
	q.state.clients[client.ID] = *client
	return nil
}

func (q *memoryQueries) GetClient(_ context.Context, id, organizationID string) (*models.Client, error) {
	client, ok := q.state.clients[id]
	if !ok || client.OrganizationID != organizationID {
		return nil, nil
	}
	return &client, nil
}

func (q *memoryQueries) ListClients(_ context.Context, organizationID string) ([]*models.Client, error) {
	var clients []*models.Client
	for _, c := range q.state.clients {
		if c.OrganizationID == organizationID {
			client := c
			clients = append(clients, &client)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
	return clients, nil
}

func (q *memoryQueries) UpdateClientStatus(_ context.Context, clientID string, status models.ClientStatus, at time.Time) error {
	client, ok := q.state.clients[clientID]
	if !ok {
		return fmt.Errorf("failed to update client status: client %s does not exist", clientID)
	}
	client.Status = status
	client.UpdatedAt = at
	q.state.clients[clientID] = client
	return nil
}

func (q *memoryQueries) CreateTimeEntry(_ context.Context, entry *models.TimeEntry) error {
	if _, ok := q.state.clients[entry.ClientID]; !ok {
		return fmt.Errorf("failed to create time entry: client %s does not exist", entry.ClientID)
	}
	q.state.entries[entry.ID] = *entry
	return nil
}

func (q *memoryQueries) FindUnbilledTimeEntries(_ context.Context, clientID string) ([]*models.TimeEntry, error) {
	var entries []*models.TimeEntry
	for _, e := range q.state.entries {
		if e.ClientID == clientID && e.Billable && !e.Billed {
			entry := e
			entries = append(entries, &entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartTime.Before(entries[j].StartTime) })
	return entries, nil
}

func (q *memoryQueries) MarkTimeEntriesBilled(_ context.Context, ids []string, invoiceID string, at time.Time) error {
	for _, id := range ids {
		entry, ok := q.state.entries[id]
		if !ok || entry.Billed {
			return fmt.Errorf("failed to mark time entry billed: %s is missing or already billed", id)
		}
		entry.Billed = true
		entry.InvoiceID = &invoiceID
		entry.BilledAt = &at
		entry.UpdatedAt = at
		q.state.entries[id] = entry
	}
	return nil
}

func (q *memoryQueries) InsertDocument(_ context.Context, doc *models.Document) error {
	for _, existing := range q.state.docs {
		if existing.OrganizationID == doc.OrganizationID && existing.Number == doc.Number {
			return fmt.Errorf("failed to insert document %s: %w", doc.Number, ErrDuplicateNumber)
		}
	}
	doc.Version = 1
	stored := *doc
	stored.Items = nil
	q.state.docs[doc.ID] = stored
	return nil
}

func (q *memoryQueries) FindDocument(_ context.Context, id, organizationID string) (*models.Document, error) {
	doc, ok := q.state.docs[id]
	if !ok || doc.OrganizationID != organizationID {
		return nil, nil
	}
	return &doc, nil
}

func (q *memoryQueries) ListDocuments(_ context.Context, organizationID string, kind models.DocumentKind) ([]*models.Document, error) {
	return q.filterDocuments(func(d models.Document) bool {
		return d.OrganizationID == organizationID && (kind == "" || d.Kind == kind)
	}), nil
}

func (q *memoryQueries) FindDocumentsByStatus(_ context.Context, organizationID string, kind models.DocumentKind, statuses []models.DocumentStatus) ([]*models.Document, error) {
	return q.filterDocuments(func(d models.Document) bool {
		return (organizationID == "" || d.OrganizationID == organizationID) &&
			d.Kind == kind && slices.Contains(statuses, d.Status)
	}), nil
}

func (q *memoryQueries) filterDocuments(keep func(models.Document) bool) []*models.Document {
	var docs []*models.Document
	for _, d := range q.state.docs {
		if keep(d) {
			doc := d
			docs = append(docs, &doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Number < docs[j].Number })
	return docs
}

func (q *memoryQueries) SaveDocument(_ context.Context, doc *models.Document) error {
	stored, ok := q.state.docs[doc.ID]
	if !ok {
		return fmt.Errorf("failed to save document: %s does not exist", doc.ID)
	}
	if stored.Version != doc.Version {
		return fmt.Errorf("failed to save document %s: %w", doc.Number, ErrVersionConflict)
	}
	doc.Version++
	updated := *doc
	updated.Items = nil
	q.state.docs[doc.ID] = updated
	return nil
}

func (q *memoryQueries) FindLineItems(_ context.Context, documentID string) ([]*models.LineItem, error) {
	var items []*models.LineItem
	for _, it := range q.state.items {
		if it.DocumentID == documentID {
			item := it
			items = append(items, &item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	return items, nil
}

func (q *memoryQueries) FindLineItem(_ context.Context, id string) (*models.LineItem, error) {
	item, ok := q.state.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (q *memoryQueries) SaveLineItem(_ context.Context, item *models.LineItem) error {
	if _, ok := q.state.docs[item.DocumentID]; !ok {
		return fmt.Errorf("failed to save line item: document %s does not exist", item.DocumentID)
	}
	q.state.items[item.ID] = *item
	return nil
}

func (q *memoryQueries) DeleteLineItem(_ context.Context, id string) error {
	delete(q.state.items, id)
	return nil
}

func (q *memoryQueries) NextSequence(_ context.Context, organizationID, prefix string, year int) (int, error) {
	key := fmt.Sprintf("%s|%s|%d", organizationID, prefix, year)
	var numbers []string
	for _, d := range q.state.docs {
		if d.OrganizationID == organizationID {
			numbers = append(numbers, d.Number)
		}
	}
	last := max(q.state.sequences[key], billing.HighestSequence(numbers, prefix, year))
	last++
	q.state.sequences[key] = last
	return last, nil
}
