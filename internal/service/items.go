package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/database"
	"github.com/jesses-code-adventures/billing/internal/models"
)

// selectableStatuses are the quote statuses in which a client may still pick
// optional items.
var selectableStatuses = []models.DocumentStatus{
	models.StatusDraft,
	models.StatusFinalized,
	models.StatusSent,
	models.StatusViewed,
}

// AddItem appends an item to a DRAFT document and recalculates its totals.
func (s *BillingService) AddItem(ctx context.Context, organizationID, documentID string, fields billing.ItemFields) (*models.LineItem, error) {
	const op = "add item"
	var added *models.LineItem
	_, err := s.mutate(ctx, op, organizationID, documentID, func(q database.Queries, doc *models.Document) error {
		if err := requireEditable(op, doc); err != nil {
			return err
		}
		org, err := q.GetOrganization(ctx, organizationID)
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return billing.NotFound(op, "organization %s does not exist", organizationID)
		}

		item, err := billing.NewLineItem(doc.Kind, fields, org.DefaultTaxType)
		if err != nil {
			return err
		}
		now := s.now()
		item.ID = models.NewUUID()
		item.DocumentID = doc.ID
		item.SortOrder = billing.NextSortOrder(doc.Items)
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := q.SaveLineItem(ctx, item); err != nil {
			return err
		}

		doc.Items = append(doc.Items, item)
		recalculate(doc)
		added = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// UpdateItem applies a partial update. Unset fields keep their value.
func (s *BillingService) UpdateItem(ctx context.Context, organizationID, itemID string, fields billing.ItemFields) (*models.LineItem, error) {
	const op = "update item"
	return s.changeItem(ctx, op, organizationID, itemID, func(doc *models.Document, item *models.LineItem) (*models.LineItem, error) {
		if err := requireEditable(op, doc); err != nil {
			return nil, err
		}
		return billing.UpdateLineItem(doc.Kind, item, fields)
	})
}

// SetItemSelected includes or excludes an optional quote item. Quotes stay
// selectable until the client answers them.
func (s *BillingService) SetItemSelected(ctx context.Context, organizationID, itemID string, selected bool) (*models.LineItem, error) {
	const op = "select item"
	return s.changeItem(ctx, op, organizationID, itemID, func(doc *models.Document, item *models.LineItem) (*models.LineItem, error) {
		if doc.Kind != models.KindQuote {
			return nil, billing.InvalidArgument(op, "only quote items can be selected")
		}
		if !item.IsOptional {
			return nil, billing.InvalidArgument(op, "item %s is not optional", item.ID)
		}
		if !slices.Contains(selectableStatuses, doc.Status) {
			return nil, billing.InvalidState(op, "quote %s is %s and its selection is closed", doc.Number, doc.Status)
		}
		return billing.UpdateLineItem(doc.Kind, item, billing.ItemFields{IsSelected: &selected})
	})
}

func (s *BillingService) RemoveItem(ctx context.Context, organizationID, itemID string) error {
	const op = "remove item"
	item, err := s.db.FindLineItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to find line item: %w", err)
	}
	if item == nil {
		return billing.NotFound(op, "line item %s does not exist", itemID)
	}

	_, err = s.mutate(ctx, op, organizationID, item.DocumentID, func(q database.Queries, doc *models.Document) error {
		if err := requireEditable(op, doc); err != nil {
			return err
		}
		idx := slices.IndexFunc(doc.Items, func(it *models.LineItem) bool { return it.ID == itemID })
		if idx < 0 {
			return billing.NotFound(op, "line item %s does not exist", itemID)
		}
		if err := q.DeleteLineItem(ctx, itemID); err != nil {
			return err
		}
		doc.Items = slices.Delete(doc.Items, idx, idx+1)
		recalculate(doc)
		return nil
	})
	return notFoundAsItem(op, itemID, err)
}

// RecalculateTotals re-sums the included items and overwrites the document totals.
func (s *BillingService) RecalculateTotals(ctx context.Context, organizationID, documentID string) (*models.Document, error) {
	return s.mutate(ctx, "recalculate totals", organizationID, documentID, func(_ database.Queries, doc *models.Document) error {
		recalculate(doc)
		return nil
	})
}

// changeItem resolves the item's document, lets change produce the new item
// and stores it with recalculated totals in one transaction.
func (s *BillingService) changeItem(ctx context.Context, op, organizationID, itemID string, change func(doc *models.Document, item *models.LineItem) (*models.LineItem, error)) (*models.LineItem, error) {
	found, err := s.db.FindLineItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to find line item: %w", err)
	}
	if found == nil {
		return nil, billing.NotFound(op, "line item %s does not exist", itemID)
	}

	var updated *models.LineItem
	_, err = s.mutate(ctx, op, organizationID, found.DocumentID, func(q database.Queries, doc *models.Document) error {
		idx := slices.IndexFunc(doc.Items, func(it *models.LineItem) bool { return it.ID == itemID })
		if idx < 0 {
			return billing.NotFound(op, "line item %s does not exist", itemID)
		}
		item, err := change(doc, doc.Items[idx])
		if err != nil {
			return err
		}
		item.UpdatedAt = s.now()
		if err := q.SaveLineItem(ctx, item); err != nil {
			return err
		}
		doc.Items[idx] = item
		recalculate(doc)
		updated = item
		return nil
	})
	if err != nil {
		return nil, notFoundAsItem(op, itemID, err)
	}
	return updated, nil
}

// notFoundAsItem reports a document outside the organization as a missing item.
func notFoundAsItem(op, itemID string, err error) error {
	if err == nil {
		return nil
	}
	if billing.KindOf(err) == billing.ErrNotFound {
		return billing.NotFound(op, "line item %s does not exist", itemID)
	}
	return err
}
