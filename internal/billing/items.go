package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/models"
)

// ItemFields is a partial line item. Nil fields keep their prior value on update.
type ItemFields struct {
	Description *string          `json:"description,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	TaxType     *models.TaxType  `json:"tax_type,omitempty"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
	IsOptional  *bool            `json:"is_optional,omitempty"`
	IsSelected  *bool            `json:"is_selected,omitempty"`
	ServiceID   *string          `json:"service_id,omitempty"`
}

// NewLineItem builds a computed item for a document of kind. Items without a
// tax type use defaultTax.
func NewLineItem(kind models.DocumentKind, fields ItemFields, defaultTax models.TaxType) (*models.LineItem, error) {
	const op = "add item"
	if fields.Description == nil || strings.TrimSpace(*fields.Description) == "" {
		return nil, InvalidArgument(op, "description is required")
	}
	if fields.Quantity == nil {
		return nil, InvalidArgument(op, "quantity is required")
	}
	if fields.UnitPrice == nil {
		return nil, InvalidArgument(op, "unit price is required")
	}

	item := &models.LineItem{
		TaxType:    defaultTax,
		IsSelected: true,
	}
	if fields.TaxType == nil && fields.TaxRate == nil {
		fields.TaxType = &defaultTax
	}
	if err := mergeItem(op, kind, item, fields); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateLineItem applies fields to a copy of item and recomputes its amounts.
func UpdateLineItem(kind models.DocumentKind, item *models.LineItem, fields ItemFields) (*models.LineItem, error) {
	updated := *item
	if err := mergeItem("update item", kind, &updated, fields); err != nil {
		return nil, err
	}
	return &updated, nil
}

func mergeItem(op string, kind models.DocumentKind, item *models.LineItem, fields ItemFields) error {
	if fields.Description != nil {
		if strings.TrimSpace(*fields.Description) == "" {
			return InvalidArgument(op, "description must not be empty")
		}
		item.Description = *fields.Description
	}
	if fields.Quantity != nil {
		item.Quantity = *fields.Quantity
	}
	if fields.UnitPrice != nil {
		item.UnitPrice = *fields.UnitPrice
	}

	switch {
	case fields.TaxType != nil:
		if !ValidTaxType(*fields.TaxType) {
			return InvalidArgument(op, "unknown tax type %q", *fields.TaxType)
		}
		rate, err := ResolveTaxRate(*fields.TaxType, fields.TaxRate)
		if err != nil {
			return err
		}
		item.TaxType = *fields.TaxType
		item.TaxRate = rate
	case fields.TaxRate != nil:
		rate, err := ResolveTaxRate(item.TaxType, fields.TaxRate)
		if err != nil {
			return err
		}
		item.TaxRate = rate
	}

	if fields.IsOptional != nil || fields.IsSelected != nil {
		if kind == models.KindInvoice {
			return InvalidArgument(op, "invoice items cannot be optional or selectable")
		}
		if fields.IsOptional != nil {
			// An item turning optional starts unselected unless told otherwise.
			if !item.IsOptional && *fields.IsOptional && fields.IsSelected == nil {
				item.IsSelected = false
			}
			item.IsOptional = *fields.IsOptional
		}
		if fields.IsSelected != nil {
			item.IsSelected = *fields.IsSelected
		}
	}
	if fields.ServiceID != nil {
		item.ServiceID = fields.ServiceID
	}

	if err := ValidateLine(item.Quantity, item.UnitPrice); err != nil {
		return err
	}
	ComputeLine(item.Quantity, item.UnitPrice, item.TaxRate).Apply(item)
	return nil
}

// CopyItem returns the fields that reproduce item on another document.
func CopyItem(item *models.LineItem) ItemFields {
	fields := ItemFields{
		Description: &item.Description,
		Quantity:    &item.Quantity,
		UnitPrice:   &item.UnitPrice,
		TaxType:     &item.TaxType,
		TaxRate:     &item.TaxRate,
		ServiceID:   item.ServiceID,
	}
	if item.IsOptional {
		fields.IsOptional = &item.IsOptional
		fields.IsSelected = &item.IsSelected
	}
	return fields
}
