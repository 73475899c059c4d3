package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/utils"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

func parseDecimal(name, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, fmt.Errorf("--%s is required", name)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDateTime accepts "YYYY-MM-DD HH:MM" or a bare date.
func parseDateTime(value string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateTimeLayout, value, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid start time %q, expected YYYY-MM-DD HH:MM", value)
}

// parseItemSpec reads "description|quantity|unit price[|tax type][|optional]".
func parseItemSpec(spec string) (billing.ItemFields, error) {
	parts := strings.Split(spec, "|")
	if len(parts) < 3 {
		return billing.ItemFields{}, fmt.Errorf("invalid item %q, expected description|quantity|price", spec)
	}
	quantity, err := parseDecimal("quantity", parts[1])
	if err != nil {
		return billing.ItemFields{}, err
	}
	price, err := parseDecimal("price", parts[2])
	if err != nil {
		return billing.ItemFields{}, err
	}
	fields := billing.ItemFields{
		Description: utils.ToPtr(strings.TrimSpace(parts[0])),
		Quantity:    &quantity,
		UnitPrice:   &price,
	}
	for _, extra := range parts[3:] {
		switch extra = strings.TrimSpace(extra); {
		case strings.EqualFold(extra, "optional"):
			fields.IsOptional = utils.ToPtr(true)
		case extra != "":
			fields.TaxType = utils.ToPtr(models.TaxType(strings.ToUpper(extra)))
		}
	}
	return fields, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatMinutes(minutes int64) string {
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

func describeItem(item *models.LineItem) string {
	desc := fmt.Sprintf("%s, %s x %s, %s %s%% = %s",
		item.Description, item.Quantity, money(item.UnitPrice), item.TaxType, item.TaxRate, money(item.Total))
	if item.IsOptional {
		if item.IsSelected {
			desc += " (optional, selected)"
		} else {
			desc += " (optional, not selected)"
		}
	}
	return desc
}

func printDocumentRow(doc *models.Document) {
	fmt.Printf("%s - %s - %s - %s %s - %s\n",
		doc.ID, doc.Number, doc.Status, doc.Currency, money(doc.Total), doc.IssueDate.Format(dateLayout))
}

func printDocument(doc *models.Document) {
	fmt.Printf("%s %s (%s)\n", strings.ToUpper(kindNoun(doc.Kind)[:1])+kindNoun(doc.Kind)[1:], doc.Number, doc.Status)
	fmt.Printf("  ID: %s\n", doc.ID)
	fmt.Printf("  Client: %s\n", doc.ClientID)
	fmt.Printf("  Issued: %s\n", doc.IssueDate.Format(dateLayout))
	if doc.DueDate != nil {
		fmt.Printf("  Due: %s\n", doc.DueDate.Format(dateLayout))
	}
	if doc.ValidUntil != nil {
		fmt.Printf("  Valid until: %s\n", doc.ValidUntil.Format(dateLayout))
	}
	if doc.SourceQuoteID != nil {
		fmt.Printf("  From quote: %s\n", *doc.SourceQuoteID)
	}

	if len(doc.Items) == 0 {
		fmt.Println("  No line items.")
	} else {
		fmt.Println("  Items:")
		for _, item := range doc.Items {
			fmt.Printf("    %s  %s\n", item.ID, describeItem(item))
		}
	}

	fmt.Printf("  Subtotal: %s %s\n", doc.Currency, money(doc.Subtotal))
	fmt.Printf("  Tax: %s %s\n", doc.Currency, money(doc.TaxAmount))
	fmt.Printf("  Total: %s %s\n", doc.Currency, money(doc.Total))
	if doc.Kind == models.KindInvoice {
		fmt.Printf("  Paid: %s %s\n", doc.Currency, money(doc.PaidAmount))
	}
	if doc.ReverseCharge {
		fmt.Println("  VAT reverse charge applies.")
	}
	if doc.Notes != nil {
		fmt.Printf("  Notes: %s\n", *doc.Notes)
	}
}
