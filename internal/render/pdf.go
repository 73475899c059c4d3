package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/models"
)

const reverseChargeNotice = "VAT reverse charged: the recipient is liable for the tax on this supply."

type Renderer interface {
	Render(org *models.Organization, client *models.Client, doc *models.Document) ([]byte, error)
}

type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

// FileName is the attachment name used for a rendered document.
func FileName(doc *models.Document) string {
	return sanitizeFileName(doc.Number) + ".pdf"
}

func (r *PDFRenderer) Render(org *models.Organization, client *models.Client, doc *models.Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("%s %s", title(doc.Kind), doc.Number), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(fmt.Sprintf("%s %s", title(doc.Kind), doc.Number)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	if org != nil {
		pdf.Cell(0, 6, tr(org.Name))
		pdf.Ln(8)
	}

	if client != nil {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 8, "Bill To:")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 11)
		pdf.Cell(95, 6, tr(client.Name))
		pdf.Ln(6)
		if client.ContactName != nil {
			pdf.Cell(95, 6, tr(*client.ContactName))
			pdf.Ln(6)
		}
		if email := client.Recipient(); email != "" {
			pdf.Cell(95, 6, tr(fmt.Sprintf("Email: %s", email)))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Issued: %s", doc.IssueDate.Format("2006-01-02")))
	pdf.Ln(6)
	if doc.DueDate != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Due: %s", doc.DueDate.Format("2006-01-02")))
		pdf.Ln(6)
	}
	if doc.ValidUntil != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Valid until: %s", doc.ValidUntil.Format("2006-01-02")))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", doc.Status))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(80, 8, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 8, "Unit price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 8, "Tax", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 8, "Total", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, item := range doc.Items {
		description := item.Description
		if item.IsOptional {
			if item.IsSelected {
				description += " (optional, selected)"
			} else {
				description += " (optional)"
			}
		}
		lines := wrapDescriptionText(tr(description), 48)
		rowHeight := float64(len(lines)) * 6
		if rowHeight < 6 {
			rowHeight = 6
		}

		x, y := pdf.GetX(), pdf.GetY()
		pdf.Rect(x, y, 80, rowHeight, "D")
		for i, line := range lines {
			pdf.SetXY(x+1, y+float64(i)*6)
			pdf.Cell(78, 6, line)
		}
		pdf.SetXY(x+80, y)
		pdf.CellFormat(20, rowHeight, item.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, rowHeight, money(doc.Currency, item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, rowHeight, item.TaxRate.String()+"%", "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, rowHeight, money(doc.Currency, item.Total), "1", 1, "R", false, 0, "")
	}

	pdf.Ln(5)
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(145, 8, "Subtotal:")
	pdf.CellFormat(45, 8, money(doc.Currency, doc.Subtotal), "", 1, "R", false, 0, "")
	pdf.Cell(145, 8, "Tax:")
	pdf.CellFormat(45, 8, money(doc.Currency, doc.TaxAmount), "", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(145, 10, "Total:")
	pdf.CellFormat(45, 10, money(doc.Currency, doc.Total), "", 1, "R", false, 0, "")

	if doc.Kind == models.KindInvoice && doc.PaidAmount.IsPositive() {
		pdf.SetFont("Arial", "", 11)
		pdf.Cell(145, 8, "Paid:")
		pdf.CellFormat(45, 8, money(doc.Currency, doc.PaidAmount), "", 1, "R", false, 0, "")
		pdf.Cell(145, 8, "Balance due:")
		pdf.CellFormat(45, 8, money(doc.Currency, decimal.Max(doc.Total.Sub(doc.PaidAmount), decimal.Zero)), "", 1, "R", false, 0, "")
	}

	if doc.ReverseCharge {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 6, reverseChargeNotice, "", "L", false)
	}

	if doc.Notes != nil && *doc.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 6, tr(*doc.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", doc.Number, err)
	}
	return buf.Bytes(), nil
}

func title(kind models.DocumentKind) string {
	if kind == models.KindQuote {
		return "Quote"
	}
	return "Invoice"
}

// money formats for display only; stored amounts stay unrounded.
func money(currency string, amount decimal.Decimal) string {
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}

func sanitizeFileName(fileName string) string {
	var b strings.Builder
	for _, r := range fileName {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}

func wrapDescriptionText(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		candidate := current
		if candidate != "" {
			candidate += " "
		}
		candidate += word

		if len(candidate) <= maxChars {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
		}
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

var _ Renderer = (*PDFRenderer)(nil)

