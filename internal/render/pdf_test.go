package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/models"
)

func TestRenderProducesPDF(t *testing.T) {
	email := "ops@acme.test"
	notes := "Thanks for your business"
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	doc := &models.Document{
		Kind:          models.KindInvoice,
		Number:        "INV-2025-0001",
		Status:        models.StatusSent,
		Currency:      "EUR",
		IssueDate:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       &due,
		Subtotal:      decimal.NewFromInt(200),
		TaxAmount:     decimal.Zero,
		Total:         decimal.NewFromInt(200),
		PaidAmount:    decimal.NewFromInt(50),
		ReverseCharge: true,
		Notes:         &notes,
		Items: []*models.LineItem{{
			Description: "Consulting across several long days of very detailed analysis work",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   decimal.NewFromInt(100),
			TaxType:     models.TaxReverseCharge,
			TaxRate:     decimal.Zero,
			Subtotal:    decimal.NewFromInt(200),
			Total:       decimal.NewFromInt(200),
		}},
	}

	out, err := NewPDFRenderer().Render(
		&models.Organization{Name: "Studio"},
		&models.Client{Name: "Acme", Email: &email},
		doc,
	)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not look like a PDF: %q", out[:min(len(out), 16)])
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		number string
		want   string
	}{
		{"INV-2025-0001", "INV-2025-0001.pdf"},
		{"QUO 2025/7", "QUO_20257.pdf"},
		{"", "document.pdf"},
	}
	for _, tt := range tests {
		if got := FileName(&models.Document{Number: tt.number}); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.number, got, tt.want)
		}
	}
}

func TestWrapDescriptionText(t *testing.T) {
	lines := wrapDescriptionText("one two three four", 9)
	want := []string{"one two", "three", "four"}
	if len(lines) != len(want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
