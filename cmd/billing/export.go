package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/models"
)

func newDocumentExportCmd(a *app, kind models.DocumentKind) *cobra.Command {
	var fromDate, toDate, status, output string
	noun := kindNoun(kind)

	cmd := &cobra.Command{
		Use:   "export",
		Short: fmt.Sprintf("Export %ss to CSV", noun),
		Long:  fmt.Sprintf("Export %ss with their totals to CSV. Supports optional issue date and status filtering.", noun),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			from, err := parseOptionalDate(fromDate)
			if err != nil {
				return err
			}
			to, err := parseOptionalDate(toDate)
			if err != nil {
				return err
			}
			return exportDocuments(cmd.Context(), a, orgID, kind, exportFilter{
				from:   from,
				to:     to,
				status: models.DocumentStatus(strings.ToUpper(status)),
			}, output)
		},
	}

	cmd.Flags().StringVarP(&fromDate, "from", "f", "", "Export documents issued on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&toDate, "to", "t", "", "Export documents issued on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only export documents in this status")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

type exportFilter struct {
	from, to *time.Time
	status   models.DocumentStatus
}

func (f exportFilter) keep(doc *models.Document) bool {
	if f.status != "" && doc.Status != f.status {
		return false
	}
	if f.from != nil && doc.IssueDate.Before(*f.from) {
		return false
	}
	if f.to != nil && doc.IssueDate.After(f.to.AddDate(0, 0, 1).Add(-time.Nanosecond)) {
		return false
	}
	return true
}

func exportDocuments(ctx context.Context, a *app, orgID string, kind models.DocumentKind, filter exportFilter, output string) error {
	docs, err := a.svc.ListDocuments(ctx, orgID, kind)
	if err != nil {
		return fmt.Errorf("failed to list %ss: %w", kindNoun(kind), err)
	}
	var selected []*models.Document
	for _, doc := range docs {
		if filter.keep(doc) {
			selected = append(selected, doc)
		}
	}
	if len(selected) == 0 {
		fmt.Printf("No %ss found to export.\n", kindNoun(kind))
		return nil
	}

	var w io.Writer = os.Stdout
	if output != "" && output != "-" {
		file, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	if err := writeDocumentsCSV(w, selected); err != nil {
		return err
	}
	if output != "" && output != "-" {
		fmt.Printf("Exported %d %ss to %s\n", len(selected), kindNoun(kind), output)
	}
	return nil
}

func writeDocumentsCSV(w io.Writer, docs []*models.Document) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"ID", "Number", "Client", "Status", "Issue Date", "Due", "Currency", "Subtotal", "Tax", "Total", "Paid",
	}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, doc := range docs {
		due := ""
		switch {
		case doc.DueDate != nil:
			due = doc.DueDate.Format(dateLayout)
		case doc.ValidUntil != nil:
			due = doc.ValidUntil.Format(dateLayout)
		}
		record := []string{
			doc.ID,
			doc.Number,
			doc.ClientID,
			string(doc.Status),
			doc.IssueDate.Format(dateLayout),
			due,
			doc.Currency,
			money(doc.Subtotal),
			money(doc.TaxAmount),
			money(doc.Total),
			money(doc.PaidAmount),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
