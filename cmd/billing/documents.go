package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/service"
	"github.com/jesses-code-adventures/billing/internal/utils"
)

type documentAction func(ctx context.Context, organizationID, documentID string) (*models.Document, error)

// newDocumentsCmd builds the quotes or invoices command tree.
func newDocumentsCmd(a *app, kind models.DocumentKind) *cobra.Command {
	noun := kindNoun(kind)
	cmd := &cobra.Command{
		Use:   noun + "s",
		Short: fmt.Sprintf("Manage %ss", noun),
	}

	cmd.AddCommand(
		newDocumentCreateCmd(a, kind),
		newDocumentListCmd(a, kind),
		newDocumentShowCmd(a),
		newDocumentPDFCmd(a),
		newDocumentExportCmd(a, kind),
		newDocumentActionCmd(a, "finalize", "Lock a draft "+noun, a.svc.Finalize),
		newDocumentActionCmd(a, "send", "Send the "+noun+" to the client", a.svc.Send),
		newDocumentActionCmd(a, "view", "Record that the client opened the "+noun, a.svc.MarkViewed),
		newDocumentActionCmd(a, "duplicate", "Copy the "+noun+" into a new draft", a.svc.Duplicate),
		newDocumentPortalCmd(a),
		newDocumentRecalculateCmd(a),
	)

	switch kind {
	case models.KindQuote:
		cmd.AddCommand(
			newDocumentActionCmd(a, "accept", "Accept the quote", a.svc.Accept),
			newDocumentActionCmd(a, "reject", "Reject the quote", a.svc.Reject),
			newDocumentActionCmd(a, "convert", "Turn an accepted quote into a draft invoice", a.svc.ConvertQuoteToInvoice),
		)
	case models.KindInvoice:
		cmd.AddCommand(
			newDocumentActionCmd(a, "cancel", "Cancel the invoice", a.svc.Cancel),
			newDocumentActionCmd(a, "refund", "Mark a paid invoice refunded", a.svc.Refund),
			newInvoicePayCmd(a),
			newInvoiceAdjustCmd(a),
		)
	}
	return cmd
}

func newDocumentCreateCmd(a *app, kind models.DocumentKind) *cobra.Command {
	var clientID, notes, issueDate string
	var items []string
	noun := kindNoun(kind)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft " + noun,
		Long: fmt.Sprintf(`Create a draft %s with a fresh number. Items are given as
"description|quantity|unit price[|tax type][|optional]", for example --item "Design|2|100|REDUCED".`, noun),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			in := service.CreateDocumentInput{
				Kind:     kind,
				ClientID: clientID,
				Notes:    utils.NilIfZero(notes),
			}
			if issueDate != "" {
				d, err := parseDate(issueDate)
				if err != nil {
					return err
				}
				in.IssueDate = &d
			}
			for _, spec := range items {
				fields, err := parseItemSpec(spec)
				if err != nil {
					return err
				}
				in.Items = append(in.Items, fields)
			}

			doc, err := a.svc.CreateDocument(cmd.Context(), orgID, in)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", noun, err)
			}
			fmt.Printf("Created %s %s (ID: %s, Total: %s %s)\n", noun, doc.Number, doc.ID, doc.Currency, money(doc.Total))
			return nil
		},
	}
	cmd.Flags().StringVarP(&clientID, "client", "c", "", "Client ID")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes printed on the document")
	cmd.Flags().StringVar(&issueDate, "issue-date", "", "Issue date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, "Line item, may be repeated")
	return cmd
}

func newDocumentListCmd(a *app, kind models.DocumentKind) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss", kindNoun(kind)),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			docs, err := a.svc.ListDocuments(cmd.Context(), orgID, kind)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			if len(docs) == 0 {
				fmt.Printf("No %ss found.\n", kindNoun(kind))
				return nil
			}
			for _, doc := range docs {
				printDocumentRow(doc)
			}
			return nil
		},
	}
}

func newDocumentShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document with its line items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			doc, err := a.svc.GetDocument(cmd.Context(), orgID, args[0])
			if err != nil {
				return err
			}
			printDocument(doc)
			return nil
		},
	}
}

func newDocumentPDFCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pdf <id>",
		Short: "Render a document to PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			pdf, name, err := a.svc.RenderDocument(cmd.Context(), orgID, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = name
			}
			if err := os.WriteFile(output, pdf, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Printf("Wrote %s (%d bytes)\n", output, len(pdf))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, defaults to the document number")
	return cmd
}

func newDocumentActionCmd(a *app, use, short string, action documentAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			doc, err := action(cmd.Context(), orgID, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s %s is %s\n", strings.ToUpper(use[:1])+use[1:], kindNoun(doc.Kind), doc.Number, doc.Status)
			return nil
		},
	}
}

func newDocumentPortalCmd(a *app) *cobra.Command {
	var visible bool
	cmd := &cobra.Command{
		Use:   "portal <id>",
		Short: "Show or hide the document in the client portal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			doc, err := a.svc.SetPortalVisible(cmd.Context(), orgID, args[0], visible)
			if err != nil {
				return err
			}
			fmt.Printf("Portal visibility of %s set to %t\n", doc.Number, doc.PortalVisible)
			return nil
		},
	}
	cmd.Flags().BoolVar(&visible, "visible", true, "Whether the client portal shows the document")
	return cmd
}

func newDocumentRecalculateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate <id>",
		Short: "Re-sum the document totals from its line items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			doc, err := a.svc.RecalculateTotals(cmd.Context(), orgID, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s total: %s %s\n", doc.Number, doc.Currency, money(doc.Total))
			return nil
		},
	}
}

func newInvoicePayCmd(a *app) *cobra.Command {
	var amount, date string
	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Record a payment against an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			value, err := parseDecimal("amount", amount)
			if err != nil {
				return err
			}
			paidAt, err := parseOptionalDate(date)
			if err != nil {
				return err
			}
			doc, err := a.svc.RecordPayment(cmd.Context(), orgID, args[0], value, paidAt)
			if err != nil {
				return err
			}
			printPayment(doc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount received")
	cmd.Flags().StringVar(&date, "date", "", "Payment date (YYYY-MM-DD), defaults to now")
	return cmd
}

func newInvoiceAdjustCmd(a *app) *cobra.Command {
	var delta, date string
	cmd := &cobra.Command{
		Use:   "adjust <id>",
		Short: "Correct the paid amount of an invoice by a signed delta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			value, err := parseDecimal("delta", delta)
			if err != nil {
				return err
			}
			at, err := parseOptionalDate(date)
			if err != nil {
				return err
			}
			doc, err := a.svc.AdjustPayment(cmd.Context(), orgID, args[0], value, at)
			if err != nil {
				return err
			}
			printPayment(doc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&delta, "delta", "d", "", "Signed correction, e.g. -20")
	cmd.Flags().StringVar(&date, "date", "", "Correction date (YYYY-MM-DD), defaults to now")
	return cmd
}

func printPayment(doc *models.Document) {
	fmt.Printf("Invoice %s: paid %s of %s %s, status %s\n",
		doc.Number, money(doc.PaidAmount), doc.Currency, money(doc.Total), doc.Status)
}

func kindNoun(kind models.DocumentKind) string {
	if kind == models.KindQuote {
		return "quote"
	}
	return "invoice"
}
