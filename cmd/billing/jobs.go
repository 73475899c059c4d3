package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/models"
)

type sweepFunc func(ctx context.Context, organizationID string) ([]*models.Document, error)

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run the periodic document sweeps by hand",
	}
	cmd.AddCommand(
		newSweepCmd(a, "overdue", "Mark unpaid invoices past their due date overdue", a.svc.MarkOverdue),
		newSweepCmd(a, "expire", "Expire open quotes past their validity date", a.svc.ExpireQuotes),
	)
	return cmd
}

func newSweepCmd(a *app, use, short string, sweep sweepFunc) *cobra.Command {
	var allOrgs bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID := ""
			if !allOrgs {
				var err error
				if orgID, err = a.org(); err != nil {
					return err
				}
			}
			docs, err := sweep(cmd.Context(), orgID)
			if err != nil {
				return fmt.Errorf("failed to run %s sweep: %w", use, err)
			}
			fmt.Printf("%d document(s) updated\n", len(docs))
			for _, doc := range docs {
				printDocumentRow(doc)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allOrgs, "all-orgs", false, "Sweep every organization")
	return cmd
}
