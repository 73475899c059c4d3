package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/config"
	"github.com/jesses-code-adventures/billing/internal/database"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/service"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

// app is what every command needs. orgID is bound to the --org flag.
type app struct {
	cfg      *config.Config
	db       database.DB
	svc      *service.BillingService
	registry *prometheus.Registry
	orgID    string
}

func (a *app) org() (string, error) {
	if a.orgID == "" {
		return "", fmt.Errorf("organization is required, pass --org or set BILLING_ORG")
	}
	return a.orgID, nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "billing",
		Short: "Quotes, invoices and billable time for a small studio",
		Long: `Create quotes and invoices, walk them through their lifecycle and record payments.
Unbilled time entries can be turned into invoices, and the HTTP API is available via serve.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.orgID, "org", a.cfg.OrganizationID, "Organization ID to work in")

	rootCmd.AddCommand(
		newConfigCmd(a),
		newMigrateCmd(a),
		newOrgsCmd(a),
		newClientsCmd(a),
		newDocumentsCmd(a, models.KindQuote),
		newDocumentsCmd(a, models.KindInvoice),
		newItemsCmd(a),
		newTimeCmd(a),
		newJobsCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}
