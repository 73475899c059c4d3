package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/models"
)

func newOrgsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orgs",
		Short: "Manage organizations",
	}
	cmd.AddCommand(newOrgsCreateCmd(a))
	return cmd
}

func newOrgsCreateCmd(a *app) *cobra.Command {
	var name, currency, tax string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an organization",
		Long:  "Create an organization. Its currency and default tax type apply to every new document.",
		RunE: func(cmd *cobra.Command, args []string) error {
			org, err := a.svc.CreateOrganization(cmd.Context(), name, currency, models.TaxType(strings.ToUpper(tax)))
			if err != nil {
				return fmt.Errorf("failed to create organization: %w", err)
			}
			fmt.Printf("Created organization: %s (ID: %s, Currency: %s, Tax: %s)\n", org.Name, org.ID, org.Currency, org.DefaultTaxType)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Organization name")
	cmd.Flags().StringVar(&currency, "currency", "EUR", "ISO currency code")
	cmd.Flags().StringVar(&tax, "tax", string(models.TaxStandard), "Default tax type")
	return cmd
}
