package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/utils"
)

func newItemsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Edit the line items of a draft document",
	}
	cmd.AddCommand(
		newItemsAddCmd(a),
		newItemsUpdateCmd(a),
		newItemsRemoveCmd(a),
		newItemsSelectCmd(a),
	)
	return cmd
}

// itemFlags are shared by add and update. Only flags the user set end up in
// the resulting fields.
type itemFlags struct {
	description string
	quantity    string
	price       string
	tax         string
	rate        string
	optional    bool
	service     string
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Item description")
	cmd.Flags().StringVarP(&f.quantity, "quantity", "q", "", "Quantity")
	cmd.Flags().StringVarP(&f.price, "price", "p", "", "Unit price")
	cmd.Flags().StringVar(&f.tax, "tax", "", "Tax type (STANDARD, REDUCED, ZERO, EXEMPT, REVERSE_CHARGE)")
	cmd.Flags().StringVar(&f.rate, "rate", "", "Explicit tax rate in percent, overrides the tax type rate")
	cmd.Flags().BoolVar(&f.optional, "optional", false, "Optional quote item, unselected until the client picks it")
	cmd.Flags().StringVar(&f.service, "service", "", "Catalog service reference")
}

func (f *itemFlags) fields(cmd *cobra.Command) (billing.ItemFields, error) {
	var fields billing.ItemFields
	changed := cmd.Flags().Changed

	if changed("description") {
		fields.Description = utils.ToPtr(f.description)
	}
	if changed("quantity") {
		q, err := parseDecimal("quantity", f.quantity)
		if err != nil {
			return fields, err
		}
		fields.Quantity = &q
	}
	if changed("price") {
		p, err := parseDecimal("price", f.price)
		if err != nil {
			return fields, err
		}
		fields.UnitPrice = &p
	}
	if changed("rate") {
		r, err := parseDecimal("rate", f.rate)
		if err != nil {
			return fields, err
		}
		fields.TaxRate = &r
	}
	if changed("tax") {
		fields.TaxType = utils.ToPtr(models.TaxType(strings.ToUpper(f.tax)))
	}
	if changed("optional") {
		fields.IsOptional = utils.ToPtr(f.optional)
	}
	if changed("service") {
		fields.ServiceID = utils.NilIfZero(f.service)
	}
	return fields, nil
}

func newItemsAddCmd(a *app) *cobra.Command {
	var flags itemFlags
	cmd := &cobra.Command{
		Use:   "add <document-id>",
		Short: "Append a line item to a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			fields, err := flags.fields(cmd)
			if err != nil {
				return err
			}
			item, err := a.svc.AddItem(cmd.Context(), orgID, args[0], fields)
			if err != nil {
				return fmt.Errorf("failed to add item: %w", err)
			}
			fmt.Printf("Added item %s: %s\n", item.ID, describeItem(item))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newItemsUpdateCmd(a *app) *cobra.Command {
	var flags itemFlags
	cmd := &cobra.Command{
		Use:   "update <item-id>",
		Short: "Change fields of a line item, leaving the rest as is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			fields, err := flags.fields(cmd)
			if err != nil {
				return err
			}
			item, err := a.svc.UpdateItem(cmd.Context(), orgID, args[0], fields)
			if err != nil {
				return fmt.Errorf("failed to update item: %w", err)
			}
			fmt.Printf("Updated item %s: %s\n", item.ID, describeItem(item))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newItemsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Delete a line item from a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			if err := a.svc.RemoveItem(cmd.Context(), orgID, args[0]); err != nil {
				return fmt.Errorf("failed to remove item: %w", err)
			}
			fmt.Printf("Removed item %s\n", args[0])
			return nil
		},
	}
}

func newItemsSelectCmd(a *app) *cobra.Command {
	var selected bool
	cmd := &cobra.Command{
		Use:   "select <item-id>",
		Short: "Include or exclude an optional quote item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			item, err := a.svc.SetItemSelected(cmd.Context(), orgID, args[0], selected)
			if err != nil {
				return fmt.Errorf("failed to select item: %w", err)
			}
			state := "excluded"
			if item.IsSelected {
				state = "included"
			}
			fmt.Printf("Item %s is now %s\n", item.ID, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&selected, "selected", true, "Include the item in the quote total")
	return cmd
}
