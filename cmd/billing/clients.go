package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/service"
	"github.com/jesses-code-adventures/billing/internal/utils"
)

func newClientsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage clients",
		Long:  "Commands for managing the clients of an organization.",
	}
	cmd.AddCommand(newClientsCreateCmd(a), newClientsListCmd(a))
	return cmd
}

func newClientsCreateCmd(a *app) *cobra.Command {
	var name, status, email, contactName, contactEmail string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			client, err := a.svc.CreateClient(cmd.Context(), orgID, service.CreateClientInput{
				Name:         name,
				Status:       models.ClientStatus(strings.ToUpper(status)),
				Email:        utils.NilIfZero(email),
				ContactName:  utils.NilIfZero(contactName),
				ContactEmail: utils.NilIfZero(contactEmail),
			})
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			fmt.Printf("Created client: %s (ID: %s, Status: %s)\n", client.Name, client.ID, client.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Client name")
	cmd.Flags().StringVar(&status, "status", "", "Initial status (LEAD, PROSPECT, CLIENT, ARCHIVED)")
	cmd.Flags().StringVar(&email, "email", "", "Billing email address")
	cmd.Flags().StringVar(&contactName, "contact", "", "Contact person name")
	cmd.Flags().StringVar(&contactEmail, "contact-email", "", "Contact person email, preferred for delivery")
	return cmd
}

func newClientsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			clients, err := a.svc.ListClients(cmd.Context(), orgID)
			if err != nil {
				return fmt.Errorf("failed to list clients: %w", err)
			}
			if len(clients) == 0 {
				fmt.Println("No clients found.")
				return nil
			}
			fmt.Println("Clients:")
			for _, c := range clients {
				recipient := c.Recipient()
				if recipient == "" {
					recipient = "no email"
				}
				fmt.Printf("%s - %s - %s - %s\n", c.ID, c.Name, c.Status, recipient)
			}
			return nil
		},
	}
}
