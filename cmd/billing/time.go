package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/service"
	"github.com/jesses-code-adventures/billing/internal/utils"
)

func newTimeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time",
		Short: "Track billable time and invoice it",
	}
	cmd.AddCommand(newTimeAddCmd(a), newTimeListCmd(a), newTimeInvoiceCmd(a))
	return cmd
}

func newTimeAddCmd(a *app) *cobra.Command {
	var clientID, projectID, projectName, description, start string
	var minutes int64
	var nonBillable bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a time entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			startTime, err := parseDateTime(start)
			if err != nil {
				return err
			}
			entry, err := a.svc.CreateTimeEntry(cmd.Context(), orgID, service.CreateTimeEntryInput{
				ClientID:        clientID,
				ProjectID:       utils.NilIfZero(projectID),
				ProjectName:     utils.NilIfZero(projectName),
				Description:     utils.NilIfZero(description),
				StartTime:       startTime,
				DurationMinutes: minutes,
				Billable:        utils.ToPtr(!nonBillable),
			})
			if err != nil {
				return fmt.Errorf("failed to add time entry: %w", err)
			}
			fmt.Printf("Recorded %s for %s (ID: %s)\n", formatMinutes(entry.DurationMinutes), entry.StartTime.Format(dateTimeLayout), entry.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&clientID, "client", "c", "", "Client ID")
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID used for grouping")
	cmd.Flags().StringVar(&projectName, "project-name", "", "Project name shown on invoices")
	cmd.Flags().StringVarP(&description, "description", "d", "", "What was worked on")
	cmd.Flags().StringVarP(&start, "start", "s", "", "Start time (YYYY-MM-DD HH:MM)")
	cmd.Flags().Int64VarP(&minutes, "minutes", "m", 0, "Duration in minutes")
	cmd.Flags().BoolVar(&nonBillable, "non-billable", false, "Record the entry as not billable")
	return cmd
}

func newTimeListCmd(a *app) *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the unbilled time entries of a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			entries, err := a.svc.ListUnbilledTimeEntries(cmd.Context(), orgID, clientID)
			if err != nil {
				return fmt.Errorf("failed to list time entries: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No unbilled time entries found.")
				return nil
			}
			var total int64
			for _, e := range entries {
				printTimeEntry(e)
				total += e.DurationMinutes
			}
			fmt.Printf("Total unbilled: %s\n", formatMinutes(total))
			return nil
		},
	}
	cmd.Flags().StringVarP(&clientID, "client", "c", "", "Client ID")
	return cmd
}

func newTimeInvoiceCmd(a *app) *cobra.Command {
	var clientID, entries, groupBy, rate, notes string
	var all bool

	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Create a draft invoice from unbilled time entries",
		Long: `Bill the selected time entries of a client as a new draft invoice. Entries can be
grouped into one line per entry (none), per project or per day.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := a.org()
			if err != nil {
				return err
			}
			group, err := billing.ParseGroupBy(strings.ToLower(groupBy))
			if err != nil {
				return err
			}
			hourly, err := parseDecimal("rate", rate)
			if err != nil {
				return err
			}

			ids := utils.SplitList(entries)
			if all {
				unbilled, err := a.svc.ListUnbilledTimeEntries(cmd.Context(), orgID, clientID)
				if err != nil {
					return fmt.Errorf("failed to list time entries: %w", err)
				}
				for _, e := range unbilled {
					if e.Billable {
						ids = append(ids, e.ID)
					}
				}
			}

			doc, err := a.svc.BuildInvoiceFromTimeEntries(cmd.Context(), orgID, service.BuildInvoiceInput{
				ClientID:     clientID,
				TimeEntryIDs: ids,
				GroupBy:      group,
				HourlyRate:   hourly,
				Notes:        utils.NilIfZero(notes),
			})
			if err != nil {
				return fmt.Errorf("failed to invoice time entries: %w", err)
			}
			fmt.Printf("Created invoice %s from %d time entries (ID: %s, Total: %s %s)\n",
				doc.Number, len(ids), doc.ID, doc.Currency, money(doc.Total))
			return nil
		},
	}
	cmd.Flags().StringVarP(&clientID, "client", "c", "", "Client ID")
	cmd.Flags().StringVarP(&entries, "entries", "e", "", "Comma separated time entry IDs")
	cmd.Flags().BoolVar(&all, "all", false, "Include every unbilled billable entry of the client")
	cmd.Flags().StringVarP(&groupBy, "group", "g", string(billing.GroupNone), "Grouping: none, project or date")
	cmd.Flags().StringVarP(&rate, "rate", "r", "", "Hourly rate")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes printed on the invoice")
	return cmd
}

func printTimeEntry(e *models.TimeEntry) {
	label := utils.FromPtr(e.Description)
	if label == "" {
		label = utils.FromPtr(e.ProjectName)
	}
	billable := ""
	if !e.Billable {
		billable = " (non-billable)"
	}
	fmt.Printf("%s - %s - %s (%sh) - %s%s\n", e.ID, e.StartTime.Format(dateTimeLayout), formatMinutes(e.DurationMinutes), e.Hours().StringFixed(models.HoursPlaces), label, billable)
}
