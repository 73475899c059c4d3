package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/models"
)

type GroupBy string

const (
	GroupNone    GroupBy = "none"
	GroupProject GroupBy = "project"
	GroupDate    GroupBy = "date"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(s); g {
	case GroupNone, GroupProject, GroupDate:
		return g, nil
	case "":
		return GroupNone, nil
	default:
		return "", InvalidArgument("group time entries", "unknown grouping %q, expected none, project or date", s)
	}
}

type entryGroup struct {
	description string
	minutes     int64
}

// GroupTimeEntries turns time entries into line item fields priced at rate.
// Groups keep the order in which they first appear by start time.
func GroupTimeEntries(entries []*models.TimeEntry, groupBy GroupBy, rate decimal.Decimal, taxType models.TaxType) ([]ItemFields, error) {
	const op = "group time entries"
	if len(entries) == 0 {
		return nil, InvalidArgument(op, "no time entries selected")
	}
	if rate.IsNegative() {
		return nil, InvalidArgument(op, "hourly rate must not be negative, got %s", rate)
	}

	sorted := make([]*models.TimeEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	var groups []*entryGroup
	index := make(map[string]*entryGroup)
	for _, entry := range sorted {
		var key, description string
		switch groupBy {
		case GroupProject:
			key = projectKey(entry)
			description = projectLabel(entry)
		case GroupDate:
			key = entry.StartTime.Format("2006-01-02")
			description = fmt.Sprintf("Work on %s", key)
		default:
			key = entry.ID
			description = entryLabel(entry)
		}

		g, ok := index[key]
		if !ok {
			g = &entryGroup{description: description}
			index[key] = g
			groups = append(groups, g)
		}
		g.minutes += entry.DurationMinutes
	}

	var fields []ItemFields
	for _, g := range groups {
		if g.minutes <= 0 {
			continue
		}
		description := g.description
		quantity := models.HoursFromMinutes(g.minutes)
		unitPrice := rate
		tax := taxType
		fields = append(fields, ItemFields{
			Description: &description,
			Quantity:    &quantity,
			UnitPrice:   &unitPrice,
			TaxType:     &tax,
		})
	}
	if len(fields) == 0 {
		return nil, InvalidArgument(op, "selected time entries have no recorded duration")
	}
	return fields, nil
}

func projectKey(entry *models.TimeEntry) string {
	if entry.ProjectID != nil {
		return *entry.ProjectID
	}
	if entry.ProjectName != nil {
		return "name:" + *entry.ProjectName
	}
	return ""
}

func projectLabel(entry *models.TimeEntry) string {
	if entry.ProjectName != nil && *entry.ProjectName != "" {
		return *entry.ProjectName
	}
	return "Unassigned work"
}

func entryLabel(entry *models.TimeEntry) string {
	date := entry.StartTime.Format("2006-01-02")
	if entry.Description != nil && *entry.Description != "" {
		return fmt.Sprintf("%s: %s", date, *entry.Description)
	}
	if entry.ProjectName != nil && *entry.ProjectName != "" {
		return fmt.Sprintf("%s: %s", date, *entry.ProjectName)
	}
	return fmt.Sprintf("%s: work session", date)
}
