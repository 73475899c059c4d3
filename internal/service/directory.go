package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/models"
)

func (s *BillingService) CreateOrganization(ctx context.Context, name, currency string, defaultTax models.TaxType) (*models.Organization, error) {
	const op = "create organization"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, billing.InvalidArgument(op, "name is required")
	}
	if currency == "" {
		currency = "EUR"
	}
	if len(currency) != 3 {
		return nil, billing.InvalidArgument(op, "currency must be a 3 letter code, got %q", currency)
	}
	if defaultTax == "" {
		defaultTax = models.TaxStandard
	}
	if !billing.ValidTaxType(defaultTax) {
		return nil, billing.InvalidArgument(op, "unknown tax type %q", defaultTax)
	}

	now := s.now()
	org := &models.Organization{
		ID:             models.NewUUID(),
		Name:           name,
		Currency:       strings.ToUpper(currency),
		DefaultTaxType: defaultTax,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

type CreateClientInput struct {
	Name         string              `json:"name"`
	Status       models.ClientStatus `json:"status,omitempty"`
	Email        *string             `json:"email,omitempty"`
	ContactName  *string             `json:"contact_name,omitempty"`
	ContactEmail *string             `json:"contact_email,omitempty"`
}

func (s *BillingService) CreateClient(ctx context.Context, organizationID string, in CreateClientInput) (*models.Client, error) {
	const op = "create client"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, billing.InvalidArgument(op, "name is required")
	}
	status := in.Status
	if status == "" {
		status = models.ClientLead
	}
	switch status {
	case models.ClientLead, models.ClientProspect, models.ClientClient, models.ClientArchived:
	default:
		return nil, billing.InvalidArgument(op, "unknown client status %q", status)
	}

	org, err := s.db.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if org == nil {
		return nil, billing.NotFound(op, "organization %s does not exist", organizationID)
	}

	now := s.now()
	client := &models.Client{
		ID:             models.NewUUID(),
		OrganizationID: org.ID,
		Name:           name,
		Status:         status,
		Email:          in.Email,
		ContactName:    in.ContactName,
		ContactEmail:   in.ContactEmail,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (s *BillingService) GetClient(ctx context.Context, organizationID, clientID string) (*models.Client, error) {
	client, err := s.db.GetClient(ctx, clientID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if client == nil {
		return nil, billing.NotFound("get client", "client %s does not exist", clientID)
	}
	return client, nil
}

func (s *BillingService) ListClients(ctx context.Context, organizationID string) ([]*models.Client, error) {
	clients, err := s.db.ListClients(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}
