package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/service"
)

type createOrganizationRequest struct {
	Name           string         `json:"name"`
	Currency       string         `json:"currency"`
	DefaultTaxType models.TaxType `json:"default_tax_type"`
}

func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	org, err := h.svc.CreateOrganization(r.Context(), req.Name, req.Currency,
		models.TaxType(strings.ToUpper(string(req.DefaultTaxType))))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (h *Handlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req service.CreateClientInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Status = models.ClientStatus(strings.ToUpper(string(req.Status)))
	client, err := h.svc.CreateClient(r.Context(), organizationID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.ListClients(r.Context(), organizationID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(clients))
}

func (h *Handlers) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTimeEntryInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := h.svc.CreateTimeEntry(r.Context(), organizationID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handlers) ListUnbilledTimeEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListUnbilledTimeEntries(r.Context(), organizationID(r), chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (h *Handlers) BuildInvoiceFromTimeEntries(w http.ResponseWriter, r *http.Request) {
	var req service.BuildInvoiceInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.svc.BuildInvoiceFromTimeEntries(r.Context(), organizationID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}
