package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jesses-code-adventures/billing/internal/billing"
	"github.com/jesses-code-adventures/billing/internal/models"
	"github.com/jesses-code-adventures/billing/internal/service"
)

type transitionFunc func(ctx context.Context, organizationID, documentID string) (*models.Document, error)

func (h *Handlers) transitions() map[string]transitionFunc {
	return map[string]transitionFunc{
		string(billing.ActionFinalize): h.svc.Finalize,
		string(billing.ActionSend):     h.svc.Send,
		string(billing.ActionView):     h.svc.MarkViewed,
		string(billing.ActionAccept):   h.svc.Accept,
		string(billing.ActionReject):   h.svc.Reject,
		string(billing.ActionCancel):   h.svc.Cancel,
		string(billing.ActionRefund):   h.svc.Refund,
	}
}

func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req service.CreateDocumentInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Kind = models.DocumentKind(strings.ToUpper(string(req.Kind)))
	doc, err := h.svc.CreateDocument(r.Context(), organizationID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	kind := models.DocumentKind(strings.ToUpper(r.URL.Query().Get("kind")))
	docs, err := h.svc.ListDocuments(r.Context(), organizationID(r), kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.GetDocument(r.Context(), organizationID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) DocumentPDF(w http.ResponseWriter, r *http.Request) {
	pdf, name, err := h.svc.RenderDocument(r.Context(), organizationID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handlers) Transition(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	fn, ok := h.transitions()[action]
	if !ok {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}
	doc, err := fn(r.Context(), organizationID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) Duplicate(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Duplicate(r.Context(), organizationID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) ConvertQuote(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.ConvertQuoteToInvoice(r.Context(), organizationID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) RecalculateTotals(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.RecalculateTotals(r.Context(), organizationID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	PaidAt *time.Time      `json:"paid_at,omitempty"`
}

func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.svc.RecordPayment(r.Context(), organizationID(r), chi.URLParam(r, "documentID"), req.Amount, req.PaidAt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type adjustmentRequest struct {
	Delta decimal.Decimal `json:"delta"`
	At    *time.Time      `json:"at,omitempty"`
}

func (h *Handlers) AdjustPayment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.svc.AdjustPayment(r.Context(), organizationID(r), chi.URLParam(r, "documentID"), req.Delta, req.At)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

func (h *Handlers) SetPortalVisible(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.svc.SetPortalVisible(r.Context(), organizationID(r), chi.URLParam(r, "documentID"), req.Visible)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) NextNumber(w http.ResponseWriter, r *http.Request) {
	kind := models.DocumentKind(strings.ToUpper(chi.URLParam(r, "kind")))
	number, err := h.svc.NextNumber(r.Context(), organizationID(r), kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"number": number})
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req billing.ItemFields
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.AddItem(r.Context(), organizationID(r), chi.URLParam(r, "documentID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req billing.ItemFields
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.UpdateItem(r.Context(), organizationID(r), chi.URLParam(r, "itemID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveItem(r.Context(), organizationID(r), chi.URLParam(r, "itemID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectionRequest struct {
	Selected bool `json:"selected"`
}

func (h *Handlers) SetItemSelected(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.SetItemSelected(r.Context(), organizationID(r), chi.URLParam(r, "itemID"), req.Selected)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type sweepResponse struct {
	Changed   int                `json:"changed"`
	Documents []*models.Document `json:"documents"`
}

func (h *Handlers) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.MarkOverdue(r.Context(), organizationID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Changed: len(docs), Documents: nonNil(docs)})
}

func (h *Handlers) ExpireQuotes(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ExpireQuotes(r.Context(), organizationID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Changed: len(docs), Documents: nonNil(docs)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
