package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jesses-code-adventures/billing/internal/service"
)

func NewRouter(svc *service.BillingService, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(Logging)

	h := New(svc)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/organizations", h.CreateOrganization)

		r.Group(func(r chi.Router) {
			r.Use(RequireOrganization)

			r.Post("/clients", h.CreateClient)
			r.Get("/clients", h.ListClients)
			r.Get("/clients/{clientID}/time-entries", h.ListUnbilledTimeEntries)

			r.Post("/time-entries", h.CreateTimeEntry)
			r.Post("/invoices/from-time-entries", h.BuildInvoiceFromTimeEntries)

			r.Get("/numbers/{kind}/next", h.NextNumber)

			r.Post("/documents", h.CreateDocument)
			r.Get("/documents", h.ListDocuments)
			r.Route("/documents/{documentID}", func(r chi.Router) {
				r.Get("/", h.GetDocument)
				r.Get("/pdf", h.DocumentPDF)
				r.Post("/items", h.AddItem)
				r.Post("/recalculate", h.RecalculateTotals)
				r.Post("/payments", h.RecordPayment)
				r.Post("/payment-adjustments", h.AdjustPayment)
				r.Put("/portal", h.SetPortalVisible)
				r.Post("/duplicate", h.Duplicate)
				r.Post("/convert", h.ConvertQuote)
				r.Post("/{action}", h.Transition)
			})

			r.Patch("/items/{itemID}", h.UpdateItem)
			r.Delete("/items/{itemID}", h.RemoveItem)
			r.Put("/items/{itemID}/selected", h.SetItemSelected)

			r.Post("/jobs/overdue", h.MarkOverdue)
			r.Post("/jobs/expire", h.ExpireQuotes)
		})
	})

	return r
}
