package api

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jesses-code-adventures/billing/internal/logger"
)

// OrganizationHeader scopes every /v1 call below /organizations.
const OrganizationHeader = "X-Organization-ID"

type ctxKey int

const organizationKey ctxKey = iota

func RequireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(OrganizationHeader)
		if orgID == "" {
			writeMessage(w, http.StatusBadRequest, "missing "+OrganizationHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), organizationKey, orgID)))
	})
}

func organizationID(r *http.Request) string {
	orgID, _ := r.Context().Value(organizationKey).(string)
	return orgID
}

func Logging(next http.Handler) http.Handler {
	log := logger.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
