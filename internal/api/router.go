// Package api exposes the dashboard REST surface, the WhatsApp webhook and
// the cron trigger over a single chi router.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ValenteCreativo/carepilot/internal/actions"
	"github.com/ValenteCreativo/carepilot/internal/convo"
	"github.com/ValenteCreativo/carepilot/internal/pipeline"
	"github.com/ValenteCreativo/carepilot/internal/storage"
)

const maxBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Store        *storage.Store
	Orchestrator *pipeline.Orchestrator
	Generator    *actions.Generator
	Executor     *actions.Executor
	Convo        *convo.Handler

	SessionSecret   []byte
	CronToken       string
	TwilioAuthToken string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", handleRegister(deps))
		r.Post("/auth/login", handleLogin(deps))
		r.Post("/auth/logout", handleLogout(deps))

		r.Group(func(r chi.Router) {
			r.Use(SessionAuth(deps.SessionSecret))

			r.Get("/me", handleMe(deps))

			r.Post("/cases", handleCreateCase(deps))
			r.Get("/cases", handleListCases(deps))
			r.Get("/cases/{id}", handleGetCase(deps))
			r.Patch("/cases/{id}", handlePatchCase(deps))

			r.Post("/cases/{id}/plans", handleCreatePlan(deps))
			r.Get("/cases/{id}/plans", handleListPlans(deps))
			r.Get("/cases/{id}/plans/latest", handleLatestPlan(deps))

			r.Get("/cases/{id}/actions", handleListActions(deps))
			r.Post("/actions/{id}/approve", handleApproveAction(deps))
			r.Post("/actions/{id}/reject", handleRejectAction(deps))

			r.Post("/checkins", handleCreateCheckin(deps))
			r.Get("/checkins", handleListCheckins(deps))
			r.Post("/feedback", handleCreateFeedback(deps))
			r.Get("/analytics", handleAnalytics(deps))
		})
	})

	r.Post("/webhook/whatsapp", handleWhatsApp(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.CronToken))
		r.Post("/internal/cron/execute-actions", handleExecuteActions(deps))
	})

	return r
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"message": fmt.Sprintf(format, args...),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}
