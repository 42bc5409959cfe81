package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ValenteCreativo/carepilot/internal/storage"
)

type actionResponse struct {
	ID            string `json:"id"`
	CaseID        string `json:"case_id"`
	PlanID        string `json:"plan_id"`
	Type          string `json:"type"`
	Body          string `json:"body"`
	ScheduledFor  string `json:"scheduled_for"`
	Status        string `json:"status"`
	ApprovedAt    string `json:"approved_at,omitempty"`
	ExecutedAt    string `json:"executed_at,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func toActionResponse(a storage.Action) actionResponse {
	out := actionResponse{
		ID:            a.ID,
		CaseID:        a.CaseID,
		PlanID:        a.PlanID,
		Type:          string(a.Type),
		Body:          a.Body,
		ScheduledFor:  a.ScheduledFor.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		FailureReason: a.FailureReason,
	}
	if a.ApprovedAt != nil {
		out.ApprovedAt = a.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if a.ExecutedAt != nil {
		out.ExecutedAt = a.ExecutedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func handleListActions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ownedCase(deps, w, r)
		if !ok {
			return
		}
		list, err := deps.Store.ListActionsByCase(c.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing actions: %v", err)
			return
		}
		out := make([]actionResponse, 0, len(list))
		for _, a := range list {
			out = append(out, toActionResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleApproveAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := ownedAction(deps, w, r)
		if !ok {
			return
		}
		if !deps.Executor.Approve(a.ID) {
			httpError(w, http.StatusBadRequest, "action is not approvable in state %q", a.Status)
			return
		}
		refreshed, err := deps.Store.GetAction(a.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "reloading action: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toActionResponse(refreshed))
	}
}

func handleRejectAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := ownedAction(deps, w, r)
		if !ok {
			return
		}
		if !deps.Executor.Reject(a.ID) {
			httpError(w, http.StatusBadRequest, "action is not rejectable in state %q", a.Status)
			return
		}
		refreshed, err := deps.Store.GetAction(a.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "reloading action: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toActionResponse(refreshed))
	}
}

// ownedAction resolves the path action and checks its case belongs to the
// session user.
func ownedAction(deps AppDeps, w http.ResponseWriter, r *http.Request) (storage.Action, bool) {
	id := chi.URLParam(r, "id")
	a, err := deps.Store.GetAction(id)
	if err == storage.ErrNotFound {
		httpError(w, http.StatusNotFound, "action not found")
		return storage.Action{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "loading action: %v", err)
		return storage.Action{}, false
	}
	c, err := deps.Store.GetCase(a.CaseID)
	if err != nil || c.UserID != userIDFrom(r.Context()) {
		httpError(w, http.StatusNotFound, "action not found")
		return storage.Action{}, false
	}
	return a, true
}
