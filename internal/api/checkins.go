package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ValenteCreativo/carepilot/internal/storage"
)

type checkinRequest struct {
	ActionRef string   `json:"action_ref"`
	Done      bool     `json:"done"`
	Stress    int      `json:"stress"`
	CostUSD   *float64 `json:"cost_usd"`
	Notes     string   `json:"notes"`
}

type checkinResponse struct {
	ID        string   `json:"id"`
	ActionRef string   `json:"action_ref,omitempty"`
	Done      bool     `json:"done"`
	Stress    int      `json:"stress"`
	CostUSD   *float64 `json:"cost_usd,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func toCheckinResponse(c storage.Checkin) checkinResponse {
	return checkinResponse{
		ID:        c.ID,
		ActionRef: c.ActionRef,
		Done:      c.Done,
		Stress:    c.Stress,
		CostUSD:   c.CostUSD,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func handleCreateCheckin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkinRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Stress < 1 || req.Stress > 5 {
			httpError(w, http.StatusBadRequest, "stress must be between 1 and 5")
			return
		}
		c := storage.Checkin{
			ID:        uuid.NewString(),
			ActionRef: req.ActionRef,
			Done:      req.Done,
			Stress:    req.Stress,
			CostUSD:   req.CostUSD,
			Notes:     req.Notes,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.CreateCheckin(c); err != nil {
			httpError(w, http.StatusInternalServerError, "creating checkin: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, toCheckinResponse(c))
	}
}

func handleListCheckins(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Store.ListCheckins(r.URL.Query().Get("action_ref"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing checkins: %v", err)
			return
		}
		out := make([]checkinResponse, 0, len(list))
		for _, c := range list {
			out = append(out, toCheckinResponse(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type feedbackRequest struct {
	PlanID  string `json:"plan_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func handleCreateFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Rating < 1 || req.Rating > 5 {
			httpError(w, http.StatusBadRequest, "rating must be between 1 and 5")
			return
		}
		if _, err := deps.Store.GetPlan(req.PlanID); err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "plan not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "loading plan: %v", err)
			return
		}
		f := storage.Feedback{
			ID:        uuid.NewString(),
			PlanID:    req.PlanID,
			Rating:    req.Rating,
			Comment:   req.Comment,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveFeedback(f); err != nil {
			httpError(w, http.StatusInternalServerError, "saving feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": f.ID})
	}
}

type analyticsResponse struct {
	Users           int            `json:"users"`
	Cases           int            `json:"cases"`
	Plans           int            `json:"plans"`
	Checkins        int            `json:"checkins"`
	ActionsByStatus map[string]int `json:"actions_by_status"`
	AvgStress       float64        `json:"avg_stress"`
}

func handleAnalytics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out analyticsResponse
		var err error
		if out.Users, err = deps.Store.CountRows("users"); err != nil {
			httpError(w, http.StatusInternalServerError, "counting users: %v", err)
			return
		}
		if out.Cases, err = deps.Store.CountRows("cases"); err != nil {
			httpError(w, http.StatusInternalServerError, "counting cases: %v", err)
			return
		}
		if out.Plans, err = deps.Store.CountRows("plans"); err != nil {
			httpError(w, http.StatusInternalServerError, "counting plans: %v", err)
			return
		}
		if out.Checkins, err = deps.Store.CountRows("checkins"); err != nil {
			httpError(w, http.StatusInternalServerError, "counting checkins: %v", err)
			return
		}
		byStatus, err := deps.Store.CountActionsByStatus()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "counting actions: %v", err)
			return
		}
		out.ActionsByStatus = make(map[string]int, len(byStatus))
		for status, n := range byStatus {
			out.ActionsByStatus[string(status)] = n
		}
		if out.AvgStress, err = deps.Store.AvgCheckinStress(); err != nil {
			httpError(w, http.StatusInternalServerError, "averaging stress: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
