package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ValenteCreativo/carepilot/internal/storage"
)

type caseRequest struct {
	SituationType    *string   `json:"situation_type"`
	Summary          *string   `json:"summary"`
	ConstraintFlags  *[]string `json:"constraint_flags"`
	RiskFlags        *[]string `json:"risk_flags"`
	TimePerWeekHours *float64  `json:"time_per_week_hours"`
	BudgetPerWeekUSD *float64  `json:"budget_per_week_usd"`
	Distance         *string   `json:"distance"`
	Energy           *int      `json:"energy"`
	SupportNetwork   *string   `json:"support_network"`
	HardLimits       *string   `json:"hard_limits"`
}

type caseResponse struct {
	ID               string   `json:"id"`
	SituationType    string   `json:"situation_type"`
	Summary          string   `json:"summary"`
	ConstraintFlags  []string `json:"constraint_flags"`
	RiskFlags        []string `json:"risk_flags"`
	TimePerWeekHours float64  `json:"time_per_week_hours"`
	BudgetPerWeekUSD float64  `json:"budget_per_week_usd"`
	Distance         string   `json:"distance,omitempty"`
	Energy           int      `json:"energy"`
	SupportNetwork   string   `json:"support_network,omitempty"`
	HardLimits       string   `json:"hard_limits,omitempty"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

func toCaseResponse(c storage.Case) caseResponse {
	return caseResponse{
		ID:               c.ID,
		SituationType:    c.SituationType,
		Summary:          c.Summary,
		ConstraintFlags:  decodeJSONList(c.ConstraintFlags),
		RiskFlags:        decodeJSONList(c.RiskFlags),
		TimePerWeekHours: c.TimePerWeekHours,
		BudgetPerWeekUSD: c.BudgetPerWeekUSD,
		Distance:         c.Distance,
		Energy:           c.Energy,
		SupportNetwork:   c.SupportNetwork,
		HardLimits:       c.HardLimits,
		CreatedAt:        c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func decodeJSONList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeJSONList(flags []string) string {
	if flags == nil {
		flags = []string{}
	}
	b, _ := json.Marshal(flags)
	return string(b)
}

func handleCreateCase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req caseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Summary == nil || *req.Summary == "" {
			httpError(w, http.StatusBadRequest, "summary is required")
			return
		}
		if req.Energy != nil && (*req.Energy < 1 || *req.Energy > 5) {
			httpError(w, http.StatusBadRequest, "energy must be between 1 and 5")
			return
		}

		now := time.Now().UTC()
		c := storage.Case{
			ID:               uuid.NewString(),
			UserID:           userIDFrom(r.Context()),
			SituationType:    "general",
			Summary:          *req.Summary,
			ConstraintFlags:  "[]",
			RiskFlags:        "[]",
			TimePerWeekHours: 5,
			BudgetPerWeekUSD: 50,
			Energy:           3,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		applyCaseRequest(&c, req)

		if err := deps.Store.CreateCase(c); err != nil {
			httpError(w, http.StatusInternalServerError, "creating case: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, toCaseResponse(c))
	}
}

func handleListCases(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cases, err := deps.Store.ListCasesByUser(userIDFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing cases: %v", err)
			return
		}
		out := make([]caseResponse, 0, len(cases))
		for _, c := range cases {
			out = append(out, toCaseResponse(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetCase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ownedCase(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(c))
	}
}

func handlePatchCase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ownedCase(deps, w, r)
		if !ok {
			return
		}
		var req caseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Energy != nil && (*req.Energy < 1 || *req.Energy > 5) {
			httpError(w, http.StatusBadRequest, "energy must be between 1 and 5")
			return
		}
		applyCaseRequest(&c, req)
		c.UpdatedAt = time.Now().UTC()

		if err := deps.Store.UpdateCase(c); err != nil {
			httpError(w, http.StatusInternalServerError, "updating case: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(c))
	}
}

func applyCaseRequest(c *storage.Case, req caseRequest) {
	if req.SituationType != nil {
		c.SituationType = *req.SituationType
	}
	if req.Summary != nil {
		c.Summary = *req.Summary
	}
	if req.ConstraintFlags != nil {
		c.ConstraintFlags = encodeJSONList(*req.ConstraintFlags)
	}
	if req.RiskFlags != nil {
		c.RiskFlags = encodeJSONList(*req.RiskFlags)
	}
	if req.TimePerWeekHours != nil {
		c.TimePerWeekHours = *req.TimePerWeekHours
	}
	if req.BudgetPerWeekUSD != nil {
		c.BudgetPerWeekUSD = *req.BudgetPerWeekUSD
	}
	if req.Distance != nil {
		c.Distance = *req.Distance
	}
	if req.Energy != nil {
		c.Energy = *req.Energy
	}
	if req.SupportNetwork != nil {
		c.SupportNetwork = *req.SupportNetwork
	}
	if req.HardLimits != nil {
		c.HardLimits = *req.HardLimits
	}
}

// ownedCase loads the path case and enforces that it belongs to the
// session user. A foreign case reads as 404, not 403, to avoid leaking
// which ids exist.
func ownedCase(deps AppDeps, w http.ResponseWriter, r *http.Request) (storage.Case, bool) {
	id := chi.URLParam(r, "id")
	c, err := deps.Store.GetCase(id)
	if err == storage.ErrNotFound {
		httpError(w, http.StatusNotFound, "case not found")
		return storage.Case{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "loading case: %v", err)
		return storage.Case{}, false
	}
	if c.UserID != userIDFrom(r.Context()) {
		httpError(w, http.StatusNotFound, "case not found")
		return storage.Case{}, false
	}
	return c, true
}
