package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ValenteCreativo/carepilot/internal/actions"
	"github.com/ValenteCreativo/carepilot/internal/pipeline"
	"github.com/ValenteCreativo/carepilot/internal/prompt"
	"github.com/ValenteCreativo/carepilot/internal/storage"
)

type planResponse struct {
	ID        string          `json:"id"`
	CaseID    string          `json:"case_id"`
	Doc       json.RawMessage `json:"doc"`
	CreatedAt string          `json:"created_at"`
}

func toPlanResponse(p storage.Plan) planResponse {
	return planResponse{
		ID:        p.ID,
		CaseID:    p.CaseID,
		Doc:       json.RawMessage(p.Doc),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type generateResponse struct {
	PlanID    string                `json:"plan_id"`
	TraceID   string                `json:"trace_id"`
	Triage    pipeline.TriageResult `json:"triage"`
	Plan      pipeline.PlanDoc      `json:"plan"`
	ActionIDs []string              `json:"action_ids"`
}

// handleCreatePlan runs the full generation pipeline synchronously and
// schedules the plan's actions as pending; the dashboard approves them
// one by one.
func handleCreatePlan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ownedCase(deps, w, r)
		if !ok {
			return
		}

		res, err := deps.Orchestrator.Generate(r.Context(), pipeline.GenerateInput{
			CaseID: c.ID,
			Ctx:    toCaseContext(c),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "generating plan: %v", err)
			return
		}

		u, err := deps.Store.GetUser(c.UserID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "loading user: %v", err)
			return
		}
		ids, err := deps.Generator.GenerateFromPlan(actions.GenerateInput{
			CaseID:         c.ID,
			PlanID:         res.PlanID,
			Plan:           res.Plan,
			CaregiverPhone: u.Phone,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "scheduling actions: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, generateResponse{
			PlanID:    res.PlanID,
			TraceID:   res.TraceID,
			Triage:    res.Triage,
			Plan:      res.Plan,
			ActionIDs: ids,
		})
	}
}

func handleListPlans(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ownedCase(deps, w, r)
		if !ok {
			return
		}
		plans, err := deps.Store.ListPlans(c.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing plans: %v", err)
			return
		}
		out := make([]planResponse, 0, len(plans))
		for _, p := range plans {
			out = append(out, toPlanResponse(p))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleLatestPlan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ownedCase(deps, w, r)
		if !ok {
			return
		}
		p, err := deps.Store.LatestPlan(c.ID)
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "no plan for case")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "loading plan: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toPlanResponse(p))
	}
}

func toCaseContext(c storage.Case) prompt.CaseContext {
	return prompt.CaseContext{
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
	}
}
