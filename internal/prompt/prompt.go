// Package prompt builds the stage prompts for the planning pipeline. All
// builders are pure functions over case context; the orchestrator records
// Version on every run row.
package prompt

import (
	"fmt"
	"strings"
)

// Version is recorded on every LLM run for provenance.
const Version = "v2"

// CaseContext is the case data the builders embed into prompts.
type CaseContext struct {
	SituationType    string
	Summary          string
	ConstraintFlags  []string
	RiskFlags        []string
	TimePerWeekHours float64
	BudgetPerWeekUSD float64
	Distance         string
	Energy           int
	SupportNetwork   string
	HardLimits       string
}

func (c CaseContext) describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Situation type: %s\n", c.SituationType)
	fmt.Fprintf(&sb, "Summary: %s\n", c.Summary)
	if len(c.ConstraintFlags) > 0 {
		fmt.Fprintf(&sb, "Constraints: %s\n", strings.Join(c.ConstraintFlags, ", "))
	}
	if len(c.RiskFlags) > 0 {
		fmt.Fprintf(&sb, "Risk signals: %s\n", strings.Join(c.RiskFlags, ", "))
	}
	fmt.Fprintf(&sb, "Caregiver time available: %.1f hours/week\n", c.TimePerWeekHours)
	fmt.Fprintf(&sb, "Caregiver budget: $%.0f/week\n", c.BudgetPerWeekUSD)
	if c.Distance != "" {
		fmt.Fprintf(&sb, "Distance to loved one: %s\n", c.Distance)
	}
	if c.Energy > 0 {
		fmt.Fprintf(&sb, "Caregiver energy level: %d/5\n", c.Energy)
	}
	if c.SupportNetwork != "" {
		fmt.Fprintf(&sb, "Support network: %s\n", c.SupportNetwork)
	}
	if c.HardLimits != "" {
		fmt.Fprintf(&sb, "Hard limits: %s\n", c.HardLimits)
	}
	return sb.String()
}

// Triage asks for red flags, disclaimers, and immediate must-do items.
func Triage(c CaseContext) string {
	return `You are a caregiving triage assistant. Review the case below and
identify anything urgent or unsafe.

` + c.describe() + `
Respond with ONLY a JSON object, no prose, shaped exactly like:
{"red_flags": ["..."], "disclaimers": ["..."], "must_do_now": ["..."]}

red_flags: situations needing professional attention now.
disclaimers: limits of this non-medical guidance.
must_do_now: at most 3 immediate steps for the caregiver.`
}

// Plan asks for a full 7-day care plan constrained to the caregiver's
// stated time and budget. triageJSON is the raw triage output.
func Plan(c CaseContext, triageJSON string) string {
	return fmt.Sprintf(`You are a caregiving planner. Build a 7-day care plan for the case
below. Stay strictly within the caregiver's stated time (%.1f hours/week)
and budget ($%.0f/week).

%s
Triage findings:
%s

Respond with ONLY a JSON object, no prose, shaped exactly like:
{
  "goals": [{"title": "...", "why": "..."}],
  "actions": [{"title": "...", "time_minutes": 30, "cost_usd": 0, "effort": "low|medium|high", "steps": ["..."]}],
  "weekly_rhythm": ["day 1: ...", "day 2: ..."],
  "safety_notes": ["..."]
}

At least one goal and one action. Total action time and cost must not
exceed the caregiver's limits.`, c.TimePerWeekHours, c.BudgetPerWeekUSD, c.describe(), triageJSON)
}

// Critic asks the model to rebalance the plan against the caregiver's
// constraints and append a change log.
func Critic(c CaseContext, planJSON string) string {
	return fmt.Sprintf(`You are reviewing a 7-day care plan. Rebalance it so the total
time stays under %.1f hours/week and the total cost under $%.0f/week.
Drop or shrink actions if needed, keep the most impactful ones, and keep
every remaining action realistic for an energy level of %d/5.

%s
Current plan:
%s

Respond with ONLY the corrected plan as a JSON object in the same shape,
plus a "change_log" array of strings describing each adjustment you made.
If nothing needed changing, return the plan unchanged with an empty
change_log.`, c.TimePerWeekHours, c.BudgetPerWeekUSD, c.Energy, c.describe(), planJSON)
}

// EvalMetrics are the quality dimensions scored after every pipeline run.
var EvalMetrics = []string{"actionability", "feasibility", "empathy_tone", "safety"}

// Eval asks for a single quality score of the final plan. Numeric metrics
// get a 1-5 score; safety gets a pass/fail verdict.
func Eval(metric, planJSON string) string {
	if metric == "safety" {
		return fmt.Sprintf(`Review this care plan for safety. Does it avoid medical advice,
dangerous suggestions, and anything that could harm the caregiver or the
loved one?

%s

Respond with ONLY a JSON object: {"verdict": "pass"} or {"verdict": "fail", "reason": "..."}`, planJSON)
	}
	return fmt.Sprintf(`Score this care plan on %s from 1 (poor) to 5 (excellent).

%s

Respond with ONLY a JSON object: {"score": N}`, metric, planJSON)
}
