package pipeline

// TriageResult is the parsed output of the triage stage.
type TriageResult struct {
	RedFlags    []string `json:"red_flags"`
	Disclaimers []string `json:"disclaimers"`
	MustDoNow   []string `json:"must_do_now"`
}

type Goal struct {
	Title string `json:"title"`
	Why   string `json:"why,omitempty"`
}

// PlanAction is one concrete step in the 7-day plan.
type PlanAction struct {
	Title       string   `json:"title"`
	TimeMinutes int      `json:"time_minutes"`
	CostUSD     float64  `json:"cost_usd"`
	Effort      string   `json:"effort"`
	Steps       []string `json:"steps,omitempty"`
}

// PlanDoc is the full plan document. The critic stage's version is the
// canonical one persisted and returned to callers.
type PlanDoc struct {
	Goals        []Goal       `json:"goals"`
	Actions      []PlanAction `json:"actions"`
	WeeklyRhythm []string     `json:"weekly_rhythm,omitempty"`
	SafetyNotes  []string     `json:"safety_notes,omitempty"`
	ChangeLog    []string     `json:"change_log,omitempty"`
}

// TotalTimeMinutes sums the plan's action time.
func (p PlanDoc) TotalTimeMinutes() int {
	var total int
	for _, a := range p.Actions {
		total += a.TimeMinutes
	}
	return total
}

// TotalCostUSD sums the plan's action cost.
func (p PlanDoc) TotalCostUSD() float64 {
	var total float64
	for _, a := range p.Actions {
		total += a.CostUSD
	}
	return total
}
