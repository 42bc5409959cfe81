package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// OnboardingState is the WhatsApp onboarding cursor for a user. It replaces
// the loose (state, step) pair with a single closed set: invalid
// combinations are unrepresentable.
type OnboardingState string

const (
	OnboardingNotStarted        OnboardingState = "not_started"
	OnboardingAwaitingSituation OnboardingState = "awaiting_situation"
	OnboardingAwaitingTime      OnboardingState = "awaiting_time"
	OnboardingAwaitingBudget    OnboardingState = "awaiting_budget"
	OnboardingActive            OnboardingState = "active"
)

// OnboardingContext accumulates free-text answers across onboarding steps.
type OnboardingContext struct {
	Situation  string `json:"situation,omitempty"`
	TimeText   string `json:"time_text,omitempty"`
	BudgetText string `json:"budget_text,omitempty"`
}

type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Phone           string
	OnboardingState OnboardingState
	OnboardingCtx   string // OnboardingContext stored as JSON
	CreatedAt       time.Time
}

// Case is one caregiving situation: loved-one context plus the caregiver's
// own constraints. Never hard-deleted.
type Case struct {
	ID               string
	UserID           string
	SituationType    string
	Summary          string
	ConstraintFlags  string // JSON array stored as text
	RiskFlags        string // JSON array stored as text
	TimePerWeekHours float64
	BudgetPerWeekUSD float64
	Distance         string
	Energy           int // 1..5
	SupportNetwork   string
	HardLimits       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Plan is an immutable snapshot of one pipeline run. Doc holds the full
// plan document as JSON; the latest plan for a case is the newest row.
type Plan struct {
	ID        string
	CaseID    string
	Doc       string
	CreatedAt time.Time
}

// Stage identifies one pipeline stage invocation.
type Stage string

const (
	StageTriage Stage = "triage"
	StagePlan   Stage = "plan"
	StageCritic Stage = "critic"
)

// LLMRun records a single model invocation. Immutable once written.
// InputHash is provenance only; it is never used for lookup.
type LLMRun struct {
	ID            string
	CaseID        string
	Stage         Stage
	PromptVersion string
	Model         string
	InputHash     string
	Output        string
	LatencyMs     int64
	TraceID       string
	CreatedAt     time.Time
}

// LLMEval is a quality score attached to a run, written asynchronously
// after the run completes.
type LLMEval struct {
	ID        string
	RunID     string
	Metric    string
	Score     float64
	Verdict   string // "pass", "fail", "error", or "" for numeric metrics
	CreatedAt time.Time
}

type ActionType string

const (
	ActionReminder      ActionType = "reminder"
	ActionMessage       ActionType = "message"
	ActionCalendar      ActionType = "calendar"
	ActionCheckinPrompt ActionType = "checkin_prompt"
)

// ActionTypes lists every member of the type enum; the executor test
// asserts dispatch covers all of them.
var ActionTypes = []ActionType{ActionReminder, ActionMessage, ActionCalendar, ActionCheckinPrompt}

type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionApproved  ActionStatus = "approved"
	ActionExecuting ActionStatus = "executing"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// Action is a schedulable unit of outbound work. Status only moves forward:
// pending -> approved -> executing -> completed|failed, plus
// pending -> failed (rejection). Stamps are set exactly once, at the
// transition that produces them.
type Action struct {
	ID            string
	CaseID        string
	PlanID        string
	Type          ActionType
	Body          string
	ScheduledFor  time.Time
	Status        ActionStatus
	ApprovedAt    *time.Time
	ExecutedAt    *time.Time
	FailureReason string
	ExternalID    string
	CreatedAt     time.Time
}

// Checkin is a caregiver-reported outcome. ActionRef is opaque text, not a
// foreign key. Append-only.
type Checkin struct {
	ID        string
	ActionRef string
	Done      bool
	Stress    int // 1..5
	CostUSD   *float64
	Notes     string
	CreatedAt time.Time
}

// Feedback is a caregiver rating of a generated plan.
type Feedback struct {
	ID        string
	PlanID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Message is one append-only WhatsApp conversation log entry. Outbound
// replies carry InReplyTo = the provider message id of the inbound message
// they answer, which is what idempotent replay looks up.
type Message struct {
	ID                string
	Phone             string
	Direction         Direction
	Body              string
	ProviderMessageID string
	InReplyTo         string
	Raw               string
	CreatedAt         time.Time
}
