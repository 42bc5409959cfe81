package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ValenteCreativo/carepilot/internal/storage"
)

// Sender delivers one outbound message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Executor moves actions through pending -> approved -> executing ->
// completed|failed. Every transition is a guarded compare-and-set, so a
// completed or failed action can never be executed again, and two
// concurrent executes race on the executing claim with exactly one winner.
type Executor struct {
	store  *storage.Store
	sender Sender
	logger *slog.Logger
}

func NewExecutor(store *storage.Store, sender Sender) *Executor {
	return &Executor{store: store, sender: sender, logger: slog.Default()}
}

// Approve moves a pending action to approved and stamps approved_at.
// Approving an already-approved action is a harmless no-op that reports
// true. Missing ids and terminal states report false; Approve never throws.
func (e *Executor) Approve(id string) bool {
	now := time.Now().UTC()
	ok, err := e.store.TransitionAction(id,
		[]storage.ActionStatus{storage.ActionPending, storage.ActionApproved},
		storage.ActionApproved,
		storage.ActionStamps{ApprovedAt: &now})
	if err != nil {
		e.logger.Error("approve failed", "action_id", id, "error", err)
		return false
	}
	return ok
}

// Reject fails a pending action before it was ever approved.
func (e *Executor) Reject(id string) bool {
	ok, err := e.store.TransitionAction(id,
		[]storage.ActionStatus{storage.ActionPending},
		storage.ActionFailed,
		storage.ActionStamps{FailureReason: "Rejected by user"})
	if err != nil {
		e.logger.Error("reject failed", "action_id", id, "error", err)
		return false
	}
	return ok
}

// ExecResult reports the outcome of one execution attempt.
type ExecResult struct {
	ActionID string
	OK       bool
	Reason   string // set when OK is false
}

// Execute runs a single approved action: claims it, performs the send, and
// records the terminal state. Failures are recorded on the row, isolated
// from sibling actions, and never retried at this layer.
func (e *Executor) Execute(ctx context.Context, id string) ExecResult {
	a, err := e.store.GetAction(id)
	if err == storage.ErrNotFound {
		return ExecResult{ActionID: id, Reason: "action not found"}
	}
	if err != nil {
		return ExecResult{ActionID: id, Reason: err.Error()}
	}

	claimed, err := e.store.TransitionAction(id,
		[]storage.ActionStatus{storage.ActionApproved},
		storage.ActionExecuting, storage.ActionStamps{})
	if err != nil {
		return ExecResult{ActionID: id, Reason: err.Error()}
	}
	if !claimed {
		return ExecResult{ActionID: id, Reason: fmt.Sprintf("not executable from status %q", a.Status)}
	}

	externalID, sendErr := e.dispatch(ctx, a)
	if sendErr != nil {
		if _, err := e.store.TransitionAction(id,
			[]storage.ActionStatus{storage.ActionExecuting},
			storage.ActionFailed,
			storage.ActionStamps{FailureReason: sendErr.Error()}); err != nil {
			e.logger.Error("recording action failure failed", "action_id", id, "error", err)
		}
		return ExecResult{ActionID: id, Reason: sendErr.Error()}
	}

	now := time.Now().UTC()
	if _, err := e.store.TransitionAction(id,
		[]storage.ActionStatus{storage.ActionExecuting},
		storage.ActionCompleted,
		storage.ActionStamps{ExecutedAt: &now, ExternalID: externalID}); err != nil {
		e.logger.Error("recording action completion failed", "action_id", id, "error", err)
		return ExecResult{ActionID: id, Reason: err.Error()}
	}

	return ExecResult{ActionID: id, OK: true}
}

// dispatch performs the type-specific side effect. The switch covers every
// member of the type enum; TestExecutorCoversAllActionTypes keeps it that
// way when a type is added.
func (e *Executor) dispatch(ctx context.Context, a storage.Action) (string, error) {
	switch a.Type {
	case storage.ActionReminder, storage.ActionMessage, storage.ActionCheckinPrompt:
		phone, err := e.caregiverPhone(a.CaseID)
		if err != nil {
			return "", err
		}
		return e.sender.Send(ctx, phone, a.Body)
	case storage.ActionCalendar:
		return "", fmt.Errorf("calendar integration not configured")
	default:
		return "", fmt.Errorf("no executor for action type %q", a.Type)
	}
}

func (e *Executor) caregiverPhone(caseID string) (string, error) {
	c, err := e.store.GetCase(caseID)
	if err != nil {
		return "", fmt.Errorf("loading case %s: %w", caseID, err)
	}
	u, err := e.store.GetUser(c.UserID)
	if err != nil {
		return "", fmt.Errorf("loading user %s: %w", c.UserID, err)
	}
	if u.Phone == "" {
		return "", fmt.Errorf("user %s has no phone number", u.ID)
	}
	return u.Phone, nil
}

// SweepStats summarizes one sweep over due approved actions.
type SweepStats struct {
	Selected  int `json:"selected"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// SweepDue executes every approved action whose scheduled time has passed,
// sequentially and in schedule order. This is the system's only scheduling
// mechanism; it is pull-based and must be triggered externally.
func (e *Executor) SweepDue(ctx context.Context) (SweepStats, error) {
	due, err := e.store.ListDueApproved(time.Now().UTC())
	if err != nil {
		return SweepStats{}, fmt.Errorf("listing due actions: %w", err)
	}

	stats := SweepStats{Selected: len(due)}
	for _, a := range due {
		res := e.Execute(ctx, a.ID)
		if res.OK {
			stats.Completed++
		} else {
			stats.Failed++
			e.logger.Warn("action execution failed", "action_id", a.ID, "reason", res.Reason)
		}
	}
	return stats, nil
}
