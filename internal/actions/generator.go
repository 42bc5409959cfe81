// Package actions turns finalized plans into schedulable outbound work and
// drives each action through its state machine.
package actions

import (
	"time"

	"github.com/google/uuid"

	"github.com/ValenteCreativo/carepilot/internal/pipeline"
	"github.com/ValenteCreativo/carepilot/internal/storage"
)

const maxReminders = 3

// Generator creates pending action rows from a finalized plan.
type Generator struct {
	store *storage.Store
	now   func() time.Time
}

func NewGenerator(store *storage.Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// NewGeneratorAt pins the generator's clock (used by tests).
func NewGeneratorAt(store *storage.Store, now func() time.Time) *Generator {
	return &Generator{store: store, now: now}
}

type GenerateInput struct {
	CaseID         string
	PlanID         string
	Plan           pipeline.PlanDoc
	CaregiverPhone string
}

// GenerateFromPlan creates the action queue for a plan: seven daily
// check-in prompts at 20:00 local plus up to three reminders for
// high-effort or expensive plan actions, all pending. With no caregiver
// phone there is nothing to send to; it returns an empty list and inserts
// nothing (precondition, not an error). Every created row needs explicit
// approval before execution.
func (g *Generator) GenerateFromPlan(in GenerateInput) ([]string, error) {
	if in.CaregiverPhone == "" {
		return []string{}, nil
	}

	now := g.now()
	created := make([]string, 0, 10)

	for day := 1; day <= 7; day++ {
		at := time.Date(now.Year(), now.Month(), now.Day()+day, 20, 0, 0, 0, now.Location())
		a := storage.Action{
			ID:           uuid.NewString(),
			CaseID:       in.CaseID,
			PlanID:       in.PlanID,
			Type:         storage.ActionCheckinPrompt,
			Body:         "Quick check-in: how did caregiving go today? Reply with done/not done and your stress 1-5.",
			ScheduledFor: at,
			Status:       storage.ActionPending,
			CreatedAt:    now.UTC(),
		}
		if err := g.store.CreateAction(a); err != nil {
			return nil, err
		}
		created = append(created, a.ID)
	}

	reminderAt := time.Date(now.Year(), now.Month(), now.Day()+1, 9, 0, 0, 0, now.Location())
	reminders := 0
	for _, pa := range in.Plan.Actions {
		if reminders >= maxReminders {
			break
		}
		if pa.Effort != "high" && pa.CostUSD <= 100 {
			continue
		}
		a := storage.Action{
			ID:           uuid.NewString(),
			CaseID:       in.CaseID,
			PlanID:       in.PlanID,
			Type:         storage.ActionReminder,
			Body:         "Reminder from your care plan: " + pa.Title,
			ScheduledFor: reminderAt,
			Status:       storage.ActionPending,
			CreatedAt:    now.UTC(),
		}
		if err := g.store.CreateAction(a); err != nil {
			return nil, err
		}
		created = append(created, a.ID)
		reminders++
	}

	return created, nil
}
