package storage

import (
	"testing"
	"time"
)

func seedAction(t *testing.T, s *Store, id string, status ActionStatus, scheduledFor time.Time) Action {
	t.Helper()
	a := Action{
		ID:           id,
		CaseID:       "case-1",
		PlanID:       "plan-1",
		Type:         ActionCheckinPrompt,
		Body:         "How did today go?",
		ScheduledFor: scheduledFor,
		Status:       status,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.CreateAction(a); err != nil {
		t.Fatalf("CreateAction(%s): %v", id, err)
	}
	return a
}

func TestTransitionActionGuards(t *testing.T) {
	s := openTestStore(t)
	seedUserAndCase(t, s)
	now := time.Now().UTC().Truncate(time.Second)
	seedAction(t, s, "act-1", ActionPending, now)

	// Legal: pending -> approved.
	ok, err := s.TransitionAction("act-1", []ActionStatus{ActionPending, ActionApproved}, ActionApproved, ActionStamps{ApprovedAt: &now})
	if err != nil {
		t.Fatalf("TransitionAction: %v", err)
	}
	if !ok {
		t.Fatal("pending -> approved should succeed")
	}

	// Legal: approved -> executing.
	ok, err = s.TransitionAction("act-1", []ActionStatus{ActionApproved}, ActionExecuting, ActionStamps{})
	if err != nil {
		t.Fatalf("TransitionAction: %v", err)
	}
	if !ok {
		t.Fatal("approved -> executing should succeed")
	}

	// Illegal: a second approved -> executing claim must lose the race.
	ok, err = s.TransitionAction("act-1", []ActionStatus{ActionApproved}, ActionExecuting, ActionStamps{})
	if err != nil {
		t.Fatalf("TransitionAction: %v", err)
	}
	if ok {
		t.Fatal("double claim of executing must fail")
	}

	// Legal: executing -> completed with stamps.
	ok, err = s.TransitionAction("act-1", []ActionStatus{ActionExecuting}, ActionCompleted, ActionStamps{ExecutedAt: &now, ExternalID: "SMout1"})
	if err != nil {
		t.Fatalf("TransitionAction: %v", err)
	}
	if !ok {
		t.Fatal("executing -> completed should succeed")
	}

	got, err := s.GetAction("act-1")
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != ActionCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.ApprovedAt == nil || got.ExecutedAt == nil {
		t.Error("approved_at / executed_at not stamped")
	}
	if got.ExternalID != "SMout1" {
		t.Errorf("external_id = %q", got.ExternalID)
	}

	// Illegal: completed is terminal.
	ok, err = s.TransitionAction("act-1", []ActionStatus{ActionApproved}, ActionExecuting, ActionStamps{})
	if err != nil {
		t.Fatalf("TransitionAction: %v", err)
	}
	if ok {
		t.Error("completed action must not transition again")
	}
}

func TestTransitionActionMissing(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.TransitionAction("nope", []ActionStatus{ActionPending}, ActionApproved, ActionStamps{})
	if err != nil {
		t.Fatalf("TransitionAction: %v", err)
	}
	if ok {
		t.Error("missing action must not transition")
	}
}

func TestListDueApproved(t *testing.T) {
	s := openTestStore(t)
	seedUserAndCase(t, s)
	now := time.Now().UTC().Truncate(time.Second)

	seedAction(t, s, "due-1", ActionApproved, now.Add(-2*time.Hour))
	seedAction(t, s, "due-2", ActionApproved, now.Add(-1*time.Hour))
	seedAction(t, s, "future", ActionApproved, now.Add(time.Hour))
	seedAction(t, s, "still-pending", ActionPending, now.Add(-time.Hour))

	due, err := s.ListDueApproved(now)
	if err != nil {
		t.Fatalf("ListDueApproved: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d due actions, want 2", len(due))
	}
	if due[0].ID != "due-1" || due[1].ID != "due-2" {
		t.Errorf("order = [%s %s], want [due-1 due-2]", due[0].ID, due[1].ID)
	}
}

func TestCheckinRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cost := 12.5
	c := Checkin{
		ID:        "chk-1",
		ActionRef: "act-1",
		Done:      true,
		Stress:    4,
		CostUSD:   &cost,
		Notes:     "long day",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.CreateCheckin(c); err != nil {
		t.Fatalf("CreateCheckin: %v", err)
	}

	got, err := s.ListCheckins("act-1")
	if err != nil {
		t.Fatalf("ListCheckins: %v", err)
	}
	if len(got) != 1 || !got[0].Done || got[0].Stress != 4 || got[0].CostUSD == nil || *got[0].CostUSD != 12.5 {
		t.Errorf("checkin round trip mismatch: %+v", got)
	}

	avg, err := s.AvgCheckinStress()
	if err != nil {
		t.Fatalf("AvgCheckinStress: %v", err)
	}
	if avg != 4 {
		t.Errorf("avg stress = %v, want 4", avg)
	}
}
