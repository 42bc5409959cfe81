package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const actionColumns = `id, case_id, plan_id, type, body, scheduled_for, status,
	approved_at, executed_at, failure_reason, external_id, created_at`

func (s *Store) CreateAction(a Action) error {
	status := a.Status
	if status == "" {
		status = ActionPending
	}
	_, err := s.db.Exec(`
		INSERT INTO actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, '', '', ?)`,
		a.ID, a.CaseID, a.PlanID, string(a.Type), a.Body,
		a.ScheduledFor.UTC().Format(time.RFC3339), string(status),
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAction(id string) (Action, error) {
	row := s.db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	return scanAction(row)
}

func (s *Store) ListActionsByCase(caseID string) ([]Action, error) {
	rows, err := s.db.Query(`
		SELECT `+actionColumns+` FROM actions WHERE case_id = ? ORDER BY scheduled_for ASC, id ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActions(rows)
}

// ListDueApproved returns approved actions whose scheduled time has passed,
// oldest first.
func (s *Store) ListDueApproved(now time.Time) ([]Action, error) {
	rows, err := s.db.Query(`
		SELECT `+actionColumns+` FROM actions
		WHERE status = ? AND scheduled_for <= ?
		ORDER BY scheduled_for ASC, id ASC`,
		string(ActionApproved), now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActions(rows)
}

// ActionStamps carries the one-shot fields a transition may set. Each is
// written only at the transition that produces it.
type ActionStamps struct {
	ApprovedAt    *time.Time
	ExecutedAt    *time.Time
	FailureReason string
	ExternalID    string
}

// TransitionAction moves an action from one of the given states to the next
// state as a single guarded UPDATE. It reports whether the transition
// happened; false means the action is missing or not in an allowed state.
// This is the compare-and-set that prevents double execution.
func (s *Store) TransitionAction(id string, from []ActionStatus, to ActionStatus, stamps ActionStamps) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s: no source states", to)
	}

	sets := []string{"status = ?"}
	args := []any{string(to)}
	// COALESCE keeps the first stamp: re-approving an approved action must
	// not move approved_at.
	if stamps.ApprovedAt != nil {
		sets = append(sets, "approved_at = COALESCE(approved_at, ?)")
		args = append(args, stamps.ApprovedAt.UTC().Format(time.RFC3339))
	}
	if stamps.ExecutedAt != nil {
		sets = append(sets, "executed_at = COALESCE(executed_at, ?)")
		args = append(args, stamps.ExecutedAt.UTC().Format(time.RFC3339))
	}
	if stamps.FailureReason != "" {
		sets = append(sets, "failure_reason = ?")
		args = append(args, stamps.FailureReason)
	}
	if stamps.ExternalID != "" {
		sets = append(sets, "external_id = ?")
		args = append(args, stamps.ExternalID)
	}

	placeholders := strings.Repeat(",?", len(from)-1)
	args = append(args, id)
	for _, st := range from {
		args = append(args, string(st))
	}

	query := `UPDATE actions SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status IN (?` + placeholders + `)`
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountActionsByStatus returns a status -> count map across all actions.
func (s *Store) CountActionsByStatus() (map[ActionStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM actions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[ActionStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		result[ActionStatus(st)] = n
	}
	return result, rows.Err()
}

func collectActions(rows *sql.Rows) ([]Action, error) {
	var results []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func scanAction(row rowScanner) (Action, error) {
	var a Action
	var typ, status, scheduledFor, createdAt string
	var approvedAt, executedAt sql.NullString
	err := row.Scan(&a.ID, &a.CaseID, &a.PlanID, &typ, &a.Body, &scheduledFor, &status,
		&approvedAt, &executedAt, &a.FailureReason, &a.ExternalID, &createdAt)
	if err == sql.ErrNoRows {
		return Action{}, ErrNotFound
	}
	if err != nil {
		return Action{}, err
	}
	a.Type = ActionType(typ)
	a.Status = ActionStatus(status)
	if a.ScheduledFor, err = time.Parse(time.RFC3339, scheduledFor); err != nil {
		return Action{}, fmt.Errorf("parsing scheduled_for: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Action{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if approvedAt.Valid {
		t, err := time.Parse(time.RFC3339, approvedAt.String)
		if err != nil {
			return Action{}, fmt.Errorf("parsing approved_at: %w", err)
		}
		a.ApprovedAt = &t
	}
	if executedAt.Valid {
		t, err := time.Parse(time.RFC3339, executedAt.String)
		if err != nil {
			return Action{}, fmt.Errorf("parsing executed_at: %w", err)
		}
		a.ExecutedAt = &t
	}
	return a, nil
}
