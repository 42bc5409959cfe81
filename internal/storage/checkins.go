package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateCheckin(c Checkin) error {
	var cost any
	if c.CostUSD != nil {
		cost = *c.CostUSD
	}
	_, err := s.db.Exec(`
		INSERT INTO checkins (id, action_ref, done, stress, cost_usd, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ActionRef, boolToInt(c.Done), c.Stress, cost, c.Notes,
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListCheckins(actionRef string) ([]Checkin, error) {
	query := `SELECT id, action_ref, done, stress, cost_usd, notes, created_at FROM checkins`
	var args []any
	if actionRef != "" {
		query += ` WHERE action_ref = ?`
		args = append(args, actionRef)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Checkin
	for rows.Next() {
		var c Checkin
		var done int
		var cost sql.NullFloat64
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ActionRef, &done, &c.Stress, &cost, &c.Notes, &createdAt); err != nil {
			return nil, err
		}
		c.Done = done != 0
		if cost.Valid {
			v := cost.Float64
			c.CostUSD = &v
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// AvgCheckinStress returns the mean reported stress across all check-ins,
// or 0 when none exist.
func (s *Store) AvgCheckinStress() (float64, error) {
	var avg sql.NullFloat64
	if err := s.db.QueryRow(`SELECT AVG(stress) FROM checkins WHERE stress > 0`).Scan(&avg); err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func (s *Store) SaveFeedback(f Feedback) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback (id, plan_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.PlanID, f.Rating, f.Comment, f.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListFeedback(planID string) ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, rating, comment, created_at FROM feedback
		WHERE plan_id = ? ORDER BY created_at DESC, id DESC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		var f Feedback
		var createdAt string
		if err := rows.Scan(&f.ID, &f.PlanID, &f.Rating, &f.Comment, &createdAt); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// CountRows returns the row count of the named table. Used by analytics.
func (s *Store) CountRows(table string) (int, error) {
	switch table {
	case "cases", "plans", "checkins", "users":
	default:
		return 0, fmt.Errorf("count not supported for table %q", table)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
