package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SavePlan(p Plan) error {
	_, err := s.db.Exec(`
		INSERT INTO plans (id, case_id, doc, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.CaseID, p.Doc, p.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetPlan(id string) (Plan, error) {
	row := s.db.QueryRow(`SELECT id, case_id, doc, created_at FROM plans WHERE id = ?`, id)
	return scanPlan(row)
}

// LatestPlan returns the most recently created plan for a case.
func (s *Store) LatestPlan(caseID string) (Plan, error) {
	row := s.db.QueryRow(`
		SELECT id, case_id, doc, created_at FROM plans
		WHERE case_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, caseID)
	return scanPlan(row)
}

func (s *Store) ListPlans(caseID string) ([]Plan, error) {
	rows, err := s.db.Query(`
		SELECT id, case_id, doc, created_at FROM plans
		WHERE case_id = ? ORDER BY created_at DESC, id DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func scanPlan(row rowScanner) (Plan, error) {
	var p Plan
	var createdAt string
	err := row.Scan(&p.ID, &p.CaseID, &p.Doc, &createdAt)
	if err == sql.ErrNoRows {
		return Plan{}, ErrNotFound
	}
	if err != nil {
		return Plan{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Plan{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return p, nil
}
