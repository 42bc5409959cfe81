package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const caseColumns = `id, user_id, situation_type, summary, constraint_flags, risk_flags,
	time_per_week_hours, budget_per_week_usd, distance, energy, support_network, hard_limits,
	created_at, updated_at`

func (s *Store) CreateCase(c Case) error {
	_, err := s.db.Exec(`
		INSERT INTO cases (`+caseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.SituationType, c.Summary,
		orDefault(c.ConstraintFlags, "[]"), orDefault(c.RiskFlags, "[]"),
		c.TimePerWeekHours, c.BudgetPerWeekUSD, c.Distance, c.Energy,
		c.SupportNetwork, c.HardLimits,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCase(id string) (Case, error) {
	row := s.db.QueryRow(`SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	return scanCase(row)
}

func (s *Store) ListCasesByUser(userID string) ([]Case, error) {
	rows, err := s.db.Query(`SELECT `+caseColumns+` FROM cases WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// UpdateCase updates the mutable case fields and stamps updated_at.
func (s *Store) UpdateCase(c Case) error {
	res, err := s.db.Exec(`
		UPDATE cases SET situation_type = ?, summary = ?, constraint_flags = ?, risk_flags = ?,
			time_per_week_hours = ?, budget_per_week_usd = ?, distance = ?, energy = ?,
			support_network = ?, hard_limits = ?, updated_at = ?
		WHERE id = ?`,
		c.SituationType, c.Summary,
		orDefault(c.ConstraintFlags, "[]"), orDefault(c.RiskFlags, "[]"),
		c.TimePerWeekHours, c.BudgetPerWeekUSD, c.Distance, c.Energy,
		c.SupportNetwork, c.HardLimits,
		time.Now().UTC().Format(time.RFC3339), c.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (Case, error) {
	var c Case
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.UserID, &c.SituationType, &c.Summary, &c.ConstraintFlags, &c.RiskFlags,
		&c.TimePerWeekHours, &c.BudgetPerWeekUSD, &c.Distance, &c.Energy, &c.SupportNetwork, &c.HardLimits,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Case{}, ErrNotFound
	}
	if err != nil {
		return Case{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Case{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Case{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}
