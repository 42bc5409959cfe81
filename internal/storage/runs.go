package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveRun(r LLMRun) error {
	_, err := s.db.Exec(`
		INSERT INTO llm_runs (id, case_id, stage, prompt_version, model, input_hash, output, latency_ms, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CaseID, string(r.Stage), r.PromptVersion, r.Model, r.InputHash,
		r.Output, r.LatencyMs, r.TraceID, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetRun(id string) (LLMRun, error) {
	var r LLMRun
	var stage, createdAt string
	err := s.db.QueryRow(`
		SELECT id, case_id, stage, prompt_version, model, input_hash, output, latency_ms, trace_id, created_at
		FROM llm_runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.CaseID, &stage, &r.PromptVersion, &r.Model, &r.InputHash,
		&r.Output, &r.LatencyMs, &r.TraceID, &createdAt)
	if err == sql.ErrNoRows {
		return LLMRun{}, ErrNotFound
	}
	if err != nil {
		return LLMRun{}, err
	}
	r.Stage = Stage(stage)
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return LLMRun{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

// ListRunsByCase returns runs for a case in insertion order (run IDs are
// ULIDs, so lexicographic id order is chronological).
func (s *Store) ListRunsByCase(caseID string) ([]LLMRun, error) {
	rows, err := s.db.Query(`
		SELECT id, case_id, stage, prompt_version, model, input_hash, output, latency_ms, trace_id, created_at
		FROM llm_runs WHERE case_id = ? ORDER BY id ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LLMRun
	for rows.Next() {
		var r LLMRun
		var stage, createdAt string
		if err := rows.Scan(&r.ID, &r.CaseID, &stage, &r.PromptVersion, &r.Model, &r.InputHash,
			&r.Output, &r.LatencyMs, &r.TraceID, &createdAt); err != nil {
			return nil, err
		}
		r.Stage = Stage(stage)
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) SaveEval(e LLMEval) error {
	_, err := s.db.Exec(`
		INSERT INTO llm_evals (id, run_id, metric, score, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Metric, e.Score, e.Verdict, e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListEvalsByRun(runID string) ([]LLMEval, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, metric, score, verdict, created_at
		FROM llm_evals WHERE run_id = ? ORDER BY created_at ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LLMEval
	for rows.Next() {
		var e LLMEval
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Metric, &e.Score, &e.Verdict, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
