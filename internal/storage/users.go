package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateUser(u User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, password_hash, phone, onboarding_state, onboarding_ctx, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, nullable(u.Email), u.PasswordHash, nullable(u.Phone),
		string(u.OnboardingState), orDefault(u.OnboardingCtx, "{}"),
		u.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetUser(id string) (User, error) {
	return s.getUserBy("id", id)
}

func (s *Store) GetUserByEmail(email string) (User, error) {
	return s.getUserBy("email", email)
}

func (s *Store) GetUserByPhone(phone string) (User, error) {
	return s.getUserBy("phone", phone)
}

func (s *Store) getUserBy(column, value string) (User, error) {
	var u User
	var email, phone sql.NullString
	var state, createdAt string
	err := s.db.QueryRow(`
		SELECT id, email, password_hash, phone, onboarding_state, onboarding_ctx, created_at
		FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.ID, &email, &u.PasswordHash, &phone, &state, &u.OnboardingCtx, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.Email = email.String
	u.Phone = phone.String
	u.OnboardingState = OnboardingState(state)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	u.CreatedAt = t
	return u, nil
}

// UpdateOnboarding replaces the user's onboarding cursor and context blob.
func (s *Store) UpdateOnboarding(userID string, state OnboardingState, ctxJSON string) error {
	res, err := s.db.Exec(`UPDATE users SET onboarding_state = ?, onboarding_ctx = ? WHERE id = ?`,
		string(state), orDefault(ctxJSON, "{}"), userID)
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

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
