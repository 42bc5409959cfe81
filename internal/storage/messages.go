package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) LogMessage(m Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, phone, direction, body, provider_message_id, in_reply_to, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Phone, string(m.Direction), m.Body, m.ProviderMessageID, m.InReplyTo,
		orDefault(m.Raw, "{}"), m.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetInboundByProviderID looks up an inbound message by the provider's
// message id. This is the first half of the webhook idempotency check.
func (s *Store) GetInboundByProviderID(providerMessageID string) (Message, error) {
	row := s.db.QueryRow(`
		SELECT id, phone, direction, body, provider_message_id, in_reply_to, raw, created_at
		FROM messages WHERE direction = ? AND provider_message_id = ?
		ORDER BY id ASC LIMIT 1`,
		string(DirectionIn), providerMessageID)
	return scanMessage(row)
}

// GetReplyTo returns the outbound reply previously sent for the inbound
// message with the given provider id. This is the replay half of the
// idempotency check: the stored reply text is re-sent verbatim instead of
// re-running the pipeline.
func (s *Store) GetReplyTo(providerMessageID string) (Message, error) {
	row := s.db.QueryRow(`
		SELECT id, phone, direction, body, provider_message_id, in_reply_to, raw, created_at
		FROM messages WHERE direction = ? AND in_reply_to = ?
		ORDER BY id ASC LIMIT 1`,
		string(DirectionOut), providerMessageID)
	return scanMessage(row)
}

func (s *Store) ListMessagesByPhone(phone string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, phone, direction, body, provider_message_id, in_reply_to, raw, created_at
		FROM messages WHERE phone = ? ORDER BY id DESC LIMIT ?`, phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var direction, createdAt string
	err := row.Scan(&m.ID, &m.Phone, &direction, &m.Body, &m.ProviderMessageID, &m.InReplyTo, &m.Raw, &createdAt)
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	m.Direction = Direction(direction)
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Message{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return m, nil
}
