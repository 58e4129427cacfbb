package store

import (
	"context"
	"fmt"
	"time"
)

type StoredMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// History returns the last limit messages of a conversation in
// chronological order.
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]StoredMessage, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT role, content, created_at
		 FROM (SELECT role, content, created_at
		       FROM messages
		       WHERE conversation_id = $1
		       ORDER BY created_at DESC
		       LIMIT $2) latest
		 ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return messages, nil
}

func (s *Store) SaveMessage(ctx context.Context, conversationID, role, content string) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, now())`,
		conversationID, role, content,
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}
