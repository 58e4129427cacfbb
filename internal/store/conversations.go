package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Conversation struct {
	ID     string
	Status string
}

// IsActive reports whether the assistant should keep answering. Paused
// and escalated conversations belong to the merchant until reopened.
func (c *Conversation) IsActive() bool {
	return c.Status == "active"
}

// GetOrCreateConversation returns the conversation for one customer
// phone on one agent, creating it on first contact.
func (s *Store) GetOrCreateConversation(ctx context.Context, agentID, userID, phone string) (*Conversation, error) {
	var c Conversation
	err := s.DB.QueryRow(ctx,
		`SELECT id, status FROM conversations
		 WHERE agent_id = $1 AND customer_phone = $2`,
		agentID, phone,
	).Scan(&c.ID, &c.Status)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	c.ID = uuid.NewString()
	c.Status = "active"
	_, err = s.DB.Exec(ctx,
		`INSERT INTO conversations (id, agent_id, user_id, customer_phone, status, created_at)
		 VALUES ($1, $2, $3, $4, 'active', now())`,
		c.ID, agentID, userID, phone,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}
