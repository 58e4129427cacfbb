package store

import (
	"context"
	"fmt"

	"chatcommerce/internal/db"
)

// Store is the persistence layer for agents, products, orders,
// bookings and conversation history.
type Store struct {
	DB db.Querier
}

func New(q db.Querier) *Store {
	return &Store{DB: q}
}

// Agent is the merchant-side configuration of one assistant.
type Agent struct {
	ID                string
	UserID            string
	Name              string
	SystemPrompt      string
	Model             string
	VoiceEnabled      bool
	PaymentMode       string
	MobileMoneyOrange string
	MobileMoneyMTN    string
	MobileMoneyWave   string
	EscalationPhone   string
}

func (s *Store) Agent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := s.DB.QueryRow(ctx,
		`SELECT id, user_id, name,
		        COALESCE(system_prompt, ''), COALESCE(model, ''),
		        COALESCE(voice_enabled, false),
		        COALESCE(payment_mode, 'online'),
		        COALESCE(mobile_money_orange, ''), COALESCE(mobile_money_mtn, ''),
		        COALESCE(mobile_money_wave, ''), COALESCE(escalation_phone, '')
		 FROM agents WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.SystemPrompt, &a.Model, &a.VoiceEnabled,
		&a.PaymentMode, &a.MobileMoneyOrange, &a.MobileMoneyMTN, &a.MobileMoneyWave,
		&a.EscalationPhone)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", id, err)
	}
	return &a, nil
}
