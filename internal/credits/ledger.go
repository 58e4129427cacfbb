package credits

import (
	"context"
	"errors"
	"fmt"

	"chatcommerce/internal/db"

	"github.com/jackc/pgx/v5"
)

// Message and action costs, in credits.
const (
	MessageCost = 1
	VoiceCost   = 4
)

// Cost returns the credit cost of one conversational turn.
func Cost(voiceEnabled bool) int {
	if voiceEnabled {
		return MessageCost + VoiceCost
	}
	return MessageCost
}

// InsufficientCreditsError is returned when an account balance cannot
// cover a deduction. It is a normal business outcome, not a system
// failure.
type InsufficientCreditsError struct {
	UserID   string
	Required int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for user %s: %d required", e.UserID, e.Required)
}

// IsInsufficient reports whether err is an insufficient-credits outcome.
func IsInsufficient(err error) bool {
	var ice *InsufficientCreditsError
	return errors.As(err, &ice)
}

// Ledger manages per-merchant credit balances. Deduct must be atomic:
// concurrent deductions may never drive a balance negative.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Deduct(ctx context.Context, userID string, amount int) (int, error)
	Add(ctx context.Context, userID string, amount int) (int, error)
}

// PGLedger stores balances in the users table. Deduction is a single
// conditional UPDATE so the check and the write happen in one
// statement under row-level locking.
type PGLedger struct {
	DB db.Querier
}

func NewPGLedger(q db.Querier) *PGLedger {
	return &PGLedger{DB: q}
}

func (l *PGLedger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := l.DB.QueryRow(ctx,
		`SELECT credits_balance FROM users WHERE id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

func (l *PGLedger) Deduct(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return l.Balance(ctx, userID)
	}

	var remaining int
	err := l.DB.QueryRow(ctx,
		`UPDATE users
		 SET credits_balance = credits_balance - $2
		 WHERE id = $1 AND credits_balance >= $2
		 RETURNING credits_balance`,
		userID, amount,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &InsufficientCreditsError{UserID: userID, Required: amount}
	}
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}
	return remaining, nil
}

func (l *PGLedger) Add(ctx context.Context, userID string, amount int) (int, error) {
	var balance int
	err := l.DB.QueryRow(ctx,
		`UPDATE users
		 SET credits_balance = credits_balance + $2
		 WHERE id = $1
		 RETURNING credits_balance`,
		userID, amount,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return balance, nil
}
