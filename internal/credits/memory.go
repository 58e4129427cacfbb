package credits

import (
	"context"
	"sync"
)

// MemoryLedger is an in-process Ledger for development and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int)}
}

// Seed sets a balance directly, bypassing the non-negative rule.
func (l *MemoryLedger) Seed(userID string, balance int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *MemoryLedger) Deduct(_ context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[userID]
	if amount <= 0 {
		return balance, nil
	}
	if balance < amount {
		return 0, &InsufficientCreditsError{UserID: userID, Required: amount}
	}
	l.balances[userID] = balance - amount
	return l.balances[userID], nil
}

func (l *MemoryLedger) Add(_ context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return l.balances[userID], nil
}
