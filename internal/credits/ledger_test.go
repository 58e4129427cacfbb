package credits

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	assert.Equal(t, 1, Cost(false))
	assert.Equal(t, 5, Cost(true))
}

func TestMemoryLedgerDeduct(t *testing.T) {
	l := NewMemoryLedger()
	l.Seed("u1", 10)

	remaining, err := l.Deduct(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)
}

func TestMemoryLedgerInsufficient(t *testing.T) {
	l := NewMemoryLedger()
	l.Seed("u1", 2)

	_, err := l.Deduct(context.Background(), "u1", 5)
	require.Error(t, err)
	assert.True(t, IsInsufficient(err))

	// Failed deductions leave the balance untouched.
	balance, err := l.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, balance)
}

func TestMemoryLedgerZeroAmountNoOp(t *testing.T) {
	l := NewMemoryLedger()
	l.Seed("u1", 4)

	remaining, err := l.Deduct(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestMemoryLedgerConcurrentDeductNeverNegative(t *testing.T) {
	l := NewMemoryLedger()
	l.Seed("u1", 10)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = l.Deduct(context.Background(), "u1", 6)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, IsInsufficient(err))
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent deduction may win")

	balance, err := l.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance)
	assert.GreaterOrEqual(t, balance, 0)
}

func TestMemoryLedgerAdd(t *testing.T) {
	l := NewMemoryLedger()
	balance, err := l.Add(context.Background(), "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}

func TestInsufficientCreditsErrorMessage(t *testing.T) {
	err := &InsufficientCreditsError{UserID: "u1", Required: 5}
	assert.Contains(t, err.Error(), "u1")
	assert.Contains(t, err.Error(), "5")
}
