package channel

import (
	"context"
	"fmt"
	"time"

	"chatcommerce/internal/logging"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitMax    = 10
	rateLimitWindow = 60 * time.Second
)

// RateLimiter throttles inbound customer messages per (agent, phone)
// pair over a sliding window. A nil redis client disables limiting,
// and redis outages fail open: a spammy customer is cheaper than a
// dead assistant.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow reports whether another message from this customer may be
// processed now.
func (rl *RateLimiter) Allow(ctx context.Context, agentID, phone string) bool {
	if rl == nil || rl.client == nil {
		return true
	}

	key := fmt.Sprintf("ratelimit:%s:%s", agentID, phone)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("rate limiter unavailable, failing open")
		return true
	}
	if count == 1 {
		rl.client.Expire(ctx, key, rateLimitWindow)
	}

	return count <= rateLimitMax
}
