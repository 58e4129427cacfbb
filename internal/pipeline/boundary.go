package pipeline

import (
	"context"
	"fmt"
	"time"

	"chatcommerce/internal/config"
	"chatcommerce/internal/credits"
	"chatcommerce/internal/logging"
	"chatcommerce/internal/telemetry"
)

// fallbackSendTimeout bounds the apology delivery on its own clock.
// The turn deadline has usually expired by the time it matters.
const fallbackSendTimeout = 10 * time.Second

// SendFunc delivers one outbound text to the customer.
type SendFunc func(ctx context.Context, text string) error

// Boundary is the outermost guard around a turn. Whatever goes wrong
// inside, panic included, the customer gets at most one fallback
// message and the process keeps serving other conversations.
type Boundary struct {
	Pipeline *Pipeline
	Config   *config.Config
	Metrics  *telemetry.GenAIMetrics
}

// Run processes one turn under the configured deadline. On any
// failure except an exhausted credit balance it sends the fallback
// reply exactly once; a failed send is logged, never retried. An
// exhausted balance skips the turn silently so the customer is not
// spammed while the merchant recharges.
func (b *Boundary) Run(ctx context.Context, in TurnInput, send SendFunc) (*TurnResult, error) {
	if b.Config.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Config.TurnTimeout)
		defer cancel()
	}

	result, err := b.safeProcess(ctx, in)
	if err == nil {
		return result, nil
	}

	if credits.IsInsufficient(err) {
		logging.Warn(ctx).Err(err).
			Str("agent_id", in.Agent.ID).
			Str("conversation_id", in.ConversationID).
			Msg("turn skipped, merchant out of credits")
		return nil, err
	}

	logging.Error(ctx).Err(err).
		Str("agent_id", in.Agent.ID).
		Str("conversation_id", in.ConversationID).
		Msg("turn failed, sending fallback reply")

	if b.Metrics != nil {
		b.Metrics.FallbackReplies.Add(ctx, 1)
	}
	if send != nil {
		// The turn context may already be past its deadline, notably
		// when the timeout is the failure. The apology gets a fresh
		// one so it still reaches the customer.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackSendTimeout)
		defer cancel()
		if sendErr := send(sendCtx, b.Config.FallbackReply); sendErr != nil {
			logging.Error(ctx).Err(sendErr).Msg("fallback reply delivery failed")
		}
	}

	return nil, err
}

// safeProcess converts a pipeline panic into an error so one broken
// turn cannot take the server down.
func (b *Boundary) safeProcess(ctx context.Context, in TurnInput) (result *TurnResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("turn panicked: %v", r)
		}
	}()
	return b.Pipeline.ProcessTurn(ctx, in)
}
