package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatcommerce/internal/credits"
	"chatcommerce/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicCompleter struct{}

func (panicCompleter) Complete(context.Context, llm.CompleteRequest) (*llm.Reply, error) {
	panic("nil map write in provider adapter")
}

type countingSend struct {
	texts []string
	err   error
}

func (c *countingSend) send(_ context.Context, text string) error {
	c.texts = append(c.texts, text)
	return c.err
}

func newTestBoundary(t *testing.T, completer Completer) (*Boundary, *countingSend) {
	t.Helper()
	p, _ := newTestPipeline(t, &fakeCompleter{}, &fakeRunner{})
	if completer != nil {
		p.LLM = completer
	}
	sender := &countingSend{}
	return &Boundary{
		Pipeline: p,
		Config:   p.Config,
		Metrics:  p.Metrics,
	}, sender
}

func TestBoundaryPassesThroughSuccess(t *testing.T) {
	completer := &fakeCompleter{replies: []*llm.Reply{{Text: "Bonjour!"}}}
	b, sender := newTestBoundary(t, completer)

	result, err := b.Run(context.Background(), turnInput(candleCatalog()), sender.send)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour!", result.ReplyText)
	assert.Empty(t, sender.texts, "a successful turn never triggers the fallback")
}

func TestBoundarySendsFallbackExactlyOnce(t *testing.T) {
	completer := &fakeCompleter{errs: []error{errors.New("provider down")}}
	b, sender := newTestBoundary(t, completer)
	b.Config.FallbackReply = "Désolé, je rencontre un problème technique. Veuillez réessayer."

	result, err := b.Run(context.Background(), turnInput(candleCatalog()), sender.send)
	assert.Nil(t, result)
	require.Error(t, err)
	require.Len(t, sender.texts, 1)
	assert.Equal(t, "Désolé, je rencontre un problème technique. Veuillez réessayer.", sender.texts[0])
}

func TestBoundaryDoesNotRetryFailedFallbackSend(t *testing.T) {
	completer := &fakeCompleter{errs: []error{errors.New("provider down")}}
	b, sender := newTestBoundary(t, completer)
	sender.err = errors.New("socket closed")

	_, err := b.Run(context.Background(), turnInput(candleCatalog()), sender.send)
	require.Error(t, err)
	assert.Len(t, sender.texts, 1, "a failed fallback send is logged, never retried")
}

func TestBoundaryRecoversFromPanic(t *testing.T) {
	b, sender := newTestBoundary(t, panicCompleter{})

	result, err := b.Run(context.Background(), turnInput(candleCatalog()), sender.send)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn panicked")
	assert.Len(t, sender.texts, 1)
}

func TestBoundarySkipsSilentlyWhenOutOfCredits(t *testing.T) {
	b, sender := newTestBoundary(t, nil)
	b.Pipeline.Ledger.(*credits.MemoryLedger).Seed("merchant-1", 0)

	_, err := b.Run(context.Background(), turnInput(candleCatalog()), sender.send)
	require.Error(t, err)
	assert.Empty(t, sender.texts, "an exhausted balance must not message the customer")
}

func TestBoundaryAppliesTurnDeadline(t *testing.T) {
	slow := completeFunc(func(ctx context.Context, _ llm.CompleteRequest) (*llm.Reply, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &llm.Reply{Text: "trop tard"}, nil
		}
	})
	b, sender := newTestBoundary(t, slow)
	b.Config.TurnTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := b.Run(context.Background(), turnInput(candleCatalog()), sender.send)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, sender.texts, 1)
}

func TestBoundaryFallbackSendOutlivesTurnDeadline(t *testing.T) {
	slow := completeFunc(func(ctx context.Context, _ llm.CompleteRequest) (*llm.Reply, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	b, _ := newTestBoundary(t, slow)
	b.Config.TurnTimeout = 20 * time.Millisecond

	var sendCtxErr error
	sent := 0
	send := func(ctx context.Context, _ string) error {
		sent++
		sendCtxErr = ctx.Err()
		return ctx.Err()
	}

	_, err := b.Run(context.Background(), turnInput(candleCatalog()), send)
	require.Error(t, err)
	assert.Equal(t, 1, sent)
	assert.NoError(t, sendCtxErr, "the apology must not inherit the expired turn deadline")
}

func TestBoundaryNilSendStillReportsError(t *testing.T) {
	completer := &fakeCompleter{errs: []error{errors.New("provider down")}}
	b, _ := newTestBoundary(t, completer)

	_, err := b.Run(context.Background(), turnInput(candleCatalog()), nil)
	require.Error(t, err)
}

// completeFunc adapts a function to the Completer interface.
type completeFunc func(ctx context.Context, req llm.CompleteRequest) (*llm.Reply, error)

func (f completeFunc) Complete(ctx context.Context, req llm.CompleteRequest) (*llm.Reply, error) {
	return f(ctx, req)
}
