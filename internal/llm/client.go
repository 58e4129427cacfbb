package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatcommerce/internal/telemetry"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the conversation window sent to a provider.
// Tool result messages carry the ToolCallID they answer; assistant
// messages may carry the tool calls the model emitted.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a tool invocation requested by the model. Arguments is
// the raw JSON payload exactly as the provider returned it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolDefinition describes one callable tool. Parameters is a JSON
// Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

type CompleteRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
	Stage       string
}

type Reply struct {
	Text         string
	ToolCalls    []ToolCall
	Model        string
	InputTokens  int
	OutputTokens int
	FinishReason string
	CostUSD      float64
}

type Provider interface {
	Complete(ctx context.Context, req CompleteRequest) (*Reply, error)
	Name() string
}

type Client struct {
	Primary              Provider
	Fallback             Provider
	Tracer               trace.Tracer
	Metrics              *telemetry.GenAIMetrics
	PrimaryProvider      string
	FallbackProviderName string
	FallbackModel        string
	MaxAttempts          int
	BaseDelay            time.Duration
}

var providerServers = map[string]string{
	"openai":    "api.openai.com",
	"anthropic": "api.anthropic.com",
}

func (c *Client) CompleteOnce(ctx context.Context, provider Provider, providerName string, req CompleteRequest) (*Reply, error) {
	spanName := "gen_ai.chat " + req.Model
	start := time.Now()

	ctx, span := c.Tracer.Start(ctx, spanName)
	defer span.End()

	span.SetAttributes(
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.provider.name", providerName),
		attribute.String("gen_ai.request.model", req.Model),
		attribute.String("server.address", providerServers[providerName]),
		attribute.Int("server.port", 443),
		attribute.Float64("gen_ai.request.temperature", req.Temperature),
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
		attribute.Int("gen_ai.request.tool_count", len(req.Tools)),
	)

	if req.Stage != "" {
		span.SetAttributes(attribute.String("turn.stage", req.Stage))
	}

	if last := lastUserContent(req.Messages); last != "" {
		span.AddEvent("gen_ai.user.message", trace.WithAttributes(
			attribute.String("gen_ai.prompt", truncate(last, 1000)),
		))
	}
	if req.System != "" {
		span.AddEvent("gen_ai.system.message", trace.WithAttributes(
			attribute.String("gen_ai.system_instructions", truncate(req.System, 500)),
		))
	}

	reply, err := provider.Complete(ctx, req)
	duration := time.Since(start).Seconds()

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.type", classifyError(err)))
		if c.Metrics != nil {
			c.Metrics.ErrorCount.Add(ctx, 1,
				telemetry.WithProviderModel(providerName, req.Model),
			)
		}
		return nil, err
	}

	reply.CostUSD = CalculateCost(reply.Model, reply.InputTokens, reply.OutputTokens)

	span.SetAttributes(
		attribute.String("gen_ai.response.model", reply.Model),
		attribute.Int("gen_ai.usage.input_tokens", reply.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", reply.OutputTokens),
		attribute.Float64("gen_ai.usage.cost_usd", reply.CostUSD),
		attribute.Int("gen_ai.response.tool_calls", len(reply.ToolCalls)),
	)
	if reply.FinishReason != "" {
		span.SetAttributes(attribute.String("gen_ai.response.finish_reasons", reply.FinishReason))
	}

	span.AddEvent("gen_ai.assistant.message", trace.WithAttributes(
		attribute.String("gen_ai.completion", truncate(reply.Text, 2000)),
	))

	if c.Metrics != nil {
		c.Metrics.RecordGenAIMetrics(ctx, telemetry.RecordParams{
			Provider:     providerName,
			Model:        reply.Model,
			Stage:        req.Stage,
			InputTokens:  reply.InputTokens,
			OutputTokens: reply.OutputTokens,
			DurationSec:  duration,
		})
	}

	return reply, nil
}

// CompleteWithRetry runs CompleteOnce under a linear backoff: attempt
// n waits n*BaseDelay before retrying. Auth and content-policy errors
// abort immediately.
func (c *Client) CompleteWithRetry(ctx context.Context, provider Provider, providerName string, req CompleteRequest) (*Reply, error) {
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := c.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	reply, err := backoff.Retry(ctx, func() (*Reply, error) {
		reply, err := c.CompleteOnce(ctx, provider, providerName, req)
		if err != nil {
			if isFatal(err) {
				return nil, backoff.Permanent(err)
			}
			if c.Metrics != nil {
				c.Metrics.RetryCount.Add(ctx, 1,
					telemetry.WithProviderModel(providerName, req.Model),
				)
			}
			return nil, err
		}
		return reply, nil
	},
		backoff.WithBackOff(&linearBackOff{base: baseDelay}),
		backoff.WithMaxTries(uint(maxAttempts)),
	)

	return reply, err
}

// Complete tries the primary provider with retries, then the fallback
// provider with its own retry budget. The fallback runs with its own
// model name since providers do not share model identifiers.
func (c *Client) Complete(ctx context.Context, req CompleteRequest) (*Reply, error) {
	reply, err := c.CompleteWithRetry(ctx, c.Primary, c.PrimaryProvider, req)
	if err == nil {
		return reply, nil
	}

	if c.Fallback == nil {
		return nil, fmt.Errorf("primary provider %s failed after retries: %w", c.PrimaryProvider, err)
	}

	if c.Metrics != nil {
		c.Metrics.FallbackCount.Add(ctx, 1)
	}

	fbReq := req
	if c.FallbackModel != "" {
		fbReq.Model = c.FallbackModel
	}
	return c.CompleteWithRetry(ctx, c.Fallback, c.FallbackProviderName, fbReq)
}

// linearBackOff waits base, 2*base, 3*base between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
