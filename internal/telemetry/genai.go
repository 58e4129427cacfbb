package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type GenAIMetrics struct {
	TokenUsage        metric.Float64Histogram
	OperationDuration metric.Float64Histogram
	RetryCount        metric.Int64Counter
	FallbackCount     metric.Int64Counter
	ErrorCount        metric.Int64Counter

	TurnDuration     metric.Float64Histogram
	ToolCalls        metric.Int64Counter
	ToolValid        metric.Int64Counter
	IntegrityIssues  metric.Int64Counter
	CreditsDeducted  metric.Int64Counter
	FallbackReplies  metric.Int64Counter
	InsufficientHits metric.Int64Counter
}

func NewGenAIMetrics(m metric.Meter) (*GenAIMetrics, error) {
	tokenUsage, err := m.Float64Histogram("gen_ai.client.token.usage",
		metric.WithUnit("{token}"),
		metric.WithDescription("Number of tokens used per LLM call"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := m.Float64Histogram("gen_ai.client.operation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall-clock duration of LLM API call"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := m.Int64Counter("gen_ai.client.retry.count",
		metric.WithUnit("{retry}"),
		metric.WithDescription("Number of retry attempts"),
	)
	if err != nil {
		return nil, err
	}

	fallbackCount, err := m.Int64Counter("gen_ai.client.fallback.count",
		metric.WithUnit("{fallback}"),
		metric.WithDescription("Number of fallback provider triggers"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := m.Int64Counter("gen_ai.client.error.count",
		metric.WithUnit("{error}"),
		metric.WithDescription("Number of LLM call errors"),
	)
	if err != nil {
		return nil, err
	}

	turnDuration, err := m.Float64Histogram("turn.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Total inbound-message-to-reply duration"),
	)
	if err != nil {
		return nil, err
	}

	toolCalls, err := m.Int64Counter("turn.tool_calls",
		metric.WithUnit("{call}"),
		metric.WithDescription("Tool calls requested by the model"),
	)
	if err != nil {
		return nil, err
	}

	toolValid, err := m.Int64Counter("turn.tool_calls.validation",
		metric.WithUnit("1"),
		metric.WithDescription("Tool-call pre-validation outcomes"),
	)
	if err != nil {
		return nil, err
	}

	integrityIssues, err := m.Int64Counter("turn.integrity.issues",
		metric.WithUnit("{issue}"),
		metric.WithDescription("Price integrity issues flagged in replies"),
	)
	if err != nil {
		return nil, err
	}

	creditsDeducted, err := m.Int64Counter("turn.credits.deducted",
		metric.WithUnit("{credit}"),
		metric.WithDescription("Credits deducted per turn and billable action"),
	)
	if err != nil {
		return nil, err
	}

	fallbackReplies, err := m.Int64Counter("turn.fallback_replies",
		metric.WithUnit("{reply}"),
		metric.WithDescription("Degraded fallback replies sent by the failure boundary"),
	)
	if err != nil {
		return nil, err
	}

	insufficientHits, err := m.Int64Counter("turn.credits.insufficient",
		metric.WithUnit("1"),
		metric.WithDescription("Turns or tool calls refused for lack of credits"),
	)
	if err != nil {
		return nil, err
	}

	return &GenAIMetrics{
		TokenUsage:        tokenUsage,
		OperationDuration: operationDuration,
		RetryCount:        retryCount,
		FallbackCount:     fallbackCount,
		ErrorCount:        errorCount,
		TurnDuration:      turnDuration,
		ToolCalls:         toolCalls,
		ToolValid:         toolValid,
		IntegrityIssues:   integrityIssues,
		CreditsDeducted:   creditsDeducted,
		FallbackReplies:   fallbackReplies,
		InsufficientHits:  insufficientHits,
	}, nil
}

type RecordParams struct {
	Provider     string
	Model        string
	Stage        string
	InputTokens  int
	OutputTokens int
	DurationSec  float64
}

func (g *GenAIMetrics) RecordGenAIMetrics(ctx context.Context, p RecordParams) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.provider.name", p.Provider),
		attribute.String("gen_ai.request.model", p.Model),
	}
	if p.Stage != "" {
		baseAttrs = append(baseAttrs, attribute.String("turn.stage", p.Stage))
	}
	attrs := metric.WithAttributes(baseAttrs...)

	g.TokenUsage.Record(ctx, float64(p.InputTokens),
		attrs,
		metric.WithAttributes(attribute.String("gen_ai.token.type", "input")),
	)
	g.TokenUsage.Record(ctx, float64(p.OutputTokens),
		attrs,
		metric.WithAttributes(attribute.String("gen_ai.token.type", "output")),
	)
	g.OperationDuration.Record(ctx, p.DurationSec, attrs)
}

func WithProviderModel(provider, model string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("gen_ai.provider.name", provider),
		attribute.String("gen_ai.request.model", model),
	)
}

func WithBoolAttr(key string, val bool) metric.MeasurementOption {
	return metric.WithAttributes(attribute.Bool(key, val))
}

func WithToolName(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("turn.tool", name))
}
