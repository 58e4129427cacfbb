package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatcommerce/internal/catalog"
	"chatcommerce/internal/config"
	"chatcommerce/internal/credits"
	"chatcommerce/internal/llm"
	"chatcommerce/internal/logging"
	"chatcommerce/internal/rag"
	"chatcommerce/internal/store"
	"chatcommerce/internal/telemetry"
	"chatcommerce/internal/tools"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Completer is the completion surface of llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.CompleteRequest) (*llm.Reply, error)
}

// ToolRunner executes one validated tool call.
type ToolRunner interface {
	Execute(ctx context.Context, ec tools.ExecContext, name string, args json.RawMessage) (*tools.Result, error)
}

// TurnInput bundles everything one turn operates on. The caller owns
// loading it; the pipeline owns what happens to it.
type TurnInput struct {
	Agent          *store.Agent
	Catalog        *catalog.Catalog
	ConversationID string
	CustomerPhone  string
	Message        string
	History        []llm.Message
	VoiceEnabled   bool
}

type TurnResult struct {
	ReplyText       string
	Images          []tools.ImagePayload
	ToolCallCount   int
	InputTokens     int
	OutputTokens    int
	CostUSD         float64
	CreditsUsed     int
	IntegrityIssues []PriceIssue
	DurationMS      int64
	TraceID         string
}

type Pipeline struct {
	LLM       Completer
	Executor  ToolRunner
	Ledger    credits.Ledger
	Retriever rag.Retriever
	Tracer    trace.Tracer
	Metrics   *telemetry.GenAIMetrics
	Config    *config.Config
}

// ProcessTurn drives one inbound message through context building,
// completion, tool dispatch, a second completion when tools ran, and
// the price integrity check.
func (p *Pipeline) ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	start := time.Now()

	ctx, span := p.Tracer.Start(ctx, "turn process")
	defer span.End()

	span.SetAttributes(
		attribute.String("turn.agent_id", in.Agent.ID),
		attribute.String("turn.conversation_id", in.ConversationID),
	)

	result := &TurnResult{TraceID: span.SpanContext().TraceID().String()}

	// Gate on credits before spending a single completion token. A
	// read failure counts as insufficient, matching the deduction's
	// own refusal path.
	turnCost := credits.Cost(in.VoiceEnabled)
	balance, err := p.Ledger.Balance(ctx, in.Agent.UserID)
	if err != nil {
		logging.Warn(ctx).Err(err).Str("user_id", in.Agent.UserID).Msg("balance check failed, treating as insufficient")
		balance = 0
	}
	if balance < turnCost {
		p.countInsufficient(ctx)
		span.SetStatus(codes.Error, "insufficient credits")
		return nil, &credits.InsufficientCreditsError{UserID: in.Agent.UserID, Required: turnCost}
	}

	// BUILD_CONTEXT
	messages := p.buildContext(ctx, in)

	// FIRST_COMPLETION
	reply, err := p.complete(ctx, in, messages, tools.Definitions(), "first_completion")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("first completion failed: %w", err)
	}
	result.InputTokens += reply.InputTokens
	result.OutputTokens += reply.OutputTokens
	result.CostUSD += reply.CostUSD

	// TOOL_DISPATCH + SECOND_COMPLETION, only when the model asked for
	// tools.
	if len(reply.ToolCalls) > 0 {
		result.ToolCallCount = len(reply.ToolCalls)

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   reply.Text,
			ToolCalls: reply.ToolCalls,
		})
		messages = p.dispatchTools(ctx, in, reply.ToolCalls, messages, result)

		second, err := p.complete(ctx, in, messages, nil, "second_completion")
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("second completion failed: %w", err)
		}
		result.InputTokens += second.InputTokens
		result.OutputTokens += second.OutputTokens
		result.CostUSD += second.CostUSD
		result.ReplyText = second.Text
	} else {
		result.ReplyText = reply.Text
	}

	// INTEGRITY_CHECK
	p.checkIntegrity(ctx, result, in.Catalog)

	// DONE: bill the turn itself. Best effort: the reply is already
	// produced, a failed deduction must not retract it.
	if _, err := p.Ledger.Deduct(ctx, in.Agent.UserID, turnCost); err != nil {
		if credits.IsInsufficient(err) {
			p.countInsufficient(ctx)
		}
		logging.Warn(ctx).Err(err).Str("user_id", in.Agent.UserID).Msg("turn billing failed")
	} else {
		result.CreditsUsed += turnCost
		if p.Metrics != nil {
			p.Metrics.CreditsDeducted.Add(ctx, int64(turnCost))
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	if p.Metrics != nil {
		p.Metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}

	return result, nil
}

// buildContext assembles the system-side transcript: history window,
// knowledge-base snippets (best effort) and the new user message.
func (p *Pipeline) buildContext(ctx context.Context, in TurnInput) []llm.Message {
	ctx, span := p.Tracer.Start(ctx, "turn build_context")
	defer span.End()

	window := p.Config.HistoryWindow
	history := in.History
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, history...)

	userContent := in.Message
	if p.Retriever != nil {
		if snippets := p.Retriever.Search(ctx, in.Agent.ID, in.Message); len(snippets) > 0 {
			span.SetAttributes(attribute.Int("turn.rag_snippets", len(snippets)))
			kb := "Informations de la base de connaissances:\n"
			for _, s := range snippets {
				kb += "- " + s.Content + "\n"
			}
			userContent = kb + "\n" + userContent
		}
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userContent})
	return messages
}

func (p *Pipeline) complete(ctx context.Context, in TurnInput, messages []llm.Message, defs []llm.ToolDefinition, stage string) (*llm.Reply, error) {
	model := in.Agent.Model
	if model == "" {
		model = p.Config.LLMModel
	}
	return p.LLM.Complete(ctx, llm.CompleteRequest{
		Model:       model,
		System:      in.Agent.SystemPrompt,
		Messages:    messages,
		Tools:       defs,
		Temperature: p.Config.DefaultTemperature,
		MaxTokens:   p.Config.DefaultMaxTokens,
		Stage:       stage,
	})
}

// dispatchTools runs the requested tool calls strictly in request
// order. One invalid or failing call becomes a failure tool-result and
// never aborts its siblings.
func (p *Pipeline) dispatchTools(ctx context.Context, in TurnInput, calls []llm.ToolCall, messages []llm.Message, result *TurnResult) []llm.Message {
	ctx, span := p.Tracer.Start(ctx, "turn tool_dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("turn.tool_calls", len(calls)))

	ec := tools.ExecContext{
		Agent:          in.Agent,
		Catalog:        in.Catalog,
		ConversationID: in.ConversationID,
	}

	for _, call := range calls {
		if p.Metrics != nil {
			p.Metrics.ToolCalls.Add(ctx, 1, telemetry.WithToolName(call.Name))
		}

		payload := p.runTool(ctx, ec, in, call, result)
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    payload,
		})
	}

	return messages
}

func (p *Pipeline) runTool(ctx context.Context, ec tools.ExecContext, in TurnInput, call llm.ToolCall, result *TurnResult) string {
	validation := ValidateToolCall(call.Name, call.Arguments, in.Catalog)
	if p.Metrics != nil {
		p.Metrics.ToolValid.Add(ctx, 1, telemetry.WithBoolAttr("turn.tool_valid", validation.Valid))
	}
	if !validation.Valid {
		logging.Info(ctx).Str("tool", call.Name).Str("reason", validation.Error).Msg("tool call blocked by pre-validation")
		return failurePayload(validation.Error)
	}

	// Billable actions are paid for before they run, so a drained
	// balance refuses the action instead of giving it away.
	if tools.Billable(call.Name) {
		if _, err := p.Ledger.Deduct(ctx, in.Agent.UserID, credits.MessageCost); err != nil {
			if credits.IsInsufficient(err) {
				p.countInsufficient(ctx)
				return failurePayload("Crédits insuffisants pour exécuter cette action. Le commerçant doit recharger son compte.")
			}
			logging.Error(ctx).Err(err).Str("tool", call.Name).Msg("credit deduction failed")
			return failurePayload("Action momentanément indisponible. Réessayez plus tard.")
		}
		result.CreditsUsed += credits.MessageCost
		if p.Metrics != nil {
			p.Metrics.CreditsDeducted.Add(ctx, 1, telemetry.WithToolName(call.Name))
		}
	}

	res, err := p.Executor.Execute(ctx, ec, call.Name, call.Arguments)
	if err != nil {
		logging.Error(ctx).Err(err).Str("tool", call.Name).Msg("tool execution failed")
		return failurePayload("L'action a échoué. Réessayez ou contactez le support.")
	}
	if res.Image != nil {
		result.Images = append(result.Images, *res.Image)
	}
	return res.Payload
}

func (p *Pipeline) checkIntegrity(ctx context.Context, result *TurnResult, cat *catalog.Catalog) {
	ctx, span := p.Tracer.Start(ctx, "turn integrity_check")
	defer span.End()

	report := VerifyReplyIntegrity(result.ReplyText, cat)
	span.SetAttributes(
		attribute.Bool("turn.integrity_valid", report.Valid),
		attribute.Int("turn.integrity_issues", len(report.Issues)),
	)
	if report.Valid {
		return
	}

	// Log-only: blocking or regenerating over a heuristic would trade
	// occasional hallucinations for reply loss.
	result.IntegrityIssues = report.Issues
	for _, issue := range report.Issues {
		logging.Warn(ctx).
			Int("mentioned_price", issue.MentionedPrice).
			Ints("valid_sample", issue.ValidPrices).
			Msg("price integrity issue")
	}
	if p.Metrics != nil {
		p.Metrics.IntegrityIssues.Add(ctx, int64(len(report.Issues)))
	}
}

func (p *Pipeline) countInsufficient(ctx context.Context) {
	if p.Metrics != nil {
		p.Metrics.InsufficientHits.Add(ctx, 1)
	}
}

func failurePayload(msg string) string {
	b, _ := json.Marshal(map[string]any{"success": false, "error": msg})
	return string(b)
}
