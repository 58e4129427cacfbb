package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatcommerce/internal/catalog"
	"chatcommerce/internal/channel"
	"chatcommerce/internal/credits"
	"chatcommerce/internal/llm"
	"chatcommerce/internal/logging"
	"chatcommerce/internal/pipeline"
	"chatcommerce/internal/store"
	"chatcommerce/internal/tools"

	"github.com/jackc/pgx/v5"
)

// TurnStore is the slice of the data layer one turn reads and writes.
type TurnStore interface {
	Agent(ctx context.Context, id string) (*store.Agent, error)
	LoadCatalog(ctx context.Context, agentID string) (*catalog.Catalog, error)
	GetOrCreateConversation(ctx context.Context, agentID, userID, phone string) (*store.Conversation, error)
	History(ctx context.Context, conversationID string, limit int) ([]store.StoredMessage, error)
	SaveMessage(ctx context.Context, conversationID, role, content string) error
}

// TurnRunner processes one turn behind the failure boundary.
type TurnRunner interface {
	Run(ctx context.Context, in pipeline.TurnInput, send pipeline.SendFunc) (*pipeline.TurnResult, error)
}

type TurnRequest struct {
	AgentID       string `json:"agent_id"`
	CustomerPhone string `json:"customer_phone"`
	Message       string `json:"message"`
}

type TurnResponse struct {
	ConversationID  string   `json:"conversation_id,omitempty"`
	Reply           string   `json:"reply,omitempty"`
	Images          []string `json:"images,omitempty"`
	ToolCalls       int      `json:"tool_calls"`
	CreditsUsed     int      `json:"credits_used"`
	CostUSD         float64  `json:"cost_usd"`
	IntegrityIssues int      `json:"integrity_issues"`
	DurationMS      int64    `json:"duration_ms"`
	TraceID         string   `json:"trace_id,omitempty"`
	Skipped         string   `json:"skipped,omitempty"`
}

type TurnDeps struct {
	Store         TurnStore
	Runner        TurnRunner
	Sessions      *channel.Registry
	Limiter       *channel.RateLimiter
	HistoryWindow int
}

func TurnHandler(d TurnDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.AgentID == "" || req.CustomerPhone == "" || req.Message == "" {
			writeError(w, http.StatusBadRequest, "agent_id, customer_phone and message are required")
			return
		}

		ctx := r.Context()
		phone := tools.NormalizePhone(req.CustomerPhone)

		if d.Limiter != nil && !d.Limiter.Allow(ctx, req.AgentID, phone) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		agent, err := d.Store.Agent(ctx, req.AgentID)
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		conv, err := d.Store.GetOrCreateConversation(ctx, agent.ID, agent.UserID, phone)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !conv.IsActive() {
			writeJSON(w, http.StatusOK, TurnResponse{
				ConversationID: conv.ID,
				Skipped:        "conversation_" + conv.Status,
			})
			return
		}

		cat, err := d.Store.LoadCatalog(ctx, agent.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		stored, err := d.Store.History(ctx, conv.ID, d.HistoryWindow)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		in := pipeline.TurnInput{
			Agent:          agent,
			Catalog:        cat,
			ConversationID: conv.ID,
			CustomerPhone:  phone,
			Message:        req.Message,
			History:        historyMessages(stored),
			VoiceEnabled:   agent.VoiceEnabled,
		}

		result, err := d.Runner.Run(ctx, in, d.sendFunc(agent.ID, phone))
		if credits.IsInsufficient(err) {
			writeJSON(w, http.StatusPaymentRequired, TurnResponse{
				ConversationID: conv.ID,
				Skipped:        "insufficient_credits",
			})
			return
		}
		if err != nil {
			// The boundary already sent the fallback reply.
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		d.persistTranscript(r, conv.ID, req.Message, result.ReplyText)
		d.deliver(r, agent.ID, phone, result)

		resp := TurnResponse{
			ConversationID:  conv.ID,
			Reply:           result.ReplyText,
			ToolCalls:       result.ToolCallCount,
			CreditsUsed:     result.CreditsUsed,
			CostUSD:         result.CostUSD,
			IntegrityIssues: len(result.IntegrityIssues),
			DurationMS:      result.DurationMS,
			TraceID:         result.TraceID,
		}
		for _, img := range result.Images {
			resp.Images = append(resp.Images, img.URL)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// sendFunc resolves the live channel session for fallback delivery.
// Without a registered session the boundary still reports the error
// and the HTTP response carries it.
func (d TurnDeps) sendFunc(agentID, phone string) pipeline.SendFunc {
	if d.Sessions == nil {
		return nil
	}
	sender, err := d.Sessions.Get(agentID)
	if err != nil {
		return nil
	}
	return func(ctx context.Context, text string) error {
		return sender.SendText(ctx, phone, text)
	}
}

// deliver pushes the reply and any images over the live channel when
// one is registered. Delivery problems are logged, the turn result
// stands either way.
func (d TurnDeps) deliver(r *http.Request, agentID, phone string, result *pipeline.TurnResult) {
	if d.Sessions == nil {
		return
	}
	sender, err := d.Sessions.Get(agentID)
	if err != nil {
		return
	}

	ctx := r.Context()
	if result.ReplyText != "" {
		if err := sender.SendText(ctx, phone, result.ReplyText); err != nil {
			logging.Error(ctx).Err(err).Str("agent_id", agentID).Msg("reply delivery failed")
		}
	}
	for _, img := range result.Images {
		if err := sender.SendImage(ctx, phone, img.URL, img.Caption); err != nil {
			logging.Error(ctx).Err(err).Str("agent_id", agentID).Msg("image delivery failed")
		}
	}
}

func (d TurnDeps) persistTranscript(r *http.Request, conversationID, userMsg, reply string) {
	ctx := r.Context()
	if err := d.Store.SaveMessage(ctx, conversationID, "user", userMsg); err != nil {
		logging.Error(ctx).Err(err).Msg("failed to save user message")
	}
	if reply == "" {
		return
	}
	if err := d.Store.SaveMessage(ctx, conversationID, "assistant", reply); err != nil {
		logging.Error(ctx).Err(err).Msg("failed to save assistant message")
	}
}

func historyMessages(stored []store.StoredMessage) []llm.Message {
	messages := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
