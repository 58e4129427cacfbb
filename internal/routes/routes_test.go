package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatcommerce/internal/catalog"
	"chatcommerce/internal/channel"
	"chatcommerce/internal/credits"
	"chatcommerce/internal/logging"
	"chatcommerce/internal/pipeline"
	"chatcommerce/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.Init(true)
}

type fakeTurnStore struct {
	agent        *store.Agent
	conversation *store.Conversation
	history      []store.StoredMessage
	saved        [][2]string
	agentErr     error
}

func (f *fakeTurnStore) Agent(_ context.Context, _ string) (*store.Agent, error) {
	if f.agentErr != nil {
		return nil, f.agentErr
	}
	return f.agent, nil
}

func (f *fakeTurnStore) LoadCatalog(_ context.Context, _ string) (*catalog.Catalog, error) {
	return &catalog.Catalog{}, nil
}

func (f *fakeTurnStore) GetOrCreateConversation(_ context.Context, _, _, _ string) (*store.Conversation, error) {
	return f.conversation, nil
}

func (f *fakeTurnStore) History(_ context.Context, _ string, _ int) ([]store.StoredMessage, error) {
	return f.history, nil
}

func (f *fakeTurnStore) SaveMessage(_ context.Context, _, role, content string) error {
	f.saved = append(f.saved, [2]string{role, content})
	return nil
}

type fakeTurnRunner struct {
	in     pipeline.TurnInput
	result *pipeline.TurnResult
	err    error
}

func (f *fakeTurnRunner) Run(_ context.Context, in pipeline.TurnInput, _ pipeline.SendFunc) (*pipeline.TurnResult, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTurnDeps(runner *fakeTurnRunner) (TurnDeps, *fakeTurnStore) {
	st := &fakeTurnStore{
		agent:        &store.Agent{ID: "agent-1", UserID: "merchant-1", VoiceEnabled: false},
		conversation: &store.Conversation{ID: "conv-1", Status: "active"},
	}
	return TurnDeps{
		Store:         st,
		Runner:        runner,
		Sessions:      channel.NewRegistry(),
		HistoryWindow: 15,
	}, st
}

func postTurn(t *testing.T, deps TurnDeps, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/turn", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	TurnHandler(deps)(w, req)
	return w
}

func TestTurnHandlerSuccess(t *testing.T) {
	runner := &fakeTurnRunner{result: &pipeline.TurnResult{
		ReplyText:     "Bonjour! Comment puis-je vous aider?",
		ToolCallCount: 0,
		CreditsUsed:   1,
		DurationMS:    42,
		TraceID:       "abc123",
	}}
	deps, st := newTurnDeps(runner)

	w := postTurn(t, deps, TurnRequest{
		AgentID:       "agent-1",
		CustomerPhone: "0708091011",
		Message:       "Bonjour",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp TurnResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.Equal(t, "Bonjour! Comment puis-je vous aider?", resp.Reply)
	assert.Equal(t, 1, resp.CreditsUsed)
	assert.Equal(t, "abc123", resp.TraceID)

	// The leading zero is stripped before the country code.
	assert.Equal(t, "+225708091011", runner.in.CustomerPhone)

	require.Len(t, st.saved, 2)
	assert.Equal(t, [2]string{"user", "Bonjour"}, st.saved[0])
	assert.Equal(t, [2]string{"assistant", "Bonjour! Comment puis-je vous aider?"}, st.saved[1])
}

func TestTurnHandlerValidation(t *testing.T) {
	deps, _ := newTurnDeps(&fakeTurnRunner{})

	w := postTurn(t, deps, TurnRequest{AgentID: "agent-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/turn", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	TurnHandler(deps)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnHandlerAgentNotFound(t *testing.T) {
	deps, st := newTurnDeps(&fakeTurnRunner{})
	st.agentErr = pgx.ErrNoRows

	w := postTurn(t, deps, TurnRequest{AgentID: "nope", CustomerPhone: "0708091011", Message: "Bonjour"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTurnHandlerPausedConversationSkips(t *testing.T) {
	runner := &fakeTurnRunner{}
	deps, st := newTurnDeps(runner)
	st.conversation = &store.Conversation{ID: "conv-1", Status: "paused"}

	w := postTurn(t, deps, TurnRequest{AgentID: "agent-1", CustomerPhone: "0708091011", Message: "Bonjour"})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp TurnResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "conversation_paused", resp.Skipped)
	assert.Empty(t, resp.Reply)
	assert.Empty(t, st.saved, "a skipped turn saves nothing")
}

func TestTurnHandlerInsufficientCredits(t *testing.T) {
	runner := &fakeTurnRunner{err: &credits.InsufficientCreditsError{UserID: "merchant-1", Required: 1}}
	deps, _ := newTurnDeps(runner)

	w := postTurn(t, deps, TurnRequest{AgentID: "agent-1", CustomerPhone: "0708091011", Message: "Bonjour"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp TurnResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "insufficient_credits", resp.Skipped)
}

func TestTurnHandlerRunnerFailure(t *testing.T) {
	runner := &fakeTurnRunner{err: errors.New("provider down")}
	deps, st := newTurnDeps(runner)

	w := postTurn(t, deps, TurnRequest{AgentID: "agent-1", CustomerPhone: "0708091011", Message: "Bonjour"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, st.saved)
}

func TestTurnHandlerFiltersHistoryRoles(t *testing.T) {
	runner := &fakeTurnRunner{result: &pipeline.TurnResult{ReplyText: "ok"}}
	deps, st := newTurnDeps(runner)
	st.history = []store.StoredMessage{
		{Role: "user", Content: "Bonjour"},
		{Role: "system", Content: "interne"},
		{Role: "assistant", Content: "Bonjour!"},
	}

	w := postTurn(t, deps, TurnRequest{AgentID: "agent-1", CustomerPhone: "0708091011", Message: "Encore"})
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, runner.in.History, 2)
	assert.Equal(t, "user", runner.in.History[0].Role)
	assert.Equal(t, "assistant", runner.in.History[1].Role)
}

func TestHealthHandler(t *testing.T) {
	registry := channel.NewRegistry()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	HealthHandler("chatcommerce", registry)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "chatcommerce", resp.Service)
	assert.Equal(t, 0, resp.Sessions)
}

type fakeOrderReader struct {
	orders map[string]*store.Order
}

func (f *fakeOrderReader) OrderByID(_ context.Context, id string) (*store.Order, error) {
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeOrderReader) RecentOrdersByPhone(_ context.Context, _ string, _ int) ([]store.Order, error) {
	out := make([]store.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func TestOrderHandler(t *testing.T) {
	reader := &fakeOrderReader{orders: map[string]*store.Order{
		"o1": {
			ID:        "o1",
			Status:    "pending",
			Total:     19000,
			CreatedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
			Items:     []store.OrderItem{{ProductName: "Bougie Artisanale (Grande)", Quantity: 2, UnitPrice: 9500}},
		},
	}}

	r := chi.NewRouter()
	r.Get("/api/orders/{id}", OrderHandler(reader))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp OrderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "o1", resp.ID)
	assert.Equal(t, 19000, resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 9500, resp.Items[0].UnitPrice)

	req = httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrdersByPhoneHandlerRequiresPhone(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	w := httptest.NewRecorder()
	OrdersByPhoneHandler(&fakeOrderReader{})(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
