package channel

import (
	"context"
	"fmt"
	"sync"
)

// Sender delivers assistant output to the customer over a messaging
// channel (WhatsApp session, test harness, ...).
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
}

// Registry maps agent ids to their live channel sessions. It replaces
// ad-hoc per-process globals so session lookup, registration and
// teardown happen through one object.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Sender)}
}

func (r *Registry) Register(agentID string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[agentID] = s
}

func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, agentID)
}

func (r *Registry) Get(agentID string) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[agentID]
	if !ok {
		return nil, fmt.Errorf("no active session for agent %s", agentID)
	}
	return s, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
