package session

import (
	"context"
	"sync"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/protocol"
)

// Conversation is a session registered under its thread id. It is
// implemented by *ClientSession and *ServerSession.
type Conversation interface {
	// Base returns the state shared by both roles
	Base() *Session
	// Cleanup removes the conversation from its registry
	Cleanup()

	handleMessage(ctx context.Context, msg *protocol.Message) error
}

// Registry maps thread ids to their live conversation and holds the
// ingress tag stamped on outgoing messages
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Conversation
	ingress  string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Conversation),
		ingress:  cnst.DefaultIngress,
	}
}

// Get returns the conversation for thread, or nil
func (r *Registry) Get(thread string) Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[thread]
}

// Put registers c under its thread id, replacing any previous entry
func (r *Registry) Put(c Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[c.Base().thread] = c
}

// FindOrCreate returns the conversation for thread, registering the one
// built by create when there is none. created reports which happened.
func (r *Registry) FindOrCreate(thread string, create func() Conversation) (c Conversation, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[thread]; ok {
		return c, false
	}
	c = create()
	r.sessions[thread] = c
	return c, true
}

// Remove evicts thread and reports whether it was registered
func (r *Registry) Remove(thread string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[thread]; !ok {
		return false
	}
	delete(r.sessions, thread)
	return true
}

// Len returns the number of live conversations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Threads returns the ids of every live conversation
func (r *Registry) Threads() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	threads := make([]string, 0, len(r.sessions))
	for thread := range r.sessions {
		threads = append(threads, thread)
	}
	return threads
}

// Ingress returns the current ingress tag
func (r *Registry) Ingress() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ingress
}

// SetIngress replaces the ingress tag; empty values are ignored
func (r *Registry) SetIngress(ingress string) {
	if ingress == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingress = ingress
}
