package gateway

import (
	"sync"

	"github.com/m-mizutani/chack/pkg/model"
)

// SessionRegistry holds one Session per live conversation. Sessions are
// created lazily on first lookup and live for the process lifetime; the
// registry lock covers only the map, never a turn.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[model.ConversationKey]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[model.ConversationKey]*Session),
	}
}

// Get returns the session for the key, creating it on first use.
func (r *SessionRegistry) Get(key model.ConversationKey) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := newSession(key)
	r.sessions[key] = s
	return s
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
