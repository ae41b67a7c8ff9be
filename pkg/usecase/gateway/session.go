package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/repository"
	"github.com/m-mizutani/chack/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrTurnCancelled indicates the turn was cancelled while waiting for its
// conversation slot.
var ErrTurnCancelled = goerr.New("turn cancelled while queued")

// Session is the in-memory state of one live conversation. All fields below
// the lock are owned by the turn that currently holds the session; turns for
// the same key never run concurrently.
type Session struct {
	key model.ConversationKey

	mu      sync.Mutex
	held    bool
	waiters []chan struct{}

	seeded       bool
	buffer       []model.Message
	summary      string
	longTerm     string
	lastActivity time.Time
}

func newSession(key model.ConversationKey) *Session {
	return &Session{key: key}
}

// Key returns the conversation identity of the session.
func (s *Session) Key() model.ConversationKey {
	return s.key
}

// Ticket is a queued claim on a session. Tickets are granted in Enqueue
// order, which gives same-key turns FIFO completion order.
type Ticket struct {
	session *Session
	grant   chan struct{}
}

// Enqueue registers a claim on the session without blocking. Call it in the
// dispatch path so the queue position reflects admission order, then Wait
// from the turn's own goroutine.
func (s *Session) Enqueue() *Ticket {
	t := &Ticket{session: s, grant: make(chan struct{}, 1)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held && len(s.waiters) == 0 {
		s.held = true
		t.grant <- struct{}{}
	} else {
		s.waiters = append(s.waiters, t.grant)
	}
	return t
}

// Wait blocks until the claim is granted or ctx is done. On cancellation the
// claim is withdrawn; a grant that raced the cancellation is passed on to the
// next waiter.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.grant:
		return nil

	case <-ctx.Done():
		s := t.session
		s.mu.Lock()
		for i, ch := range s.waiters {
			if ch == t.grant {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return goerr.Wrap(ctx.Err(), ErrTurnCancelled.Error())
			}
		}
		s.mu.Unlock()

		// Not in the queue anymore: the grant was already delivered.
		<-t.grant
		s.Release()
		return goerr.Wrap(ctx.Err(), ErrTurnCancelled.Error())
	}
}

// Release hands the session to the next queued turn, or marks it free. It
// must be called on every exit path of a granted turn.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		next <- struct{}{}
		return
	}
	s.held = false
}

// ensureSeeded loads the long-term memory record on the first granted turn.
// A store failure degrades to an empty seed; it never blocks the turn.
func (s *Session) ensureSeeded(ctx context.Context, repo repository.Repository) {
	if s.seeded {
		return
	}
	s.seeded = true

	rec, err := repo.GetMemory(ctx, s.key)
	if err != nil {
		logging.From(ctx).Warn("failed to load long-term memory, starting fresh",
			"conversation", s.key.String(), "error", err)
		return
	}
	if rec != nil {
		s.longTerm = rec.Summary
	}
}

// Append adds a message to the short-term buffer.
func (s *Session) Append(msg model.Message) {
	s.buffer = append(s.buffer, msg)
}

// Messages returns a copy of the short-term buffer.
func (s *Session) Messages() []model.Message {
	out := make([]model.Message, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Summary returns the rolling short-term summary.
func (s *Session) Summary() string {
	return s.summary
}

// LongTerm returns the seeded long-term memory text.
func (s *Session) LongTerm() string {
	return s.longTerm
}

// LastActivity returns the time of the last processed message.
func (s *Session) LastActivity() time.Time {
	return s.lastActivity
}

// Touch records conversation activity.
func (s *Session) Touch(now time.Time) {
	s.lastActivity = now
}

// SystemPrompt composes the backend system prompt from the base prompt and
// the long-term memory.
func (s *Session) SystemPrompt(base string) string {
	prompt := base
	if s.longTerm != "" {
		prompt += "\n\n### LONG TERM MEMORY\n" + s.longTerm
	}
	return prompt
}

// PromptMessages renders the transcript sent to the backend: the rolling
// summary as leading context followed by the short-term buffer.
func (s *Session) PromptMessages() []model.Message {
	var msgs []model.Message
	if s.summary != "" {
		msgs = append(msgs, model.Message{
			Role: model.RoleUser,
			Text: "### MEMORY SUMMARY\n" + s.summary,
		})
	}
	return append(msgs, s.buffer...)
}
