package gateway

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/m-mizutani/chack/pkg/adapter"
	"github.com/m-mizutani/chack/pkg/backend"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/repository"
	"github.com/m-mizutani/chack/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// MemoryManager applies the short-term trim and long-term rollover policies.
// Both run at turn start, before the new inbound message is appended;
// rollover is evaluated first, which makes the trim a no-op in the same turn.
type MemoryManager struct {
	backend backend.Backend
	repo    repository.Repository
	archive adapter.Storage // optional transcript archive
	cfg     MemoryConfig
	now     func() time.Time
}

func NewMemoryManager(b backend.Backend, repo repository.Repository, cfg MemoryConfig, now func() time.Time) *MemoryManager {
	if now == nil {
		now = time.Now
	}
	return &MemoryManager{
		backend: b,
		repo:    repo,
		cfg:     cfg,
		now:     now,
	}
}

// WithArchive enables best-effort transcript archiving on rollover.
func (m *MemoryManager) WithArchive(archive adapter.Storage) *MemoryManager {
	m.archive = archive
	return m
}

// StartTurn evaluates both memory policies for the session. Failures degrade
// and are logged; they never abort the turn. The returned usage covers any
// summarization calls made.
func (m *MemoryManager) StartTurn(ctx context.Context, s *Session) model.Usage {
	var usage model.Usage

	if m.rolloverDue(s) {
		u, err := m.rollover(ctx, s)
		usage.Add(u)
		if err != nil {
			logging.From(ctx).Warn("long-term rollover failed, keeping short-term buffer",
				"conversation", s.key.String(), "error", err)
		}
	}

	usage.Add(m.trim(ctx, s))
	return usage
}

func (m *MemoryManager) rolloverDue(s *Session) bool {
	if len(s.buffer) == 0 || s.lastActivity.IsZero() {
		return false
	}
	return m.now().Sub(s.lastActivity) >= m.cfg.ResetAfter
}

// rollover summarizes the whole short-term transcript into a long-term
// record, persists it and clears the buffer. The buffer is cleared only after
// the record is durably written, so a store failure loses nothing.
func (m *MemoryManager) rollover(ctx context.Context, s *Session) (model.Usage, error) {
	previous := s.longTerm
	if s.summary != "" {
		if previous != "" {
			previous += "\n"
		}
		previous += s.summary
	}

	text, usage, err := m.backend.Summarize(ctx, &backend.SummarizeInput{
		Messages: s.buffer,
		Previous: previous,
		MaxChars: m.cfg.LongTermMaxChars,
		Prompt:   m.cfg.SummaryPrompt,
	})
	if err != nil {
		return usage, goerr.Wrap(err, "failed to summarize for rollover")
	}

	now := m.now()
	rec := &model.LongTermMemoryRecord{Summary: text, UpdatedAt: now}
	if err := m.repo.PutMemory(ctx, s.key, rec); err != nil {
		return usage, goerr.Wrap(err, "failed to persist long-term memory")
	}

	m.archiveTranscript(ctx, s, now)

	s.longTerm = text
	s.summary = ""
	s.buffer = nil
	return usage, nil
}

// trim evicts the oldest messages once the buffer exceeds the limit and folds
// them into the rolling summary. When summarization fails the evicted
// messages are dropped without a summary.
func (m *MemoryManager) trim(ctx context.Context, s *Session) model.Usage {
	if len(s.buffer) <= m.cfg.MaxMessages {
		return model.Usage{}
	}

	keep := m.cfg.ResetToMessages
	evicted := s.buffer[:len(s.buffer)-keep]
	s.buffer = s.buffer[len(s.buffer)-keep:]

	text, usage, err := m.backend.Summarize(ctx, &backend.SummarizeInput{
		Messages: evicted,
		Previous: s.summary,
		MaxChars: m.cfg.LongTermMaxChars,
		Prompt:   m.cfg.SummaryPrompt,
	})
	if err != nil {
		logging.From(ctx).Warn("trim summarization failed, dropping evicted messages",
			"conversation", s.key.String(),
			"evicted", len(evicted),
			"error", err)
		return usage
	}

	s.summary = text
	return usage
}

// Finalize forces a rollover regardless of idle time and clears the session.
// Used by the explicit reset operation.
func (m *MemoryManager) Finalize(ctx context.Context, s *Session) error {
	if len(s.buffer) == 0 {
		s.summary = ""
		return nil
	}
	_, err := m.rollover(ctx, s)
	return err
}

// transcriptArchive is the JSON document written to the archive on rollover.
type transcriptArchive struct {
	Conversation string          `json:"conversation"`
	ArchivedAt   time.Time       `json:"archived_at"`
	Summary      string          `json:"summary,omitempty"`
	Messages     []model.Message `json:"messages"`
}

func (m *MemoryManager) archiveTranscript(ctx context.Context, s *Session, now time.Time) {
	if m.archive == nil {
		return
	}

	key := path.Join("transcripts", s.key.DocID(), string(model.NewTurnID())+".json")
	w, err := m.archive.Put(ctx, key)
	if err != nil {
		logging.From(ctx).Warn("failed to open transcript archive", "key", key, "error", err)
		return
	}

	doc := transcriptArchive{
		Conversation: s.key.String(),
		ArchivedAt:   now,
		Summary:      s.summary,
		Messages:     s.buffer,
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logging.From(ctx).Warn("failed to write transcript archive", "key", key, "error", err)
	}
	if err := w.Close(); err != nil {
		logging.From(ctx).Warn("failed to close transcript archive", "key", key, "error", err)
	}
}
