package gateway

import (
	"context"
	"time"

	"github.com/m-mizutani/chack/pkg/adapter"
	"github.com/m-mizutani/chack/pkg/backend"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/platform"
	"github.com/m-mizutani/chack/pkg/repository"
	"github.com/m-mizutani/chack/pkg/tool"
	"github.com/m-mizutani/chack/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	errorReply   = "Sorry, I ran into an error while processing that."
	timeoutReply = "Sorry, that took too long and timed out."
)

// Orchestrator composes admission, session serialization, memory management,
// the execution loop and reply emission. One Orchestrator serves all
// conversations of the process.
type Orchestrator struct {
	cfg      Config
	policy   *Policy
	rego     *RegoPolicy
	registry *SessionRegistry
	memory   *MemoryManager
	loop     *ExecutionLoop
	repo     repository.Repository
	pricing  *model.PricingTable
	sink     adapter.UsageSink
	now      func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(x *Orchestrator) {
		x.now = now
	}
}

// WithPricing enables cost estimation in the reply suffix.
func WithPricing(table *model.PricingTable) OrchestratorOption {
	return func(x *Orchestrator) {
		x.pricing = table
	}
}

// WithUsageSink enables per-turn usage audit records.
func WithUsageSink(sink adapter.UsageSink) OrchestratorOption {
	return func(x *Orchestrator) {
		x.sink = sink
	}
}

// WithArchive enables transcript archiving on long-term rollover.
func WithArchive(archive adapter.Storage) OrchestratorOption {
	return func(x *Orchestrator) {
		x.memory.WithArchive(archive)
	}
}

// New builds the orchestrator. cfg is normalized in place.
func New(ctx context.Context, cfg Config, b backend.Backend, repo repository.Repository, tools *tool.Registry, opts ...OrchestratorOption) (*Orchestrator, error) {
	cfg.Normalize()

	regoPolicy, err := loadRegoPolicy(ctx, cfg.PolicyDir)
	if err != nil {
		return nil, err
	}

	x := &Orchestrator{
		cfg:      cfg,
		policy:   NewPolicy(ctx, cfg.Admission),
		rego:     regoPolicy,
		registry: NewSessionRegistry(),
		repo:     repo,
		now:      time.Now,
	}
	x.memory = NewMemoryManager(b, repo, cfg.Memory, func() time.Time { return x.now() })
	x.loop = NewExecutionLoop(b, tools, cfg.Loop, func() time.Time { return x.now() })

	for _, opt := range opts {
		opt(x)
	}

	return x, nil
}

func loadRegoPolicy(ctx context.Context, dir string) (*RegoPolicy, error) {
	if dir == "" {
		return nil, nil
	}
	p, err := NewRegoPolicy(ctx, dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load admission policy", goerr.V("dir", dir))
	}
	return p, nil
}

// Dispatch admits the event and, when admitted, starts its turn as a new
// goroutine. The returned channel closes when the turn completes; a rejected
// event returns (false, nil) without touching any session.
//
// The queue position is claimed synchronously, so same-key turns complete in
// dispatch order even though they run on separate goroutines.
func (x *Orchestrator) Dispatch(ctx context.Context, ev *model.Event, rsp platform.Responder) (bool, <-chan struct{}) {
	logger := logging.From(ctx)

	if !x.policy.ShouldRespond(ev) {
		logger.Debug("event rejected by admission filter",
			"platform", ev.Platform, "kind", ev.Kind, "chat_id", ev.ChatID)
		return false, nil
	}

	if allowed, err := x.rego.Allow(ctx, ev); err != nil {
		logger.Warn("admission policy evaluation failed, dropping event", "error", err)
		return false, nil
	} else if !allowed {
		logger.Debug("event rejected by admission policy", "chat_id", ev.ChatID)
		return false, nil
	}

	sess := x.registry.Get(ev.Key())
	ticket := sess.Enqueue()

	done := make(chan struct{})
	turnCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		x.runTurn(turnCtx, ev, sess, ticket, rsp)
	}()
	return true, done
}

// HandleEvent runs the event synchronously: dispatch plus wait for the turn.
// It reports whether the event was admitted.
func (x *Orchestrator) HandleEvent(ctx context.Context, ev *model.Event, rsp platform.Responder) bool {
	admitted, done := x.Dispatch(ctx, ev, rsp)
	if admitted {
		<-done
	}
	return admitted
}

// runTurn executes one admitted turn end to end. Every terminal path emits
// exactly one reply.
func (x *Orchestrator) runTurn(ctx context.Context, ev *model.Event, sess *Session, ticket *Ticket, rsp platform.Responder) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.TurnTimeout)
	defer cancel()

	logger := logging.From(ctx).With("conversation", sess.Key().String())
	ctx = logging.With(ctx, logger)

	if err := ticket.Wait(ctx); err != nil {
		logger.Warn("turn timed out while queued", "error", err)
		x.reply(ctx, rsp, ev, timeoutReply)
		return
	}
	defer sess.Release()

	if notifier, ok := rsp.(platform.StatusNotifier); ok {
		if remove, err := notifier.PostStatus(ctx, ev); err == nil && remove != nil {
			defer remove(ctx)
		}
	}

	turnID := model.NewTurnID()
	acct := NewRoundAccounting(x.cfg.Loop.MaxRounds, x.pricing)

	sess.ensureSeeded(ctx, x.repo)
	acct.AddUsage(x.memory.StartTurn(ctx, sess))

	now := x.now()
	sess.Append(model.Message{Role: model.RoleUser, Text: ev.Text, Timestamp: now})
	sess.Touch(now)

	text, err := x.loop.Run(ctx, sess, sess.SystemPrompt(x.cfg.SystemPrompt), acct)
	if err != nil {
		logger.Error("turn failed", "turn_id", turnID, "error", err)
		if ctx.Err() != nil {
			x.reply(ctx, rsp, ev, timeoutReply)
		} else {
			x.reply(ctx, rsp, ev, errorReply)
		}
		x.recordUsage(ctx, turnID, ev, acct)
		return
	}

	sess.Touch(x.now())
	x.reply(ctx, rsp, ev, text+acct.Suffix())
	x.recordUsage(ctx, turnID, ev, acct)

	logger.Info("turn completed",
		"turn_id", turnID,
		"rounds", acct.Rounds,
		"tool_calls", acct.ToolCalls)
}

// reply delivers a single outbound message. The context may already be
// cancelled on timeout paths, so delivery gets a short grace period.
func (x *Orchestrator) reply(ctx context.Context, rsp platform.Responder, ev *model.Event, text string) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}

	r := &model.Reply{ChatID: ev.ChatID, ThreadID: ev.ThreadID, Text: text}
	if err := rsp.Reply(ctx, r); err != nil {
		logging.From(ctx).Error("failed to deliver reply", "chat_id", ev.ChatID, "error", err)
	}
}

func (x *Orchestrator) recordUsage(ctx context.Context, turnID model.TurnID, ev *model.Event, acct *RoundAccounting) {
	if x.sink == nil {
		return
	}

	rec := &model.TurnUsage{
		TurnID:       turnID,
		Platform:     ev.Platform,
		ChatID:       ev.Key().ChatID,
		Rounds:       acct.Rounds,
		ToolCalls:    acct.ToolCalls,
		Model:        acct.Usage.Model,
		PromptTokens: acct.Usage.PromptTokens,
		OutputTokens: acct.Usage.CompletionTokens,
		CreatedAt:    x.now(),
	}
	if cost := acct.CostUSD(); cost != nil {
		rec.CostUSD = *cost
		rec.CostKnown = true
	}

	if err := x.sink.Put(ctx, rec); err != nil {
		logging.From(ctx).Warn("failed to record turn usage", "turn_id", turnID, "error", err)
	}
}

// Reset finalizes long-term memory for the conversation and clears its
// short-term state. It serializes with in-flight turns like any other turn.
func (x *Orchestrator) Reset(ctx context.Context, key model.ConversationKey) error {
	sess := x.registry.Get(key)
	ticket := sess.Enqueue()
	if err := ticket.Wait(ctx); err != nil {
		return err
	}
	defer sess.Release()

	sess.ensureSeeded(ctx, x.repo)
	return x.memory.Finalize(ctx, sess)
}
