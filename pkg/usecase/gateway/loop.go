package gateway

import (
	"context"
	"time"

	"github.com/m-mizutani/chack/pkg/backend"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/tool"
	"github.com/m-mizutani/chack/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrBackendFailed indicates a backend call failed after all attempts. The
// turn ends with an apology reply.
var ErrBackendFailed = goerr.New("backend call failed")

// roundBudgetReply is the synthetic terminal reply when the round budget runs
// out before the backend produces a final answer.
const roundBudgetReply = "I couldn't finish that within my step budget. Please try a narrower request."

// ExecutionLoop drives the bounded tool-calling rounds of one turn.
type ExecutionLoop struct {
	backend backend.Backend
	tools   *tool.Registry
	cfg     LoopConfig
	now     func() time.Time
}

func NewExecutionLoop(b backend.Backend, tools *tool.Registry, cfg LoopConfig, now func() time.Time) *ExecutionLoop {
	if now == nil {
		now = time.Now
	}
	return &ExecutionLoop{
		backend: b,
		tools:   tools,
		cfg:     cfg,
		now:     now,
	}
}

// Run executes rounds of backend calls and tool dispatch until the backend
// returns a final answer or the round budget is exhausted. The new inbound
// message must already be appended to the session. Assistant and tool
// messages are appended as the rounds progress, so a later turn sees the full
// exchange.
func (l *ExecutionLoop) Run(ctx context.Context, s *Session, systemPrompt string, acct *RoundAccounting) (string, error) {
	logger := logging.From(ctx)

	for round := 1; round <= l.cfg.MaxRounds; round++ {
		out, err := l.converse(ctx, s, systemPrompt)
		if err != nil {
			return "", err
		}
		acct.Rounds++
		acct.AddUsage(out.Usage)

		if len(out.ToolCalls) == 0 {
			s.Append(model.Message{
				Role:      model.RoleAssistant,
				Text:      out.Text,
				Timestamp: l.now(),
			})
			return out.Text, nil
		}

		s.Append(model.Message{
			Role:      model.RoleAssistant,
			Text:      out.Text,
			Timestamp: l.now(),
			ToolCalls: out.ToolCalls,
		})

		// Results are appended in the order the backend requested the calls.
		for _, call := range out.ToolCalls {
			result, err := l.tools.Execute(ctx, call)
			if err != nil {
				logger.Warn("tool dispatch failed", "tool", call.Name, "error", err)
				result = model.ToolResult{
					Call:   call,
					Text:   "ERROR: " + err.Error(),
					Failed: true,
				}
			}
			acct.ToolCalls++
			s.Append(result.Message(l.now()))

			logger.Debug("tool executed",
				"tool", call.Name,
				"failed", result.Failed,
				"truncated", result.Truncated)
		}
	}

	s.Append(model.Message{
		Role:      model.RoleAssistant,
		Text:      roundBudgetReply,
		Timestamp: l.now(),
	})
	logger.Warn("round budget exhausted", "conversation", s.key.String(), "rounds", l.cfg.MaxRounds)
	return roundBudgetReply, nil
}

// converse performs one backend call with bounded retries and linear backoff.
func (l *ExecutionLoop) converse(ctx context.Context, s *Session, systemPrompt string) (*backend.ConverseOutput, error) {
	input := &backend.ConverseInput{
		SystemPrompt: systemPrompt,
		Messages:     s.PromptMessages(),
		Tools:        l.tools.Specs(),
	}

	var lastErr error
	for attempt := 1; attempt <= l.cfg.BackendAttempts; attempt++ {
		out, err := l.backend.Converse(ctx, input)
		if err == nil {
			return out, nil
		}
		lastErr = err

		logging.From(ctx).Warn("backend call failed",
			"attempt", attempt,
			"max_attempts", l.cfg.BackendAttempts,
			"error", err)

		if attempt == l.cfg.BackendAttempts {
			break
		}
		if err := sleep(ctx, l.cfg.RetryInterval*time.Duration(attempt)); err != nil {
			return nil, goerr.Wrap(ErrBackendFailed, "cancelled during retry backoff",
				goerr.V("cause", lastErr.Error()))
		}
	}

	return nil, goerr.Wrap(ErrBackendFailed, "all attempts exhausted",
		goerr.V("attempts", l.cfg.BackendAttempts),
		goerr.V("cause", lastErr.Error()))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
