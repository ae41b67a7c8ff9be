package backend

import (
	"context"

	"github.com/m-mizutani/chack/pkg/adapter"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ConverseInput is one reasoning request: the current transcript and the
// enabled toolset.
type ConverseInput struct {
	SystemPrompt string
	Messages     []model.Message
	Tools        []*model.ToolSpec
}

// ConverseOutput is either a final answer (Text, no ToolCalls) or a set of
// requested tool calls. Usage is zero when the backend does not report it.
type ConverseOutput struct {
	Text      string
	ToolCalls []model.ToolCall
	Usage     model.Usage
}

// SummarizeInput asks the backend to fold messages into an updated summary.
type SummarizeInput struct {
	Messages []model.Message
	Previous string
	MaxChars int
	// Prompt overrides the built-in summarization instruction when set.
	// It may reference {max_chars}.
	Prompt string
}

// Backend is the pluggable reasoning engine contract. The gateway depends
// only on this interface; concrete variants are selected by configuration.
type Backend interface {
	Converse(ctx context.Context, input *ConverseInput) (*ConverseOutput, error)
	Summarize(ctx context.Context, input *SummarizeInput) (string, model.Usage, error)
}

// Config selects and parameterizes a backend variant.
type Config struct {
	Provider string // "gemini" (default) or "claude"

	Gemini adapter.Gemini
	Claude adapter.Claude
}

// New creates the backend variant named by cfg.Provider.
func New(cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "", "gemini":
		if cfg.Gemini == nil {
			return nil, goerr.New("gemini adapter is required", goerr.V("provider", cfg.Provider))
		}
		return NewGemini(cfg.Gemini), nil

	case "claude":
		if cfg.Claude == nil {
			return nil, goerr.New("claude adapter is required", goerr.V("provider", cfg.Provider))
		}
		return NewClaude(cfg.Claude), nil

	default:
		return nil, goerr.New("unknown backend provider",
			goerr.V("provider", cfg.Provider),
			goerr.V("supported", []string{"gemini", "claude"}))
	}
}
