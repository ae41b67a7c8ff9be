package tool

import (
	"context"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/urfave/cli/v3"
)

// Tool is an external capability callable by the agent backend. One Tool may
// expose multiple named functions.
type Tool interface {
	// Specs returns the function declarations this tool exposes. The specs
	// are backend-neutral; each backend translates them into its own
	// function-calling format.
	Specs() []*model.ToolSpec

	// Execute runs one of the tool's functions and returns its raw output.
	// The registry applies output truncation; implementations should not.
	Execute(ctx context.Context, call model.ToolCall) (string, error)

	// Init reports whether the tool is usable with the current
	// configuration. Tools returning false are not registered.
	Init(ctx context.Context) (bool, error)

	// Prompt returns extra text for the system prompt, or empty string.
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool, or nil.
	Flags() []cli.Flag
}
