package tool

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// ErrToolNotFound indicates a requested tool name is missing or disabled.
// It is a configuration error, not a crash: the execution loop feeds it back
// to the backend as a failed result.
var ErrToolNotFound = goerr.New("tool not found")

// TruncationMarker is appended to tool output that exceeded the output cap,
// so the backend knows the result is incomplete.
const TruncationMarker = "\n... [output truncated]"

const (
	defaultTimeout        = 120 * time.Second
	defaultMaxOutputChars = 5000
)

// Registry holds the enabled tools and executes requested calls with bounded
// execution time and bounded output size.
type Registry struct {
	byName   map[string]Tool
	allTools []Tool
	specs    []*model.ToolSpec

	timeout        time.Duration
	maxOutputChars int
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds the execution time of a single tool call.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxOutputChars bounds the output size of a single tool call.
func WithMaxOutputChars(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxOutputChars = n
		}
	}
}

// New creates a registry from the given tools. Tools whose Init returns false
// or an error are skipped; initialization problems disable the tool rather
// than fail the gateway.
func New(ctx context.Context, opts []Option, tools ...Tool) (*Registry, error) {
	r := &Registry{
		byName:         make(map[string]Tool),
		timeout:        defaultTimeout,
		maxOutputChars: defaultMaxOutputChars,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, t := range tools {
		ok, err := t.Init(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize tool")
		}
		if !ok {
			continue
		}

		specs := t.Specs()
		if len(specs) == 0 {
			continue
		}
		r.allTools = append(r.allTools, t)
		for _, spec := range specs {
			if _, exists := r.byName[spec.Name]; exists {
				return nil, goerr.New("duplicate tool name", goerr.V("name", spec.Name))
			}
			r.byName[spec.Name] = t
			r.specs = append(r.specs, spec)
		}
	}

	return r, nil
}

// Specs returns the declarations of all enabled tools.
func (r *Registry) Specs() []*model.ToolSpec {
	return r.specs
}

// Names returns the enabled tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prompts returns all tool prompts concatenated.
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.allTools {
		if p := t.Prompt(ctx); p != "" {
			prompts = append(prompts, p)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Flags returns the CLI flags of all registered tools combined.
func Flags(tools ...Tool) []cli.Flag {
	var flags []cli.Flag
	for _, t := range tools {
		if f := t.Flags(); f != nil {
			flags = append(flags, f...)
		}
	}
	return flags
}

// Execute dispatches a tool call, bounding execution time and output size.
// Output beyond the cap is cut and marked. An unknown name returns
// ErrToolNotFound.
func (r *Registry) Execute(ctx context.Context, call model.ToolCall) (model.ToolResult, error) {
	t, ok := r.byName[call.Name]
	if !ok {
		return model.ToolResult{}, goerr.Wrap(ErrToolNotFound, "unknown tool requested", goerr.V("name", call.Name))
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := t.Execute(execCtx, call)
	if err != nil {
		return model.ToolResult{
			Call:   call,
			Text:   "ERROR: " + err.Error(),
			Failed: true,
		}, nil
	}

	result := model.ToolResult{Call: call, Text: output}
	if len(result.Text) > r.maxOutputChars {
		cut := r.maxOutputChars
		for cut > 0 && !utf8.RuneStart(result.Text[cut]) {
			cut--
		}
		result.Text = result.Text[:cut] + TruncationMarker
		result.Truncated = true
	}
	return result, nil
}
