package tool_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"
)

type stubTool struct {
	name    string
	enabled bool
	output  string
	err     error
}

func (s *stubTool) Flags() []cli.Flag { return nil }

func (s *stubTool) Init(ctx context.Context) (bool, error) { return s.enabled, nil }

func (s *stubTool) Prompt(ctx context.Context) string { return "" }

func (s *stubTool) Specs() []*model.ToolSpec {
	return []*model.ToolSpec{{
		Name:       s.name,
		Parameters: &jsonschema.Schema{Type: "object"},
	}}
}

func (s *stubTool) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.output, nil
}

func TestRegistrySkipsDisabledTools(t *testing.T) {
	registry, err := tool.New(context.Background(), nil,
		&stubTool{name: "on", enabled: true, output: "ok"},
		&stubTool{name: "off", enabled: false},
	)
	gt.NoError(t, err)
	gt.Equal(t, registry.Names(), []string{"on"})
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := tool.New(context.Background(), nil,
		&stubTool{name: "dup", enabled: true},
		&stubTool{name: "dup", enabled: true},
	)
	gt.Error(t, err)
}

func TestExecuteUnknownTool(t *testing.T) {
	registry, err := tool.New(context.Background(), nil, &stubTool{name: "known", enabled: true})
	gt.NoError(t, err)

	_, err = registry.Execute(context.Background(), model.ToolCall{Name: "missing"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, tool.ErrToolNotFound))
}

func TestExecuteTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", 50_000)
	registry, err := tool.New(context.Background(),
		[]tool.Option{tool.WithMaxOutputChars(2000)},
		&stubTool{name: "big", enabled: true, output: long},
	)
	gt.NoError(t, err)

	result, err := registry.Execute(context.Background(), model.ToolCall{Name: "big"})
	gt.NoError(t, err)
	gt.True(t, result.Truncated)
	gt.Equal(t, len(result.Text), 2000+len(tool.TruncationMarker))
	gt.True(t, strings.HasSuffix(result.Text, tool.TruncationMarker))
}

func TestExecuteTruncationKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("あ", 1000)
	registry, err := tool.New(context.Background(),
		[]tool.Option{tool.WithMaxOutputChars(100)},
		&stubTool{name: "big", enabled: true, output: long},
	)
	gt.NoError(t, err)

	result, err := registry.Execute(context.Background(), model.ToolCall{Name: "big"})
	gt.NoError(t, err)
	gt.True(t, result.Truncated)
	gt.True(t, utf8.ValidString(result.Text))
	gt.True(t, len(result.Text) <= 100+len(tool.TruncationMarker))
}

func TestExecuteToolFailureBecomesResult(t *testing.T) {
	registry, err := tool.New(context.Background(), nil,
		&stubTool{name: "broken", enabled: true, err: goerr.New("boom")},
	)
	gt.NoError(t, err)

	result, err := registry.Execute(context.Background(), model.ToolCall{Name: "broken"})
	gt.NoError(t, err)
	gt.True(t, result.Failed)
	gt.True(t, strings.HasPrefix(result.Text, "ERROR: "))
}
