package exec

import (
	"context"
	"testing"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestExecuteCommand(t *testing.T) {
	x := New()

	out, err := x.Execute(context.Background(), model.ToolCall{
		Name: "exec",
		Args: map[string]any{"command": "echo hello"},
	})
	gt.NoError(t, err)
	gt.Equal(t, out, "hello")
}

func TestExecuteEmptyCommand(t *testing.T) {
	x := New()

	_, err := x.Execute(context.Background(), model.ToolCall{
		Name: "exec",
		Args: map[string]any{},
	})
	gt.Error(t, err)
}

func TestExecuteNonZeroExit(t *testing.T) {
	x := New()

	out, err := x.Execute(context.Background(), model.ToolCall{
		Name: "exec",
		Args: map[string]any{"command": "echo partial && exit 3"},
	})
	gt.NoError(t, err)
	gt.S(t, out).Contains("partial")
	gt.S(t, out).Contains("(exit:")
}
