package exec

import (
	"context"
	"os"
	osexec "os/exec"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// execTool runs shell commands on the gateway host. It is intended for
// single-operator deployments where the agent manages the operator's own
// infrastructure.
type execTool struct {
	enabled bool
	shell   string
}

// New creates the shell execution tool.
func New() *execTool {
	return &execTool{
		shell: "/bin/sh",
	}
}

func (x *execTool) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "tool-exec",
			Usage:       "Enable the shell execution tool",
			Sources:     cli.EnvVars("CHACK_TOOL_EXEC"),
			Value:       true,
			Destination: &x.enabled,
		},
		&cli.StringFlag{
			Name:        "tool-exec-shell",
			Usage:       "Shell used to run commands",
			Sources:     cli.EnvVars("CHACK_TOOL_EXEC_SHELL"),
			Value:       "/bin/sh",
			Destination: &x.shell,
		},
	}
}

func (x *execTool) Init(ctx context.Context) (bool, error) {
	return x.enabled, nil
}

func (x *execTool) Prompt(ctx context.Context) string {
	return "You can run shell commands on the host with the exec tool. Commands run with the gateway's privileges; verify results with follow-up commands when in doubt."
}

func (x *execTool) Specs() []*model.ToolSpec {
	return []*model.ToolSpec{
		{
			Name:        "exec",
			Description: "Execute a shell command locally and return combined stdout and stderr",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"command": {
						Type:        "string",
						Description: "Shell command line to execute",
					},
				},
				Required: []string{"command"},
			},
		},
	}
}

func (x *execTool) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	command, _ := call.Args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return "", goerr.New("command is required")
	}

	cmd := osexec.CommandContext(ctx, x.shell, "-c", command)
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if ctx.Err() != nil {
			return "", goerr.Wrap(ctx.Err(), "command timed out", goerr.V("command", command))
		}
		// Non-zero exit is still useful output for the backend
		if output == "" {
			return "", goerr.Wrap(err, "command failed", goerr.V("command", command))
		}
		output += "\n(exit: " + err.Error() + ")"
	}
	if output == "" {
		output = "(no output)"
	}
	return output, nil
}
