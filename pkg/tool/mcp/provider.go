package mcp

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Provider exposes tools from connected MCP servers through the registry's
// Tool interface.
type Provider struct {
	configPath string
	client     *Client
	tools      map[string]*remoteTool
	specs      []*model.ToolSpec
}

type remoteTool struct {
	serverName string
	tool       *mcpsdk.Tool
}

// configFile is the YAML structure of the MCP configuration file.
type configFile struct {
	Servers []ServerConfig `yaml:"servers"`
}

// NewProvider creates the MCP tool provider. It stays disabled until Init
// connects at least one configured server.
func NewProvider() *Provider {
	return &Provider{
		tools: make(map[string]*remoteTool),
	}
}

func (p *Provider) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "Path to MCP servers YAML file",
			Sources:     cli.EnvVars("CHACK_MCP_CONFIG"),
			Destination: &p.configPath,
		},
	}
}

// Init loads the MCP configuration and connects to all listed servers.
// Connection failures disable the affected server but not the gateway.
func (p *Provider) Init(ctx context.Context) (bool, error) {
	if p.configPath == "" {
		return false, nil
	}

	data, err := os.ReadFile(p.configPath)
	if err != nil {
		return false, goerr.Wrap(err, "failed to read MCP config", goerr.V("path", p.configPath))
	}

	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return false, goerr.Wrap(err, "failed to parse MCP config", goerr.V("path", p.configPath))
	}
	if len(cfg.Servers) == 0 {
		return false, nil
	}

	logger := logging.From(ctx)
	p.client = NewClient()
	for _, serverCfg := range cfg.Servers {
		if err := p.client.Connect(ctx, serverCfg); err != nil {
			logger.Warn("failed to connect MCP server", "server", serverCfg.Name, "error", err)
			continue
		}
		logger.Info("connected MCP server", "server", serverCfg.Name)
	}

	for _, serverName := range p.client.Servers() {
		tools, err := p.client.Tools(serverName)
		if err != nil {
			return false, err
		}
		for _, t := range tools {
			spec, err := convertSpec(t)
			if err != nil {
				return false, goerr.Wrap(err, "failed to convert MCP tool",
					goerr.V("server", serverName), goerr.V("tool", t.Name))
			}
			p.tools[t.Name] = &remoteTool{serverName: serverName, tool: t}
			p.specs = append(p.specs, spec)
		}
	}

	return len(p.tools) > 0, nil
}

// convertSpec converts an MCP tool listing into a neutral ToolSpec. The
// input schema round-trips through JSON since the SDK declares it loosely.
func convertSpec(t *mcpsdk.Tool) (*model.ToolSpec, error) {
	spec := &model.ToolSpec{
		Name:        t.Name,
		Description: t.Description,
	}

	if t.InputSchema != nil {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal input schema")
		}
		var schema jsonschema.Schema
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal input schema")
		}
		spec.Parameters = &schema
	}

	return spec, nil
}

func (p *Provider) Specs() []*model.ToolSpec {
	return p.specs
}

func (p *Provider) Prompt(ctx context.Context) string {
	if len(p.tools) == 0 {
		return ""
	}
	return "Additional tools are provided by connected MCP servers. Use them like any other tool."
}

func (p *Provider) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	target, ok := p.tools[call.Name]
	if !ok {
		return "", goerr.New("tool not found", goerr.V("name", call.Name))
	}

	result, err := p.client.CallTool(ctx, target.serverName, target.tool.Name, call.Args)
	if err != nil {
		return "", err
	}

	var texts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	output := strings.Join(texts, "\n")

	if result.IsError {
		return "", goerr.New("MCP tool reported an error", goerr.V("output", output))
	}
	if output == "" {
		output = "(no output)"
	}
	return output, nil
}

// Close disconnects all MCP sessions.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
