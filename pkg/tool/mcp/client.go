package mcp

import (
	"context"
	"os"
	"os/exec"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   []string          `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Client manages connections to multiple MCP servers.
type Client struct {
	servers map[string]*server
}

type server struct {
	name    string
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// NewClient creates an empty MCP client.
func NewClient() *Client {
	return &Client{servers: make(map[string]*server)}
}

// Connect establishes a session with one MCP server and lists its tools.
func (c *Client) Connect(ctx context.Context, cfg ServerConfig) error {
	if _, exists := c.servers[cfg.Name]; exists {
		return goerr.New("server already connected", goerr.V("name", cfg.Name))
	}

	mcpClient := mcp.NewClient(&mcp.Implementation{
		Name:    "chack",
		Version: "0.1.0",
	}, nil)

	var transport mcp.Transport
	switch cfg.Transport {
	case "stdio":
		if len(cfg.Command) == 0 {
			return goerr.New("command is required for stdio transport", goerr.V("server", cfg.Name))
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		if len(cfg.Env) > 0 {
			env := os.Environ()
			for k, v := range cfg.Env {
				env = append(env, k+"="+v)
			}
			cmd.Env = env
		}
		transport = &mcp.CommandTransport{Command: cmd}

	case "http":
		if cfg.URL == "" {
			return goerr.New("url is required for http transport", goerr.V("server", cfg.Name))
		}
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return goerr.New("unsupported transport",
			goerr.V("transport", cfg.Transport),
			goerr.V("supported", []string{"stdio", "http"}))
	}

	session, err := mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to connect to MCP server", goerr.V("server", cfg.Name))
	}

	toolsResult, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return goerr.Wrap(err, "failed to list tools", goerr.V("server", cfg.Name))
	}

	c.servers[cfg.Name] = &server{
		name:    cfg.Name,
		session: session,
		tools:   toolsResult.Tools,
	}
	return nil
}

// Servers returns the names of all connected servers.
func (c *Client) Servers() []string {
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	return names
}

// Tools returns the tool listing of a connected server.
func (c *Client) Tools(serverName string) ([]*mcp.Tool, error) {
	srv, ok := c.servers[serverName]
	if !ok {
		return nil, goerr.New("server not found", goerr.V("name", serverName))
	}
	return srv.tools, nil
}

// CallTool invokes a tool on the named server.
func (c *Client) CallTool(ctx context.Context, serverName, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	srv, ok := c.servers[serverName]
	if !ok {
		return nil, goerr.New("server not found", goerr.V("name", serverName))
	}

	result, err := srv.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool",
			goerr.V("server", serverName), goerr.V("tool", toolName))
	}
	return result, nil
}

// Close terminates all server sessions.
func (c *Client) Close() error {
	for name, srv := range c.servers {
		if err := srv.session.Close(); err != nil {
			return goerr.Wrap(err, "failed to close session", goerr.V("server", name))
		}
	}
	c.servers = make(map[string]*server)
	return nil
}
