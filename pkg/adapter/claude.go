package adapter

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
)

// Claude is the interface for the Anthropic Messages API.
type Claude interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
	Model() string
}

type claudeClient struct {
	client *anthropic.Client
	model  string
}

type ClaudeOption func(*claudeClient)

// WithClaudeModel overrides the default model.
func WithClaudeModel(model string) ClaudeOption {
	return func(c *claudeClient) {
		c.model = model
	}
}

// NewClaude creates an Anthropic API client.
func NewClaude(apiKey string, opts ...ClaudeOption) Claude {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	c := &claudeClient{
		client: &client,
		model:  string(anthropic.ModelClaudeSonnet4_20250514),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *claudeClient) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message")
	}
	return msg, nil
}

func (c *claudeClient) Model() string {
	return c.model
}
