package backend

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/chack/pkg/adapter"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const claudeMaxTokens = 4096

// claudeBackend implements Backend on the Anthropic Messages API.
type claudeBackend struct {
	claude adapter.Claude
}

// NewClaude creates the Claude backend variant.
func NewClaude(claude adapter.Claude) Backend {
	return &claudeBackend{claude: claude}
}

func (b *claudeBackend) Converse(ctx context.Context, input *ConverseInput) (*ConverseOutput, error) {
	messages, err := toClaudeMessages(input.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.claude.Model()),
		MaxTokens: claudeMaxTokens,
		Messages:  messages,
	}
	if input.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: input.SystemPrompt},
		}
	}
	if len(input.Tools) > 0 {
		tools, err := toClaudeTools(input.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	msg, err := b.claude.CreateMessage(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message")
	}

	out := &ConverseOutput{
		Usage: claudeUsage(b.claude.Model(), msg),
	}

	var texts []string
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			texts = append(texts, v.Text)

		case anthropic.ToolUseBlock:
			var args map[string]any
			if len(v.Input) > 0 {
				if err := json.Unmarshal(v.Input, &args); err != nil {
					return nil, goerr.Wrap(err, "failed to decode tool input",
						goerr.V("tool", v.Name))
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:   v.ID,
				Name: v.Name,
				Args: args,
			})
		}
	}
	out.Text = strings.Join(texts, "")

	return out, nil
}

func (b *claudeBackend) Summarize(ctx context.Context, input *SummarizeInput) (string, model.Usage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.claude.Model()),
		MaxTokens: claudeMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: renderSummarizePrompt(input.Prompt, input.MaxChars)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(buildSummarizeRequest(input.Previous, input.Messages)),
			),
		},
	}

	msg, err := b.claude.CreateMessage(ctx, params)
	if err != nil {
		return "", model.Usage{}, goerr.Wrap(err, "failed to summarize conversation")
	}

	usage := claudeUsage(b.claude.Model(), msg)

	var texts []string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			texts = append(texts, v.Text)
		}
	}
	if len(texts) == 0 {
		return "", usage, goerr.New("empty summarization response")
	}

	return clampSummary(strings.Join(texts, ""), input.MaxChars), usage, nil
}

// toClaudeMessages maps the transcript to Messages API turns. Consecutive tool
// results are merged into one user turn so each tool_use has its tool_result
// in the immediately following message.
func toClaudeMessages(msgs []model.Message) ([]anthropic.MessageParam, error) {
	var messages []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleUser:
			flush()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))

		case model.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: call.Args,
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		case model.RoleTool:
			pendingResults = append(pendingResults, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: msg.ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{
						{OfText: &anthropic.TextBlockParam{Text: msg.Text}},
					},
				},
			})

		default:
			return nil, goerr.New("unknown message role", goerr.V("role", msg.Role))
		}
	}
	flush()

	return messages, nil
}

func toClaudeTools(specs []*model.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{}
		if spec.Parameters != nil {
			raw, err := json.Marshal(spec.Parameters)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to encode tool parameters",
					goerr.V("tool", spec.Name))
			}

			var decoded struct {
				Properties map[string]any `json:"properties"`
				Required   []string       `json:"required"`
			}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, goerr.Wrap(err, "failed to decode tool parameters",
					goerr.V("tool", spec.Name))
			}
			schema.Properties = decoded.Properties
			schema.Required = decoded.Required
		}

		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: schema,
			},
		})
	}
	return tools, nil
}

func claudeUsage(modelName string, msg *anthropic.Message) model.Usage {
	return model.Usage{
		Model:              modelName,
		PromptTokens:       msg.Usage.InputTokens,
		CachedPromptTokens: msg.Usage.CacheReadInputTokens,
		CompletionTokens:   msg.Usage.OutputTokens,
	}
}
