package backend

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/m-mizutani/chack/pkg/adapter"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// geminiBackend implements Backend on the Gemini generative API.
type geminiBackend struct {
	gemini adapter.Gemini
}

// NewGemini creates the Gemini backend variant.
func NewGemini(gemini adapter.Gemini) Backend {
	return &geminiBackend{gemini: gemini}
}

func (b *geminiBackend) Converse(ctx context.Context, input *ConverseInput) (*ConverseOutput, error) {
	contents, err := toGenaiContents(input.Messages)
	if err != nil {
		return nil, err
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(input.SystemPrompt, ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	if len(input.Tools) > 0 {
		toolSpec, err := toGenaiTool(input.Tools)
		if err != nil {
			return nil, err
		}
		config.Tools = []*genai.Tool{toolSpec}
	}

	resp, err := b.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content")
	}

	out := &ConverseOutput{
		Usage: geminiUsage(b.gemini.GenerativeModel(), resp),
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}

		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	out.Text = strings.Join(texts, "")

	return out, nil
}

func (b *geminiBackend) Summarize(ctx context.Context, input *SummarizeInput) (string, model.Usage, error) {
	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(renderSummarizePrompt(input.Prompt, input.MaxChars), ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buildSummarizeRequest(input.Previous, input.Messages), genai.RoleUser),
	}

	resp, err := b.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", model.Usage{}, goerr.Wrap(err, "failed to summarize conversation")
	}

	usage := geminiUsage(b.gemini.GenerativeModel(), resp)

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", usage, goerr.New("empty summarization response")
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return clampSummary(strings.Join(texts, ""), input.MaxChars), usage, nil
}

// toGenaiContents maps the transcript to Gemini contents. Consecutive tool
// results are merged into one user content, matching how the API expects
// function responses for a single round.
func toGenaiContents(msgs []model.Message) ([]*genai.Content, error) {
	var contents []*genai.Content
	var pendingResponses []*genai.Part

	flush := func() {
		if len(pendingResponses) > 0 {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: pendingResponses,
			})
			pendingResponses = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleUser:
			flush()
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))

		case model.RoleAssistant:
			flush()
			var parts []*genai.Part
			if msg.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Text})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: call.Args,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: parts,
			})

		case model.RoleTool:
			pendingResponses = append(pendingResponses, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:   msg.ToolCallID,
					Name: msg.ToolName,
					Response: map[string]any{
						"result": msg.Text,
					},
				},
			})

		default:
			return nil, goerr.New("unknown message role", goerr.V("role", msg.Role))
		}
	}
	flush()

	return contents, nil
}

// toGenaiTool converts tool specs into one genai.Tool with a declaration per
// tool.
func toGenaiTool(specs []*model.ToolSpec) (*genai.Tool, error) {
	declarations := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		params, err := toGenaiSchema(spec.Parameters)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert tool parameters",
				goerr.V("tool", spec.Name))
		}

		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		})
	}

	return &genai.Tool{FunctionDeclarations: declarations}, nil
}

// toGenaiSchema converts JSON Schema to Gemini genai.Schema
func toGenaiSchema(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	genaiSchema := &genai.Schema{}

	switch schema.Type {
	case "object":
		genaiSchema.Type = genai.TypeObject
	case "string":
		genaiSchema.Type = genai.TypeString
	case "number", "integer":
		genaiSchema.Type = genai.TypeNumber
	case "boolean":
		genaiSchema.Type = genai.TypeBoolean
	case "array":
		genaiSchema.Type = genai.TypeArray
	default:
		if schema.Type != "" {
			return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
		}
	}

	if schema.Description != "" {
		genaiSchema.Description = schema.Description
	}

	if len(schema.Enum) > 0 {
		genaiSchema.Enum = make([]string, len(schema.Enum))
		for i, v := range schema.Enum {
			if s, ok := v.(string); ok {
				genaiSchema.Enum[i] = s
			}
		}
	}

	if len(schema.Properties) > 0 {
		genaiSchema.Properties = make(map[string]*genai.Schema)
		for name, propSchema := range schema.Properties {
			converted, err := toGenaiSchema(propSchema)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema",
					goerr.V("property", name))
			}
			genaiSchema.Properties[name] = converted
		}
	}

	if len(schema.Required) > 0 {
		genaiSchema.Required = schema.Required
	}

	if schema.Items != nil {
		converted, err := toGenaiSchema(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert items schema")
		}
		genaiSchema.Items = converted
	}

	return genaiSchema, nil
}

func geminiUsage(modelName string, resp *genai.GenerateContentResponse) model.Usage {
	usage := model.Usage{Model: modelName}
	if resp.UsageMetadata == nil {
		return usage
	}

	usage.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
	usage.CachedPromptTokens = int64(resp.UsageMetadata.CachedContentTokenCount)
	usage.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	return usage
}
