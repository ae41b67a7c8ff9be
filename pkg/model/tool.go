package model

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolSpec declares one callable tool in a backend-neutral form. Each backend
// translates the JSON Schema parameters into its own function-calling format.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ToolCall is a tool invocation requested by the agent backend.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of one tool invocation. A failed call carries the
// failure description in Text and is fed back to the backend like any other
// result.
type ToolResult struct {
	Call      ToolCall `json:"call"`
	Text      string   `json:"text"`
	Failed    bool     `json:"failed"`
	Truncated bool     `json:"truncated"`
}

// Message converts the result into a tool-role transcript message.
func (r ToolResult) Message(now time.Time) Message {
	return Message{
		Role:       RoleTool,
		Text:       r.Text,
		Timestamp:  now,
		ToolName:   r.Call.Name,
		ToolCallID: r.Call.ID,
	}
}

// Usage is backend-reported token usage for a single call. A zero value means
// the backend did not report usage.
type Usage struct {
	Model              string `json:"model,omitempty"`
	PromptTokens       int64  `json:"prompt_tokens"`
	CachedPromptTokens int64  `json:"cached_prompt_tokens"`
	CompletionTokens   int64  `json:"completion_tokens"`
}

// Add accumulates another usage report. The model name of the first non-empty
// report wins.
func (u *Usage) Add(other Usage) {
	if u.Model == "" {
		u.Model = other.Model
	}
	u.PromptTokens += other.PromptTokens
	u.CachedPromptTokens += other.CachedPromptTokens
	u.CompletionTokens += other.CompletionTokens
}
