package model

import (
	"time"

	"github.com/google/uuid"
)

// TurnID identifies one processed turn.
type TurnID string

// NewTurnID generates a new unique TurnID.
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// TurnUsage is the audit record of one completed turn, suitable for insertion
// into the optional usage sink.
type TurnUsage struct {
	TurnID       TurnID    `bigquery:"turn_id" json:"turn_id"`
	Platform     string    `bigquery:"platform" json:"platform"`
	ChatID       string    `bigquery:"chat_id" json:"chat_id"`
	Rounds       int       `bigquery:"rounds" json:"rounds"`
	ToolCalls    int       `bigquery:"tool_calls" json:"tool_calls"`
	Model        string    `bigquery:"model" json:"model"`
	PromptTokens int64     `bigquery:"prompt_tokens" json:"prompt_tokens"`
	OutputTokens int64     `bigquery:"output_tokens" json:"output_tokens"`
	CostUSD      float64   `bigquery:"cost_usd" json:"cost_usd"`
	CostKnown    bool      `bigquery:"cost_known" json:"cost_known"`
	CreatedAt    time.Time `bigquery:"created_at" json:"created_at"`
}
