package model

import (
	"strings"
	"time"
)

// ConversationKey identifies one chat or thread across the gateway. It is the
// sole key for session lookup and long-term memory persistence.
type ConversationKey struct {
	Platform string `json:"platform"`
	ChatID   string `json:"chat_id"`
}

// String renders the key in "platform:chat" form.
func (k ConversationKey) String() string {
	return k.Platform + ":" + k.ChatID
}

// DocID renders the key as a single path-safe token for document stores and
// file names.
func (k ConversationKey) DocID() string {
	r := strings.NewReplacer("/", "_", ":", "_", " ", "_")
	return r.Replace(k.Platform) + "_" + r.Replace(k.ChatID)
}

// Role is the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one normalized turn in a conversation transcript. Insertion
// order within a session is the conversation order.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// ToolCalls records the calls an assistant message requested, so the
	// backend can reconstruct a valid function-calling exchange.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool metadata, set only for RoleTool messages
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// LongTermMemoryRecord is the durable cross-session summary for one
// conversation. At most one record exists per key; writes are full overwrites.
type LongTermMemoryRecord struct {
	Summary   string    `firestore:"summary" json:"summary"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updated_at"`
}
