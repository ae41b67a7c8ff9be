package model

// ChatKind distinguishes the admission rules applied to an inbound event.
type ChatKind string

const (
	ChatKindDM      ChatKind = "dm"
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
)

// Event is a normalized inbound message delivered by a platform adapter.
type Event struct {
	Platform string   `json:"platform"`
	Kind     ChatKind `json:"kind"`
	ChatID   string   `json:"chat_id"`
	// ChatTitle is the group/channel title when the platform provides one.
	ChatTitle string `json:"chat_title,omitempty"`
	// ThreadID is set when the message was posted in a thread. Threaded
	// conversations keep their own session.
	ThreadID string `json:"thread_id,omitempty"`
	// ChannelID is the channel the message belongs to. For thread messages
	// ParentChannelID carries the parent channel used for allowlisting.
	ChannelID       string `json:"channel_id,omitempty"`
	ParentChannelID string `json:"parent_channel_id,omitempty"`

	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username,omitempty"`

	Text string `json:"text"`
}

// Key returns the conversation identity of the event. Thread messages are
// keyed by thread so each thread holds its own memory.
func (ev Event) Key() ConversationKey {
	chatID := ev.ChatID
	if ev.ThreadID != "" {
		chatID = ev.ThreadID
	}
	return ConversationKey{Platform: ev.Platform, ChatID: chatID}
}

// Reply is an outbound message for the originating platform.
type Reply struct {
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Text     string `json:"text"`
}
