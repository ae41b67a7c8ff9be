package model_test

import (
	"testing"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestEventKey(t *testing.T) {
	ev := model.Event{Platform: "discord", ChatID: "room-1"}
	gt.Equal(t, ev.Key(), model.ConversationKey{Platform: "discord", ChatID: "room-1"})

	// A threaded message keeps its own conversation.
	ev.ThreadID = "th-9"
	gt.Equal(t, ev.Key(), model.ConversationKey{Platform: "discord", ChatID: "th-9"})
}

func TestConversationKeyDocID(t *testing.T) {
	key := model.ConversationKey{Platform: "discord", ChatID: "guild/room:1"}
	docID := key.DocID()
	gt.Equal(t, docID, "discord_guild_room_1")
}
