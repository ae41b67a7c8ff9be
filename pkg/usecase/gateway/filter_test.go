package gateway_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/usecase/gateway"
	"github.com/m-mizutani/gt"
)

func buildPolicy(cfg gateway.AdmissionConfig) *gateway.Policy {
	return gateway.NewPolicy(context.Background(), cfg)
}

func TestDMAdmission(t *testing.T) {
	ev := func(sender, username, text string) *model.Event {
		return &model.Event{
			Platform:       "test",
			Kind:           model.ChatKindDM,
			ChatID:         "c1",
			SenderID:       sender,
			SenderUsername: username,
			Text:           text,
		}
	}

	t.Run("open DM policy admits everyone", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{AllowDMs: true})
		gt.True(t, p.ShouldRespond(ev("u1", "alice", "hi")))
	})

	t.Run("disabled DMs drop everything", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{AllowDMs: false})
		gt.False(t, p.ShouldRespond(ev("u1", "alice", "hi")))
	})

	t.Run("sender ID allowlist", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			AllowDMs:       true,
			DMAllowlistIDs: []string{"u1"},
		})
		gt.True(t, p.ShouldRespond(ev("u1", "", "hi")))
		gt.False(t, p.ShouldRespond(ev("u2", "", "hi")))
	})

	t.Run("username allowlist is case-insensitive", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			AllowDMs:             true,
			DMAllowlistUsernames: []string{"Alice"},
		})
		gt.True(t, p.ShouldRespond(ev("u9", "alice", "hi")))
		gt.True(t, p.ShouldRespond(ev("u9", "ALICE", "hi")))
		gt.False(t, p.ShouldRespond(ev("u9", "bob", "hi")))
	})

	t.Run("username pattern allowlist", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			AllowDMs:           true,
			DMUsernamePatterns: []string{`^ops-`},
		})
		gt.True(t, p.ShouldRespond(ev("u9", "ops-alice", "hi")))
		gt.False(t, p.ShouldRespond(ev("u9", "alice", "hi")))
	})

	t.Run("require pattern filters text", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			AllowDMs:          true,
			DMRequirePatterns: []string{`\bbot\b`},
		})
		gt.True(t, p.ShouldRespond(ev("u1", "", "hey bot, help")))
		gt.False(t, p.ShouldRespond(ev("u1", "", "hey robot, help")))
	})

	t.Run("invalid patterns are skipped", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			AllowDMs:          true,
			DMRequirePatterns: []string{`[broken`},
		})
		// The only pattern was invalid, so no restriction remains.
		gt.True(t, p.ShouldRespond(ev("u1", "", "anything")))
	})
}

func TestGroupAdmission(t *testing.T) {
	ev := func(chatID, title, text string) *model.Event {
		return &model.Event{
			Platform:  "test",
			Kind:      model.ChatKindGroup,
			ChatID:    chatID,
			ChatTitle: title,
			SenderID:  "u1",
			Text:      text,
		}
	}

	t.Run("group allowlist by ID or title pattern", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			AllowGroups:        true,
			GroupAllowlistIDs:  []string{"g1"},
			GroupTitlePatterns: []string{`(?i)dev`},
		})
		gt.True(t, p.ShouldRespond(ev("g1", "", "hi")))
		gt.True(t, p.ShouldRespond(ev("g9", "Dev Chat", "hi")))
		gt.False(t, p.ShouldRespond(ev("g9", "Random", "hi")))
	})

	t.Run("disabled groups drop everything", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{AllowGroups: false})
		gt.False(t, p.ShouldRespond(ev("g1", "", "hi")))
	})
}

func TestChannelAdmission(t *testing.T) {
	t.Run("thread resolves to parent channel", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			ChannelIDs: []string{"ch-1"},
		})

		ev := &model.Event{
			Platform:        "test",
			Kind:            model.ChatKindChannel,
			ChatID:          "room",
			ThreadID:        "th-9",
			ChannelID:       "th-9",
			ParentChannelID: "ch-1",
			SenderID:        "u1",
			Text:            "hi",
		}
		gt.True(t, p.ShouldRespond(ev))

		ev2 := *ev
		ev2.ParentChannelID = "ch-2"
		gt.False(t, p.ShouldRespond(&ev2))
	})

	t.Run("trigger words are substring case-insensitive", func(t *testing.T) {
		p := buildPolicy(gateway.AdmissionConfig{
			TriggerWords: []string{"chack"},
		})

		ev := &model.Event{
			Platform:  "test",
			Kind:      model.ChatKindChannel,
			ChatID:    "room",
			ChannelID: "ch-1",
			SenderID:  "u1",
			Text:      "ask CHACK about it",
		}
		gt.True(t, p.ShouldRespond(ev))

		ev2 := *ev
		ev2.Text = "nothing relevant"
		gt.False(t, p.ShouldRespond(&ev2))
	})
}
