package gateway

import (
	"context"
	"regexp"
	"strings"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/utils/logging"
)

// Policy is the compiled static admission filter. Build it once at startup;
// ShouldRespond is a pure predicate over event metadata.
type Policy struct {
	allowDMs    bool
	allowGroups bool

	dmAllowlistIDs       map[string]bool
	dmAllowlistUsernames map[string]bool
	dmUsernamePatterns   []*regexp.Regexp
	dmRequirePatterns    []*regexp.Regexp

	groupAllowlistIDs    map[string]bool
	groupTitlePatterns   []*regexp.Regexp
	groupRequirePatterns []*regexp.Regexp

	channelIDs   map[string]bool
	triggerWords []string
}

// NewPolicy compiles the admission configuration. Invalid regex patterns are
// skipped with a warning so one bad pattern never locks the gateway out.
func NewPolicy(ctx context.Context, cfg AdmissionConfig) *Policy {
	p := &Policy{
		allowDMs:             cfg.AllowDMs,
		allowGroups:          cfg.AllowGroups,
		dmAllowlistIDs:       toSet(cfg.DMAllowlistIDs, false),
		dmAllowlistUsernames: toSet(cfg.DMAllowlistUsernames, true),
		dmUsernamePatterns:   compilePatterns(ctx, cfg.DMUsernamePatterns),
		dmRequirePatterns:    compilePatterns(ctx, cfg.DMRequirePatterns),
		groupAllowlistIDs:    toSet(cfg.GroupAllowlistIDs, false),
		groupTitlePatterns:   compilePatterns(ctx, cfg.GroupTitlePatterns),
		groupRequirePatterns: compilePatterns(ctx, cfg.GroupRequirePatterns),
		channelIDs:           toSet(cfg.ChannelIDs, false),
	}

	for _, w := range cfg.TriggerWords {
		if w = strings.TrimSpace(w); w != "" {
			p.triggerWords = append(p.triggerWords, strings.ToLower(w))
		}
	}

	return p
}

// ShouldRespond decides whether an inbound event is processed at all. A false
// result is a silent drop: no session is created and no reply is sent.
func (p *Policy) ShouldRespond(ev *model.Event) bool {
	switch ev.Kind {
	case model.ChatKindDM:
		return p.admitDM(ev)
	case model.ChatKindGroup:
		return p.admitGroup(ev)
	case model.ChatKindChannel:
		return p.admitChannel(ev)
	default:
		return false
	}
}

func (p *Policy) admitDM(ev *model.Event) bool {
	if !p.allowDMs {
		return false
	}

	if len(p.dmAllowlistIDs) > 0 || len(p.dmAllowlistUsernames) > 0 || len(p.dmUsernamePatterns) > 0 {
		if !p.senderAllowed(ev) {
			return false
		}
	}

	return matchAny(p.dmRequirePatterns, ev.Text)
}

func (p *Policy) senderAllowed(ev *model.Event) bool {
	if p.dmAllowlistIDs[ev.SenderID] {
		return true
	}

	username := strings.ToLower(ev.SenderUsername)
	if username != "" && p.dmAllowlistUsernames[username] {
		return true
	}

	for _, re := range p.dmUsernamePatterns {
		if username != "" && re.MatchString(ev.SenderUsername) {
			return true
		}
	}
	return false
}

func (p *Policy) admitGroup(ev *model.Event) bool {
	if !p.allowGroups {
		return false
	}

	if len(p.groupAllowlistIDs) > 0 || len(p.groupTitlePatterns) > 0 {
		allowed := p.groupAllowlistIDs[ev.ChatID]
		if !allowed {
			for _, re := range p.groupTitlePatterns {
				if ev.ChatTitle != "" && re.MatchString(ev.ChatTitle) {
					allowed = true
					break
				}
			}
		}
		if !allowed {
			return false
		}
	}

	return matchAny(p.groupRequirePatterns, ev.Text)
}

func (p *Policy) admitChannel(ev *model.Event) bool {
	if len(p.channelIDs) > 0 {
		// Thread messages are admitted through their parent channel.
		channel := ev.ChannelID
		if ev.ParentChannelID != "" {
			channel = ev.ParentChannelID
		}
		if !p.channelIDs[channel] {
			return false
		}
	}

	if len(p.triggerWords) == 0 {
		return true
	}

	text := strings.ToLower(ev.Text)
	for _, w := range p.triggerWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// matchAny reports whether text matches one of the patterns. An empty pattern
// list admits everything.
func matchAny(patterns []*regexp.Regexp, text string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func compilePatterns(ctx context.Context, patterns []string) []*regexp.Regexp {
	var compiled []*regexp.Regexp
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logging.From(ctx).Warn("skipping invalid admission pattern",
				"pattern", pattern, "error", err)
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

func toSet(values []string, lower bool) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		set[v] = true
	}
	return set
}
