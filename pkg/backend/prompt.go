package backend

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/m-mizutani/chack/pkg/model"
)

//go:embed prompt/summarize.md
var defaultSummarizePrompt string

// renderSummarizePrompt builds the summarization instruction, applying the
// override when configured and filling in {max_chars}.
func renderSummarizePrompt(override string, maxChars int) string {
	prompt := defaultSummarizePrompt
	if override != "" {
		prompt = override
	}
	return strings.ReplaceAll(prompt, "{max_chars}", strconv.Itoa(maxChars))
}

// formatTranscript renders messages as plain "role: text" lines for the
// summarization request.
func formatTranscript(msgs []model.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		text := msg.Text
		if msg.Role == model.RoleTool && msg.ToolName != "" {
			text = fmt.Sprintf("[%s] %s", msg.ToolName, msg.Text)
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildSummarizeRequest composes the user message for a summarization call.
func buildSummarizeRequest(previous string, msgs []model.Message) string {
	prev := previous
	if prev == "" {
		prev = "(none)"
	}

	return fmt.Sprintf(
		"### Previous memory:\n%s\n\n### Conversation:\n%s\n### Write the updated memory now.",
		prev, formatTranscript(msgs))
}

// clampSummary enforces the character cap on a backend-produced summary.
func clampSummary(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars > 0 {
		runes := []rune(text)
		if len(runes) > maxChars {
			return string(runes[:maxChars])
		}
	}
	return text
}
