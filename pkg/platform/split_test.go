package platform_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/chack/pkg/platform"
	"github.com/m-mizutani/gt"
)

func TestSplitMessageShortText(t *testing.T) {
	chunks := platform.SplitMessage("hello", 100)
	gt.A(t, chunks).Length(1)
	gt.Equal(t, chunks[0], "hello")
}

func TestSplitMessageBreaksOnLines(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = strings.Repeat("a", 30)
	}
	text := strings.Join(lines, "\n")

	chunks := platform.SplitMessage(text, 100)
	gt.True(t, len(chunks) > 1)
	for _, chunk := range chunks {
		gt.True(t, len(chunk) <= 100)
	}
	gt.Equal(t, strings.Join(chunks, "\n"), text)
}

func TestSplitMessageBalancesCodeFences(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("intro\n```\n")
	for i := 0; i < 10; i++ {
		sb.WriteString(strings.Repeat("c", 40))
		sb.WriteString("\n")
	}
	sb.WriteString("```")

	chunks := platform.SplitMessage(sb.String(), 120)
	gt.True(t, len(chunks) > 1)
	for _, chunk := range chunks {
		fences := strings.Count(chunk, "```")
		gt.Equal(t, fences%2, 0)
	}
}

func TestSplitMessageCutsOversizedLine(t *testing.T) {
	text := strings.Repeat("x", 5000)
	chunks := platform.SplitMessage(text, 1000)
	gt.True(t, len(chunks) > 1)

	var total int
	for _, chunk := range chunks {
		total += len(chunk)
	}
	gt.Equal(t, total, 5000)
}

func TestSplitMessageCutsOnRuneBoundaries(t *testing.T) {
	text := strings.Repeat("あ", 2000)
	chunks := platform.SplitMessage(text, 1000)
	gt.True(t, len(chunks) > 1)

	for _, chunk := range chunks {
		gt.True(t, utf8.ValidString(chunk))
		gt.True(t, len(chunk) <= 1000)
	}
	gt.Equal(t, strings.Join(chunks, ""), text)
}

func TestSplitMessageKeepsFencedChunksWithinLimit(t *testing.T) {
	line := strings.Repeat("c", 97)
	text := "```\n" + line + "\n" + line + "\n```"

	chunks := platform.SplitMessage(text, 100)
	gt.True(t, len(chunks) > 1)

	for _, chunk := range chunks {
		gt.True(t, len(chunk) <= 100)
		gt.Equal(t, strings.Count(chunk, "```")%2, 0)
	}
}
