package platform

import (
	"strings"
	"unicode/utf8"
)

const codeFence = "```"

// SplitMessage splits text into chunks of at most limit characters, breaking
// on line boundaries and keeping fenced code blocks balanced within each
// chunk. A fence open at a chunk boundary is closed and reopened in the next
// chunk. A single line that cannot fit is cut on rune boundaries.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	var chunks []string
	var current []string
	inCode := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		if inCode {
			current = append(current, codeFence)
		}
		chunks = append(chunks, strings.Join(current, "\n"))
		current = nil
		if inCode {
			current = append(current, codeFence)
		}
	}

	// fits reserves room for the closing fence flush would add.
	fits := func(candidate []string) bool {
		size := len(strings.Join(candidate, "\n"))
		if inCode {
			size += len(codeFence) + 1
		}
		return size <= limit
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), codeFence) {
			inCode = !inCode
		}

		candidate := append(append([]string{}, current...), line)
		if !fits(candidate) {
			// A current holding only the reopened fence cannot shrink by
			// flushing again.
			reopened := inCode && len(current) == 1 && current[0] == codeFence
			if len(current) > 0 && !reopened {
				flush()
				candidate = append(append([]string{}, current...), line)
			}

			if !fits(candidate) {
				overhead := 0
				if len(current) > 0 {
					overhead += len(strings.Join(current, "\n")) + 1
				}
				if inCode {
					overhead += len(codeFence) + 1
				}

				size := limit - 200
				if size < 500 {
					size = 500
				}
				if room := limit - overhead; size > room && room > 0 {
					size = room
				}

				for _, piece := range cutLine(line, size) {
					current = append(current, piece)
					flush()
				}
				continue
			}
		}
		current = candidate
	}

	if len(current) > 0 {
		if inCode {
			current = append(current, codeFence)
		}
		chunks = append(chunks, strings.Join(current, "\n"))
	}

	return chunks
}

// cutLine cuts one overlong line into pieces of at most size bytes, backing
// off to the previous rune boundary so no piece carries a split rune. When
// size is smaller than a single rune the piece holds that rune whole.
func cutLine(line string, size int) []string {
	var pieces []string
	for len(line) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			_, n := utf8.DecodeRuneInString(line)
			cut = n
		}
		pieces = append(pieces, line[:cut])
		line = line[cut:]
	}
	return append(pieces, line)
}
