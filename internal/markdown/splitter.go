package markdown

import (
	"strings"
	"unicode/utf8"
)

// DefaultLimit is the largest chunk we hand to the messenger. Telegram
// caps messages at 4096 characters; we leave headroom for closers.
const DefaultLimit = 4000

// closerReserve is the most balance can append to a chunk: a closing
// fence ("\n```") plus bold, italic and spoiler closers.
const closerReserve = 9

// Split breaks content into chunks no longer than limit characters.
// Code fences are never severed: a fence open at a chunk boundary is
// closed there and reopened with its language tag in the next chunk.
// Each chunk comes out with balanced bold, italic and spoiler markers.
func Split(content string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if utf8.RuneCountInString(content) <= limit {
		return []string{content}
	}

	var (
		chunks []string
		cur    []string
		curLen int
		fence  string
	)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		if fence != "" {
			cur = append(cur, "```")
		}
		chunks = append(chunks, balance(strings.Join(cur, "\n")))
		cur = cur[:0]
		curLen = 0
		if fence != "" {
			cur = append(cur, fence)
			curLen = utf8.RuneCountInString(fence) + 1
		}
	}

	for _, line := range strings.Split(content, "\n") {
		lineLen := utf8.RuneCountInString(line) + 1

		// Keep room under the limit for whatever closers the chunk
		// needs at its boundary.
		budget := limit - closerReserve

		if lineLen > budget {
			flush()
			for _, piece := range hardSplit(line, budget) {
				chunks = append(chunks, balance(piece))
			}
			continue
		}

		if curLen+lineLen > budget {
			flush()
		}

		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if fence == "" {
				fence = strings.TrimSpace(line)
			} else {
				fence = ""
			}
		}

		cur = append(cur, line)
		curLen += lineLen
	}
	flush()

	return chunks
}

// hardSplit chops a single oversized line into width-sized pieces.
func hardSplit(line string, width int) []string {
	if width < 1 {
		width = 1
	}
	var pieces []string
	runes := []rune(line)
	for len(runes) > width {
		pieces = append(pieces, string(runes[:width]))
		runes = runes[width:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

// balance closes markers left dangling by a chunk boundary so each
// chunk renders on its own.
func balance(chunk string) string {
	if strings.Count(chunk, "```")%2 == 1 {
		chunk += "\n```"
	}

	withoutBold := strings.ReplaceAll(chunk, "```", "")
	bold := strings.Count(withoutBold, "**")
	withoutBold = strings.ReplaceAll(withoutBold, "**", "")

	if bold%2 == 1 {
		chunk += "**"
	}
	if strings.Count(withoutBold, "*")%2 == 1 {
		chunk += "*"
	}
	if strings.Count(chunk, "||")%2 == 1 {
		chunk += "||"
	}
	return chunk
}
