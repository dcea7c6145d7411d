package llm

import "strings"

const maxTitleLen = 80

// SplitTitle extracts a leading "TITLE:" line from a raw completion reply.
// It returns the title (truncated to 80 characters, empty when the reply
// carried none) and the reply body with the title line and its blank
// separator removed. Replies without a TITLE: line pass through unchanged.
func SplitTitle(raw string) (title, body string) {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")

	first := strings.TrimSpace(lines[0])
	rest, ok := strings.CutPrefix(first, "TITLE:")
	if !ok {
		return "", normalized
	}

	title = truncate(strings.TrimSpace(rest), maxTitleLen)
	if len(lines) == 1 {
		return title, ""
	}
	if strings.TrimSpace(lines[1]) == "" {
		return title, strings.Join(lines[2:], "\n")
	}
	return title, strings.Join(lines[1:], "\n")
}

// FallbackTitle derives a title from the first non-empty line of a reply.
// Returns "" when the reply is all blank.
func FallbackTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return truncate(t, maxTitleLen)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
