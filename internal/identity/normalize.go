// Package identity implements cross-platform identity reconciliation: handle
// normalization, automatic and explicit linking between native accounts and
// bot-platform accounts, and conversation owner resolution.
package identity

import "strings"

// NormalizeHandle converts a platform handle into its canonical matching
// form: surrounding whitespace trimmed, one leading "@" stripped, ASCII
// letters lowercased. Non-ASCII runes pass through untouched. The empty
// result means "no handle present" and never participates in matching.
func NormalizeHandle(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// NormalizedOrNil returns the normalized form of raw, or nil when raw is nil
// or normalizes to the empty string.
func NormalizedOrNil(raw *string) *string {
	if raw == nil {
		return nil
	}
	if n := NormalizeHandle(*raw); n != "" {
		return &n
	}
	return nil
}
