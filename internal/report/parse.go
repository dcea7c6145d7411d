package report

import (
	"encoding/json"
	"strings"
)

// ExtractFileIntent finds the file-generation instruction the assistant was
// prompted to append inside a trailing ```json block. It also accepts a bare
// JSON object at the end of the reply for models that drop the fence.
func ExtractFileIntent(text string) (FileIntent, bool) {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(text, marker)
		if start < 0 {
			continue
		}
		after := text[start+len(marker):]
		end := strings.Index(after, "```")
		if end < 0 {
			continue
		}
		if intent, ok := parseIntent(after[:end]); ok {
			return intent, true
		}
	}

	// Fall back to the last {...} span in the text.
	open := strings.LastIndex(text, "{")
	close := strings.LastIndex(text, "}")
	if open >= 0 && open < close {
		if intent, ok := parseIntent(text[open : close+1]); ok {
			return intent, true
		}
	}
	return FileIntent{}, false
}

// StripIntentBlock removes a file-request block found by ExtractFileIntent
// from the reply text, so the machine instruction never reaches the user.
// Text without a parseable block passes through unchanged.
func StripIntentBlock(text string) string {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(text, marker)
		if start < 0 {
			continue
		}
		after := text[start+len(marker):]
		end := strings.Index(after, "```")
		if end < 0 {
			continue
		}
		if _, ok := parseIntent(after[:end]); ok {
			return strings.TrimSpace(text[:start] + after[end+len("```"):])
		}
	}

	open := strings.LastIndex(text, "{")
	close := strings.LastIndex(text, "}")
	if open >= 0 && open < close {
		if _, ok := parseIntent(text[open : close+1]); ok {
			return strings.TrimSpace(text[:open] + text[close+1:])
		}
	}
	return text
}

func parseIntent(raw string) (FileIntent, bool) {
	var intent FileIntent
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &intent); err != nil {
		return FileIntent{}, false
	}
	// All three fields must actually be present; unmarshal alone would accept
	// any JSON object.
	if intent.OutputFormat == "" || intent.Table.Headers == nil || intent.Table.Rows == nil {
		return FileIntent{}, false
	}
	return intent, true
}

// ParseMarkdownTable extracts the first pipe-delimited table from a reply.
// The second table line is assumed to be the |---| separator and is skipped;
// short or long data rows are padded or truncated to the header width.
func ParseMarkdownTable(text string) (TableSpec, bool) {
	var tableLines []string
	inTable := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			inTable = true
			tableLines = append(tableLines, trimmed)
		} else if inTable {
			break
		}
	}
	if len(tableLines) < 2 {
		return TableSpec{}, false
	}

	headers := splitTableRow(tableLines[0])
	if len(headers) == 0 {
		return TableSpec{}, false
	}

	var rows [][]string
	for _, line := range tableLines[2:] {
		cells := splitTableRow(line)
		if len(cells) == 0 {
			continue
		}
		for len(cells) < len(headers) {
			cells = append(cells, "")
		}
		rows = append(rows, cells[:len(headers)])
	}
	if len(rows) == 0 {
		return TableSpec{}, false
	}
	return TableSpec{Headers: headers, Rows: rows}, true
}

func splitTableRow(line string) []string {
	var cells []string
	for _, cell := range strings.Split(line, "|") {
		if c := strings.TrimSpace(cell); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

// DetectFormat picks the report format a user message asks for. CSV keywords
// win, Excel keywords follow, and xlsx is the default.
func DetectFormat(message string) string {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "csv") || strings.Contains(m, "comma-separated"):
		return "csv"
	case strings.Contains(m, "excel") || strings.Contains(m, "xlsx") || strings.Contains(m, "spreadsheet"):
		return "xlsx"
	default:
		return "xlsx"
	}
}
