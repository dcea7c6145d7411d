package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulta/advisor-service/internal/report"
)

func TestExtractFileIntentFromJSONBlock(t *testing.T) {
	reply := "Here is your budget breakdown.\n\n" +
		"```json\n" +
		`{"output_format":"csv","table":{"headers":["Item","Cost"],"rows":[["Rent","1000"]]}}` +
		"\n```"

	intent, ok := report.ExtractFileIntent(reply)
	require.True(t, ok)
	assert.Equal(t, "csv", intent.OutputFormat)
	assert.Equal(t, []string{"Item", "Cost"}, intent.Table.Headers)
	require.Len(t, intent.Table.Rows, 1)
	assert.Equal(t, []string{"Rent", "1000"}, intent.Table.Rows[0])
}

func TestExtractFileIntentFromBareFence(t *testing.T) {
	reply := "Summary follows.\n```\n" +
		`{"output_format":"xlsx","table":{"headers":["A"],"rows":[["1"]]}}` +
		"\n```\n"
	intent, ok := report.ExtractFileIntent(reply)
	require.True(t, ok)
	assert.Equal(t, "xlsx", intent.OutputFormat)
}

func TestExtractFileIntentFromTrailingObject(t *testing.T) {
	reply := "No fences here. " +
		`{"output_format":"xlsx","table":{"headers":["A"],"rows":[["1"],["2"]]}}`
	intent, ok := report.ExtractFileIntent(reply)
	require.True(t, ok)
	require.Len(t, intent.Table.Rows, 2)
}

func TestExtractFileIntentRejectsOtherJSON(t *testing.T) {
	_, ok := report.ExtractFileIntent("```json\n{\"foo\": \"bar\"}\n```")
	assert.False(t, ok)

	_, ok = report.ExtractFileIntent("plain text, no json at all")
	assert.False(t, ok)

	// Missing rows means the block is not a complete intent.
	_, ok = report.ExtractFileIntent("```json\n{\"output_format\":\"csv\",\"table\":{\"headers\":[\"A\"]}}\n```")
	assert.False(t, ok)
}

func TestStripIntentBlock(t *testing.T) {
	reply := "Here is your budget breakdown.\n\n" +
		"```json\n" +
		`{"output_format":"csv","table":{"headers":["Item","Cost"],"rows":[["Rent","1000"]]}}` +
		"\n```"
	assert.Equal(t, "Here is your budget breakdown.", report.StripIntentBlock(reply))

	bare := "Costs attached. " +
		`{"output_format":"xlsx","table":{"headers":["A"],"rows":[["1"]]}}`
	assert.Equal(t, "Costs attached.", report.StripIntentBlock(bare))

	// Fenced code that is not a file intent stays put.
	code := "Try this:\n```json\n{\"foo\": \"bar\"}\n```\ndone"
	assert.Equal(t, code, report.StripIntentBlock(code))

	plain := "nothing to strip here"
	assert.Equal(t, plain, report.StripIntentBlock(plain))
}

func TestParseMarkdownTable(t *testing.T) {
	reply := "Here is the plan:\n\n" +
		"| Step | Owner |\n" +
		"|------|-------|\n" +
		"| Register | You |\n" +
		"| File taxes | Accountant |\n" +
		"\nGood luck!"

	table, ok := report.ParseMarkdownTable(reply)
	require.True(t, ok)
	assert.Equal(t, []string{"Step", "Owner"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"Register", "You"}, table.Rows[0])
}

func TestParseMarkdownTablePadsAndTruncates(t *testing.T) {
	reply := "| A | B | C |\n" +
		"|---|---|---|\n" +
		"| 1 | 2 |\n" +
		"| 1 | 2 | 3 | 4 |\n"

	table, ok := report.ParseMarkdownTable(reply)
	require.True(t, ok)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"1", "2", ""}, table.Rows[0])
	assert.Equal(t, []string{"1", "2", "3"}, table.Rows[1])
}

func TestParseMarkdownTableRequiresRows(t *testing.T) {
	_, ok := report.ParseMarkdownTable("| A | B |\n|---|---|\n")
	assert.False(t, ok)

	_, ok = report.ParseMarkdownTable("no table here")
	assert.False(t, ok)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "csv", report.DetectFormat("export this as CSV please"))
	assert.Equal(t, "csv", report.DetectFormat("make it comma-separated"))
	assert.Equal(t, "xlsx", report.DetectFormat("I want an Excel file"))
	assert.Equal(t, "xlsx", report.DetectFormat("build a spreadsheet"))
	assert.Equal(t, "xlsx", report.DetectFormat("give me a table"))
	// csv wins when both appear.
	assert.Equal(t, "csv", report.DetectFormat("excel or csv, whatever"))
}
