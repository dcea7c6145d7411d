package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/consulta/advisor-service/internal/report"
)

var budgetTable = report.TableSpec{
	Headers: []string{"Month", "Revenue", "Costs"},
	Rows: [][]string{
		{"January", "1200", "800"},
		{"February", "1500", "900"},
	},
}

func TestBuildXLSX(t *testing.T) {
	filename, contentType, data, err := report.Build("xlsx", budgetTable)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "report-"))
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))
	assert.Equal(t, report.XLSXContentType, contentType)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Month", "Revenue", "Costs"}, rows[0])
	assert.Equal(t, []string{"January", "1200", "800"}, rows[1])
	assert.Equal(t, []string{"February", "1500", "900"}, rows[2])
}

func TestBuildCSV(t *testing.T) {
	filename, contentType, data, err := report.Build("csv", budgetTable)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(filename, ".csv"))
	assert.Equal(t, report.CSVContentType, contentType)
	assert.Equal(t, "Month,Revenue,Costs\nJanuary,1200,800\nFebruary,1500,900\n", string(data))
}

func TestBuildCSVFlattensNewlines(t *testing.T) {
	_, _, data, err := report.Build("csv", report.TableSpec{
		Headers: []string{"a"},
		Rows:    [][]string{{"line1\nline2"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), "line1 line2")
}

func TestBuildUnsupportedFormat(t *testing.T) {
	_, _, _, err := report.Build("pdf", budgetTable)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}

func TestBuildCaseInsensitiveFormat(t *testing.T) {
	_, contentType, _, err := report.Build("XLSX", budgetTable)
	require.NoError(t, err)
	assert.Equal(t, report.XLSXContentType, contentType)
}
