// Package report builds downloadable csv and xlsx files from tabular data
// pulled out of assistant replies or supplied directly by clients.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// TableSpec is the tabular payload of a generated report.
type TableSpec struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// FileIntent is the machine-readable instruction the assistant appends to a
// reply when the user asked for a file.
type FileIntent struct {
	OutputFormat string    `json:"output_format"`
	Table        TableSpec `json:"table"`
}

const (
	// XLSXContentType is the MIME type reported for generated spreadsheets.
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// CSVContentType is the MIME type reported for generated csv files.
	CSVContentType = "text/csv"
)

// Build renders the table in the requested format. It returns a timestamped
// file name, the MIME type and the file payload.
func Build(format string, table TableSpec) (filename, contentType string, data []byte, err error) {
	stamp := time.Now().UTC().Format("20060102-150405")
	switch strings.ToLower(format) {
	case "xlsx":
		data, err = buildXLSX(table)
		if err != nil {
			return "", "", nil, err
		}
		return "report-" + stamp + ".xlsx", XLSXContentType, data, nil
	case "csv":
		data, err = buildCSV(table)
		if err != nil {
			return "", "", nil, err
		}
		return "report-" + stamp + ".csv", CSVContentType, data, nil
	default:
		return "", "", nil, fmt.Errorf("unsupported report format: %q", format)
	}
}

func buildXLSX(table TableSpec) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for c, h := range table.Headers {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStr(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for r, row := range table.Rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellStr(sheet, cell, val); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func buildCSV(table TableSpec) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(flattenCells(table.Headers)); err != nil {
		return nil, err
	}
	for _, row := range table.Rows {
		if err := w.Write(flattenCells(row)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// flattenCells keeps every cell on one line so csv rows import cleanly into
// spreadsheet tools.
func flattenCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}
