// Package ingest turns hand-off spreadsheets (CSV, XLSX) into datasets the
// pipeline can extract from.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadFile parses a spreadsheet into one record per data row, keyed by the
// header row. The format is chosen by file extension.
func ReadFile(path string) ([]map[string]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path)
	case ".xlsx":
		return ReadXLSX(path, 0)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses a CSV file with a header row into records.
func ReadCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ingest: open %s", path))
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ingest: read %s", path))
	}
	return toRecords(rows), nil
}

// ReadXLSX parses one sheet of an XLSX workbook, header row first.
func ReadXLSX(path string, sheetIndex int) ([]map[string]any, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ingest: open %s", path))
	}
	if sheetIndex >= len(wb.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", sheetIndex, len(wb.Sheets))
	}

	sheet := wb.Sheets[sheetIndex]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return toRecords(rows), nil
}

// toRecords pairs each data row with the header row. Rows shorter than the
// header leave the missing fields empty; fully blank rows are dropped.
func toRecords(rows [][]string) []map[string]any {
	if len(rows) < 2 {
		return nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	var records []map[string]any
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(map[string]any, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
