// Package sheets reads CSV and XLSX uploads into importer rows. The first
// row holds the headers; data rows are numbered from 2 as a spreadsheet
// shows them, and blank rows are skipped.
package sheets

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/fleetify/api/internal/importer"
)

var (
	ErrNoHeader    = errors.New("file has no header row")
	ErrTooManyRows = errors.New("file has too many rows")
)

// ReadFile picks the reader from the file extension.
func ReadFile(path, sheet string, maxRows int) ([]importer.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file, path, sheet, maxRows)
}

// Read reads r as the kind of file filename names.
func Read(r io.Reader, filename, sheet string, maxRows int) ([]importer.Row, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r, sheet, maxRows)
	case ".csv", ".txt", "":
		return ReadCSV(r, maxRows)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

// ReadCSV reads comma, semicolon or tab separated text. The delimiter is
// taken from the header line.
func ReadCSV(r io.Reader, maxRows int) ([]importer.Row, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = sniffDelimiter(raw)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return toRows(records, maxRows)
}

// ReadXLSX reads one worksheet, the first one when sheet is empty. Cells
// are read unformatted so dates arrive as Excel serial numbers.
func ReadXLSX(r io.Reader, sheet string, maxRows int) ([]importer.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return toRows(records, maxRows)
}

func toRows(records [][]string, maxRows int) ([]importer.Row, error) {
	headerAt := -1
	for i, record := range records {
		if !blank(record) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrNoHeader
	}

	headers := make([]string, len(records[headerAt]))
	seen := map[string]bool{}
	for i, h := range records[headerAt] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		headers[i] = h
	}

	rows := []importer.Row{}
	for i := headerAt + 1; i < len(records); i++ {
		record := records[i]
		if blank(record) {
			continue
		}
		if maxRows > 0 && len(rows) >= maxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
		}
		values := make(map[string]string, len(headers))
		for col, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if col < len(record) {
				value = strings.TrimSpace(record[col])
			}
			values[header] = value
		}
		rows = append(rows, importer.Row{Number: i + 1, Values: values})
	}
	return rows, nil
}

func sniffDelimiter(raw []byte) rune {
	line := raw
	if idx := bytes.IndexByte(raw, '\n'); idx >= 0 {
		line = raw[:idx]
	}
	best, count := ',', bytes.Count(line, []byte(","))
	for _, candidate := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(candidate))); n > count {
			best, count = candidate, n
		}
	}
	return best
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
