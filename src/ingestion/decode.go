package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// previewLines caps the raw-text preview used for custodian detection.
const previewLines = 50

// RawTable is the decoder's output: ordered rows of raw text cells plus a
// short raw-text preview. Transient, rebuilt per file.
type RawTable struct {
	Rows    [][]string
	Preview []string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText turns raw bytes into text by trying encodings in a fixed
// order: UTF-8 (BOM stripped), then Latin-1. If nothing applies cleanly the
// bytes are decoded permissively with replacement characters; decoding
// never fails outright.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	if out, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(out)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

// DecodeTable turns raw file bytes into a RawTable. Workbook inputs
// (detected by extension) go through the sheet selector; any workbook read
// failure falls back to delimited-text parsing of the same bytes, recorded
// as a soft error rather than aborting the file.
func DecodeTable(filename string, data []byte) (RawTable, []string) {
	var softErrors []string

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".xlsx" || ext == ".xls" {
		table, err := decodeWorkbook(data)
		if err == nil {
			return table, softErrors
		}
		softErrors = append(softErrors, fmt.Sprintf("workbook_read_failed: %v", err))
	}

	text := decodeText(data)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	preview := lines
	if len(preview) > previewLines {
		preview = preview[:previewLines]
	}

	delim := DetectDelimiter(lines)
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		softErrors = append(softErrors, fmt.Sprintf("text_parse_failed: %v", err))
		rows = nil
	}
	return RawTable{Rows: rows, Preview: preview}, softErrors
}

// decodeWorkbook parses every sheet, scores each by
// (non-empty column count) x (non-empty row count) and picks the highest
// scorer, ties broken by first-encountered sheet. A workbook with no
// non-empty cell yields an empty RawTable, not an error.
func decodeWorkbook(data []byte) (RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return RawTable{}, err
	}
	defer f.Close()

	var bestRows [][]string
	bestScore := -1
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if score := sheetScore(rows); score > bestScore {
			bestScore = score
			bestRows = rows
		}
	}
	if bestScore <= 0 {
		return RawTable{}, nil
	}

	preview := make([]string, 0, previewLines)
	for _, row := range bestRows {
		if len(preview) == previewLines {
			break
		}
		cells := row
		if len(cells) > 10 {
			cells = cells[:10]
		}
		preview = append(preview, strings.Join(cells, "\t"))
	}
	return RawTable{Rows: bestRows, Preview: preview}, nil
}

func sheetScore(rows [][]string) int {
	nonEmptyRows := 0
	colSeen := make(map[int]bool)
	for _, row := range rows {
		rowHasData := false
		for j, cell := range row {
			if strings.TrimSpace(cell) != "" {
				rowHasData = true
				colSeen[j] = true
			}
		}
		if rowHasData {
			nonEmptyRows++
		}
	}
	return len(colSeen) * nonEmptyRows
}
