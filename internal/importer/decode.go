package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for any extension other than .csv or
// .xlsx. The file is rejected before any decoder runs.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// DecodeRows decodes the staged file bytes into an ordered sequence of
// Rows, choosing the decoder by the declared file name's extension.
func DecodeRows(fileName string, data []byte) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return decodeCSV(data)
	case ".xlsx":
		return decodeXLSX(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// decodeCSV parses CSV bytes: the first record is the header, every later
// record is one row. Input is BOM-stripped and UTF-8 sanitized first so
// files exported from Windows tools decode cleanly.
func decodeCSV(data []byte) ([]Row, error) {
	data = sanitizeUTF8(trimBOM(data))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	return rowsFromRecords(records[0], records[1:]), nil
}

// decodeXLSX parses the first sheet of a workbook; the first row is the header.
func decodeXLSX(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	return rowsFromRecords(records[0], records[1:]), nil
}

func rowsFromRecords(header []string, records [][]string) []Row {
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		if isEmptyRecord(record) {
			continue
		}
		rows = append(rows, rowFromRecord(header, record))
	}
	return rows
}

func isEmptyRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// trimBOM removes a leading UTF-8 byte order mark.
func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement
// character so the csv reader never chokes on mis-encoded exports.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.Write(data[:size])
			data = data[size:]
		}
	}

	return buf.Bytes()
}
