package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// CSV parsing modes.
const (
	// CSVModeNaive splits on newlines and the delimiter with no quoting
	// support. A field containing the delimiter shifts every later column.
	CSVModeNaive = "naive"
	// CSVModeRFC4180 uses encoding/csv and honours quoted fields.
	CSVModeRFC4180 = "rfc4180"
)

var (
	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	// Checked in order; the first column present wins.
	dateColumns = []string{"date", "Date", "DATE"}

	dateLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"02-Jan-2006",
	}
)

type recordParser struct {
	mode      string
	delimiter rune
}

func newRecordParser(mode string, delimiter rune) recordParser {
	if mode != CSVModeRFC4180 {
		mode = CSVModeNaive
	}
	if delimiter == 0 {
		delimiter = ','
	}
	return recordParser{mode: mode, delimiter: delimiter}
}

// parse returns the non-empty records of the file with every field trimmed.
// The first record is the header.
func (p recordParser) parse(fileName string, payload []byte) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".xlsx") {
		return parseExcel(payload)
	}
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	if p.mode == CSVModeRFC4180 {
		return p.parseRFC4180(payload)
	}
	return p.parseNaive(payload), nil
}

func (p recordParser) parseNaive(payload []byte) [][]string {
	var records [][]string
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		records = append(records, trimFields(strings.Split(line, string(p.delimiter))))
	}
	return records
}

func (p recordParser) parseRFC4180(payload []byte) ([][]string, error) {
	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(payload)))
	reader.Comma = p.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read csv: %v", ErrEmptyOrInvalidFile, err)
	}
	return dropBlankRecords(raw), nil
}

func parseExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open xlsx: %v", ErrEmptyOrInvalidFile, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: excel file has no sheets", ErrEmptyOrInvalidFile)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	records := dropBlankRecords(rows)

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	convertDateSerials(records, date1904)
	return records, nil
}

// convertDateSerials rewrites numeric cells in the date column, which Excel
// stores as day serials, to ISO dates. Text cells are left alone.
func convertDateSerials(records [][]string, date1904 bool) {
	if len(records) == 0 {
		return
	}
	column := detectDateColumn(records[0])
	if column == "" {
		return
	}
	index := -1
	for i, header := range records[0] {
		if header == column {
			index = i
		}
	}

	for _, record := range records[1:] {
		if index >= len(record) {
			continue
		}
		serial, err := strconv.ParseFloat(record[index], 64)
		if err != nil || serial <= 0 {
			continue
		}
		ts, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			continue
		}
		record[index] = ts.Format("2006-01-02")
	}
}

func dropBlankRecords(raw [][]string) [][]string {
	var records [][]string
	for _, record := range raw {
		fields := trimFields(record)
		blank := true
		for _, field := range fields {
			if field != "" {
				blank = false
				break
			}
		}
		if !blank {
			records = append(records, fields)
		}
	}
	return records
}

func trimFields(fields []string) []string {
	out := make([]string, len(fields))
	for i, field := range fields {
		out[i] = strings.TrimSpace(field)
	}
	return out
}

// alignRow pairs record fields with header columns by position. Missing
// trailing fields become "" and surplus fields are dropped. When a header
// name repeats, the right-most column wins.
func alignRow(headers, record []string) map[string]string {
	values := make(map[string]string, len(headers))
	for i, header := range headers {
		value := ""
		if i < len(record) {
			value = record[i]
		}
		values[header] = value
	}
	return values
}

var errDateColumnNotFound = errors.New("Date column not found")

// rowDate locates and parses the row date. The returned error text is the
// row failure message.
func rowDate(values map[string]string) (time.Time, error) {
	for _, column := range dateColumns {
		raw, ok := values[column]
		if !ok {
			continue
		}
		parsed, err := ParseDate(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("Invalid date format: %s", raw)
		}
		return parsed, nil
	}
	return time.Time{}, errDateColumnNotFound
}

// detectDateColumn names the column rowDate would read, or "".
func detectDateColumn(headers []string) string {
	present := make(map[string]struct{}, len(headers))
	for _, header := range headers {
		present[header] = struct{}{}
	}
	for _, column := range dateColumns {
		if _, ok := present[column]; ok {
			return column
		}
	}
	return ""
}

// ParseDate accepts the calendar date layouts the pipeline understands and
// returns midnight UTC of that day.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
