package core

// parse.go turns delimited text into a Table.
//
// The flow is a single pass over the decoded input:
//
//  1. Peek the header line to pick a delimiter (unless one is configured)
//  2. Clean and de-duplicate header names
//  3. Read records, trim cells, drop rows with no non-empty value
//  4. Compute per-column samples, empty stats and the detected type

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// UnnamedColumn replaces a header cell that is empty after cleaning.
	UnnamedColumn = "unnamed_column"

	// maxSamples is the number of non-empty values kept per column.
	maxSamples = 5
)

// candidateDelimiters are tried, in order, when no delimiter is configured.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ParseOptions tunes ParseTable.
type ParseOptions struct {
	// Delimiter is the field separator. Zero means detect from the header.
	Delimiter rune

	// MaxBytes rejects inputs larger than this many raw bytes. Zero disables
	// the limit.
	MaxBytes int64
}

// ParseTableBytes parses an in-memory file with default options.
func ParseTableBytes(data []byte, filename string) (*Table, error) {
	return ParseTable(bytes.NewReader(data), filename, ParseOptions{})
}

// ParseTable reads delimited text from r and builds a Table. The first record
// is the header. It returns ErrNoColumns when there is no header at all; no
// partial Table is ever returned with an error.
func ParseTable(r io.Reader, filename string, opts ParseOptions) (*Table, error) {
	br := bufio.NewReader(WrapInput(r, opts.MaxBytes))

	delim := opts.Delimiter
	if delim == 0 {
		head, err := br.Peek(4096)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("read header: %w", err)
		}
		delim = DetectDelimiter(firstLine(head))
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoColumns
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := cleanHeaders(header)
	if len(names) == 0 {
		return nil, ErrNoColumns
	}

	table := &Table{Filename: filename}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && !errors.Is(err, ErrFileTooLarge) {
				table.Warnings = append(table.Warnings, ParseWarning{
					Line:    perr.Line,
					Message: perr.Err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}

		row, hasValue := buildRow(names, record)
		if !hasValue {
			continue
		}
		if len(record) > len(names) {
			line, _ := cr.FieldPos(0)
			table.Warnings = append(table.Warnings, ParseWarning{
				Line:    line,
				Message: fmt.Sprintf("row has %d fields, expected %d; extra fields dropped", len(record), len(names)),
			})
		}
		table.Rows = append(table.Rows, row)
	}

	table.RowCount = len(table.Rows)
	table.Columns = buildColumns(names, table.Rows)
	return table, nil
}

// buildRow maps record cells onto header names. Missing trailing cells are
// absent keys; extra cells are ignored. The second result reports whether
// any cell is non-empty.
func buildRow(names []string, record []string) (Row, bool) {
	n := min(len(names), len(record))
	row := make(Row, n)
	hasValue := false
	for i := 0; i < n; i++ {
		v := strings.TrimSpace(record[i])
		row[names[i]] = v
		if v != "" {
			hasValue = true
		}
	}
	return row, hasValue
}

// buildColumns computes per-column statistics and types.
func buildColumns(names []string, rows []Row) []Column {
	rowCount := len(rows)
	columns := make([]Column, len(names))
	values := make([]string, rowCount)

	for idx, name := range names {
		empty := 0
		samples := make([]string, 0, maxSamples)
		for i, row := range rows {
			v := row[name]
			values[i] = v
			if v == "" {
				empty++
			} else if len(samples) < maxSamples {
				samples = append(samples, v)
			}
		}

		emptyPercent := 100.0
		typ := TypeString
		if rowCount > 0 {
			emptyPercent = math.Round(float64(empty)/float64(rowCount)*1000) / 10
			typ = DetectColumnType(values)
		}

		columns[idx] = Column{
			Name:         name,
			CleanName:    CleanName(name),
			Type:         typ,
			Samples:      samples,
			EmptyCount:   empty,
			EmptyPercent: emptyPercent,
			Index:        idx,
		}
	}
	return columns
}

// CleanColumnName strips a leading BOM and surrounding whitespace. An empty
// result becomes UnnamedColumn.
func CleanColumnName(name string) string {
	name = strings.TrimSpace(strings.TrimPrefix(name, byteOrderMark))
	if name == "" {
		return UnnamedColumn
	}
	return name
}

// CleanName collapses internal whitespace runs to a single space.
func CleanName(name string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
}

// cleanHeaders cleans every header cell and suffixes duplicates with _1, _2...
// so row keys stay unique.
func cleanHeaders(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := CleanColumnName(h)
		if seen[name] {
			base := name
			for n := 1; seen[name]; n++ {
				name = base + "_" + strconv.Itoa(n)
			}
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

// DetectDelimiter picks the candidate delimiter that occurs most often in the
// header line, ignoring quoted sections. Ties go to the earlier candidate, so
// a line with no candidates yields a comma.
func DetectDelimiter(line string) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best := candidateDelimiters[0]
	for _, d := range candidateDelimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

func firstLine(b []byte) string {
	if i := bytes.IndexAny(b, "\r\n"); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
