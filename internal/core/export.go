package core

// export.go re-encodes generated CSV into other download formats.
//
// Every format starts from the quote-all CSV artifact. JSON and SQL re-parse
// it instead of walking the tables again, so all formats agree cell for cell.

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Supported SQL dialects.
const (
	DialectPostgres = "postgresql"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"

	// DefaultSQLTable is used when no table name is given.
	DefaultSQLTable = "mapped_data"
)

// ExportOptions carries format-specific settings.
type ExportOptions struct {
	TableName string
	Dialect   string
}

// Exporter converts CSV output into a download format.
type Exporter interface {
	Format() string
	Extension() string
	ContentType() string
	Export(w io.Writer, csvData io.Reader, opts ExportOptions) error
}

// ExportRegistry holds the exporters available to a service.
type ExportRegistry struct {
	mu        sync.RWMutex
	exporters map[string]Exporter
}

// NewExportRegistry creates an empty registry.
func NewExportRegistry() *ExportRegistry {
	return &ExportRegistry{exporters: make(map[string]Exporter)}
}

// DefaultExportRegistry returns a registry with csv, json and sql.
func DefaultExportRegistry() *ExportRegistry {
	r := NewExportRegistry()
	r.Register(CSVExporter{})
	r.Register(JSONExporter{})
	r.Register(SQLExporter{})
	return r
}

// Register adds an exporter.
// Panics if the format is already registered.
func (r *ExportRegistry) Register(e Exporter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.exporters[e.Format()]; exists {
		panic(fmt.Sprintf("exporter already registered: %s", e.Format()))
	}
	r.exporters[e.Format()] = e
}

// Get returns the exporter for a format.
func (r *ExportRegistry) Get(format string) (Exporter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.exporters[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return e, nil
}

// Formats returns the registered format names, sorted.
func (r *ExportRegistry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CSVExporter copies the CSV through unchanged.
type CSVExporter struct{}

func (CSVExporter) Format() string      { return "csv" }
func (CSVExporter) Extension() string   { return "csv" }
func (CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

func (CSVExporter) Export(w io.Writer, csvData io.Reader, _ ExportOptions) error {
	_, err := io.Copy(w, csvData)
	return err
}

// JSONExporter writes an array of row objects. Keys keep output column
// order.
type JSONExporter struct{}

func (JSONExporter) Format() string      { return "json" }
func (JSONExporter) Extension() string   { return "json" }
func (JSONExporter) ContentType() string { return "application/json" }

func (JSONExporter) Export(w io.Writer, csvData io.Reader, _ ExportOptions) error {
	header, rows, err := readExportCSV(csvData)
	if err != nil {
		return err
	}

	keys := make([][]byte, len(header))
	for i, h := range header {
		if keys[i], err = json.Marshal(h); err != nil {
			return err
		}
	}

	var b strings.Builder
	b.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n  {")
		for j, v := range row {
			if j > 0 {
				b.WriteString(",")
			}
			val, err := json.Marshal(v)
			if err != nil {
				return err
			}
			b.WriteString("\n    ")
			b.Write(keys[j])
			b.WriteString(": ")
			b.Write(val)
		}
		b.WriteString("\n  }")
	}
	if len(rows) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("]\n")

	_, err = io.WriteString(w, b.String())
	return err
}

// SQLExporter writes one INSERT statement per row. Empty cells become NULL.
type SQLExporter struct{}

func (SQLExporter) Format() string      { return "sql" }
func (SQLExporter) Extension() string   { return "sql" }
func (SQLExporter) ContentType() string { return "application/sql" }

func (SQLExporter) Export(w io.Writer, csvData io.Reader, opts ExportOptions) error {
	dialect := strings.ToLower(opts.Dialect)
	if dialect == "" {
		dialect = DialectPostgres
	}
	quote, err := identQuoter(dialect)
	if err != nil {
		return err
	}
	table := opts.TableName
	if table == "" {
		table = DefaultSQLTable
	}

	header, rows, err := readExportCSV(csvData)
	if err != nil {
		return err
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = quote(h)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", quote(table), strings.Join(cols, ", "))

	vals := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			vals[i] = sqlLiteral(v, dialect)
		}
		if _, err := io.WriteString(w, prefix+strings.Join(vals, ", ")+");\n"); err != nil {
			return err
		}
	}
	return nil
}

// identQuoter returns the identifier quoting function for a dialect.
func identQuoter(dialect string) (func(string) string, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
		return func(s string) string {
			return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
		}, nil
	case DialectMySQL:
		return func(s string) string {
			return "`" + strings.ReplaceAll(s, "`", "``") + "`"
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
}

// sqlLiteral quotes v as a string literal. MySQL also treats backslash as
// an escape character.
func sqlLiteral(v, dialect string) string {
	if v == "" {
		return "NULL"
	}
	if dialect == DialectMySQL {
		v = strings.ReplaceAll(v, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// readExportCSV reads the header and every row, padding short rows so each
// has one value per header.
func readExportCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrNoColumns
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}
	return header, rows, nil
}
