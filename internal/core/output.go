package core

// output.go merges a schema table and a data table into the mapped output.
//
// Generation has two phases:
//  1. Plan: compute the column order once and compile each column's
//     transformation
//  2. Rows: run every data row through the plan; rows are independent
//
// The CSV form is streamed row by row so large tables never hold a second
// full copy in memory.

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/colmap/internal/formula"
)

// DefaultPreviewRows is the number of source rows shown in a preview.
const DefaultPreviewRows = 10

// emptyWarningPercent is the source emptiness above which a mapped column is
// flagged in the summary.
const emptyWarningPercent = 50

// Output is a fully generated result.
type Output struct {
	Columns []string      `json:"columns"`
	Rows    [][]string    `json:"rows"`
	Summary OutputSummary `json:"summary"`
}

// Preview is the first few output rows keyed by column name.
type Preview struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

// cellSource describes how one output column is filled.
type cellSource struct {
	source    string // empty means the cell is always ""
	transform *CompiledTransformation
}

// outputPlan is the per-generation state shared by every row.
type outputPlan struct {
	columns []string
	cells   []cellSource
	summary OutputSummary
}

// BuildColumnOrder returns the output column order: schema columns in schema
// order, except that columns whose mapping action is new are moved to the
// end, keeping their relative order.
func BuildColumnOrder(schema *Table, mappings []ColumnMapping) []string {
	index := indexMappings(mappings)
	primary := make([]string, 0, len(schema.Columns))
	var appended []string

	for _, col := range schema.Columns {
		if m, ok := index[col.Name]; ok && m.Action == ActionNew {
			appended = append(appended, col.Name)
			continue
		}
		primary = append(primary, col.Name)
	}
	return append(primary, appended...)
}

// indexMappings keys mappings by target column. When a target appears more
// than once the first mapping wins.
func indexMappings(mappings []ColumnMapping) map[string]*ColumnMapping {
	index := make(map[string]*ColumnMapping, len(mappings))
	for i := range mappings {
		if _, dup := index[mappings[i].TargetColumn]; dup {
			continue
		}
		index[mappings[i].TargetColumn] = &mappings[i]
	}
	return index
}

// newOutputPlan computes column order, compiles transformations and fills in
// everything in the summary that does not depend on rows.
func newOutputPlan(schema, data *Table, mappings []ColumnMapping, opts CompileOptions) *outputPlan {
	p := &outputPlan{
		columns: BuildColumnOrder(schema, mappings),
		summary: OutputSummary{
			TotalRows:              data.RowCount,
			ColumnsWithEmptyValues: []string{},
			Warnings:               []string{},
		},
	}
	p.summary.TotalColumns = len(p.columns)

	for _, m := range mappings {
		switch m.Action {
		case ActionMap:
			p.summary.MappedColumns++
		case ActionNew:
			p.summary.NewColumns++
		case ActionIgnore:
			p.summary.IgnoredColumns++
		}

		if m.Action != ActionMap || m.SourceColumn == "" {
			continue
		}
		if src, ok := data.Column(m.SourceColumn); ok && src.EmptyPercent > emptyWarningPercent {
			p.summary.ColumnsWithEmptyValues = append(p.summary.ColumnsWithEmptyValues, m.TargetColumn)
			p.summary.Warnings = append(p.summary.Warnings,
				fmt.Sprintf("Column %q has %s%% empty values", m.TargetColumn, formula.Stringify(src.EmptyPercent)))
		}
	}

	index := indexMappings(mappings)
	p.cells = make([]cellSource, len(p.columns))
	for i, col := range p.columns {
		m, ok := index[col]
		if !ok || m.Action == ActionIgnore || m.SourceColumn == "" {
			continue
		}
		cell := cellSource{source: m.SourceColumn}
		if m.Transformation != nil {
			ct, err := CompileTransformation(m.Transformation, opts)
			if err != nil {
				p.summary.Warnings = append(p.summary.Warnings,
					fmt.Sprintf("Transformation for column %q is invalid and was skipped: %v", col, err))
			} else {
				cell.transform = ct
			}
		}
		p.cells[i] = cell
	}
	return p
}

// row builds one output row from one data row.
func (p *outputPlan) row(dataRow Row) []string {
	out := make([]string, len(p.cells))
	for i, cell := range p.cells {
		if cell.source == "" {
			continue
		}
		out[i] = cell.transform.Apply(dataRow[cell.source], dataRow)
	}
	return out
}

// GenerateOutput maps every data row and returns the rows with the column
// order and summary. Neither input table is modified.
func GenerateOutput(schema, data *Table, mappings []ColumnMapping, opts CompileOptions) *Output {
	p := newOutputPlan(schema, data, mappings, opts)
	rows := make([][]string, len(data.Rows))
	for i, r := range data.Rows {
		rows[i] = p.row(r)
	}
	return &Output{Columns: p.columns, Rows: rows, Summary: p.summary}
}

// WriteOutputCSV streams the mapped output to w as quote-all CSV.
func WriteOutputCSV(w io.Writer, schema, data *Table, mappings []ColumnMapping, opts CompileOptions) (OutputSummary, error) {
	p := newOutputPlan(schema, data, mappings, opts)
	cw := NewQuoteAllWriter(w)
	if err := cw.Write(p.columns); err != nil {
		return p.summary, fmt.Errorf("write header: %w", err)
	}
	for _, r := range data.Rows {
		if err := cw.Write(p.row(r)); err != nil {
			return p.summary, fmt.Errorf("write row: %w", err)
		}
	}
	if err := cw.Flush(); err != nil {
		return p.summary, fmt.Errorf("flush output: %w", err)
	}
	return p.summary, nil
}

// GeneratePreview maps the first limit data rows. limit <= 0 uses
// DefaultPreviewRows.
func GeneratePreview(schema, data *Table, mappings []ColumnMapping, limit int, opts CompileOptions) Preview {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	p := newOutputPlan(schema, data, mappings, opts)
	n := min(limit, len(data.Rows))

	rows := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		values := p.row(data.Rows[i])
		row := make(map[string]string, len(values))
		for j, col := range p.columns {
			row[col] = values[j]
		}
		rows[i] = row
	}
	return Preview{Headers: p.columns, Rows: rows}
}

// EncodeCSV renders an Output as quote-all CSV text.
func (o *Output) EncodeCSV(w io.Writer) error {
	cw := NewQuoteAllWriter(w)
	if err := cw.Write(o.Columns); err != nil {
		return err
	}
	for _, r := range o.Rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// QuoteAllWriter writes CSV with every field quoted, comma separated and
// "\n" terminated. encoding/csv only quotes fields that need it, which
// spreadsheet tools then re-type on import.
type QuoteAllWriter struct {
	w *bufio.Writer
}

// NewQuoteAllWriter wraps w.
func NewQuoteAllWriter(w io.Writer) *QuoteAllWriter {
	return &QuoteAllWriter{w: bufio.NewWriter(w)}
}

// Write writes one record.
func (q *QuoteAllWriter) Write(record []string) error {
	for i, field := range record {
		if i > 0 {
			if err := q.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := q.w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := q.w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := q.w.WriteByte('"'); err != nil {
			return err
		}
	}
	return q.w.WriteByte('\n')
}

// Flush writes buffered data to the underlying writer.
func (q *QuoteAllWriter) Flush() error {
	return q.w.Flush()
}

// OutputFilename returns the download name for an export made at now.
func OutputFilename(ext string, now time.Time) string {
	return fmt.Sprintf("mapped_output_%s.%s", now.UTC().Format("2006-01-02"), ext)
}
