package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/colmap/internal/core"
)

func addFileFlags(cmd *cobra.Command, ff *fileFlags) {
	cmd.Flags().StringVarP(&ff.schema, "schema", "s", "", "Schema CSV whose columns define the output (defaults to the mapping's saved columns)")
	cmd.Flags().StringVarP(&ff.data, "data", "d", "", "Data CSV to map")
	cmd.Flags().StringVarP(&ff.mapping, "mapping", "m", "", "Mapping file (JSON or YAML)")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("mapping")
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ----------------------------------------------------------------------------
// detect
// ----------------------------------------------------------------------------

func newDetectCmd() *cobra.Command {
	var asJSON bool
	var maxSize int64

	cmd := &cobra.Command{
		Use:   "detect FILE...",
		Short: "Print the columns of CSV files with their detected types",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewService(nil, core.ServiceConfig{MaxFileSize: maxSize})
			out := cmd.OutOrStdout()

			tables := make([]*core.Table, 0, len(args))
			for _, path := range args {
				in, closeFn, err := openInput(path)
				if err != nil {
					return err
				}
				table, err := svc.ParseFile(cmd.Context(), in)
				closeFn()
				if err != nil {
					return err
				}
				tables = append(tables, table)
			}

			if asJSON {
				for _, t := range tables {
					t.Rows = nil
				}
				return writeJSONTo(out, tables)
			}
			for i, t := range tables {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printColumns(out, t)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the column report as JSON")
	cmd.Flags().Int64Var(&maxSize, "max-size", 0, "Reject files larger than this many bytes (0 for no limit)")
	return cmd
}

func printColumns(w io.Writer, t *core.Table) {
	fmt.Fprintf(w, "%s: %d columns, %d rows\n", t.Filename, len(t.Columns), t.RowCount)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOLUMN\tTYPE\tEMPTY\tSAMPLES")
	for _, c := range t.Columns {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.0f%%\t%s\n", c.Index+1, c.Name, c.Type.Label(), c.EmptyPercent, strings.Join(c.Samples, ", "))
	}
	tw.Flush()
	for _, warn := range t.Warnings {
		fmt.Fprintf(w, "warning: line %d: %s\n", warn.Line, warn.Message)
	}
}

// ----------------------------------------------------------------------------
// preview
// ----------------------------------------------------------------------------

func newPreviewCmd() *cobra.Command {
	var ff fileFlags
	var rows int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the first mapped rows without writing output",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewService(nil, core.ServiceConfig{PreviewRows: rows})
			in, err := loadInputs(cmd.Context(), svc, ff)
			if err != nil {
				return err
			}

			preview := svc.Preview(in.schema, in.data, in.mappings)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSONTo(out, preview)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(preview.Headers, "\t"))
			cells := make([]string, len(preview.Headers))
			for _, row := range preview.Rows {
				for i, h := range preview.Headers {
					cells[i] = row[h]
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			return tw.Flush()
		},
	}

	addFileFlags(cmd, &ff)
	cmd.Flags().IntVarP(&rows, "rows", "n", core.DefaultPreviewRows, "Number of rows to preview")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the preview as JSON")
	return cmd
}

// ----------------------------------------------------------------------------
// process
// ----------------------------------------------------------------------------

func newProcessCmd() *cobra.Command {
	var ff fileFlags
	var outPath, format string
	var opts core.ExportOptions

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Generate the mapped output file",
		Long: `Generate the mapped output as CSV, JSON or SQL INSERT statements.

Without --format the format follows the --out extension, defaulting to CSV.
Without --out the output goes to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewService(nil, core.ServiceConfig{})
			in, err := loadInputs(cmd.Context(), svc, ff)
			if err != nil {
				return err
			}

			if format == "" {
				format = formatFromPath(outPath)
			}
			result, err := svc.Process(cmd.Context(), core.ProcessRequest{
				Schema:   in.schema,
				Data:     in.data,
				Mappings: in.mappings,
				Format:   format,
				Export:   opts,
			})
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(result.Content)
				return err
			}
			if err := os.WriteFile(outPath, result.Content, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			printSummary(cmd.ErrOrStderr(), outPath, result.Summary)
			return nil
		},
	}

	addFileFlags(cmd, &ff)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: csv, json or sql")
	cmd.Flags().StringVar(&opts.TableName, "table", core.DefaultSQLTable, "Table name for SQL output")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", core.DialectPostgres, "SQL dialect: postgresql, mysql or sqlite")
	return cmd
}

// formatFromPath picks an export format from a file extension.
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".sql":
		return "sql"
	default:
		return "csv"
	}
}

func printSummary(w io.Writer, path string, s core.OutputSummary) {
	fmt.Fprintf(w, "wrote %s: %d rows, %d columns (%d mapped, %d new, %d ignored)\n",
		path, s.TotalRows, s.TotalColumns, s.MappedColumns, s.NewColumns, s.IgnoredColumns)
	for _, warn := range s.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

// ----------------------------------------------------------------------------
// validate
// ----------------------------------------------------------------------------

// maxReportedFailures bounds the failures printed per column in text mode.
const maxReportedFailures = 10

func newValidateCmd() *cobra.Command {
	var ff fileFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check data values against the mapping's validation rules",
		Long: `Check every mapped data value against its validation rules.

Exits with a non-zero status when any value fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewService(nil, core.ServiceConfig{})
			in, err := loadInputs(cmd.Context(), svc, ff)
			if err != nil {
				return err
			}

			results := svc.Validate(in.data, in.mappings)
			out := cmd.OutOrStdout()

			invalid := 0
			for _, r := range results {
				invalid += r.InvalidRows
			}

			if asJSON {
				if err := writeJSONTo(out, results); err != nil {
					return err
				}
			} else {
				printValidation(out, in.schema, results)
			}

			if invalid > 0 {
				return fmt.Errorf("validation failed: %d invalid values", invalid)
			}
			return nil
		},
	}

	addFileFlags(cmd, &ff)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

// printValidation lists columns in schema order, then any others by name.
func printValidation(w io.Writer, schema *core.Table, results map[string]core.ColumnValidation) {
	order := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, name := range schema.ColumnNames() {
		if _, ok := results[name]; ok {
			order = append(order, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range results {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	for _, name := range order {
		r := results[name]
		status := "ok"
		if r.InvalidRows > 0 {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%-4s %s: %d/%d valid\n", status, name, r.ValidRows, r.TotalRows)
		for i, f := range r.Errors {
			if i == maxReportedFailures {
				fmt.Fprintf(w, "       ... %d more\n", len(r.Errors)-maxReportedFailures)
				break
			}
			// Row numbers are 1-based data rows for humans.
			fmt.Fprintf(w, "       row %d %q: %s\n", f.RowIndex+1, f.Value, strings.Join(f.Errors, "; "))
		}
	}
}
