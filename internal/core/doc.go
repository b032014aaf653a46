// Package core provides the column mapping engine.
//
// This package holds all domain logic independent of any UI or transport
// layer. The web server, the CLI and tests all drive it through the same
// functions.
//
// # Architecture
//
// The package is organized leaf-first:
//
//   - Type detection: [DetectColumnType] classifies a column from its values.
//   - Parsing: [ParseTable] turns delimited text into a [Table] with
//     per-column statistics.
//   - Transformation: [CompileTransformation] / [ApplyTransformation] rewrite
//     single cells (split, concatenate, case, regex, date, number, formula).
//   - Validation: [ValidateValue], [ValidateColumn] and [ValidateAll] check
//     values against a mapping's rules.
//   - Output: [GenerateOutput], [WriteOutputCSV] and [GeneratePreview] merge a
//     schema table and a data table according to a list of [ColumnMapping].
//   - Saved mappings: [ReconcileMappings] restores a saved list against new
//     files; [MappingStore] is the persistence boundary.
//   - Service: [Service] adds limits, timeouts, storage and export formats.
//
// # Column Order
//
// Output columns follow the schema file. Columns whose mapping action is
// "new" move to the end; ignored columns stay in place with empty values:
//
//	schema:   A, B, C        (B mapped as "new")
//	output:   A, C, B
//
// # Error Handling
//
// Per-cell problems never fail a run: a transformation that errors keeps the
// original value, and a rule that cannot be evaluated becomes a validation
// failure. Structural problems ([ErrNoColumns], [ErrInvalidMappingFile]) are
// returned to the caller. [MapError] turns any error into a user message with
// a support code:
//
//   - DB001-DB003: saved mapping storage
//   - FILE001-FILE004: upload and parse
//   - MAP001-MAP004: mapping files and configuration
//   - PROC001-PROC005: processing and export
//   - RATE001: request throttling
package core
