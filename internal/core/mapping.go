package core

// mapping.go covers saved mapping configurations: how they are keyed, how a
// saved list is reconciled against a new pair of files, and the file format
// used for import and export.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MappingFileVersion is written into every saved or exported mapping.
const MappingFileVersion = "1.0"

// pairSeparator joins the schema and data halves of a lookup key.
const pairSeparator = "|||"

// SavedMapping is a named mapping configuration, as stored and as exported.
type SavedMapping struct {
	ID            string          `json:"id,omitempty" yaml:"id,omitempty"`
	Version       string          `json:"version" yaml:"version"`
	Name          string          `json:"name" yaml:"name"`
	CreatedAt     string          `json:"createdAt" yaml:"createdAt"`
	SchemaFile    string          `json:"schemaFile,omitempty" yaml:"schemaFile,omitempty"`
	DataFile      string          `json:"dataFile,omitempty" yaml:"dataFile,omitempty"`
	SchemaColumns []string        `json:"schemaColumns" yaml:"schemaColumns"`
	DataColumns   []string        `json:"dataColumns" yaml:"dataColumns"`
	Mappings      []ColumnMapping `json:"mappings" yaml:"mappings"`
	CreatedBy     string          `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
}

// PairKey is the exact lookup key for a schema/data filename pair.
func (m *SavedMapping) PairKey() string {
	return PairKey(m.SchemaFile, m.DataFile)
}

// FingerprintKey is the structural lookup key for the saved column sets.
func (m *SavedMapping) FingerprintKey() string {
	return FingerprintKey(m.SchemaColumns, m.DataColumns)
}

// MappingStore persists saved mappings. Implementations must be safe for
// concurrent use.
type MappingStore interface {
	// Save stores m under its pair key and its fingerprint key, replacing
	// any mapping already stored under either. It assigns ID and CreatedAt
	// when they are empty.
	Save(ctx context.Context, m SavedMapping) (SavedMapping, error)

	// FindCompatible returns the mapping saved for the exact filename pair,
	// falling back to the column fingerprint. It returns ErrMappingNotFound
	// when neither matches.
	FindCompatible(ctx context.Context, schemaFile, dataFile string, schemaCols, dataCols []string) (*SavedMapping, error)

	Get(ctx context.Context, id string) (*SavedMapping, error)

	// List returns every saved mapping, newest first.
	List(ctx context.Context) ([]SavedMapping, error)

	Delete(ctx context.Context, id string) error
}

// Fingerprint is an order-independent signature of a column set: the sorted
// names joined by "|". The input is not modified.
func Fingerprint(columns []string) string {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// PairKey joins two filenames into a lookup key.
func PairKey(schemaFile, dataFile string) string {
	return schemaFile + pairSeparator + dataFile
}

// FingerprintKey joins the fingerprints of two column sets.
func FingerprintKey(schemaCols, dataCols []string) string {
	return Fingerprint(schemaCols) + pairSeparator + Fingerprint(dataCols)
}

// ReconcileMappings adapts a saved mapping list to the current files. Saved
// mappings survive only if their target is still a schema column and their
// source, when set, is still a data column. Every schema column left without
// a mapping gets a fresh map-action mapping with no source.
func ReconcileMappings(saved []ColumnMapping, schemaCols, dataCols []string) []ColumnMapping {
	schemaSet := toSet(schemaCols)
	dataSet := toSet(dataCols)

	out := make([]ColumnMapping, 0, len(schemaCols))
	covered := make(map[string]bool, len(saved))
	for _, m := range saved {
		if !schemaSet[m.TargetColumn] {
			continue
		}
		if m.SourceColumn != "" && !dataSet[m.SourceColumn] {
			continue
		}
		out = append(out, m)
		covered[m.TargetColumn] = true
	}

	for _, col := range schemaCols {
		if covered[col] {
			continue
		}
		out = append(out, ColumnMapping{TargetColumn: col, Action: ActionMap})
		covered[col] = true
	}
	return out
}

// NewSavedMapping snapshots the current file pair and mappings. An empty
// name defaults to "schema → data".
func NewSavedMapping(name string, schema, data *Table, mappings []ColumnMapping, now time.Time) SavedMapping {
	if name == "" {
		name = schema.Filename + " → " + data.Filename
	}
	return SavedMapping{
		Version:       MappingFileVersion,
		Name:          name,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		SchemaFile:    schema.Filename,
		DataFile:      data.Filename,
		SchemaColumns: schema.ColumnNames(),
		DataColumns:   data.ColumnNames(),
		Mappings:      append([]ColumnMapping(nil), mappings...),
	}
}

// ParseMappingFile decodes an exported mapping in JSON or YAML. The document
// must carry a version and array-valued schemaColumns, dataColumns and
// mappings; anything else is ErrInvalidMappingFile.
func ParseMappingFile(data []byte) (*SavedMapping, error) {
	data = bytes.TrimPrefix(data, []byte(byteOrderMark))
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidMappingFile)
	}

	unmarshal := yaml.Unmarshal
	if trimmed[0] == '{' || trimmed[0] == '[' {
		unmarshal = json.Unmarshal
	}

	var raw map[string]any
	if err := unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMappingFile, err)
	}
	if err := checkMappingShape(raw); err != nil {
		return nil, err
	}

	var m SavedMapping
	if err := unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMappingFile, err)
	}
	return &m, nil
}

func checkMappingShape(raw map[string]any) error {
	if raw == nil {
		return fmt.Errorf("%w: not an object", ErrInvalidMappingFile)
	}
	if v, ok := raw["version"]; !ok || v == nil || v == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidMappingFile)
	}
	for _, field := range []string{"schemaColumns", "dataColumns", "mappings"} {
		if _, ok := raw[field].([]any); !ok {
			return fmt.Errorf("%w: %s must be an array", ErrInvalidMappingFile, field)
		}
	}
	return nil
}

// EncodeMappingFile renders m as indented JSON, or YAML when format is
// "yaml" or "yml".
func EncodeMappingFile(m *SavedMapping, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return json.MarshalIndent(m, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MappingFilename is the download name for an exported mapping.
func MappingFilename(m *SavedMapping, ext string) string {
	schema, data := m.SchemaFile, m.DataFile
	if schema == "" {
		schema = "schema"
	}
	if data == "" {
		data = "data"
	}
	return fmt.Sprintf("mapping-%s-to-%s.%s", schema, data, ext)
}

// MappingRequest is the compact mapping shape accepted by the process API:
// target columns, a target → source dictionary and optional per-target
// transformations and rules.
type MappingRequest struct {
	SourceColumns   []string                    `json:"sourceColumns,omitempty"`
	TargetColumns   []string                    `json:"targetColumns"`
	ColumnMappings  map[string]string           `json:"columnMappings"`
	Transformations map[string]*Transformation  `json:"transformations,omitempty"`
	ValidationRules map[string][]ValidationRule `json:"validationRules,omitempty"`
}

// ToColumnMappings expands the request into one mapping per target column. A
// target with a source is mapped; one without is ignored.
func (r MappingRequest) ToColumnMappings() []ColumnMapping {
	out := make([]ColumnMapping, len(r.TargetColumns))
	for i, target := range r.TargetColumns {
		src := r.ColumnMappings[target]
		action := ActionIgnore
		if src != "" {
			action = ActionMap
		}
		out[i] = ColumnMapping{
			TargetColumn:    target,
			Action:          action,
			SourceColumn:    src,
			Transformation:  r.Transformations[target],
			ValidationRules: r.ValidationRules[target],
		}
	}
	return out
}

// SchemaFromColumns builds an empty schema table from bare column names.
func SchemaFromColumns(filename string, names []string) *Table {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{
			Name:      n,
			CleanName: CleanName(n),
			Type:      TypeString,
			Samples:   []string{},
			Index:     i,
		}
	}
	return &Table{Filename: filename, Columns: cols, Rows: []Row{}}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
