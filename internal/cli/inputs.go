package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/colmap/internal/core"
)

// fileFlags are shared by the commands that run a mapping.
type fileFlags struct {
	schema  string
	data    string
	mapping string
}

// inputs are the parsed files and the mapping reconciled against them.
type inputs struct {
	schema   *core.Table
	data     *core.Table
	mappings []core.ColumnMapping
}

func openInput(path string) (core.FileInput, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return core.FileInput{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return core.FileInput{Name: filepath.Base(path), Body: f}, func() { f.Close() }, nil
}

// loadInputs parses the data file, the schema file when given, and the
// mapping file. Without a schema file the mapping's saved schema columns
// stand in for it.
func loadInputs(ctx context.Context, svc *core.Service, ff fileFlags) (*inputs, error) {
	raw, err := os.ReadFile(ff.mapping)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	saved, err := core.ParseMappingFile(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ff.mapping, err)
	}

	dataIn, closeData, err := openInput(ff.data)
	if err != nil {
		return nil, err
	}
	defer closeData()

	in := &inputs{}
	if ff.schema != "" {
		schemaIn, closeSchema, err := openInput(ff.schema)
		if err != nil {
			return nil, err
		}
		defer closeSchema()
		if in.schema, in.data, err = svc.ParsePair(ctx, schemaIn, dataIn); err != nil {
			return nil, err
		}
	} else {
		if in.data, err = svc.ParseFile(ctx, dataIn); err != nil {
			return nil, err
		}
		in.schema = core.SchemaFromColumns(saved.SchemaFile, saved.SchemaColumns)
	}

	in.mappings = core.ReconcileMappings(saved.Mappings, in.schema.ColumnNames(), in.data.ColumnNames())
	if dropped := len(saved.Mappings) - countKept(saved.Mappings, in.mappings); dropped > 0 {
		slog.Warn("mappings dropped: columns no longer present", "mapping", ff.mapping, "dropped", dropped)
	}
	for _, w := range in.data.Warnings {
		slog.Warn("data file", "line", w.Line, "warning", w.Message)
	}
	return in, nil
}

// countKept counts saved mappings that survived reconciliation.
func countKept(saved, reconciled []core.ColumnMapping) int {
	targets := make(map[string]bool, len(reconciled))
	for _, m := range reconciled {
		targets[m.TargetColumn+"\x00"+m.SourceColumn] = true
	}
	n := 0
	for _, m := range saved {
		if targets[m.TargetColumn+"\x00"+m.SourceColumn] {
			n++
		}
	}
	return n
}
