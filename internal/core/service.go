package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProcessTimeout bounds a single process request.
const DefaultProcessTimeout = 2 * time.Minute

// ServiceConfig tunes a Service. Zero values fall back to defaults.
type ServiceConfig struct {
	MaxFileSize     int64
	MaxConcurrent   int
	MaxWait         time.Duration
	Timeout         time.Duration
	PreviewRows     int
	MaxFormulaNodes uint
}

// Service is the entry point used by the HTTP server and the CLI. It adds
// concurrency limits, timeouts, persistence and export formats on top of the
// pure engine functions.
type Service struct {
	store     MappingStore
	limiter   *ProcessLimiter
	exporters *ExportRegistry
	cfg       ServiceConfig
	now       func() time.Time
}

// NewService creates a Service. store may be nil when saved mappings are not
// needed (the CLI); mapping operations then return ErrMappingNotFound.
func NewService(store MappingStore, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProcessTimeout
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	return &Service{
		store:     store,
		limiter:   NewProcessLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		exporters: DefaultExportRegistry(),
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *Service) compileOptions() CompileOptions {
	return CompileOptions{MaxFormulaNodes: s.cfg.MaxFormulaNodes}
}

// Formats returns the export formats the service can produce.
func (s *Service) Formats() []string {
	return s.exporters.Formats()
}

// ----------------------------------------------------------------------------
// Parsing
// ----------------------------------------------------------------------------

// FileInput is one uploaded file.
type FileInput struct {
	Name string
	Body io.Reader
}

// ParseFile parses one file while holding a limiter slot.
func (s *Service) ParseFile(ctx context.Context, in FileInput) (*Table, error) {
	var table *Table
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		table, err = s.parse(ctx, in)
		return err
	})
	return table, err
}

// ParsePair parses the schema and data files concurrently. Either failure
// cancels the other.
func (s *Service) ParsePair(ctx context.Context, schema, data FileInput) (*Table, *Table, error) {
	var schemaTable, dataTable *Table
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			t, err := s.parse(gctx, schema)
			if err != nil {
				return fmt.Errorf("schema file: %w", err)
			}
			schemaTable = t
			return nil
		})
		g.Go(func() error {
			t, err := s.parse(gctx, data)
			if err != nil {
				return fmt.Errorf("data file: %w", err)
			}
			dataTable = t
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return nil, nil, err
	}
	return schemaTable, dataTable, nil
}

func (s *Service) parse(ctx context.Context, in FileInput) (*Table, error) {
	if in.Body == nil {
		return nil, fmt.Errorf("no file provided")
	}
	start := time.Now()
	table, err := ParseTable(contextReader{ctx: ctx, r: in.Body}, in.Name, ParseOptions{MaxBytes: s.cfg.MaxFileSize})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", in.Name, err)
	}
	slog.Debug("parsed file",
		"file", in.Name,
		"columns", len(table.Columns),
		"rows", table.RowCount,
		"warnings", len(table.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return table, nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// ----------------------------------------------------------------------------
// Processing
// ----------------------------------------------------------------------------

// ProcessRequest describes one output generation.
type ProcessRequest struct {
	Schema   *Table
	Data     *Table
	Mappings []ColumnMapping
	Format   string // csv (default), json or sql
	Export   ExportOptions
}

// ProcessResult is a generated download.
type ProcessResult struct {
	Content     []byte        `json:"-"`
	Format      string        `json:"format"`
	Filename    string        `json:"filename"`
	ContentType string        `json:"contentType"`
	Summary     OutputSummary `json:"summary"`
}

// Process generates the mapped output in the requested format.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if req.Schema == nil || req.Data == nil {
		return nil, fmt.Errorf("process: schema and data are required")
	}
	format := req.Format
	if format == "" {
		format = "csv"
	}
	exporter, err := s.exporters.Get(format)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var result *ProcessResult
	err = s.limiter.Do(ctx, func(ctx context.Context) error {
		start := time.Now()

		var csvBuf bytes.Buffer
		summary, err := WriteOutputCSV(&csvBuf, req.Schema, req.Data, req.Mappings, s.compileOptions())
		if err != nil {
			return fmt.Errorf("generate output: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		content := csvBuf.Bytes()
		if exporter.Format() != "csv" {
			var out bytes.Buffer
			if err := exporter.Export(&out, bytes.NewReader(content), req.Export); err != nil {
				return fmt.Errorf("export %s: %w", exporter.Format(), err)
			}
			content = out.Bytes()
		}

		result = &ProcessResult{
			Content:     content,
			Format:      exporter.Format(),
			Filename:    OutputFilename(exporter.Extension(), s.now()),
			ContentType: exporter.ContentType(),
			Summary:     summary,
		}
		slog.Info("processed file",
			"schema", req.Schema.Filename,
			"data", req.Data.Filename,
			"format", result.Format,
			"rows", summary.TotalRows,
			"columns", summary.TotalColumns,
			"warnings", len(summary.Warnings),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Preview maps the first configured number of rows.
func (s *Service) Preview(schema, data *Table, mappings []ColumnMapping) Preview {
	return GeneratePreview(schema, data, mappings, s.cfg.PreviewRows, s.compileOptions())
}

// Validate runs every map-action mapping's rules over the data table.
func (s *Service) Validate(data *Table, mappings []ColumnMapping) map[string]ColumnValidation {
	return ValidateAll(mappings, data, s.compileOptions())
}

// ----------------------------------------------------------------------------
// Saved mappings
// ----------------------------------------------------------------------------

// RestoreResult is a saved mapping reconciled against the current files.
type RestoreResult struct {
	Saved    *SavedMapping   `json:"saved"`
	Mappings []ColumnMapping `json:"mappings"`
}

// SaveMapping snapshots mappings for the given file pair.
func (s *Service) SaveMapping(ctx context.Context, name string, schema, data *Table, mappings []ColumnMapping) (SavedMapping, error) {
	if s.store == nil {
		return SavedMapping{}, fmt.Errorf("save mapping: no store configured")
	}
	m := NewSavedMapping(name, schema, data, mappings, s.now())
	m.CreatedBy = ClientIPFromContext(ctx)

	saved, err := s.store.Save(ctx, m)
	if err != nil {
		return SavedMapping{}, fmt.Errorf("save mapping: %w", err)
	}
	slog.Info("saved mapping", "id", saved.ID, "name", saved.Name)
	return saved, nil
}

// RestoreMapping finds a saved mapping compatible with the file pair and
// reconciles it against the current columns.
func (s *Service) RestoreMapping(ctx context.Context, schema, data *Table) (*RestoreResult, error) {
	if s.store == nil {
		return nil, ErrMappingNotFound
	}
	schemaCols, dataCols := schema.ColumnNames(), data.ColumnNames()
	saved, err := s.store.FindCompatible(ctx, schema.Filename, data.Filename, schemaCols, dataCols)
	if err != nil {
		return nil, err
	}
	return &RestoreResult{
		Saved:    saved,
		Mappings: ReconcileMappings(saved.Mappings, schemaCols, dataCols),
	}, nil
}

// ImportMapping parses an exported mapping file and, when save is set,
// stores it.
func (s *Service) ImportMapping(ctx context.Context, raw []byte, save bool) (*SavedMapping, error) {
	m, err := ParseMappingFile(raw)
	if err != nil {
		return nil, err
	}
	if !save {
		return m, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("import mapping: no store configured")
	}
	m.ID = ""
	if m.CreatedAt == "" {
		m.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	m.CreatedBy = ClientIPFromContext(ctx)
	saved, err := s.store.Save(ctx, *m)
	if err != nil {
		return nil, fmt.Errorf("import mapping: %w", err)
	}
	return &saved, nil
}

// ExportMapping renders a saved mapping as a downloadable file.
func (s *Service) ExportMapping(ctx context.Context, id, format string) ([]byte, string, error) {
	m, err := s.GetMapping(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if format == "" {
		format = "json"
	}
	body, err := EncodeMappingFile(m, format)
	if err != nil {
		return nil, "", err
	}
	return body, MappingFilename(m, format), nil
}

// ListMappings returns every saved mapping, newest first.
func (s *Service) ListMappings(ctx context.Context) ([]SavedMapping, error) {
	if s.store == nil {
		return []SavedMapping{}, nil
	}
	return s.store.List(ctx)
}

// GetMapping returns one saved mapping.
func (s *Service) GetMapping(ctx context.Context, id string) (*SavedMapping, error) {
	if s.store == nil {
		return nil, ErrMappingNotFound
	}
	return s.store.Get(ctx, id)
}

// DeleteMapping removes a saved mapping.
func (s *Service) DeleteMapping(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrMappingNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("deleted mapping", "id", id)
	return nil
}

// ----------------------------------------------------------------------------
// Lifecycle
// ----------------------------------------------------------------------------

// LimiterStatus reports limiter usage for health checks.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForIdle blocks until running jobs finish or ctx is done.
func (s *Service) WaitForIdle(ctx context.Context) error {
	return s.limiter.WaitForIdle(ctx)
}
