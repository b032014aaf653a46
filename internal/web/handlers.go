package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/colmap/internal/core"
	"github.com/JonMunkholm/colmap/internal/logging"
	"github.com/JonMunkholm/colmap/internal/web/templates"
)

const (
	// maxMappingFileSize bounds imported mapping files.
	maxMappingFileSize = 1 << 20

	// multipartMemory is kept in memory before spilling to temp files.
	multipartMemory = 32 << 20

	defaultSchemaFilename = "schema.csv"
	defaultDataFilename   = "uploaded.csv"
)

// ----------------------------------------------------------------------------
// Request shapes
// ----------------------------------------------------------------------------

// jobRequest is the JSON body accepted by process, preview, validate and
// save. The mapping comes from exactly one of Mappings, Mapping or
// MappingID, checked in that order.
type jobRequest struct {
	MappingID string               `json:"mappingId,omitempty"`
	Mapping   *core.MappingRequest `json:"mapping,omitempty"`
	Mappings  []core.ColumnMapping `json:"mappings,omitempty"`

	CSVData      string `json:"csvData,omitempty"`
	CSVFormat    string `json:"csvFormat,omitempty"` // raw (default) or base64
	DataFilename string `json:"dataFilename,omitempty"`

	SchemaCSV      string `json:"schemaCsv,omitempty"`
	SchemaFilename string `json:"schemaFilename,omitempty"`

	Format  string `json:"format,omitempty"`
	Table   string `json:"table,omitempty"`
	Dialect string `json:"dialect,omitempty"`

	Name string `json:"name,omitempty"`
}

// restoreRequest names the files and columns to look up a saved mapping for.
type restoreRequest struct {
	SchemaFile    string   `json:"schemaFile"`
	DataFile      string   `json:"dataFile"`
	SchemaColumns []string `json:"schemaColumns"`
	DataColumns   []string `json:"dataColumns"`
}

// job is a resolved jobRequest.
type job struct {
	schema   *core.Table
	data     *core.Table
	mappings []core.ColumnMapping
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body: %w", core.ErrFileTooLarge)
		}
		return errBadRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// jobBodyLimit allows two files of the configured size plus base64 overhead.
func (s *Server) jobBodyLimit() int64 {
	return s.cfg.Process.MaxFileSize*3 + maxMappingFileSize
}

func decodeCSV(data, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "raw":
		return []byte(data), nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, errBadRequest(fmt.Errorf("parse error: csvData is not valid base64: %w", err))
		}
		return b, nil
	default:
		return nil, errBadRequest(fmt.Errorf("unknown csvFormat %q", format))
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// resolve parses the files in req and settles on a mapping list. When
// requireData is false and no CSV is sent, the data table is built from the
// mapping's source columns.
func (s *Server) resolve(ctx context.Context, req *jobRequest, requireData bool) (*job, error) {
	j := &job{}

	if req.CSVData != "" {
		dataBytes, err := decodeCSV(req.CSVData, req.CSVFormat)
		if err != nil {
			return nil, err
		}
		dataIn := core.FileInput{Name: orDefault(req.DataFilename, defaultDataFilename), Body: bytes.NewReader(dataBytes)}

		if req.SchemaCSV != "" {
			schemaBytes, err := decodeCSV(req.SchemaCSV, req.CSVFormat)
			if err != nil {
				return nil, err
			}
			schemaIn := core.FileInput{Name: orDefault(req.SchemaFilename, defaultSchemaFilename), Body: bytes.NewReader(schemaBytes)}
			if j.schema, j.data, err = s.service.ParsePair(ctx, schemaIn, dataIn); err != nil {
				return nil, err
			}
		} else if j.data, err = s.service.ParseFile(ctx, dataIn); err != nil {
			return nil, err
		}
	} else if requireData {
		return nil, errBadRequest(errors.New("CSV data is required"))
	}

	schemaName := orDefault(req.SchemaFilename, defaultSchemaFilename)
	switch {
	case len(req.Mappings) > 0:
		j.mappings = req.Mappings
		if j.schema == nil {
			targets := make([]string, len(req.Mappings))
			for i, m := range req.Mappings {
				targets[i] = m.TargetColumn
			}
			j.schema = core.SchemaFromColumns(schemaName, targets)
		}

	case req.Mapping != nil:
		j.mappings = req.Mapping.ToColumnMappings()
		if j.schema == nil {
			j.schema = core.SchemaFromColumns(schemaName, req.Mapping.TargetColumns)
		}
		if j.data == nil && len(req.Mapping.SourceColumns) > 0 {
			j.data = core.SchemaFromColumns(orDefault(req.DataFilename, defaultDataFilename), req.Mapping.SourceColumns)
		}

	case req.MappingID != "":
		saved, err := s.service.GetMapping(ctx, req.MappingID)
		if err != nil {
			return nil, err
		}
		if j.schema == nil {
			j.schema = core.SchemaFromColumns(orDefault(saved.SchemaFile, schemaName), saved.SchemaColumns)
		}
		if j.data == nil {
			j.data = core.SchemaFromColumns(saved.DataFile, saved.DataColumns)
			j.mappings = saved.Mappings
		} else {
			j.mappings = core.ReconcileMappings(saved.Mappings, j.schema.ColumnNames(), j.data.ColumnNames())
		}

	default:
		return nil, errBadRequest(errors.New("either mappingId or mapping configuration is required"))
	}

	if j.data == nil {
		return nil, errBadRequest(errors.New("CSV data or source columns are required"))
	}
	return j, nil
}

// ----------------------------------------------------------------------------
// Health
// ----------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"limiter": s.service.LimiterStatus(),
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.service.Formats())
}

// ----------------------------------------------------------------------------
// Parse
// ----------------------------------------------------------------------------

// columnReport adds UI hints to a parsed column.
type columnReport struct {
	core.Column
	TypeLabel                string                    `json:"typeLabel"`
	AvailableTransformations []core.TransformationType `json:"availableTransformations"`
	SuggestedRules           []core.ValidationRule     `json:"suggestedRules"`
}

type parseReport struct {
	Filename string              `json:"filename"`
	Columns  []columnReport      `json:"columns"`
	RowCount int                 `json:"rowCount"`
	Warnings []core.ParseWarning `json:"warnings,omitempty"`
	Rows     []core.Row          `json:"rows,omitempty"`
}

func newParseReport(t *core.Table, withRows bool) parseReport {
	cols := make([]columnReport, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = columnReport{
			Column:                   c,
			TypeLabel:                c.Type.Label(),
			AvailableTransformations: core.AvailableTransformations(c.Type),
			SuggestedRules:           core.DefaultValidationRules(c.Type),
		}
	}
	rep := parseReport{
		Filename: t.Filename,
		Columns:  cols,
		RowCount: t.RowCount,
		Warnings: t.Warnings,
	}
	if withRows {
		rep.Rows = t.Rows
	}
	return rep
}

// handleParse accepts a multipart upload in the "file" field and returns the
// column report. ?rows=true includes the parsed rows.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Process.MaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, fmt.Errorf("upload: %w", core.ErrFileTooLarge))
			return
		}
		s.respondError(w, r, errBadRequest(fmt.Errorf("parse error: invalid form: %w", err)))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errBadRequest(errors.New("no file provided")))
		return
	}
	defer file.Close()

	table, err := s.service.ParseFile(r.Context(), core.FileInput{Name: header.Filename, Body: file})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		renderComponent(w, r, templates.ColumnList(table))
		return
	}
	withRows, _ := strconv.ParseBool(r.URL.Query().Get("rows"))
	writeData(w, newParseReport(table, withRows))
}

// ----------------------------------------------------------------------------
// Process, preview, validate
// ----------------------------------------------------------------------------

// handleProcess generates the mapped output. With ?download=true the file is
// streamed as an attachment; otherwise it is embedded in the JSON response
// under a key named after the format.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req, s.jobBodyLimit()); err != nil {
		s.respondError(w, r, err)
		return
	}
	j, err := s.resolve(r.Context(), &req, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.Process(r.Context(), core.ProcessRequest{
		Schema:   j.schema,
		Data:     j.data,
		Mappings: j.mappings,
		Format:   req.Format,
		Export:   core.ExportOptions{TableName: req.Table, Dialect: req.Dialect},
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(result.Summary.Warnings) > 0 {
		logging.WithFields(r.Context(), "format", result.Format, "rows", result.Summary.TotalRows).
			Warn("output generated with warnings", "warnings", result.Summary.Warnings)
	}

	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		writeAttachment(w, r, result.Content, result.Filename, result.ContentType)
		return
	}
	writeData(w, map[string]any{
		result.Format: string(result.Content),
		"format":      result.Format,
		"filename":    result.Filename,
		"contentType": result.ContentType,
		"summary":     result.Summary,
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req, s.jobBodyLimit()); err != nil {
		s.respondError(w, r, err)
		return
	}
	j, err := s.resolve(r.Context(), &req, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	preview := s.service.Preview(j.schema, j.data, j.mappings)
	if isHTMX(r) {
		renderComponent(w, r, templates.PreviewTable(preview))
		return
	}
	writeData(w, preview)
}

type validateResponse struct {
	Valid   bool                             `json:"valid"`
	Columns map[string]core.ColumnValidation `json:"columns"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req, s.jobBodyLimit()); err != nil {
		s.respondError(w, r, err)
		return
	}
	j, err := s.resolve(r.Context(), &req, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	results := s.service.Validate(j.data, j.mappings)
	valid := true
	for _, v := range results {
		if v.InvalidRows > 0 {
			valid = false
			break
		}
	}
	writeData(w, validateResponse{Valid: valid, Columns: results})
}

// ----------------------------------------------------------------------------
// Saved mappings
// ----------------------------------------------------------------------------

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListMappings(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, list)
}

func (s *Server) handleSaveMapping(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req, s.jobBodyLimit()); err != nil {
		s.respondError(w, r, err)
		return
	}
	j, err := s.resolve(r.Context(), &req, false)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	saved, err := s.service.SaveMapping(r.Context(), req.Name, j.schema, j.data, j.mappings)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: saved})
}

// handleImportMapping accepts a mapping file as the raw body or in the
// multipart "file" field. ?save=false only validates it.
func (s *Server) handleImportMapping(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMappingFileSize+multipartMemory)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, r, errBadRequest(errors.New("no file provided")))
			return
		}
		defer file.Close()
		src = file
	}

	raw, err := io.ReadAll(io.LimitReader(src, maxMappingFileSize+1))
	if err != nil {
		s.respondError(w, r, errBadRequest(fmt.Errorf("read mapping file: %w", err)))
		return
	}
	if len(raw) > maxMappingFileSize {
		s.respondError(w, r, fmt.Errorf("mapping file: %w", core.ErrFileTooLarge))
		return
	}

	save := true
	if v := r.URL.Query().Get("save"); v != "" {
		save, _ = strconv.ParseBool(v)
	}

	m, err := s.service.ImportMapping(r.Context(), raw, save)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if save {
		status = http.StatusCreated
	}
	writeJSON(w, status, envelope{Success: true, Data: m})
}

func (s *Server) handleRestoreMapping(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeJSON(w, r, &req, maxMappingFileSize); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.SchemaColumns) == 0 {
		s.respondError(w, r, errBadRequest(errors.New("schemaColumns is required")))
		return
	}

	result, err := s.service.RestoreMapping(r.Context(),
		core.SchemaFromColumns(req.SchemaFile, req.SchemaColumns),
		core.SchemaFromColumns(req.DataFile, req.DataColumns),
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("restored mapping", "id", result.Saved.ID, "mappings", len(result.Mappings))
	writeData(w, result)
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.GetMapping(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, m)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.DeleteMapping(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, map[string]string{"deleted": id})
}

// handleExportMapping downloads a saved mapping; ?format=yaml for YAML.
func (s *Server) handleExportMapping(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	body, filename, err := s.service.ExportMapping(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	contentType := "application/json"
	if f := strings.ToLower(format); f == "yaml" || f == "yml" {
		contentType = "application/yaml"
	}
	writeAttachment(w, r, body, filename, contentType)
}

// ----------------------------------------------------------------------------
// Response helpers
// ----------------------------------------------------------------------------

func writeAttachment(w http.ResponseWriter, r *http.Request, body []byte, filename, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write(body); err != nil {
		logging.FromContext(r.Context()).Warn("write attachment", "file", filename, "error", err)
	}
}

func renderComponent(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render component", "error", err)
	}
}
