package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/colmap/internal/config"
	"github.com/JonMunkholm/colmap/internal/core"
	"github.com/JonMunkholm/colmap/internal/store"
)

const peopleCSV = "First Name,Last Name,Email\nJane,Doe,jane@example.com\nJohn,Smith,not-an-email\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeout: 10 * time.Second, ShutdownTimeout: time.Second},
		Process: config.ProcessConfig{
			MaxFileSize:     1 << 20,
			MaxConcurrent:   2,
			MaxWaitTime:     time.Second,
			Timeout:         5 * time.Second,
			PreviewRows:     10,
			FormulaMaxNodes: 1000,
		},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	svc := core.NewService(store.NewMemory(), core.ServiceConfig{
		MaxFileSize:     cfg.Process.MaxFileSize,
		MaxConcurrent:   cfg.Process.MaxConcurrent,
		MaxWait:         cfg.Process.MaxWaitTime,
		Timeout:         cfg.Process.Timeout,
		PreviewRows:     cfg.Process.PreviewRows,
		MaxFormulaNodes: uint(cfg.Process.FormulaMaxNodes),
	})
	s := NewServer(svc, cfg)
	t.Cleanup(s.stop)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the success envelope into v.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func fullNameMapping() *core.MappingRequest {
	return &core.MappingRequest{
		TargetColumns:  []string{"Full Name", "Email", "Notes"},
		ColumnMappings: map[string]string{"Full Name": "First Name", "Email": "Email"},
		Transformations: map[string]*core.Transformation{
			"Full Name": {
				Type:                 core.TransformConcatenate,
				ConcatenateColumns:   []string{"First Name", "Last Name"},
				ConcatenateSeparator: core.Ptr(" "),
			},
		},
		ValidationRules: map[string][]core.ValidationRule{
			"Email": {{Type: core.RuleEmail}},
		},
	}
}

// ----------------------------------------------------------------------------
// Health and middleware
// ----------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s := newTestServer(t, cfg)

	rec := doJSON(t, s, http.MethodGet, "/api/formats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/formats", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/formats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public.
	rec = doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ProcessLimit: 2}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, s, http.MethodGet, "/api/formats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, s, http.MethodGet, "/api/formats", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE001")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

// ----------------------------------------------------------------------------
// Parse
// ----------------------------------------------------------------------------

func multipartFile(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestParse(t *testing.T) {
	s := newTestServer(t, testConfig())

	body, ct := multipartFile(t, "file", "people.csv", peopleCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Filename string `json:"filename"`
		RowCount int    `json:"rowCount"`
		Columns  []struct {
			Name                     string   `json:"name"`
			Type                     string   `json:"type"`
			TypeLabel                string   `json:"typeLabel"`
			AvailableTransformations []string `json:"availableTransformations"`
		} `json:"columns"`
		Rows []map[string]string `json:"rows"`
	}
	decodeData(t, rec, &report)

	assert.Equal(t, "people.csv", report.Filename)
	assert.Equal(t, 2, report.RowCount)
	require.Len(t, report.Columns, 3)
	assert.Equal(t, "First Name", report.Columns[0].Name)
	assert.Equal(t, "string", report.Columns[0].Type)
	assert.NotEmpty(t, report.Columns[0].AvailableTransformations)
	assert.Empty(t, report.Rows)
}

func TestParse_HTMXFragment(t *testing.T) {
	s := newTestServer(t, testConfig())

	body, ct := multipartFile(t, "file", "people.csv", peopleCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `data-filename="people.csv"`)
	assert.Contains(t, rec.Body.String(), "3 columns, 2 rows")
}

func TestParse_NoFile(t *testing.T) {
	s := newTestServer(t, testConfig())

	body, ct := multipartFile(t, "other", "people.csv", peopleCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FILE003", resp.Code)
}

// ----------------------------------------------------------------------------
// Process, preview, validate
// ----------------------------------------------------------------------------

func TestProcess_CSV(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/process", jobRequest{
		CSVData: peopleCSV,
		Mapping: fullNameMapping(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		CSV      string             `json:"csv"`
		Filename string             `json:"filename"`
		Summary  core.OutputSummary `json:"summary"`
	}
	decodeData(t, rec, &data)

	want := `"Full Name","Email","Notes"` + "\n" +
		`"Jane Doe","jane@example.com",""` + "\n" +
		`"John Smith","not-an-email",""` + "\n"
	assert.Equal(t, want, data.CSV)
	assert.True(t, strings.HasPrefix(data.Filename, "mapped_output_"))
	assert.True(t, strings.HasSuffix(data.Filename, ".csv"))
	assert.Equal(t, 2, data.Summary.TotalRows)
	assert.Equal(t, 3, data.Summary.TotalColumns)
	assert.Equal(t, 2, data.Summary.MappedColumns)
	assert.Equal(t, 1, data.Summary.IgnoredColumns)
}

func TestProcess_SQLDownload(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/process?download=true", jobRequest{
		CSVData: peopleCSV,
		Mapping: fullNameMapping(),
		Format:  "sql",
		Table:   "people",
		Dialect: "postgresql",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), `INSERT INTO "people"`)
	assert.Contains(t, rec.Body.String(), "'Jane Doe'")
}

func TestProcess_Errors(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		body       jobRequest
		wantStatus int
		wantCode   string
	}{
		{"missing csv", jobRequest{Mapping: fullNameMapping()}, http.StatusBadRequest, "ERR000"},
		{"missing mapping", jobRequest{CSVData: peopleCSV}, http.StatusBadRequest, "ERR000"},
		{"unknown mapping id", jobRequest{CSVData: peopleCSV, MappingID: "nope"}, http.StatusNotFound, "MAP002"},
		{"unknown format", jobRequest{CSVData: peopleCSV, Mapping: fullNameMapping(), Format: "xlsx"}, http.StatusBadRequest, "PROC001"},
		{"bad base64", jobRequest{CSVData: "%%%", CSVFormat: "base64", Mapping: fullNameMapping()}, http.StatusBadRequest, "FILE004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/process", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/preview", jobRequest{
		CSVData: peopleCSV,
		Mapping: fullNameMapping(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var preview core.Preview
	decodeData(t, rec, &preview)
	assert.Equal(t, []string{"Full Name", "Email", "Notes"}, preview.Headers)
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, "Jane Doe", preview.Rows[0]["Full Name"])
	assert.Equal(t, "", preview.Rows[0]["Notes"])
}

func TestPreview_HTMXEscapes(t *testing.T) {
	s := newTestServer(t, testConfig())

	body, err := json.Marshal(jobRequest{
		CSVData: "Name\n<script>x</script>\n",
		Mappings: []core.ColumnMapping{
			{TargetColumn: "Name", Action: core.ActionMap, SourceColumn: "Name"},
		},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/preview", bytes.NewReader(body))
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
	assert.NotContains(t, rec.Body.String(), "<script>")
}

func TestValidate(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/validate", jobRequest{
		CSVData: peopleCSV,
		Mapping: fullNameMapping(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp validateResponse
	decodeData(t, rec, &resp)
	assert.False(t, resp.Valid)

	email := resp.Columns["Email"]
	assert.Equal(t, 2, email.TotalRows)
	assert.Equal(t, 1, email.ValidRows)
	assert.Equal(t, 1, email.InvalidRows)
	require.Len(t, email.Errors, 1)
	assert.Equal(t, 1, email.Errors[0].RowIndex)
	assert.Equal(t, "not-an-email", email.Errors[0].Value)
}

// ----------------------------------------------------------------------------
// Saved mappings
// ----------------------------------------------------------------------------

func TestMappingLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())

	m := fullNameMapping()
	m.SourceColumns = []string{"First Name", "Last Name", "Email"}

	rec := doJSON(t, s, http.MethodPost, "/api/mappings", jobRequest{
		Name:           "people",
		Mapping:        m,
		SchemaFilename: "crm.csv",
		DataFilename:   "export.csv",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved core.SavedMapping
	decodeData(t, rec, &saved)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, "people", saved.Name)
	assert.Equal(t, []string{"Full Name", "Email", "Notes"}, saved.SchemaColumns)

	// list
	rec = doJSON(t, s, http.MethodGet, "/api/mappings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []core.SavedMapping
	decodeData(t, rec, &list)
	require.Len(t, list, 1)

	// restore with an extra schema column
	rec = doJSON(t, s, http.MethodPost, "/api/mappings/restore", restoreRequest{
		SchemaFile:    "crm.csv",
		DataFile:      "export.csv",
		SchemaColumns: []string{"Full Name", "Email", "Notes", "Phone"},
		DataColumns:   []string{"First Name", "Last Name", "Email"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var restored core.RestoreResult
	decodeData(t, rec, &restored)
	assert.Equal(t, saved.ID, restored.Saved.ID)
	require.Len(t, restored.Mappings, 4)
	assert.Equal(t, "Phone", restored.Mappings[3].TargetColumn)
	assert.Equal(t, core.ActionMap, restored.Mappings[3].Action)

	// process by id
	rec = doJSON(t, s, http.MethodPost, "/api/process", jobRequest{CSVData: peopleCSV, MappingID: saved.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Jane Doe")

	// export as yaml, then import it back without saving
	rec = doJSON(t, s, http.MethodGet, "/api/mappings/"+saved.ID+"/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	exported := rec.Body.String()
	assert.Contains(t, exported, "schemaColumns:")

	req := httptest.NewRequest(http.MethodPost, "/api/mappings/import?save=false", strings.NewReader(exported))
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// delete
	rec = doJSON(t, s, http.MethodDelete, "/api/mappings/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/mappings/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportMapping_Invalid(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/mappings/import", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MAP001", resp.Code)
}

func TestImportMapping_Multipart(t *testing.T) {
	s := newTestServer(t, testConfig())

	file := `{"version":"1.0","name":"imported","schemaColumns":["A"],"dataColumns":["x"],"mappings":[{"targetColumn":"A","action":"map","sourceColumn":"x"}]}`
	body, ct := multipartFile(t, "file", "mapping.json", file)
	req := httptest.NewRequest(http.MethodPost, "/api/mappings/import", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/mappings/restore", restoreRequest{
		SchemaFile:    "a.csv",
		DataFile:      "b.csv",
		SchemaColumns: []string{"A"},
		DataColumns:   []string{"x"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"imported"`)
}

func TestRestore_NotFound(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/mappings/restore", restoreRequest{
		SchemaColumns: []string{"A"},
		DataColumns:   []string{"x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
