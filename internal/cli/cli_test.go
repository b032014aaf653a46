package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	schemaCSV = "Full Name,Email,Notes\n"
	dataCSV   = "First Name,Last Name,Email\nJane,Doe,jane@example.com\nJohn,Smith,not-an-email\n"

	mappingJSON = `{
  "version": "1.0",
  "name": "people",
  "schemaColumns": ["Full Name", "Email", "Notes"],
  "dataColumns": ["First Name", "Last Name", "Email"],
  "mappings": [
    {"targetColumn": "Full Name", "action": "map", "sourceColumn": "First Name",
     "transformation": {"type": "concatenate", "concatenateColumns": ["First Name", "Last Name"], "concatenateSeparator": " "}},
    {"targetColumn": "Email", "action": "map", "sourceColumn": "Email",
     "validationRules": [{"type": "email"}]},
    {"targetColumn": "Notes", "action": "ignore"}
  ]
}`
)

type fixture struct {
	dir, schema, data, mapping string
}

func writeFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		schema:  filepath.Join(dir, "schema.csv"),
		data:    filepath.Join(dir, "data.csv"),
		mapping: filepath.Join(dir, "mapping.json"),
	}
	require.NoError(t, os.WriteFile(f.schema, []byte(schemaCSV), 0o644))
	require.NoError(t, os.WriteFile(f.data, []byte(dataCSV), 0o644))
	require.NoError(t, os.WriteFile(f.mapping, []byte(mappingJSON), 0o644))
	return f
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestDetect(t *testing.T) {
	f := writeFixture(t)

	out, _, err := run(t, "detect", f.data)
	require.NoError(t, err)
	assert.Contains(t, out, "data.csv: 3 columns, 2 rows")
	assert.Contains(t, out, "First Name")
	assert.Contains(t, out, "Jane, John")
}

func TestDetect_JSON(t *testing.T) {
	f := writeFixture(t)

	out, _, err := run(t, "detect", "--json", f.data)
	require.NoError(t, err)
	assert.Contains(t, out, `"filename": "data.csv"`)
	assert.Contains(t, out, `"rows": null`)
}

func TestDetect_MissingFile(t *testing.T) {
	_, _, err := run(t, "detect", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	f := writeFixture(t)

	out, _, err := run(t, "preview", "--schema", f.schema, "--data", f.data, "--mapping", f.mapping)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Full Name")
	assert.Contains(t, lines[1], "Jane Doe")
	assert.Contains(t, lines[2], "John Smith")
}

func TestPreview_RowLimit(t *testing.T) {
	f := writeFixture(t)

	out, _, err := run(t, "preview", "-d", f.data, "-m", f.mapping, "-n", "1", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "Jane Doe")
	assert.NotContains(t, out, "John Smith")
}

func TestProcess_Stdout(t *testing.T) {
	f := writeFixture(t)

	out, _, err := run(t, "process", "--schema", f.schema, "--data", f.data, "--mapping", f.mapping)
	require.NoError(t, err)

	want := `"Full Name","Email","Notes"` + "\n" +
		`"Jane Doe","jane@example.com",""` + "\n" +
		`"John Smith","not-an-email",""` + "\n"
	assert.Equal(t, want, out)
}

func TestProcess_FormatFromExtension(t *testing.T) {
	f := writeFixture(t)
	outPath := filepath.Join(f.dir, "out.sql")

	_, stderr, err := run(t, "process", "-s", f.schema, "-d", f.data, "-m", f.mapping,
		"-o", outPath, "--table", "people", "--dialect", "mysql")
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 rows, 3 columns")

	body, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "INSERT INTO `people`")
	assert.Contains(t, string(body), "'Jane Doe'")
	assert.Contains(t, string(body), "NULL")
}

func TestProcess_RequiresFlags(t *testing.T) {
	_, _, err := run(t, "process", "--data", "x.csv")
	assert.Error(t, err)
}

func TestValidate_Fails(t *testing.T) {
	f := writeFixture(t)

	out, _, err := run(t, "validate", "-s", f.schema, "-d", f.data, "-m", f.mapping)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 invalid values")
	assert.Contains(t, out, "FAIL Email: 1/2 valid")
	assert.Contains(t, out, `row 2 "not-an-email"`)
}

func TestValidate_Passes(t *testing.T) {
	f := writeFixture(t)
	require.NoError(t, os.WriteFile(f.data, []byte("First Name,Last Name,Email\nJane,Doe,jane@example.com\n"), 0o644))

	out, _, err := run(t, "validate", "-s", f.schema, "-d", f.data, "-m", f.mapping)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   Email: 1/1 valid")
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"":            "csv",
		"out.csv":     "csv",
		"out.JSON":    "json",
		"dir/out.sql": "sql",
		"out.unknown": "csv",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatFromPath(in), in)
	}
}
