package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxdoc/internal/testutil"
)

const testConfig = `
storage:
  path: data.db
collection:
  name: people
  schema: schema.cue
logging:
  level: error
`

// setupProject writes a config and schema into a temp dir and returns the
// config path.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.cue"), []byte(testutil.HumanSchema), 0o644))
	path := filepath.Join(dir, "rxdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

type cliResult struct {
	out string
	err error
}

func runCLI(t *testing.T, cfgPath string, stdin string, args ...string) cliResult {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return cliResult{out: out.String(), err: err}
}

type jsonDoc struct {
	ID      string         `json:"id"`
	Rev     string         `json:"rev"`
	Seq     int64          `json:"seq"`
	Deleted bool           `json:"deleted"`
	Data    map[string]any `json:"data"`
}

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decode(t *testing.T, out string) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func decodeDoc(t *testing.T, out string) jsonDoc {
	t.Helper()
	resp := decode(t, out)
	require.Equal(t, "ok", resp.Status, "output: %s", out)
	var doc jsonDoc
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	return doc
}

func TestInsertAndGet(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "--format", "json", "insert", `{"passportId":"p1","firstName":"Alice","age":30}`)
	require.NoError(t, res.err)
	doc := decodeDoc(t, res.out)
	assert.Equal(t, "p1", doc.ID)
	assert.True(t, strings.HasPrefix(doc.Rev, "1-"), doc.Rev)
	assert.Equal(t, "Alice", doc.Data["firstName"])

	res = runCLI(t, cfg, "", "--format", "json", "get", "p1")
	require.NoError(t, res.err)
	got := decodeDoc(t, res.out)
	assert.Equal(t, doc.Rev, got.Rev)
	assert.Equal(t, float64(30), got.Data["age"])
}

func TestInsertGeneratesPrimaryKey(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "--format", "json", "insert", `{"firstName":"Anon"}`)
	require.NoError(t, res.err)
	doc := decodeDoc(t, res.out)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, doc.ID, doc.Data["passportId"])
}

func TestInsertDefaults(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "--format", "json", "insert",
		"--default", "lastName=Doe", "--default", "age=21",
		`{"passportId":"p1","firstName":"Alice","age":40}`)
	require.NoError(t, res.err)
	doc := decodeDoc(t, res.out)
	assert.Equal(t, "Doe", doc.Data["lastName"])
	assert.Equal(t, float64(40), doc.Data["age"], "existing field is kept")
}

func TestInsertDefaultCanFailValidation(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "--format", "json", "insert", "--default", "age=500",
		`{"passportId":"p1","firstName":"Alice"}`)
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Equal(t, ErrCodeValidation, decode(t, res.out).Error.Code)

	res = runCLI(t, cfg, "", "--format", "json", "get", "p1")
	require.Error(t, res.err)
	assert.Equal(t, ErrCodeNotFound, decode(t, res.out).Error.Code)
}

func TestInsertRejected(t *testing.T) {
	cfg := setupProject(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{"invalid json", []string{"insert", `{"passportId":`}, ErrCodeArgs, ExitCommandError},
		{"not an object", []string{"insert", `[1,2]`}, ErrCodeArgs, ExitCommandError},
		{"schema violation", []string{"insert", `{"passportId":"p1","firstName":"A","age":200}`}, ErrCodeValidation, ExitFailure},
		{"missing required", []string{"insert", `{"passportId":"p1"}`}, ErrCodeValidation, ExitFailure},
		{"bad default", []string{"insert", "--default", "=x", `{"passportId":"p1","firstName":"A"}`}, ErrCodeArgs, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, cfg, "", append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, res.err)
			assert.Equal(t, tt.wantExit, GetExitCode(res.err))
			resp := decode(t, res.out)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestInsertDuplicateConflicts(t *testing.T) {
	cfg := setupProject(t)
	rec := `{"passportId":"p1","firstName":"Alice"}`

	require.NoError(t, runCLI(t, cfg, "", "insert", rec).err)

	res := runCLI(t, cfg, "", "--format", "json", "insert", rec)
	require.Error(t, res.err)
	assert.Equal(t, ErrCodeConflict, decode(t, res.out).Error.Code)
}

func TestSetSavesChanges(t *testing.T) {
	cfg := setupProject(t)
	require.NoError(t, runCLI(t, cfg, "", "insert", `{"passportId":"p1","firstName":"Alice","lastName":"Smith"}`).err)

	res := runCLI(t, cfg, "", "--format", "json", "set", "p1", "firstName=Bob", "age=7", "--unset", "lastName")
	require.NoError(t, res.err)
	doc := decodeDoc(t, res.out)
	assert.True(t, strings.HasPrefix(doc.Rev, "2-"), doc.Rev)
	assert.Equal(t, "Bob", doc.Data["firstName"])
	assert.Equal(t, float64(7), doc.Data["age"])
	assert.NotContains(t, doc.Data, "lastName")
}

func TestSetInvalidKeepsCommittedDocument(t *testing.T) {
	cfg := setupProject(t)
	require.NoError(t, runCLI(t, cfg, "", "insert", `{"passportId":"p1","firstName":"Alice"}`).err)

	res := runCLI(t, cfg, "", "--format", "json", "set", "p1", "age=-1")
	require.Error(t, res.err)
	assert.Equal(t, ErrCodeValidation, decode(t, res.out).Error.Code)

	res = runCLI(t, cfg, "", "--format", "json", "get", "p1")
	require.NoError(t, res.err)
	doc := decodeDoc(t, res.out)
	assert.True(t, strings.HasPrefix(doc.Rev, "1-"), doc.Rev)
	assert.NotContains(t, doc.Data, "age")
}

func TestSetPrimaryKeyRejected(t *testing.T) {
	cfg := setupProject(t)
	require.NoError(t, runCLI(t, cfg, "", "insert", `{"passportId":"p1","firstName":"Alice"}`).err)

	res := runCLI(t, cfg, "", "--format", "json", "set", "p1", "passportId=p2")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Equal(t, ErrCodeValidation, decode(t, res.out).Error.Code)
}

func TestSetArguments(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "--format", "json", "set", "p1")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Equal(t, ErrCodeArgs, decode(t, res.out).Error.Code)

	res = runCLI(t, cfg, "", "--format", "json", "set", "missing", "firstName=x")
	require.Error(t, res.err)
	assert.Equal(t, ErrCodeNotFound, decode(t, res.out).Error.Code)
}

func TestRemoveAndHistory(t *testing.T) {
	cfg := setupProject(t)
	require.NoError(t, runCLI(t, cfg, "", "insert", `{"passportId":"p1","firstName":"Alice"}`).err)

	res := runCLI(t, cfg, "", "--format", "json", "remove", "p1")
	require.NoError(t, res.err)
	assert.True(t, decodeDoc(t, res.out).Deleted)

	res = runCLI(t, cfg, "", "get", "p1")
	require.Error(t, res.err)
	assert.Contains(t, res.out, "Error [E004]")

	res = runCLI(t, cfg, "", "--format", "json", "history", "p1")
	require.NoError(t, res.err)
	var revs []jsonDoc
	require.NoError(t, json.Unmarshal(decode(t, res.out).Data, &revs))
	require.Len(t, revs, 2)
	assert.False(t, revs[0].Deleted)
	assert.True(t, revs[1].Deleted)
	assert.Less(t, revs[0].Seq, revs[1].Seq)
	assert.Equal(t, "Alice", revs[1].Data["firstName"], "tombstone keeps its data")

	res = runCLI(t, cfg, "", "remove", "p1")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
}

func TestHistoryUnknown(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "history", "nope")
	require.Error(t, res.err)
	assert.Contains(t, res.out, `document "nope" not found`)
}

func TestListText(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "list")
	require.NoError(t, res.err)
	assert.Equal(t, "(no documents)\n", res.out)

	require.NoError(t, runCLI(t, cfg, "", "insert", `{"passportId":"a","firstName":"A"}`).err)
	require.NoError(t, runCLI(t, cfg, "", "insert", `{"passportId":"b","firstName":"B"}`).err)
	require.NoError(t, runCLI(t, cfg, "", "remove", "a").err)

	res = runCLI(t, cfg, "", "list")
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.out), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "b rev=1-"), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], `{"firstName":"B","passportId":"b"}`), lines[0])
}

func TestValidate(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "validate", `{"passportId":"p1","firstName":"Alice"}`)
	require.NoError(t, res.err)
	assert.Equal(t, "✓ Valid against schema people\n", res.out)

	res = runCLI(t, cfg, "", "--format", "json", "validate", `{"passportId":"p1","firstName":"Alice"}`)
	require.NoError(t, res.err)
	var result ValidateResult
	require.NoError(t, json.Unmarshal(decode(t, res.out).Data, &result))
	assert.True(t, result.Valid)
	assert.ElementsMatch(t, []string{"passportId", "firstName", "lastName", "age"}, result.Fields)

	res = runCLI(t, cfg, "", "validate", `{"passportId":"p1","firstName":"Alice","age":"old"}`)
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.True(t, strings.HasPrefix(res.out, "✗ Validation failed\n"), res.out)

	// nothing was written
	res = runCLI(t, cfg, "", "get", "p1")
	require.Error(t, res.err)
}

func TestImport(t *testing.T) {
	cfg := setupProject(t)
	input := `{"passportId":"a","firstName":"A"}

{"passportId":"b","firstName":"B","age":3}
`

	res := runCLI(t, cfg, input, "--format", "json", "import", "-")
	require.NoError(t, res.err)
	var result ImportResult
	require.NoError(t, json.Unmarshal(decode(t, res.out).Data, &result))
	assert.Equal(t, []string{"a", "b"}, result.Inserted)

	res = runCLI(t, cfg, `{"passportId":"c","firstName":"C"}`+"\n"+`{"passportId":"d"}`+"\n", "import", "-")
	require.Error(t, res.err)
	assert.Contains(t, res.out, "Error [E011]: line 2:")

	// lines before the rejected one stay committed
	require.NoError(t, runCLI(t, cfg, "", "get", "c").err)
}

func TestImportFile(t *testing.T) {
	cfg := setupProject(t)
	path := filepath.Join(t.TempDir(), "people.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"passportId":"a","firstName":"A"}`+"\n"), 0o644))

	res := runCLI(t, cfg, "", "import", path)
	require.NoError(t, res.err)
	assert.Equal(t, "✓ Imported 1 documents\n", res.out)

	res = runCLI(t, cfg, "", "import", filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
}

func TestSessionErrors(t *testing.T) {
	dir := t.TempDir()

	// no config file: defaults apply and the default schema.cue is missing
	res := runCLI(t, filepath.Join(dir, "absent.yaml"), "", "--format", "json", "list")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Equal(t, ErrCodeConfig, decode(t, res.out).Error.Code)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("logging:\n  level: loud\n"), 0o644))
	res = runCLI(t, bad, "", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.out, "logging.level")
}

func TestSessionLogFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.cue"), []byte(testutil.HumanSchema), 0o644))
	logPath := filepath.Join(dir, "rxdoc.log")
	cfg := filepath.Join(dir, "rxdoc.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
storage:
  path: data.db
collection:
  name: people
  schema: schema.cue
logging:
  level: debug
  output: `+logPath+`
`), 0o644))

	s, err := openSession(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	s.Close()
	assert.NoError(t, s.Log.Close(), "already released")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session opened")
}

func TestInvalidFormat(t *testing.T) {
	cfg := setupProject(t)

	res := runCLI(t, cfg, "", "--format", "xml", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), `invalid format "xml"`)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"a=1", "b=hello", `c={"x":true}`, "d=", "e=a=b"})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "1", mustCanonical(t, got[0]))
	assert.Equal(t, `"hello"`, mustCanonical(t, got[1]))
	assert.Equal(t, `{"x":true}`, mustCanonical(t, got[2]))
	assert.Equal(t, `""`, mustCanonical(t, got[3]))
	assert.Equal(t, `"a=b"`, mustCanonical(t, got[4]))

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
}
