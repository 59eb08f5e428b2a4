package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/pkg/version"
)

const testProjectConfig = `embeddings:
  provider: static
  dimensions: 32
index:
  sync_writes: false
watch:
  debounce: 50ms
`

// testEnv is an isolated project dir, data dir and log file.
type testEnv struct {
	dir     string
	dataDir string
	logFile string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "xdg"))

	e := &testEnv{
		dir:     filepath.Join(root, "project"),
		dataDir: filepath.Join(root, "data"),
		logFile: filepath.Join(root, "logs", "magicfolder.log"),
	}
	require.NoError(t, os.MkdirAll(e.dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".magicfolder.yaml"), []byte(testProjectConfig), 0o644))
	return e
}

// run executes the CLI with the env's persistent flags and returns
// everything written to stdout and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, g := newRoot()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--dir", e.dir, "--data-dir", e.dataDir, "--log-file", e.logFile}, args...))

	err := cmd.Execute()
	_ = g.stop(cmd, nil)
	return buf.String(), err
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing with --help
	err := cmd.Execute()

	// Then: usage lists every command
	require.NoError(t, err)
	out := buf.String()
	for _, name := range []string{"process", "search", "watch", "serve", "files", "info", "status", "doctor", "config", "logs", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "magicfolder version")
}

func TestRootCmd_WritesJSONLogFile(t *testing.T) {
	// Given: an env with a log file
	e := newTestEnv(t)
	path := e.writeFile(t, "a.txt", "hello")

	// When: running a command
	_, err := e.run(t, "process", "--file", path)
	require.NoError(t, err)

	// Then: records are appended to the log file as JSON
	data, err := os.ReadFile(e.logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"process_completed"`)
}

func TestRootCmd_Profiling(t *testing.T) {
	e := newTestEnv(t)
	prof := filepath.Join(t.TempDir(), "cpu.prof")
	heap := filepath.Join(t.TempDir(), "heap.prof")

	_, err := e.run(t, "--profile-cpu", prof, "--profile-mem", heap, "files")
	require.NoError(t, err)

	assert.FileExists(t, prof)
	assert.FileExists(t, heap)
}

func TestPrintError(t *testing.T) {
	buf := &bytes.Buffer{}
	printError(buf, mferrors.NotFound("/tmp/x.txt"))
	assert.Contains(t, buf.String(), "Code: "+mferrors.ErrCodeFileNotFound)

	buf.Reset()
	printError(buf, errors.New(`unknown command "nope"`))
	assert.Equal(t, "Error: unknown command \"nope\"\n", buf.String())
}

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default", []string{}, "magicfolder "},
		{"short", []string{"--short"}, version.Short()},
		{"json", []string{"--json"}, `"go_version"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newVersionCmd()
			buf := &bytes.Buffer{}
			cmd.SetOut(buf)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
