package launchconfig

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbgsession/core/internal/errdefs"
	"github.com/dbgsession/core/internal/localenv"
)

// memStore is an in-memory launchconfig.Store, used so tests never touch
// the filesystem.
type memStore struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

func (m *memStore) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *memStore) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.set = true
	return nil
}

func (m *memStore) Exists(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

func TestStripJSONCommentsPreservesStringContent(t *testing.T) {
	in := []byte(`{
  // a line comment
  "name": "has // not a comment",
  "type": "go", /* block
  comment */
  "request": "launch"
}`)
	out := StripJSONComments(in)
	require.Contains(t, string(out), `"has // not a comment"`)
	require.NotContains(t, string(out), "a line comment")
	require.NotContains(t, string(out), "block")
}

func TestResolverReadFallsBackToSecondaryWithCommentStrip(t *testing.T) {
	secondary := &memStore{
		data: []byte(`{
  // vscode style comment
  "version": "0.2.0",
  "configurations": [
    {"name": "Launch", "type": "go", "request": "launch", "program": "${workspaceFolder}"}
  ]
}`),
		set: true,
	}
	r := New(&memStore{}, secondary)

	f, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, f.Configurations, 1)
	require.Equal(t, "Launch", f.Configurations[0].Name)
	require.Equal(t, "${workspaceFolder}", f.Configurations[0].Options["program"])
}

func TestResolverPrefersPrimaryOverSecondary(t *testing.T) {
	primary := &memStore{set: true, data: []byte(`{"version":"0.2.0","configurations":[{"name":"Primary","type":"go","request":"launch"}]}`)}
	secondary := &memStore{set: true, data: []byte(`{"version":"0.2.0","configurations":[{"name":"Secondary","type":"go","request":"launch"}]}`)}
	r := New(primary, secondary)

	f, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Primary", f.Configurations[0].Name)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	primary := &memStore{}
	r := New(primary, nil)

	f := &File{
		Version: "0.2.0",
		Configurations: []Configuration{
			{Name: "Run", Type: "node", Request: "launch", Options: map[string]interface{}{"program": "index.js"}},
		},
	}
	require.NoError(t, r.Write(context.Background(), f))

	got, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Run", got.Configurations[0].Name)
	require.Equal(t, "index.js", got.Configurations[0].Options["program"])
}

func TestImportFromSecondaryWritesToPrimary(t *testing.T) {
	primary := &memStore{}
	secondary := &memStore{set: true, data: []byte(`{"version":"0.2.0","configurations":[{"name":"Imported","type":"go","request":"launch"}]}`)}
	r := New(primary, secondary)

	f, err := r.ImportFromSecondary(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Imported", f.Configurations[0].Name)
	require.True(t, primary.set)
}

func TestSubstituteReplacesKnownTokens(t *testing.T) {
	ctx := localenv.WithWorkspaceRoot(context.Background(), "/home/dev/project")
	ctx = localenv.WithFocusedFile(ctx, "/home/dev/project/src/main.go")
	ctx = localenv.WithEnviron(ctx, []string{"PORT=9229"})
	vars := VariablesFromContext(ctx)

	in := map[string]interface{}{
		"program": "${workspaceFolder}/bin/app",
		"args":    []interface{}{"--file=${file}", "--port=${env:PORT}"},
		"cwd":     "${fileDirname}",
	}
	out := vars.Substitute(in).(map[string]interface{})

	require.Equal(t, "/home/dev/project/bin/app", out["program"])
	require.Equal(t, "/home/dev/project/src/main.go", out["args"].([]interface{})[0].(string)[len("--file="):])
	require.Equal(t, "9229", out["args"].([]interface{})[1].(string)[len("--port="):])
	require.Equal(t, "/home/dev/project/src", out["cwd"])
}

func TestSubstitutePreservesUnknownTokens(t *testing.T) {
	vars := Variables{}
	require.Equal(t, "${notAToken}", vars.substituteString("${notAToken}"))
}

func TestDefaultConfigurationPerAdapterType(t *testing.T) {
	cfg := DefaultConfiguration("python", "/proj")
	require.Equal(t, "python", cfg.Type)
	require.Equal(t, "launch", cfg.Request)
	require.Equal(t, "${workspaceFolder}/main.py", cfg.Options["program"])
}

func TestAutoGenerateOneConfigurationPerDetected(t *testing.T) {
	detected := []Detected{
		{AdapterType: "node", Name: "Launch Node"},
		{AdapterType: "go"},
	}
	configs := AutoGenerate(detected, "/proj")
	require.Len(t, configs, 2)
	require.Equal(t, "Launch Node", configs[0].Name)
	require.Equal(t, "Launch (go)", configs[1].Name)
}

func TestRunPreLaunchTaskStreamsStdout(t *testing.T) {
	var out bytes.Buffer
	err := RunPreLaunchTask(context.Background(), "echo hello", "", &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "hello")
}

func TestRunPreLaunchTaskFailureWrapsExitCode(t *testing.T) {
	err := RunPreLaunchTask(context.Background(), "sh -c 'exit 3'", "", nil)
	require.Error(t, err)
	var typed *errdefs.ErrPreLaunchFailed
	require.ErrorAs(t, err, &typed)
	require.Equal(t, 3, typed.ExitCode)
}

func TestRunPreLaunchTaskEmptyIsNoop(t *testing.T) {
	require.NoError(t, RunPreLaunchTask(context.Background(), "", "", nil))
}
