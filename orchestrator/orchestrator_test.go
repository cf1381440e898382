package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dbgsession/core/breakpoint"
	"github.com/dbgsession/core/eventbus"
	"github.com/dbgsession/core/internal/errdefs"
	"github.com/dbgsession/core/launchconfig"
)

// verifyingSyncer marks every source breakpoint verified, standing in
// for a real adapter connection.
type verifyingSyncer struct{}

func (verifyingSyncer) SyncSourceBreakpoints(ctx context.Context, path string, bps []*breakpoint.Breakpoint) ([]breakpoint.VerificationResult, error) {
	out := make([]breakpoint.VerificationResult, len(bps))
	for i, bp := range bps {
		out[i] = breakpoint.VerificationResult{Verified: true, Line: bp.Line}
	}
	return out, nil
}

func (verifyingSyncer) SyncFunctionBreakpoints(ctx context.Context, bps []breakpoint.FunctionBreakpoint) ([]breakpoint.VerificationResult, error) {
	return nil, nil
}

func (verifyingSyncer) SyncExceptionFilters(ctx context.Context, filters []breakpoint.ExceptionFilter) error {
	return nil
}

// memStore is a minimal in-memory launchconfig.Store for resolver tests.
type memStore struct {
	data []byte
	set  bool
}

func (m *memStore) Read(ctx context.Context) ([]byte, error) { return m.data, nil }
func (m *memStore) Write(ctx context.Context, data []byte) error {
	m.data = data
	m.set = true
	return nil
}
func (m *memStore) Exists(ctx context.Context) bool { return m.set }

func newTestOrchestrator(launcher AdapterLauncher) *Orchestrator {
	resolver := launchconfig.New(&memStore{}, nil)
	return New(launcher, resolver, nil)
}

func TestStartSessionFailsWithoutLauncher(t *testing.T) {
	o := newTestOrchestrator(nil)
	_, err := o.StartSession(context.Background(), launchconfig.Configuration{Name: "x", Type: "go", Request: "launch"}, "/proj")
	require.Error(t, err)
	require.Empty(t, o.Sessions())
}

func TestStartSessionSurfacesUnknownAdapterType(t *testing.T) {
	o := newTestOrchestrator(StaticLauncher{"node": {"node"}})
	_, err := o.StartSession(context.Background(), launchconfig.Configuration{Name: "x", Type: "go", Request: "launch"}, "/proj")
	require.Error(t, err)
}

func TestStartSessionRunsPreLaunchTaskBeforeLaunching(t *testing.T) {
	o := newTestOrchestrator(StaticLauncher{"go": {"go"}})
	cfg := launchconfig.Configuration{
		Name: "x", Type: "go", Request: "launch",
		Options: map[string]interface{}{"preLaunchTask": "sh -c 'exit 7'"},
	}
	_, err := o.StartSession(context.Background(), cfg, "/proj")
	require.Error(t, err)
	require.Empty(t, o.Sessions())
}

func TestStartCompoundSkipsMissingConfigurationByName(t *testing.T) {
	o := newTestOrchestrator(nil)
	file := &launchconfig.File{
		Configurations: []launchconfig.Configuration{
			{Name: "Real", Type: "go", Request: "launch"},
		},
	}
	compound := launchconfig.Compound{Name: "Both", Configurations: []string{"Missing", "Real"}}

	// Launcher is nil, so the one real configuration also fails to start;
	// this still proves the missing name was skipped rather than erroring
	// out before reaching "Real".
	_, err := o.StartCompound(context.Background(), compound, file, "/proj")
	require.Error(t, err)
	var notFound *errdefs.ErrAdapterNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestStartCompoundReturnsNoSessionsWhenFirstMemberFails(t *testing.T) {
	o := newTestOrchestrator(StaticLauncher{"bad": {"/definitely/does/not/exist-binary"}})
	file := &launchconfig.File{
		Configurations: []launchconfig.Configuration{
			{Name: "A", Type: "bad", Request: "launch"},
			{Name: "B", Type: "bad", Request: "launch"},
		},
	}
	compound := launchconfig.Compound{Name: "Both", Configurations: []string{"A", "B"}, StopAll: true}

	started, err := o.StartCompound(context.Background(), compound, file, "/proj")
	require.Error(t, err)
	require.Empty(t, started)
	require.Empty(t, o.Sessions())
}

func TestDataQueriesReturnNilWithoutActiveSession(t *testing.T) {
	o := newTestOrchestrator(nil)

	threads, err := o.Threads(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, threads)

	frame, err := o.StackTrace(context.Background(), "", 0)
	require.NoError(t, err)
	require.Nil(t, frame)
}

func TestExecutionControlIsNoopWithoutSession(t *testing.T) {
	o := newTestOrchestrator(nil)
	require.NoError(t, o.Continue(context.Background(), "missing", 0))
	require.NoError(t, o.Pause(context.Background(), "missing", 0))
	require.NoError(t, o.RestartFrame(context.Background(), "missing", 0))
}

func TestAddBreakpointDelegatesToStore(t *testing.T) {
	o := newTestOrchestrator(nil)
	bp, err := o.AddBreakpoint(context.Background(), "/main.go", 5, 0, breakpoint.Options{})
	require.NoError(t, err)
	require.Equal(t, 5, bp.Line)
	require.Len(t, o.Breakpoints.ForFile("/main.go"), 1)
}

func TestAddAndRemoveWatchDelegatesToStore(t *testing.T) {
	o := newTestOrchestrator(nil)
	w := o.AddWatch("x + 1")
	require.Len(t, o.Watches.All(), 1)

	o.RemoveWatch(w.ID)
	require.Empty(t, o.Watches.All())
}

func TestWriteThenReadLaunchConfigRoundTrips(t *testing.T) {
	o := newTestOrchestrator(nil)
	f := &launchconfig.File{
		Version: "0.2.0",
		Configurations: []launchconfig.Configuration{
			{Name: "Run", Type: "go", Request: "launch"},
		},
	}
	require.NoError(t, o.WriteLaunchConfig(context.Background(), f))

	got, err := o.ReadLaunchConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Run", got.Configurations[0].Name)
}

func TestDefaultLaunchConfigDelegatesToResolver(t *testing.T) {
	o := newTestOrchestrator(nil)
	cfg := o.DefaultLaunchConfig("python", "/proj")
	require.Equal(t, "python", cfg.Type)
}

func TestActiveSessionIDEmptyWithNoSessions(t *testing.T) {
	o := newTestOrchestrator(nil)
	require.Equal(t, "", o.ActiveSessionID())
}

func TestContextTimeoutDoesNotDeadlockPreLaunchFailure(t *testing.T) {
	o := newTestOrchestrator(StaticLauncher{"go": {"go"}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := launchconfig.Configuration{
		Name: "x", Type: "go", Request: "launch",
		Options: map[string]interface{}{"preLaunchTask": "sh -c 'exit 1'"},
	}
	_, err := o.StartSession(ctx, cfg, "/proj")
	require.Error(t, err)
}

// TestSpontaneousTerminationReapsSessionAndClearsVerification exercises
// the case where a debuggee runs to completion on its own, rather than
// being stopped through StopSession: the session publishes
// eventbus.SessionTerminated by itself, and the orchestrator must still
// drop it from Sessions()/ActiveSessionID and detach it from the
// breakpoint store so Verified resets per the "verification is
// session-scoped" invariant.
func TestSpontaneousTerminationReapsSessionAndClearsVerification(t *testing.T) {
	o := newTestOrchestrator(nil)

	bp, err := o.Breakpoints.AddSource(context.Background(), "/main.go", 10, 0, breakpoint.Options{})
	require.NoError(t, err)
	require.False(t, bp.Verified) // no session attached yet

	o.Breakpoints.Attach("s1", verifyingSyncer{})
	require.NoError(t, o.Breakpoints.SyncAll(context.Background(), verifyingSyncer{}))
	found, _ := o.Breakpoints.Find(bp.ID)
	require.True(t, found.Verified)

	o.mu.Lock()
	o.sessions["s1"] = nil
	o.order = append(o.order, "s1")
	o.active = "s1"
	o.mu.Unlock()

	o.Bus.Publish(eventbus.Notification{Kind: eventbus.SessionTerminated, SessionID: "s1"})

	require.Eventually(t, func() bool {
		return o.ActiveSessionID() == "" && len(o.Sessions()) == 0
	}, time.Second, 5*time.Millisecond)

	found, _ = o.Breakpoints.Find(bp.ID)
	require.False(t, found.Verified)
}
