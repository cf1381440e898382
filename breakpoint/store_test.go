package breakpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingSyncer captures every sync call it receives, and optionally
// verifies every breakpoint passed to it with the corrected line it is
// told to report back.
type recordingSyncer struct {
	sourceCalls [][]*Breakpoint
	verifyLine  map[int]int // requested line -> adapter-corrected line
	funcCalls   [][]FunctionBreakpoint
	filterCalls [][]ExceptionFilter
	failNext    bool
}

func (s *recordingSyncer) SyncSourceBreakpoints(ctx context.Context, path string, bps []*Breakpoint) ([]VerificationResult, error) {
	if s.failNext {
		s.failNext = false
		return nil, context.DeadlineExceeded
	}
	s.sourceCalls = append(s.sourceCalls, bps)
	out := make([]VerificationResult, len(bps))
	for i, bp := range bps {
		line := bp.Line
		if corrected, ok := s.verifyLine[bp.Line]; ok {
			line = corrected
		}
		out[i] = VerificationResult{Verified: true, Line: line}
	}
	return out, nil
}

func (s *recordingSyncer) SyncFunctionBreakpoints(ctx context.Context, bps []FunctionBreakpoint) ([]VerificationResult, error) {
	s.funcCalls = append(s.funcCalls, bps)
	out := make([]VerificationResult, len(bps))
	for i := range bps {
		out[i] = VerificationResult{Verified: true}
	}
	return out, nil
}

func (s *recordingSyncer) SyncExceptionFilters(ctx context.Context, filters []ExceptionFilter) error {
	s.filterCalls = append(s.filterCalls, filters)
	return nil
}

func TestAddSourceSyncsToAttachedSession(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{}
	store.Attach("s1", syncer)

	bp, err := store.AddSource(context.Background(), "/main.go", 10, 0, Options{})
	require.NoError(t, err)
	require.True(t, bp.Verified)
	require.Len(t, syncer.sourceCalls, 1)
	require.Len(t, syncer.sourceCalls[0], 1)
}

func TestAddSourceClassifiesKind(t *testing.T) {
	store := New()
	line, err := store.AddSource(context.Background(), "/a.go", 1, 0, Options{})
	require.NoError(t, err)
	require.Equal(t, KindLine, line.Kind)

	cond, err := store.AddSource(context.Background(), "/a.go", 2, 0, Options{Condition: "x > 1"})
	require.NoError(t, err)
	require.Equal(t, KindConditional, cond.Kind)

	log, err := store.AddSource(context.Background(), "/a.go", 3, 0, Options{LogMessage: "hit {x}"})
	require.NoError(t, err)
	require.Equal(t, KindLogpoint, log.Kind)
}

func TestToggleAtLineAddsThenRemoves(t *testing.T) {
	store := New()

	bp, err := store.ToggleAtLine(context.Background(), "/main.go", 42)
	require.NoError(t, err)
	require.NotNil(t, bp)
	require.Len(t, store.ForFile("/main.go"), 1)

	bp2, err := store.ToggleAtLine(context.Background(), "/main.go", 42)
	require.NoError(t, err)
	require.Nil(t, bp2)
	require.Empty(t, store.ForFile("/main.go"))
}

func TestRemoveResyncsFile(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{}
	store.Attach("s1", syncer)

	bp, err := store.AddSource(context.Background(), "/main.go", 5, 0, Options{})
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), bp.ID))
	require.Len(t, syncer.sourceCalls, 2) // one for add, one for remove
	require.Empty(t, syncer.sourceCalls[1])

	_, ok := store.Find(bp.ID)
	require.False(t, ok)
}

func TestToggleEnabledExcludesDisabledFromSync(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{}
	store.Attach("s1", syncer)

	bp, err := store.AddSource(context.Background(), "/main.go", 7, 0, Options{})
	require.NoError(t, err)

	require.NoError(t, store.ToggleEnabled(context.Background(), bp.ID))
	require.Empty(t, syncer.sourceCalls[len(syncer.sourceCalls)-1])

	found, _ := store.Find(bp.ID)
	require.False(t, found.Enabled)
}

func TestEditReclassifiesKind(t *testing.T) {
	store := New()
	bp, err := store.AddSource(context.Background(), "/main.go", 1, 0, Options{})
	require.NoError(t, err)
	require.Equal(t, KindLine, bp.Kind)

	require.NoError(t, store.Edit(context.Background(), bp.ID, Options{Condition: "y == 2"}))
	found, _ := store.Find(bp.ID)
	require.Equal(t, KindConditional, found.Kind)
	require.Equal(t, "y == 2", found.Condition)
}

func TestSetFunctionBreakpointsReplacesWholeList(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{}
	store.Attach("s1", syncer)

	err := store.SetFunctionBreakpoints(context.Background(), []FunctionBreakpoint{{Name: "main.main"}})
	require.NoError(t, err)
	require.Len(t, syncer.funcCalls, 1)
	require.Equal(t, "main.main", syncer.funcCalls[0][0].Name)
}

func TestSetExceptionFiltersReplacesWholeList(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{}
	store.Attach("s1", syncer)

	err := store.SetExceptionFilters(context.Background(), []ExceptionFilter{{FilterID: "uncaught"}})
	require.NoError(t, err)
	require.Len(t, syncer.filterCalls, 1)
	require.Equal(t, "uncaught", syncer.filterCalls[0][0].FilterID)
}

func TestSyncAllPushesFullStateToNewSession(t *testing.T) {
	store := New()
	// Add breakpoints with no session attached yet.
	_, err := store.AddSource(context.Background(), "/main.go", 1, 0, Options{})
	require.NoError(t, err)
	require.NoError(t, store.SetFunctionBreakpoints(context.Background(), []FunctionBreakpoint{{Name: "f"}}))
	require.NoError(t, store.SetExceptionFilters(context.Background(), []ExceptionFilter{{FilterID: "all"}}))

	syncer := &recordingSyncer{}
	require.NoError(t, store.SyncAll(context.Background(), syncer))

	require.Len(t, syncer.sourceCalls, 1)
	require.Len(t, syncer.funcCalls, 1)
	require.Len(t, syncer.filterCalls, 1)
}

func TestDetachStopsFutureSyncs(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{}
	store.Attach("s1", syncer)
	store.Detach("s1")

	_, err := store.AddSource(context.Background(), "/main.go", 1, 0, Options{})
	require.NoError(t, err)
	require.Empty(t, syncer.sourceCalls)
}

func TestDetachClearsVerifiedWhenNoSessionRemains(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{}
	store.Attach("s1", syncer)

	bp, err := store.AddSource(context.Background(), "/main.go", 1, 0, Options{})
	require.NoError(t, err)
	require.True(t, bp.Verified)

	store.Detach("s1")

	found, _ := store.Find(bp.ID)
	require.False(t, found.Verified)
}

func TestDetachKeepsVerifiedWhileAnotherSessionRemainsAttached(t *testing.T) {
	store := New()
	store.Attach("s1", &recordingSyncer{})
	store.Attach("s2", &recordingSyncer{})

	bp, err := store.AddSource(context.Background(), "/main.go", 1, 0, Options{})
	require.NoError(t, err)
	require.True(t, bp.Verified)

	store.Detach("s1")

	found, _ := store.Find(bp.ID)
	require.True(t, found.Verified)
}

func TestAddSourcePropagatesSyncError(t *testing.T) {
	store := New()
	syncer := &recordingSyncer{failNext: true}
	store.Attach("s1", syncer)

	bp, err := store.AddSource(context.Background(), "/main.go", 1, 0, Options{})
	require.Error(t, err)
	require.NotNil(t, bp) // the breakpoint still exists even if this round's sync failed
}
