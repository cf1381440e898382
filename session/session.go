// Package session implements the Session state machine (component C3):
// per-debuggee lifecycle, capability record, thread/frame focus, and
// event re-emission into the Event Fan-out.
//
// The initialization sequence and stop/continue handling follow §4.3
// exactly. Grounded on codegen/debugger.go's Debugger/State/Direction
// vocabulary (kept: Direction and its two senses) but driving a real
// external adapter over dapclient instead of an in-process interpreter,
// and on rpc/dapserver/session.go's event-construction helpers for the
// shape of the notifications re-emitted to the Event Fan-out.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	dap "github.com/google/go-dap"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dbgsession/core/breakpoint"
	"github.com/dbgsession/core/dapclient"
	"github.com/dbgsession/core/eventbus"
	"github.com/dbgsession/core/internal/errdefs"
	"github.com/dbgsession/core/watch"
)

// State is one point in the session lifecycle state machine.
type State string

const (
	StateInitializing State = "initializing"
	StateConfiguring  State = "configuring"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
	StateTerminating  State = "terminating"
	StateTerminated   State = "terminated"
)

// Direction distinguishes a forward operation (continue, next, stepIn,
// stepOut) from its reverse counterpart (reverseContinue, stepBack),
// kept from the teacher's debugger vocabulary.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Config is the resolved, substituted configuration a session is started
// from. It carries the options as a plain map rather than a
// launchconfig.Configuration so this package has no dependency on the
// configuration resolver.
type Config struct {
	AdapterType string
	RequestKind string // "launch" or "attach"
	Options     map[string]interface{}
}

// Session is one live debugging relationship with one adapter.
type Session struct {
	ID            string
	Name          string
	AdapterType   string
	RequestKind   string
	WorkspaceRoot string
	ConfigSnapshot map[string]interface{}
	CreatedAt     time.Time

	client *dapclient.Client
	bps    *breakpoint.Store
	watches *watch.Store
	bus    *eventbus.Bus
	log    *log.Logger

	mu            sync.RWMutex
	state         State
	capabilities  dap.Capabilities
	threads       []dap.Thread
	currentThread *int
	currentFrame  *int
	initializedCh chan struct{}
}

// New builds a Session wired to its own dapclient.Client. Nothing is sent
// to the adapter until Run is called.
func New(id, name string, cfg Config, workspaceRoot string, client *dapclient.Client, bps *breakpoint.Store, watches *watch.Store, bus *eventbus.Bus, logger *log.Logger) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		ID:            id,
		Name:          name,
		AdapterType:   cfg.AdapterType,
		RequestKind:   cfg.RequestKind,
		WorkspaceRoot: workspaceRoot,
		ConfigSnapshot: cfg.Options,
		CreatedAt:     timeNow(),
		client:        client,
		bps:           bps,
		watches:       watches,
		bus:           bus,
		log:           logger,
		state:         StateInitializing,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentThread returns the focused thread id and whether one is set.
func (s *Session) CurrentThread() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentThread == nil {
		return 0, false
	}
	return *s.currentThread, true
}

// CurrentFrame returns the focused frame id and whether one is set.
func (s *Session) CurrentFrame() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentFrame == nil {
		return 0, false
	}
	return *s.currentFrame, true
}

// Capabilities returns the adapter capabilities captured at initialize.
func (s *Session) Capabilities() dap.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.publish(eventbus.SessionStateChange, map[string]string{"from": string(prev), "to": string(next)})
	}
}

func (s *Session) publish(kind eventbus.Kind, body interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Notification{
		Kind:      kind,
		SessionID: s.ID,
		Time:      timeNow(),
		Body:      body,
	})
}

// Run executes the six-step initialization sequence from §4.3. It must
// be called exactly once, from orchestrator.StartSession. Step 4 (wait
// for the adapter's initialized event) races against the launch/attach
// call with errgroup, rather than waiting for it sequentially after,
// because some adapters only emit "initialized" once launch is underway.
func (s *Session) Run(ctx context.Context) error {
	s.client.SetEventHandler(s.handleEvent)
	// Note: dapclient.New already started the read loop, but the
	// orchestrator builds the client with a nil handler; events reach
	// this session only from here on. See dapclient.Client.SetEventHandler.

	// Register the initialized-event waiter before sending initialize:
	// some adapters emit "initialized" immediately after the initialize
	// response, before this goroutine gets a chance to set it up.
	initialized := make(chan struct{})
	s.initializedOnce(initialized)

	caps, err := s.client.Initialize(ctx, "dbgsession", s.AdapterType)
	if err != nil {
		s.setState(StateTerminated)
		return err
	}
	s.mu.Lock()
	s.capabilities = caps
	s.mu.Unlock()

	s.setState(StateConfiguring)

	if err := s.bps.SyncAll(ctx, s); err != nil {
		s.log.Printf("session %s: initial breakpoint sync failed: %v", s.ID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.RequestKind == "attach" {
			return s.client.Attach(gctx, s.ConfigSnapshot)
		}
		return s.client.Launch(gctx, s.ConfigSnapshot)
	})
	g.Go(func() error {
		select {
		case <-initialized:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		s.setState(StateTerminated)
		return err
	}

	if err := s.client.ConfigurationDone(ctx); err != nil {
		s.setState(StateTerminated)
		return err
	}

	s.setState(StateRunning)
	s.publish(eventbus.SessionCreated, map[string]string{"state": string(StateRunning)})
	return nil
}

// initializedOnce registers ch as the channel handleEvent closes (once)
// when the adapter's "initialized" event arrives, so Run's wait can be a
// plain channel close regardless of event arrival order relative to
// launch/attach.
func (s *Session) initializedOnce(ch chan struct{}) {
	s.mu.Lock()
	s.initializedCh = ch
	s.mu.Unlock()
}

func (s *Session) handleEvent(msg dap.Message) {
	switch ev := msg.(type) {
	case *dap.InitializedEvent:
		s.mu.Lock()
		ch := s.initializedCh
		s.initializedCh = nil
		s.mu.Unlock()
		if ch != nil {
			close(ch)
		}
	case *dap.StoppedEvent:
		s.onStopped(ev)
	case *dap.ContinuedEvent:
		s.onContinued(ev)
	case *dap.TerminatedEvent:
		s.onTerminated()
	case *dap.ExitedEvent:
		s.onTerminated()
	case *dap.OutputEvent:
		kind := eventbus.Output
		if ev.Body.Category == "console" {
			kind = eventbus.Console
		}
		s.publish(kind, map[string]string{"category": ev.Body.Category, "output": ev.Body.Output})
	case *dap.ThreadEvent:
		s.refreshThreads(context.Background())
		s.publish(eventbus.ThreadsUpdated, map[string]interface{}{"reason": ev.Body.Reason, "threadId": ev.Body.ThreadId})
	case *dap.BreakpointEvent:
		s.publish(eventbus.BreakpointValidated, ev.Body)
	}
}

func (s *Session) onStopped(ev *dap.StoppedEvent) {
	s.setState(StateStopped)

	threadID := ev.Body.ThreadId
	s.mu.Lock()
	s.currentThread = &threadID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dapclient.DefaultTimeout)
	defer cancel()

	frames, _, err := s.client.StackTrace(ctx, threadID, 0, 0)
	var frameID int
	if err == nil && len(frames) > 0 {
		frameID = frames[0].Id
		s.mu.Lock()
		s.currentFrame = &frameID
		s.mu.Unlock()
	} else if err != nil {
		s.log.Printf("session %s: stackTrace after stop failed: %v", s.ID, err)
	}

	s.watches.RefreshAll(ctx, func(ctx context.Context, expr string) (string, string) {
		body, err := s.client.Evaluate(ctx, expr, frameID, "watch")
		if err != nil {
			return "", err.Error()
		}
		return body.Result, ""
	})

	s.publish(eventbus.Stopped, map[string]interface{}{
		"reason":     ev.Body.Reason,
		"threadId":   threadID,
		"frameId":    frameID,
		"allStopped": ev.Body.AllThreadsStopped,
	})
}

func (s *Session) onContinued(ev *dap.ContinuedEvent) {
	s.setState(StateRunning)
	if ev.Body.AllThreadsContinued {
		s.mu.Lock()
		s.currentThread = nil
		s.currentFrame = nil
		s.mu.Unlock()
		s.watches.Clear()
	}
	s.publish(eventbus.Continued, map[string]interface{}{
		"threadId":            ev.Body.ThreadId,
		"allThreadsContinued": ev.Body.AllThreadsContinued,
	})
}

func (s *Session) onTerminated() {
	s.setState(StateTerminated)
	s.publish(eventbus.SessionTerminated, map[string]string{"sessionId": s.ID})
}

func (s *Session) refreshThreads(ctx context.Context) {
	threads, err := s.client.Threads(ctx)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.threads = threads
	s.mu.Unlock()
}

// Threads returns the last known thread list.
func (s *Session) Threads() []dap.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dap.Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

// resolveThread returns threadID if non-zero, else the session's current
// thread, else 0.
func (s *Session) resolveThread(threadID int) int {
	if threadID != 0 {
		return threadID
	}
	if t, ok := s.CurrentThread(); ok {
		return t
	}
	return 0
}

// Continue resumes execution.
func (s *Session) Continue(ctx context.Context, threadID int) error {
	_, err := s.client.Continue(ctx, s.resolveThread(threadID))
	return err
}

// Pause suspends a running thread.
func (s *Session) Pause(ctx context.Context, threadID int) error {
	return s.client.Pause(ctx, s.resolveThread(threadID))
}

// StepOver steps over the current line, forward or backward.
func (s *Session) StepOver(ctx context.Context, threadID int, dir Direction) error {
	tid := s.resolveThread(threadID)
	if dir == Backward {
		return s.client.StepBack(ctx, tid)
	}
	return s.client.Next(ctx, tid)
}

// StepInto steps into a call on the current line.
func (s *Session) StepInto(ctx context.Context, threadID int) error {
	return s.client.StepIn(ctx, s.resolveThread(threadID))
}

// StepOut steps out of the current function.
func (s *Session) StepOut(ctx context.Context, threadID int) error {
	return s.client.StepOut(ctx, s.resolveThread(threadID))
}

// StackTrace fetches the call stack for threadID (or the current
// thread).
func (s *Session) StackTrace(ctx context.Context, threadID int) ([]dap.StackFrame, error) {
	frames, _, err := s.client.StackTrace(ctx, s.resolveThread(threadID), 0, 0)
	return frames, err
}

// Scopes fetches the variable scopes for a frame.
func (s *Session) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	return s.client.Scopes(ctx, frameID)
}

// Variables fetches the children of a variables container.
func (s *Session) Variables(ctx context.Context, variablesRef int) ([]dap.Variable, error) {
	return s.client.Variables(ctx, variablesRef)
}

// SetVariable edits a variable's value in place.
func (s *Session) SetVariable(ctx context.Context, variablesRef int, name, value string) (*dap.SetVariableResponseBody, error) {
	return s.client.SetVariable(ctx, variablesRef, name, value)
}

// Evaluate evaluates an expression in the given context ("watch",
// "repl", "hover", ...), against frameID or the current frame if 0.
func (s *Session) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	if frameID == 0 {
		if f, ok := s.CurrentFrame(); ok {
			frameID = f
		}
	}
	return s.client.Evaluate(ctx, expression, frameID, evalContext)
}

// Completions fetches completion proposals for an expression typed at
// frameID (or the current frame if 0).
func (s *Session) Completions(ctx context.Context, frameID int, text string, column int) ([]dap.CompletionItem, error) {
	if frameID == 0 {
		if f, ok := s.CurrentFrame(); ok {
			frameID = f
		}
	}
	return s.client.Completions(ctx, frameID, text, column)
}

// RestartFrame re-enters frameID from its start, when the adapter
// advertises supportsRestartFrame.
func (s *Session) RestartFrame(ctx context.Context, frameID int) error {
	if !s.Capabilities().SupportsRestartFrame {
		return errdefs.WithAdapterError("restartFrame", "adapter does not support restarting a single frame", nil)
	}
	return s.client.RestartFrame(ctx, frameID)
}

// Restart either issues a DAP restart (if the adapter advertises
// supportsRestartRequest) or returns an errdefs.ErrAdapterError telling
// the caller to re-drive start-session, per §4.3/§9.
func (s *Session) Restart(ctx context.Context) error {
	if s.Capabilities().SupportsRestartRequest {
		return s.client.Restart(ctx, s.ConfigSnapshot)
	}
	return errdefs.WithAdapterError("restart", "adapter does not support restart; re-run start-session", nil)
}

// Stop tears the session down following the shutdown discipline in
// §4.3: launch sessions use terminate when the adapter advertises
// supportsTerminateRequest and otherwise disconnect with
// terminateDebuggee=true; attach sessions use disconnect with
// terminateDebuggee=false. Errors during shutdown are swallowed;
// the session always ends in StateTerminated and the transport is
// always closed.
func (s *Session) Stop(ctx context.Context) error {
	s.setState(StateTerminating)

	var err error
	if s.RequestKind == "attach" {
		err = s.client.Disconnect(ctx, false)
	} else {
		if s.Capabilities().SupportsTerminateRequest {
			err = s.client.Terminate(ctx, false)
		} else {
			err = s.client.Disconnect(ctx, true)
		}
	}
	if err != nil {
		s.log.Printf("session %s: shutdown request failed (ignored): %v", s.ID, err)
	}

	closeErr := s.client.Close()
	s.setState(StateTerminated)
	s.publish(eventbus.SessionTerminated, map[string]string{"sessionId": s.ID})
	return closeErr
}

// --- breakpoint.Syncer implementation --------------------------------------

// SyncSourceBreakpoints issues setBreakpoints for path and translates the
// adapter's response into breakpoint.VerificationResult, in request
// order.
func (s *Session) SyncSourceBreakpoints(ctx context.Context, path string, bps []*breakpoint.Breakpoint) ([]breakpoint.VerificationResult, error) {
	args := make([]dap.SourceBreakpoint, len(bps))
	for i, bp := range bps {
		args[i] = dap.SourceBreakpoint{
			Line:         bp.Line,
			Column:       bp.Column,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
			LogMessage:   bp.LogMessage,
		}
	}
	resp, err := s.client.SetBreakpoints(ctx, dap.Source{Path: path, Name: basename(path)}, args)
	if err != nil {
		return nil, err
	}
	out := make([]breakpoint.VerificationResult, len(resp))
	for i, r := range resp {
		out[i] = breakpoint.VerificationResult{Verified: r.Verified, Line: r.Line, Message: r.Message}
	}
	return out, nil
}

// SyncFunctionBreakpoints issues setFunctionBreakpoints.
func (s *Session) SyncFunctionBreakpoints(ctx context.Context, bps []breakpoint.FunctionBreakpoint) ([]breakpoint.VerificationResult, error) {
	args := make([]dap.FunctionBreakpoint, len(bps))
	for i, bp := range bps {
		args[i] = dap.FunctionBreakpoint{Name: bp.Name, Condition: bp.Condition, HitCondition: bp.HitCondition}
	}
	resp, err := s.client.SetFunctionBreakpoints(ctx, args)
	if err != nil {
		return nil, err
	}
	out := make([]breakpoint.VerificationResult, len(resp))
	for i, r := range resp {
		out[i] = breakpoint.VerificationResult{Verified: r.Verified, Line: r.Line, Message: r.Message}
	}
	return out, nil
}

// SyncExceptionFilters issues setExceptionBreakpoints.
func (s *Session) SyncExceptionFilters(ctx context.Context, filters []breakpoint.ExceptionFilter) error {
	ids := make([]string, len(filters))
	for i, f := range filters {
		ids[i] = f.FilterID
	}
	return s.client.SetExceptionBreakpoints(ctx, ids)
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

var timeNow = time.Now
