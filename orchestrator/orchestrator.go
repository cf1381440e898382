// Package orchestrator implements the Orchestrator facade (component
// C7): the single entry point exposed to the UI transport, owning the
// session map and coordinating the Breakpoint Store, Watch Store,
// Configuration Resolver, and Event Fan-out.
//
// Grounded on rpc/dapserver/session.go's Session struct as the single
// mutable owner of capability/handle state, scaled up here to own
// multiple concurrent sessions instead of one.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/dbgsession/core/breakpoint"
	dappkg "github.com/dbgsession/core/dapclient"
	"github.com/dbgsession/core/eventbus"
	"github.com/dbgsession/core/internal/errdefs"
	"github.com/dbgsession/core/launchconfig"
	"github.com/dbgsession/core/session"
	"github.com/dbgsession/core/transport"
	"github.com/dbgsession/core/watch"
)

// AdapterLauncher builds the command that spawns an adapter given its
// type. This is the "adapter discovery/installation" collaborator named
// in spec §1 as out of scope; the orchestrator only consumes it.
type AdapterLauncher interface {
	// Launch returns the command to spawn for adapterType, or
	// errdefs.ErrAdapterNotFound if none is registered.
	Launch(adapterType string) (*exec.Cmd, error)
}

// StaticLauncher is the simplest AdapterLauncher: a fixed table of
// adapterType -> argv.
type StaticLauncher map[string][]string

func (l StaticLauncher) Launch(adapterType string) (*exec.Cmd, error) {
	argv, ok := l[adapterType]
	if !ok || len(argv) == 0 {
		return nil, errdefs.WithAdapterNotFound(adapterType)
	}
	return exec.Command(argv[0], argv[1:]...), nil
}

// Orchestrator is the façade owning every session and the singleton
// stores shared across sessions.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	order    []string
	active   string

	Breakpoints *breakpoint.Store
	Watches     *watch.Store
	Config      *launchconfig.Resolver
	Bus         *eventbus.Bus

	Launcher AdapterLauncher
	Log      *log.Logger
}

// New builds an Orchestrator with its own private breakpoint store,
// watch store, and event bus, exposed as public fields so other
// collaborators (e.g. a test harness asserting on them directly) can
// reach them without a constructor parameter for each.
func New(launcher AdapterLauncher, resolver *launchconfig.Resolver, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		sessions:    make(map[string]*session.Session),
		Breakpoints: breakpoint.New(),
		Watches:     watch.New(),
		Config:      resolver,
		Bus:         eventbus.New(64),
		Launcher:    launcher,
		Log:         logger,
	}
	go o.reapTerminatedSessions()
	return o
}

// reapTerminatedSessions removes a session as soon as it reports its own
// termination, so a debuggee that runs to completion on its own (rather
// than being stopped through StopSession/RestartSession) doesn't linger
// in Sessions() or keep ActiveSessionID pointed at a dead session. This
// races harmlessly with StopSession's own removeSession call: both
// Detach and removeSession are no-ops on an already-removed id.
func (o *Orchestrator) reapTerminatedSessions() {
	sub := o.Bus.Subscribe()
	defer sub.Unsubscribe()
	for n := range sub.C() {
		if n.Kind != eventbus.SessionTerminated {
			continue
		}
		o.Breakpoints.Detach(n.SessionID)
		o.removeSession(n.SessionID)
	}
}

// StartSession sequences: pre-launch task -> transport -> dapclient ->
// session creation -> session's six-step init sequence -> active-session
// assignment if none was set.
func (o *Orchestrator) StartSession(ctx context.Context, cfg launchconfig.Configuration, workspaceRoot string) (*session.Session, error) {
	if task, ok := cfg.Options["preLaunchTask"].(string); ok && task != "" {
		if err := launchconfig.RunPreLaunchTask(ctx, task, workspaceRoot, nil); err != nil {
			return nil, err
		}
	}

	if o.Launcher == nil {
		return nil, errdefs.WithAdapterNotFound(cfg.Type)
	}
	cmd, err := o.Launcher.Launch(cfg.Type)
	if err != nil {
		return nil, err
	}

	t, err := transport.NewStdio(cmd)
	if err != nil {
		return nil, fmt.Errorf("spawn adapter %s: %w", cfg.Type, err)
	}

	client := dappkg.New(t, nil)

	sess := session.New(
		uuid.NewString(),
		cfg.Name,
		session.Config{AdapterType: cfg.Type, RequestKind: cfg.Request, Options: cfg.Options},
		workspaceRoot,
		client,
		o.Breakpoints,
		o.Watches,
		o.Bus,
		o.Log,
	)

	o.Breakpoints.Attach(sess.ID, sess)

	if err := sess.Run(ctx); err != nil {
		o.Breakpoints.Detach(sess.ID)
		client.Close()
		return nil, err
	}

	o.mu.Lock()
	o.sessions[sess.ID] = sess
	o.order = append(o.order, sess.ID)
	if o.active == "" {
		o.active = sess.ID
	}
	o.mu.Unlock()

	return sess, nil
}

// StartCompound starts every named configuration in a compound, in
// order, skipping a missing name with a logged warning. If stopAll is
// set and any member fails to start, every session already started as
// part of this compound is stopped.
func (o *Orchestrator) StartCompound(ctx context.Context, compound launchconfig.Compound, file *launchconfig.File, workspaceRoot string) ([]*session.Session, error) {
	byName := make(map[string]launchconfig.Configuration, len(file.Configurations))
	for _, cfg := range file.Configurations {
		byName[cfg.Name] = cfg
	}

	var started []*session.Session
	for _, name := range compound.Configurations {
		cfg, ok := byName[name]
		if !ok {
			o.Log.Printf("compound %s: configuration %q not found, skipping", compound.Name, name)
			continue
		}
		sess, err := o.StartSession(ctx, cfg, workspaceRoot)
		if err != nil {
			if compound.StopAll {
				for _, s := range started {
					o.StopSession(ctx, s.ID)
				}
			}
			return started, err
		}
		started = append(started, sess)
	}
	return started, nil
}

func (o *Orchestrator) get(id string) (*session.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id == "" {
		id = o.active
	}
	if id == "" {
		return nil, false
	}
	sess, ok := o.sessions[id]
	return sess, ok
}

// removeSession deletes id from the session map and insertion order. If
// id was active, the first remaining session in insertion order becomes
// active, or the active id is cleared if none remain.
func (o *Orchestrator) removeSession(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	if o.active == id {
		if len(o.order) > 0 {
			o.active = o.order[0]
		} else {
			o.active = ""
		}
	}
}

// StopSession stops the given session (or the active one if id is
// empty), which is a no-op if there is no such session.
func (o *Orchestrator) StopSession(ctx context.Context, id string) error {
	sess, ok := o.get(id)
	if !ok {
		return nil
	}
	o.Breakpoints.Detach(sess.ID)
	err := sess.Stop(ctx)
	o.removeSession(sess.ID)
	return err
}

// DisconnectSession is an alias for StopSession: both paths converge on
// Session.Stop, which already applies the launch-vs-attach shutdown
// discipline internally.
func (o *Orchestrator) DisconnectSession(ctx context.Context, id string) error {
	return o.StopSession(ctx, id)
}

// RestartSession restarts a session in place if possible, or re-drives
// StartSession with the same configuration snapshot otherwise.
func (o *Orchestrator) RestartSession(ctx context.Context, id string) (*session.Session, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	if err := sess.Restart(ctx); err == nil {
		return sess, nil
	}

	cfg := launchconfig.Configuration{
		Name:    sess.Name,
		Type:    sess.AdapterType,
		Request: sess.RequestKind,
		Options: sess.ConfigSnapshot,
	}
	workspaceRoot := sess.WorkspaceRoot
	wasActive := o.active == sess.ID

	if err := o.StopSession(ctx, sess.ID); err != nil {
		o.Log.Printf("restart %s: stop during restart failed (ignored): %v", sess.ID, err)
	}

	newSess, err := o.StartSession(ctx, cfg, workspaceRoot)
	if err != nil {
		return nil, err
	}
	if wasActive {
		o.mu.Lock()
		o.active = newSess.ID
		o.mu.Unlock()
	}
	return newSess, nil
}

// ActiveSessionID returns the currently active session id, or "".
func (o *Orchestrator) ActiveSessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Sessions returns every session, in insertion order.
func (o *Orchestrator) Sessions() []*session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*session.Session, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.sessions[id])
	}
	return out
}

// --- execution control: no-op when no active/target session exists --------

func (o *Orchestrator) Continue(ctx context.Context, id string, threadID int) error {
	sess, ok := o.get(id)
	if !ok {
		return nil
	}
	return sess.Continue(ctx, threadID)
}

func (o *Orchestrator) Pause(ctx context.Context, id string, threadID int) error {
	sess, ok := o.get(id)
	if !ok {
		return nil
	}
	return sess.Pause(ctx, threadID)
}

func (o *Orchestrator) StepOver(ctx context.Context, id string, threadID int, dir session.Direction) error {
	sess, ok := o.get(id)
	if !ok {
		return nil
	}
	return sess.StepOver(ctx, threadID, dir)
}

func (o *Orchestrator) StepInto(ctx context.Context, id string, threadID int) error {
	sess, ok := o.get(id)
	if !ok {
		return nil
	}
	return sess.StepInto(ctx, threadID)
}

func (o *Orchestrator) StepOut(ctx context.Context, id string, threadID int) error {
	sess, ok := o.get(id)
	if !ok {
		return nil
	}
	return sess.StepOut(ctx, threadID)
}

// --- breakpoint and watch operations: delegated to C4/C5 ------------------

func (o *Orchestrator) AddBreakpoint(ctx context.Context, path string, line, column int, opts breakpoint.Options) (*breakpoint.Breakpoint, error) {
	return o.Breakpoints.AddSource(ctx, path, line, column, opts)
}

func (o *Orchestrator) RemoveBreakpoint(ctx context.Context, id string) error {
	return o.Breakpoints.Remove(ctx, id)
}

func (o *Orchestrator) ToggleBreakpointEnabled(ctx context.Context, id string) error {
	return o.Breakpoints.ToggleEnabled(ctx, id)
}

func (o *Orchestrator) ToggleBreakpointAtLine(ctx context.Context, path string, line int) (*breakpoint.Breakpoint, error) {
	return o.Breakpoints.ToggleAtLine(ctx, path, line)
}

func (o *Orchestrator) EditBreakpoint(ctx context.Context, id string, opts breakpoint.Options) error {
	return o.Breakpoints.Edit(ctx, id, opts)
}

func (o *Orchestrator) SetFunctionBreakpoints(ctx context.Context, bps []breakpoint.FunctionBreakpoint) error {
	return o.Breakpoints.SetFunctionBreakpoints(ctx, bps)
}

func (o *Orchestrator) SetExceptionFilters(ctx context.Context, filters []breakpoint.ExceptionFilter) error {
	return o.Breakpoints.SetExceptionFilters(ctx, filters)
}

func (o *Orchestrator) AddWatch(expression string) *watch.Watch {
	return o.Watches.Add(expression)
}

func (o *Orchestrator) RemoveWatch(id string) {
	o.Watches.Remove(id)
}

// --- data queries: empty collections when no active/target session -------

func (o *Orchestrator) Threads(ctx context.Context, id string) ([]string, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	threads := sess.Threads()
	out := make([]string, len(threads))
	for i, t := range threads {
		out[i] = t.Name
	}
	return out, nil
}

func (o *Orchestrator) StackTrace(ctx context.Context, id string, threadID int) (interface{}, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	return sess.StackTrace(ctx, threadID)
}

func (o *Orchestrator) Scopes(ctx context.Context, id string, frameID int) (interface{}, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	return sess.Scopes(ctx, frameID)
}

func (o *Orchestrator) Variables(ctx context.Context, id string, variablesRef int) (interface{}, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	return sess.Variables(ctx, variablesRef)
}

func (o *Orchestrator) SetVariable(ctx context.Context, id string, variablesRef int, name, value string) (interface{}, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	return sess.SetVariable(ctx, variablesRef, name, value)
}

func (o *Orchestrator) Evaluate(ctx context.Context, id string, expression string, frameID int, evalContext string) (interface{}, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	return sess.Evaluate(ctx, expression, frameID, evalContext)
}

func (o *Orchestrator) Completions(ctx context.Context, id string, frameID int, text string, column int) (interface{}, error) {
	sess, ok := o.get(id)
	if !ok {
		return nil, nil
	}
	return sess.Completions(ctx, frameID, text, column)
}

func (o *Orchestrator) RestartFrame(ctx context.Context, id string, frameID int) error {
	sess, ok := o.get(id)
	if !ok {
		return nil
	}
	return sess.RestartFrame(ctx, frameID)
}

// --- config operations: delegated to the Configuration Resolver -----------

func (o *Orchestrator) ReadLaunchConfig(ctx context.Context) (*launchconfig.File, error) {
	return o.Config.Read(ctx)
}

func (o *Orchestrator) WriteLaunchConfig(ctx context.Context, f *launchconfig.File) error {
	return o.Config.Write(ctx, f)
}

func (o *Orchestrator) DefaultLaunchConfig(adapterType, workspaceRoot string) launchconfig.Configuration {
	return launchconfig.DefaultConfiguration(adapterType, workspaceRoot)
}

func (o *Orchestrator) AutoGenerate(detected []launchconfig.Detected, workspaceRoot string) []launchconfig.Configuration {
	return launchconfig.AutoGenerate(detected, workspaceRoot)
}

func (o *Orchestrator) ImportFromSecondary(ctx context.Context) (*launchconfig.File, error) {
	return o.Config.ImportFromSecondary(ctx)
}
