// Package uiserver exposes the Orchestrator (component C7) as a
// jrpc2 command surface for a UI client, and pushes Event Fan-out
// notifications back to that client as server-initiated
// notifications.
//
// Grounded directly on rpc/langserver/server.go: a jrpc2.Server built
// from a handler.Map, served over channel.Header(""), with
// ServerOptions{AllowPush: true} so the orchestrator's own event
// stream can ride the same connection as unsolicited notifications
// instead of needing a second transport.
package uiserver

import (
	"context"
	"io"
	"log"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"

	"github.com/dbgsession/core/breakpoint"
	"github.com/dbgsession/core/eventbus"
	"github.com/dbgsession/core/internal/localenv"
	"github.com/dbgsession/core/launchconfig"
	"github.com/dbgsession/core/orchestrator"
	"github.com/dbgsession/core/session"
)

// Envelope is the result shape returned by every command: a UI client
// can switch on Success without needing to inspect HTTP-like status
// codes or parse error strings out of band.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(data interface{}) (Envelope, error) {
	return Envelope{Success: true, Data: data}, nil
}

func fail(err error) (Envelope, error) {
	return Envelope{Success: false, Error: err.Error()}, nil
}

func envelope(data interface{}, err error) (Envelope, error) {
	if err != nil {
		return fail(err)
	}
	return ok(data)
}

// Server binds an orchestrator.Orchestrator to a jrpc2.Server.
type Server struct {
	orch   *orchestrator.Orchestrator
	server *jrpc2.Server
	log    *log.Logger
}

// New builds a Server. Handlers are registered once here; Listen may be
// called any number of times, once per UI connection.
func New(orch *orchestrator.Orchestrator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{orch: orch, log: logger}

	s.server = jrpc2.NewServer(handler.Map{
		"start-session":       handler.New(s.startSession),
		"start-compound":      handler.New(s.startCompound),
		"stop-session":        handler.New(s.stopSession),
		"disconnect-session":  handler.New(s.disconnectSession),
		"restart-session":     handler.New(s.restartSession),
		"list-sessions":       handler.New(s.listSessions),
		"active-session":      handler.New(s.activeSession),
		"continue":            handler.New(s.doContinue),
		"pause":               handler.New(s.pause),
		"step-over":           handler.New(s.stepOver),
		"step-into":           handler.New(s.stepInto),
		"step-out":            handler.New(s.stepOut),
		"add-breakpoint":      handler.New(s.addBreakpoint),
		"remove-breakpoint":   handler.New(s.removeBreakpoint),
		"toggle-breakpoint-enabled": handler.New(s.toggleBreakpointEnabled),
		"toggle-at-line":      handler.New(s.toggleAtLine),
		"edit-breakpoint":     handler.New(s.editBreakpoint),
		"set-function-breakpoints": handler.New(s.setFunctionBreakpoints),
		"set-exception-filters":    handler.New(s.setExceptionFilters),
		"add-watch":           handler.New(s.addWatch),
		"remove-watch":        handler.New(s.removeWatch),
		"list-watches":        handler.New(s.listWatches),
		"threads":             handler.New(s.threads),
		"stack-trace":         handler.New(s.stackTrace),
		"scopes":              handler.New(s.scopes),
		"variables":           handler.New(s.variables),
		"set-variable":        handler.New(s.setVariable),
		"evaluate":            handler.New(s.evaluate),
		"completions":         handler.New(s.completions),
		"restart-frame":       handler.New(s.restartFrame),
		"read-launch-config":  handler.New(s.readLaunchConfig),
		"write-launch-config": handler.New(s.writeLaunchConfig),
		"default-launch-config": handler.New(s.defaultLaunchConfig),
		"auto-generate":       handler.New(s.autoGenerate),
		"import-launch-config": handler.New(s.importFromSecondary),
	}, &jrpc2.ServerOptions{
		AllowPush: true,
	})

	return s
}

// Listen serves one UI connection to completion, fanning every
// eventbus notification out to it as a server push alongside normal
// request/response traffic.
func (s *Server) Listen(ctx context.Context, r io.Reader, w io.WriteCloser) error {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("uiserver: recovered panic: %s", r)
		}
	}()

	srv := s.server.Start(channel.Header("")(r, w))

	sub := s.orch.Bus.Subscribe()
	defer sub.Unsubscribe()
	go s.pumpNotifications(ctx, sub)

	return srv.Wait()
}

func (s *Server) pumpNotifications(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.server.Notify(ctx, "event", n); err != nil {
				s.log.Printf("uiserver: push notification failed: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// --- session lifecycle ------------------------------------------------

type startSessionParams struct {
	Configuration launchconfig.Configuration `json:"configuration"`
	WorkspaceRoot string                     `json:"workspaceRoot"`
	FocusedFile   string                     `json:"focusedFile"`
}

func (s *Server) startSession(ctx context.Context, p startSessionParams) (Envelope, error) {
	ctx = localenv.WithWorkspaceRoot(ctx, p.WorkspaceRoot)
	ctx = localenv.WithFocusedFile(ctx, p.FocusedFile)
	vars := launchconfig.VariablesFromContext(ctx)
	substituted, _ := vars.Substitute(optionsAsInterface(p.Configuration.Options)).(map[string]interface{})
	p.Configuration.Options = substituted

	sess, err := s.orch.StartSession(ctx, p.Configuration, p.WorkspaceRoot)
	return envelope(sessionView(sess), err)
}

func optionsAsInterface(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

type startCompoundParams struct {
	Compound      launchconfig.Compound `json:"compound"`
	File          *launchconfig.File    `json:"file"`
	WorkspaceRoot string                `json:"workspaceRoot"`
}

func (s *Server) startCompound(ctx context.Context, p startCompoundParams) (Envelope, error) {
	sessions, err := s.orch.StartCompound(ctx, p.Compound, p.File, p.WorkspaceRoot)
	views := make([]*sessionSummary, len(sessions))
	for i, sess := range sessions {
		views[i] = sessionView(sess)
	}
	return envelope(views, err)
}

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) stopSession(ctx context.Context, p sessionIDParams) (Envelope, error) {
	return envelope(nil, s.orch.StopSession(ctx, p.SessionID))
}

func (s *Server) disconnectSession(ctx context.Context, p sessionIDParams) (Envelope, error) {
	return envelope(nil, s.orch.DisconnectSession(ctx, p.SessionID))
}

func (s *Server) restartSession(ctx context.Context, p sessionIDParams) (Envelope, error) {
	sess, err := s.orch.RestartSession(ctx, p.SessionID)
	return envelope(sessionView(sess), err)
}

func (s *Server) listSessions(ctx context.Context, _ struct{}) (Envelope, error) {
	sessions := s.orch.Sessions()
	views := make([]*sessionSummary, len(sessions))
	for i, sess := range sessions {
		views[i] = sessionView(sess)
	}
	return ok(views)
}

func (s *Server) activeSession(ctx context.Context, _ struct{}) (Envelope, error) {
	return ok(map[string]string{"sessionId": s.orch.ActiveSessionID()})
}

type sessionSummary struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	AdapterType   string        `json:"adapterType"`
	RequestKind   string        `json:"requestKind"`
	WorkspaceRoot string        `json:"workspaceRoot"`
	State         session.State `json:"state"`
}

func sessionView(sess *session.Session) *sessionSummary {
	if sess == nil {
		return nil
	}
	return &sessionSummary{
		ID:            sess.ID,
		Name:          sess.Name,
		AdapterType:   sess.AdapterType,
		RequestKind:   sess.RequestKind,
		WorkspaceRoot: sess.WorkspaceRoot,
		State:         sess.State(),
	}
}

// --- execution control --------------------------------------------------

type threadParams struct {
	SessionID string `json:"sessionId"`
	ThreadID  int    `json:"threadId"`
}

func (s *Server) doContinue(ctx context.Context, p threadParams) (Envelope, error) {
	return envelope(nil, s.orch.Continue(ctx, p.SessionID, p.ThreadID))
}

func (s *Server) pause(ctx context.Context, p threadParams) (Envelope, error) {
	return envelope(nil, s.orch.Pause(ctx, p.SessionID, p.ThreadID))
}

type stepParams struct {
	SessionID string `json:"sessionId"`
	ThreadID  int    `json:"threadId"`
	Backward  bool   `json:"backward"`
}

func (s *Server) stepOver(ctx context.Context, p stepParams) (Envelope, error) {
	dir := session.Forward
	if p.Backward {
		dir = session.Backward
	}
	return envelope(nil, s.orch.StepOver(ctx, p.SessionID, p.ThreadID, dir))
}

func (s *Server) stepInto(ctx context.Context, p threadParams) (Envelope, error) {
	return envelope(nil, s.orch.StepInto(ctx, p.SessionID, p.ThreadID))
}

func (s *Server) stepOut(ctx context.Context, p threadParams) (Envelope, error) {
	return envelope(nil, s.orch.StepOut(ctx, p.SessionID, p.ThreadID))
}

// --- breakpoints ----------------------------------------------------------

type addBreakpointParams struct {
	Path    string             `json:"path"`
	Line    int                `json:"line"`
	Column  int                `json:"column"`
	Options breakpoint.Options `json:"options"`
}

func (s *Server) addBreakpoint(ctx context.Context, p addBreakpointParams) (Envelope, error) {
	bp, err := s.orch.AddBreakpoint(ctx, p.Path, p.Line, p.Column, p.Options)
	return envelope(bp, err)
}

type breakpointIDParams struct {
	ID string `json:"id"`
}

func (s *Server) removeBreakpoint(ctx context.Context, p breakpointIDParams) (Envelope, error) {
	return envelope(nil, s.orch.RemoveBreakpoint(ctx, p.ID))
}

func (s *Server) toggleBreakpointEnabled(ctx context.Context, p breakpointIDParams) (Envelope, error) {
	return envelope(nil, s.orch.ToggleBreakpointEnabled(ctx, p.ID))
}

type toggleAtLineParams struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

func (s *Server) toggleAtLine(ctx context.Context, p toggleAtLineParams) (Envelope, error) {
	bp, err := s.orch.ToggleBreakpointAtLine(ctx, p.Path, p.Line)
	return envelope(bp, err)
}

type editBreakpointParams struct {
	ID      string             `json:"id"`
	Options breakpoint.Options `json:"options"`
}

func (s *Server) editBreakpoint(ctx context.Context, p editBreakpointParams) (Envelope, error) {
	return envelope(nil, s.orch.EditBreakpoint(ctx, p.ID, p.Options))
}

type setFunctionBreakpointsParams struct {
	Breakpoints []breakpoint.FunctionBreakpoint `json:"breakpoints"`
}

func (s *Server) setFunctionBreakpoints(ctx context.Context, p setFunctionBreakpointsParams) (Envelope, error) {
	return envelope(nil, s.orch.SetFunctionBreakpoints(ctx, p.Breakpoints))
}

type setExceptionFiltersParams struct {
	Filters []breakpoint.ExceptionFilter `json:"filters"`
}

func (s *Server) setExceptionFilters(ctx context.Context, p setExceptionFiltersParams) (Envelope, error) {
	return envelope(nil, s.orch.SetExceptionFilters(ctx, p.Filters))
}

// --- watches ----------------------------------------------------------

type addWatchParams struct {
	Expression string `json:"expression"`
}

func (s *Server) addWatch(ctx context.Context, p addWatchParams) (Envelope, error) {
	return ok(s.orch.AddWatch(p.Expression))
}

type watchIDParams struct {
	ID string `json:"id"`
}

func (s *Server) removeWatch(ctx context.Context, p watchIDParams) (Envelope, error) {
	s.orch.RemoveWatch(p.ID)
	return ok(nil)
}

func (s *Server) listWatches(ctx context.Context, _ struct{}) (Envelope, error) {
	return ok(s.orch.Watches.All())
}

// --- data queries -----------------------------------------------------

type sessionOnlyParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) threads(ctx context.Context, p sessionOnlyParams) (Envelope, error) {
	return envelope(s.orch.Threads(ctx, p.SessionID))
}

func (s *Server) stackTrace(ctx context.Context, p threadParams) (Envelope, error) {
	return envelope(s.orch.StackTrace(ctx, p.SessionID, p.ThreadID))
}

type frameParams struct {
	SessionID string `json:"sessionId"`
	FrameID   int    `json:"frameId"`
}

func (s *Server) scopes(ctx context.Context, p frameParams) (Envelope, error) {
	return envelope(s.orch.Scopes(ctx, p.SessionID, p.FrameID))
}

type variablesParams struct {
	SessionID          string `json:"sessionId"`
	VariablesReference int    `json:"variablesReference"`
}

func (s *Server) variables(ctx context.Context, p variablesParams) (Envelope, error) {
	return envelope(s.orch.Variables(ctx, p.SessionID, p.VariablesReference))
}

type setVariableParams struct {
	SessionID          string `json:"sessionId"`
	VariablesReference int    `json:"variablesReference"`
	Name                string `json:"name"`
	Value               string `json:"value"`
}

func (s *Server) setVariable(ctx context.Context, p setVariableParams) (Envelope, error) {
	return envelope(s.orch.SetVariable(ctx, p.SessionID, p.VariablesReference, p.Name, p.Value))
}

type evaluateParams struct {
	SessionID string `json:"sessionId"`
	Expression string `json:"expression"`
	FrameID    int    `json:"frameId"`
	Context    string `json:"context"`
}

func (s *Server) evaluate(ctx context.Context, p evaluateParams) (Envelope, error) {
	return envelope(s.orch.Evaluate(ctx, p.SessionID, p.Expression, p.FrameID, p.Context))
}

type completionsParams struct {
	SessionID string `json:"sessionId"`
	FrameID   int    `json:"frameId"`
	Text      string `json:"text"`
	Column    int    `json:"column"`
}

func (s *Server) completions(ctx context.Context, p completionsParams) (Envelope, error) {
	return envelope(s.orch.Completions(ctx, p.SessionID, p.FrameID, p.Text, p.Column))
}

func (s *Server) restartFrame(ctx context.Context, p frameParams) (Envelope, error) {
	return envelope(nil, s.orch.RestartFrame(ctx, p.SessionID, p.FrameID))
}

// --- launch configuration -----------------------------------------------

func (s *Server) readLaunchConfig(ctx context.Context, _ struct{}) (Envelope, error) {
	return envelope(s.orch.ReadLaunchConfig(ctx))
}

type writeLaunchConfigParams struct {
	File *launchconfig.File `json:"file"`
}

func (s *Server) writeLaunchConfig(ctx context.Context, p writeLaunchConfigParams) (Envelope, error) {
	return envelope(nil, s.orch.WriteLaunchConfig(ctx, p.File))
}

type defaultLaunchConfigParams struct {
	AdapterType   string `json:"adapterType"`
	WorkspaceRoot string `json:"workspaceRoot"`
}

func (s *Server) defaultLaunchConfig(ctx context.Context, p defaultLaunchConfigParams) (Envelope, error) {
	return ok(s.orch.DefaultLaunchConfig(p.AdapterType, p.WorkspaceRoot))
}

type autoGenerateParams struct {
	Detected      []launchconfig.Detected `json:"detected"`
	WorkspaceRoot string                  `json:"workspaceRoot"`
}

func (s *Server) autoGenerate(ctx context.Context, p autoGenerateParams) (Envelope, error) {
	return ok(s.orch.AutoGenerate(p.Detected, p.WorkspaceRoot))
}

func (s *Server) importFromSecondary(ctx context.Context, _ struct{}) (Envelope, error) {
	return envelope(s.orch.ImportFromSecondary(ctx))
}
