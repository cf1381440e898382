// Package dapclient implements the DAP client (component C2): it drives an
// external debug adapter reachable through a transport.Transport, turning
// its raw message stream into typed request/response calls and a stream of
// asynchronous events.
//
// Grounded directly on the ctagard-dap-mcp DAP client: a pendingRequests
// map of per-seq response channels, a readLoop goroutine that dispatches
// incoming responses by RequestSeq and routes everything else to an event
// handler, and sendRequest races the response channel against a timeout
// and context cancellation.
package dapclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dap "github.com/google/go-dap"

	"github.com/dbgsession/core/internal/errdefs"
	"github.com/dbgsession/core/transport"
)

// DefaultTimeout bounds any request that does not specify its own
// deadline via ctx.
const DefaultTimeout = 15 * time.Second

// EventHandler receives every DAP message that is not a response to a
// pending request: events, and reverse requests if the adapter ever sends
// one (none of the adapters in this pack's DAP servers do).
type EventHandler func(msg dap.Message)

type pendingRequest struct {
	command string
	ch      chan dap.Message
}

// Client is the DAP-client half of a debug session: one per attached
// adapter process or socket.
type Client struct {
	t transport.Transport

	seqMu sync.Mutex
	seq   int

	pendingMu sync.Mutex
	pending   map[int]*pendingRequest

	onEventMu sync.RWMutex
	onEvent   EventHandler

	caps   dap.Capabilities
	capsMu sync.RWMutex

	closeOnce sync.Once
	closed    chan struct{}

	wg sync.WaitGroup
}

// New wraps t and starts the read loop. onEvent is invoked from the read
// loop's own goroutine, so it must not block and must not call back into
// the client synchronously while the client is waiting on one of its own
// methods from the same goroutine.
func New(t transport.Transport, onEvent EventHandler) *Client {
	c := &Client{
		t:       t,
		pending: make(map[int]*pendingRequest),
		onEvent: onEvent,
		closed:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

// SetEventHandler replaces the event handler. Safe to call at any time,
// including after New (the orchestrator builds the client with a nil
// handler, and Session.Run wires the session in with this).
func (c *Client) SetEventHandler(onEvent EventHandler) {
	c.onEventMu.Lock()
	c.onEvent = onEvent
	c.onEventMu.Unlock()
}

func (c *Client) nextSeq() int {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.seq++
	return c.seq
}

// Capabilities returns the capabilities advertised by the last successful
// Initialize call.
func (c *Client) Capabilities() dap.Capabilities {
	c.capsMu.RLock()
	defer c.capsMu.RUnlock()
	return c.caps
}

// Close tears down the transport and unblocks every pending request with
// errdefs.ErrTransportClosed. It waits for the read loop to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.t.Close()
		close(c.closed)
	})
	c.wg.Wait()
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		msg, err := c.t.Recv(context.Background())
		if err != nil {
			c.failAllPending(err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.pendingMu.Unlock()

	for _, p := range pending {
		select {
		case p.ch <- errorMessage{err}:
		default:
		}
	}
}

// errorMessage lets failAllPending deliver a delivery-time error through
// the same channel used for successful responses, without inventing a
// second signalling path. sendRequest type-asserts for it first.
type errorMessage struct{ err error }

func (errorMessage) GetSeq() int { return 0 }

func requestSeqOf(msg dap.Message) (int, bool) {
	switch m := msg.(type) {
	case *dap.InitializeResponse:
		return m.RequestSeq, true
	case *dap.LaunchResponse:
		return m.RequestSeq, true
	case *dap.AttachResponse:
		return m.RequestSeq, true
	case *dap.DisconnectResponse:
		return m.RequestSeq, true
	case *dap.TerminateResponse:
		return m.RequestSeq, true
	case *dap.RestartResponse:
		return m.RequestSeq, true
	case *dap.ConfigurationDoneResponse:
		return m.RequestSeq, true
	case *dap.SetBreakpointsResponse:
		return m.RequestSeq, true
	case *dap.SetFunctionBreakpointsResponse:
		return m.RequestSeq, true
	case *dap.SetExceptionBreakpointsResponse:
		return m.RequestSeq, true
	case *dap.BreakpointLocationsResponse:
		return m.RequestSeq, true
	case *dap.ThreadsResponse:
		return m.RequestSeq, true
	case *dap.StackTraceResponse:
		return m.RequestSeq, true
	case *dap.ScopesResponse:
		return m.RequestSeq, true
	case *dap.VariablesResponse:
		return m.RequestSeq, true
	case *dap.SetVariableResponse:
		return m.RequestSeq, true
	case *dap.SetExpressionResponse:
		return m.RequestSeq, true
	case *dap.EvaluateResponse:
		return m.RequestSeq, true
	case *dap.ContinueResponse:
		return m.RequestSeq, true
	case *dap.NextResponse:
		return m.RequestSeq, true
	case *dap.StepInResponse:
		return m.RequestSeq, true
	case *dap.StepOutResponse:
		return m.RequestSeq, true
	case *dap.StepBackResponse:
		return m.RequestSeq, true
	case *dap.ReverseContinueResponse:
		return m.RequestSeq, true
	case *dap.PauseResponse:
		return m.RequestSeq, true
	case *dap.SourceResponse:
		return m.RequestSeq, true
	case *dap.ModulesResponse:
		return m.RequestSeq, true
	case *dap.CancelResponse:
		return m.RequestSeq, true
	case *dap.CompletionsResponse:
		return m.RequestSeq, true
	case *dap.RestartFrameResponse:
		return m.RequestSeq, true
	case *dap.ErrorResponse:
		return m.RequestSeq, true
	}
	return 0, false
}

func (c *Client) dispatch(msg dap.Message) {
	if seq, ok := requestSeqOf(msg); ok {
		c.pendingMu.Lock()
		p, ok := c.pending[seq]
		if ok {
			delete(c.pending, seq)
		}
		c.pendingMu.Unlock()
		if ok {
			p.ch <- msg
			return
		}
		// No waiter left (request already timed out or was cancelled);
		// drop the late response.
		return
	}

	c.onEventMu.RLock()
	handler := c.onEvent
	c.onEventMu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

// sendRequest assigns a seq to req, sends it, and waits for the matching
// response, a ctx cancellation, or DefaultTimeout — whichever triggers
// first if ctx carries no deadline of its own.
func (c *Client) sendRequest(ctx context.Context, command string, req dap.RequestMessage) (dap.Message, error) {
	seq := c.nextSeq()
	stampSeq(req, seq)

	respCh := make(chan dap.Message, 1)
	c.pendingMu.Lock()
	c.pending[seq] = &pendingRequest{command: command, ch: respCh}
	c.pendingMu.Unlock()

	if err := c.t.Send(req); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		return nil, errdefs.WithTransportClosed(err)
	}

	timeout := DefaultTimeout
	if _, ok := ctx.Deadline(); ok {
		timeout = time.Until(mustDeadline(ctx))
	}

	select {
	case msg := <-respCh:
		if em, ok := msg.(errorMessage); ok {
			return nil, em.err
		}
		return msg, nil
	case <-time.After(timeout):
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		return nil, errdefs.WithTimeout(command, seq)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errdefs.WithTimeout(command, seq)
		}
		return nil, errdefs.WithCancelled(command, seq)
	case <-c.closed:
		return nil, errdefs.WithTransportClosed(nil)
	}
}

func mustDeadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}

func stampSeq(req dap.RequestMessage, seq int) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		r.Seq = seq
	case *dap.LaunchRequest:
		r.Seq = seq
	case *dap.AttachRequest:
		r.Seq = seq
	case *dap.DisconnectRequest:
		r.Seq = seq
	case *dap.TerminateRequest:
		r.Seq = seq
	case *dap.RestartRequest:
		r.Seq = seq
	case *dap.ConfigurationDoneRequest:
		r.Seq = seq
	case *dap.SetBreakpointsRequest:
		r.Seq = seq
	case *dap.SetFunctionBreakpointsRequest:
		r.Seq = seq
	case *dap.SetExceptionBreakpointsRequest:
		r.Seq = seq
	case *dap.BreakpointLocationsRequest:
		r.Seq = seq
	case *dap.ThreadsRequest:
		r.Seq = seq
	case *dap.StackTraceRequest:
		r.Seq = seq
	case *dap.ScopesRequest:
		r.Seq = seq
	case *dap.VariablesRequest:
		r.Seq = seq
	case *dap.SetVariableRequest:
		r.Seq = seq
	case *dap.SetExpressionRequest:
		r.Seq = seq
	case *dap.EvaluateRequest:
		r.Seq = seq
	case *dap.ContinueRequest:
		r.Seq = seq
	case *dap.NextRequest:
		r.Seq = seq
	case *dap.StepInRequest:
		r.Seq = seq
	case *dap.StepOutRequest:
		r.Seq = seq
	case *dap.StepBackRequest:
		r.Seq = seq
	case *dap.ReverseContinueRequest:
		r.Seq = seq
	case *dap.PauseRequest:
		r.Seq = seq
	case *dap.SourceRequest:
		r.Seq = seq
	case *dap.ModulesRequest:
		r.Seq = seq
	case *dap.CancelRequest:
		r.Seq = seq
	case *dap.CompletionsRequest:
		r.Seq = seq
	case *dap.RestartFrameRequest:
		r.Seq = seq
	}
}

// --- typed request surface -------------------------------------------------

// Initialize performs the initial handshake and records the adapter's
// capabilities.
func (c *Client) Initialize(ctx context.Context, clientID, adapterID string) (dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                     clientID,
			ClientName:                   clientID,
			AdapterID:                    adapterID,
			Locale:                       "en-US",
			LinesStartAt1:                true,
			ColumnsStartAt1:              true,
			PathFormat:                   "path",
			SupportsVariableType:         true,
			SupportsVariablePaging:       false,
			SupportsRunInTerminalRequest: false,
			SupportsProgressReporting:    true,
		},
	}
	msg, err := c.sendRequest(ctx, "initialize", req)
	if err != nil {
		return dap.Capabilities{}, err
	}
	resp, ok := msg.(*dap.InitializeResponse)
	if !ok {
		return dap.Capabilities{}, errdefs.WithProtocolError(fmt.Errorf("initialize: unexpected response type %T", msg))
	}
	if !resp.Success {
		return dap.Capabilities{}, errdefs.WithAdapterError("initialize", resp.Message, nil)
	}
	c.capsMu.Lock()
	c.caps = resp.Body
	c.capsMu.Unlock()
	return resp.Body, nil
}

// Launch sends a launch request. Per the DAP spec, the adapter may defer
// its response until after ConfigurationDone; without a ctx deadline the
// wait is bounded by DefaultTimeout.
func (c *Client) Launch(ctx context.Context, args map[string]interface{}) error {
	return c.launchOrAttach(ctx, "launch", args)
}

// Attach sends an attach request, used when the configuration targets an
// already-running debuggee instead of spawning one.
func (c *Client) Attach(ctx context.Context, args map[string]interface{}) error {
	return c.launchOrAttach(ctx, "attach", args)
}

func (c *Client) launchOrAttach(ctx context.Context, command string, args map[string]interface{}) error {
	raw, err := marshalArgs(args)
	if err != nil {
		return err
	}
	var req dap.RequestMessage
	var success func(dap.Message) (bool, string)
	if command == "launch" {
		r := &dap.LaunchRequest{
			Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: command},
			Arguments: raw,
		}
		req = r
		success = func(msg dap.Message) (bool, string) {
			resp, ok := msg.(*dap.LaunchResponse)
			if !ok {
				return false, fmt.Sprintf("unexpected response type %T", msg)
			}
			return resp.Success, resp.Message
		}
	} else {
		r := &dap.AttachRequest{
			Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: command},
			Arguments: raw,
		}
		req = r
		success = func(msg dap.Message) (bool, string) {
			resp, ok := msg.(*dap.AttachResponse)
			if !ok {
				return false, fmt.Sprintf("unexpected response type %T", msg)
			}
			return resp.Success, resp.Message
		}
	}

	msg, err := c.sendRequest(ctx, command, req)
	if err != nil {
		return err
	}
	ok, message := success(msg)
	if !ok {
		return errdefs.WithAdapterError(command, message, nil)
	}
	return nil
}

func marshalArgs(args map[string]interface{}) ([]byte, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, errdefs.WithProtocolError(fmt.Errorf("marshal arguments: %w", err))
	}
	return raw, nil
}

// ConfigurationDone signals the end of the configuration sequence.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "configurationDone"},
	}
	msg, err := c.sendRequest(ctx, "configurationDone", req)
	if err != nil {
		return err
	}
	resp, ok := msg.(*dap.ConfigurationDoneResponse)
	if !ok {
		return errdefs.WithProtocolError(fmt.Errorf("configurationDone: unexpected response type %T", msg))
	}
	if !resp.Success {
		return errdefs.WithAdapterError("configurationDone", resp.Message, nil)
	}
	return nil
}

// SetBreakpoints replaces every source breakpoint for source in one call,
// per the DAP "total replacement" semantics.
func (c *Client) SetBreakpoints(ctx context.Context, source dap.Source, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetBreakpointsRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      source,
			Breakpoints: bps,
		},
	}
	msg, err := c.sendRequest(ctx, "setBreakpoints", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("setBreakpoints: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("setBreakpoints", resp.Message, nil)
	}
	return resp.Body.Breakpoints, nil
}

// SetFunctionBreakpoints replaces every function breakpoint in one call.
func (c *Client) SetFunctionBreakpoints(ctx context.Context, bps []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetFunctionBreakpointsRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setFunctionBreakpoints"},
		Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: bps},
	}
	msg, err := c.sendRequest(ctx, "setFunctionBreakpoints", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.SetFunctionBreakpointsResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("setFunctionBreakpoints: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("setFunctionBreakpoints", resp.Message, nil)
	}
	return resp.Body.Breakpoints, nil
}

// SetExceptionBreakpoints configures which exception filters should break.
func (c *Client) SetExceptionBreakpoints(ctx context.Context, filters []string) error {
	req := &dap.SetExceptionBreakpointsRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setExceptionBreakpoints"},
		Arguments: dap.SetExceptionBreakpointsArguments{Filters: filters},
	}
	msg, err := c.sendRequest(ctx, "setExceptionBreakpoints", req)
	if err != nil {
		return err
	}
	resp, ok := msg.(*dap.SetExceptionBreakpointsResponse)
	if !ok {
		return errdefs.WithProtocolError(fmt.Errorf("setExceptionBreakpoints: unexpected response type %T", msg))
	}
	if !resp.Success {
		return errdefs.WithAdapterError("setExceptionBreakpoints", resp.Message, nil)
	}
	return nil
}

// Threads lists the debuggee's current threads.
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	req := &dap.ThreadsRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "threads"}}
	msg, err := c.sendRequest(ctx, "threads", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.ThreadsResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("threads: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("threads", resp.Message, nil)
	}
	return resp.Body.Threads, nil
}

// StackTrace fetches the call stack for a stopped thread.
func (c *Client) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, int, error) {
	req := &dap.StackTraceRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}
	msg, err := c.sendRequest(ctx, "stackTrace", req)
	if err != nil {
		return nil, 0, err
	}
	resp, ok := msg.(*dap.StackTraceResponse)
	if !ok {
		return nil, 0, errdefs.WithProtocolError(fmt.Errorf("stackTrace: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, 0, errdefs.WithAdapterError("stackTrace", resp.Message, nil)
	}
	return resp.Body.StackFrames, resp.Body.TotalFrames, nil
}

// Scopes fetches the variable scopes visible at a stack frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	req := &dap.ScopesRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}
	msg, err := c.sendRequest(ctx, "scopes", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.ScopesResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("scopes: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("scopes", resp.Message, nil)
	}
	return resp.Body.Scopes, nil
}

// Variables fetches the children of a variables container.
func (c *Client) Variables(ctx context.Context, variablesRef int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: variablesRef},
	}
	msg, err := c.sendRequest(ctx, "variables", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.VariablesResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("variables: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("variables", resp.Message, nil)
	}
	return resp.Body.Variables, nil
}

// SetVariable edits a variable's value in place.
func (c *Client) SetVariable(ctx context.Context, variablesRef int, name, value string) (*dap.SetVariableResponseBody, error) {
	req := &dap.SetVariableRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setVariable"},
		Arguments: dap.SetVariableArguments{
			VariablesReference: variablesRef,
			Name:               name,
			Value:              value,
		},
	}
	msg, err := c.sendRequest(ctx, "setVariable", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.SetVariableResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("setVariable: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("setVariable", resp.Message, nil)
	}
	return &resp.Body, nil
}

// Evaluate evaluates an expression for a watch, a hover, or the repl.
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int, context_ string) (*dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "evaluate"},
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    context_,
		},
	}
	msg, err := c.sendRequest(ctx, "evaluate", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.EvaluateResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("evaluate: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("evaluate", resp.Message, nil)
	}
	return &resp.Body, nil
}

// Continue resumes execution of threadID (or every thread, per the
// adapter's own semantics). It returns whether all threads continued.
func (c *Client) Continue(ctx context.Context, threadID int) (bool, error) {
	req := &dap.ContinueRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "continue"},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	msg, err := c.sendRequest(ctx, "continue", req)
	if err != nil {
		return false, err
	}
	resp, ok := msg.(*dap.ContinueResponse)
	if !ok {
		return false, errdefs.WithProtocolError(fmt.Errorf("continue: unexpected response type %T", msg))
	}
	if !resp.Success {
		return false, errdefs.WithAdapterError("continue", resp.Message, nil)
	}
	return resp.Body.AllThreadsContinued, nil
}

// Next single-steps over the current line ("step over").
func (c *Client) Next(ctx context.Context, threadID int) error {
	return c.simpleStep(ctx, "next", &dap.NextRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "next"},
		Arguments: dap.NextArguments{ThreadId: threadID},
	})
}

// StepIn steps into a call on the current line.
func (c *Client) StepIn(ctx context.Context, threadID int) error {
	return c.simpleStep(ctx, "stepIn", &dap.StepInRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stepIn"},
		Arguments: dap.StepInArguments{ThreadId: threadID},
	})
}

// StepOut steps out of the current function.
func (c *Client) StepOut(ctx context.Context, threadID int) error {
	return c.simpleStep(ctx, "stepOut", &dap.StepOutRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stepOut"},
		Arguments: dap.StepOutArguments{ThreadId: threadID},
	})
}

// StepBack steps backward, when the adapter advertises supportsStepBack.
func (c *Client) StepBack(ctx context.Context, threadID int) error {
	return c.simpleStep(ctx, "stepBack", &dap.StepBackRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stepBack"},
		Arguments: dap.StepBackArguments{ThreadId: threadID},
	})
}

// ReverseContinue resumes execution backward in time.
func (c *Client) ReverseContinue(ctx context.Context, threadID int) error {
	return c.simpleStep(ctx, "reverseContinue", &dap.ReverseContinueRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "reverseContinue"},
		Arguments: dap.ReverseContinueArguments{ThreadId: threadID},
	})
}

// Pause suspends a running thread.
func (c *Client) Pause(ctx context.Context, threadID int) error {
	return c.simpleStep(ctx, "pause", &dap.PauseRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "pause"},
		Arguments: dap.PauseArguments{ThreadId: threadID},
	})
}

func (c *Client) simpleStep(ctx context.Context, command string, req dap.RequestMessage) error {
	msg, err := c.sendRequest(ctx, command, req)
	if err != nil {
		return err
	}
	if er, ok := msg.(*dap.ErrorResponse); ok {
		return errdefs.WithAdapterError(command, er.Message, er.Body)
	}
	if ok := successOf(msg); !ok {
		return errdefs.WithAdapterError(command, "adapter rejected request", nil)
	}
	return nil
}

func successOf(msg dap.Message) bool {
	switch m := msg.(type) {
	case *dap.NextResponse:
		return m.Success
	case *dap.StepInResponse:
		return m.Success
	case *dap.StepOutResponse:
		return m.Success
	case *dap.StepBackResponse:
		return m.Success
	case *dap.ReverseContinueResponse:
		return m.Success
	case *dap.PauseResponse:
		return m.Success
	case *dap.DisconnectResponse:
		return m.Success
	case *dap.TerminateResponse:
		return m.Success
	case *dap.CancelResponse:
		return m.Success
	}
	return false
}

// Source fetches the content of a source that only exists inside the
// adapter (sourceReference > 0).
func (c *Client) Source(ctx context.Context, source dap.Source, sourceReference int) (string, string, error) {
	req := &dap.SourceRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "source"},
		Arguments: dap.SourceArguments{
			Source:          &source,
			SourceReference: sourceReference,
		},
	}
	msg, err := c.sendRequest(ctx, "source", req)
	if err != nil {
		return "", "", err
	}
	resp, ok := msg.(*dap.SourceResponse)
	if !ok {
		return "", "", errdefs.WithProtocolError(fmt.Errorf("source: unexpected response type %T", msg))
	}
	if !resp.Success {
		return "", "", errdefs.WithAdapterError("source", resp.Message, nil)
	}
	return resp.Body.Content, resp.Body.MimeType, nil
}

// Modules lists loaded modules, when supportsModulesRequest is set.
func (c *Client) Modules(ctx context.Context, startModule, moduleCount int) ([]dap.Module, int, error) {
	req := &dap.ModulesRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "modules"},
		Arguments: dap.ModulesArguments{StartModule: startModule, ModuleCount: moduleCount},
	}
	msg, err := c.sendRequest(ctx, "modules", req)
	if err != nil {
		return nil, 0, err
	}
	resp, ok := msg.(*dap.ModulesResponse)
	if !ok {
		return nil, 0, errdefs.WithProtocolError(fmt.Errorf("modules: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, 0, errdefs.WithAdapterError("modules", resp.Message, nil)
	}
	return resp.Body.Modules, resp.Body.TotalModules, nil
}

// Completions asks the adapter for completion proposals at a cursor
// position inside an expression typed in the repl or a watch.
func (c *Client) Completions(ctx context.Context, frameID int, text string, column int) ([]dap.CompletionItem, error) {
	req := &dap.CompletionsRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "completions"},
		Arguments: dap.CompletionsArguments{
			FrameId: frameID,
			Text:    text,
			Column:  column,
		},
	}
	msg, err := c.sendRequest(ctx, "completions", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.CompletionsResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("completions: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("completions", resp.Message, nil)
	}
	return resp.Body.Targets, nil
}

// RestartFrame re-enters a stack frame from its start, when the adapter
// advertises supportsRestartFrame.
func (c *Client) RestartFrame(ctx context.Context, frameID int) error {
	req := &dap.RestartFrameRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "restartFrame"},
		Arguments: dap.RestartFrameArguments{FrameId: frameID},
	}
	msg, err := c.sendRequest(ctx, "restartFrame", req)
	if err != nil {
		return err
	}
	resp, ok := msg.(*dap.RestartFrameResponse)
	if !ok {
		return errdefs.WithProtocolError(fmt.Errorf("restartFrame: unexpected response type %T", msg))
	}
	if !resp.Success {
		return errdefs.WithAdapterError("restartFrame", resp.Message, nil)
	}
	return nil
}

// BreakpointLocations asks the adapter for the valid breakpoint positions
// on a line, used to snap a user's requested line/column to one the
// adapter can actually break at.
func (c *Client) BreakpointLocations(ctx context.Context, source dap.Source, line int) ([]dap.BreakpointLocation, error) {
	req := &dap.BreakpointLocationsRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "breakpointLocations"},
		Arguments: dap.BreakpointLocationsArguments{Source: source, Line: line},
	}
	msg, err := c.sendRequest(ctx, "breakpointLocations", req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.BreakpointLocationsResponse)
	if !ok {
		return nil, errdefs.WithProtocolError(fmt.Errorf("breakpointLocations: unexpected response type %T", msg))
	}
	if !resp.Success {
		return nil, errdefs.WithAdapterError("breakpointLocations", resp.Message, nil)
	}
	return resp.Body.Breakpoints, nil
}

// Cancel requests cancellation of a previously sent request, when the
// adapter advertises supportsCancelRequest.
func (c *Client) Cancel(ctx context.Context, requestSeq int) error {
	req := &dap.CancelRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "cancel"},
		Arguments: dap.CancelArguments{RequestId: requestSeq},
	}
	return c.simpleStep(ctx, "cancel", req)
}

// Disconnect asks the adapter to stop debugging, optionally terminating
// the debuggee if it was launched (not attached).
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "disconnect"},
		Arguments: dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	}
	return c.simpleStep(ctx, "disconnect", req)
}

// Terminate asks the debuggee to terminate itself gracefully, when the
// adapter advertises supportsTerminateRequest.
func (c *Client) Terminate(ctx context.Context, restart bool) error {
	req := &dap.TerminateRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "terminate"},
		Arguments: dap.TerminateArguments{Restart: restart},
	}
	return c.simpleStep(ctx, "terminate", req)
}

// Restart asks the adapter to restart the debuggee in place, when it
// advertises supportsRestartRequest. Callers without that capability
// instead tear the session down and start a fresh one.
func (c *Client) Restart(ctx context.Context, args map[string]interface{}) error {
	raw, err := marshalArgs(args)
	if err != nil {
		return err
	}
	req := &dap.RestartRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "restart"},
		Arguments: raw,
	}
	msg, err := c.sendRequest(ctx, "restart", req)
	if err != nil {
		return err
	}
	resp, ok := msg.(*dap.RestartResponse)
	if !ok {
		return errdefs.WithProtocolError(fmt.Errorf("restart: unexpected response type %T", msg))
	}
	if !resp.Success {
		return errdefs.WithAdapterError("restart", resp.Message, nil)
	}
	return nil
}
