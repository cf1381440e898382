// Package errdefs defines the error taxonomy shared by every component of
// the debug session orchestrator.
package errdefs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTransportClosed is returned by any in-flight DAP request when its
// underlying transport has closed (process exit, socket reset, explicit
// Close). All pending requests on that transport fail with this error.
type ErrTransportClosed struct {
	Reason error
}

func (e *ErrTransportClosed) Unwrap() error { return e.Reason }

func (e *ErrTransportClosed) Error() string {
	if e.Reason == nil {
		return "transport closed"
	}
	return fmt.Sprintf("transport closed: %s", e.Reason)
}

// WithTransportClosed wraps the underlying cause (may be nil, e.g. io.EOF).
func WithTransportClosed(reason error) error {
	return &ErrTransportClosed{Reason: reason}
}

// ErrProtocolError indicates a response of the wrong type for its request,
// or request arguments that cannot be encoded. It is returned to the
// caller of that request only; the transport is not closed. A frame that
// cannot be read surfaces as ErrTransportClosed instead.
type ErrProtocolError struct {
	Err error
}

func (e *ErrProtocolError) Unwrap() error { return e.Err }

func (e *ErrProtocolError) Error() string {
	return fmt.Sprintf("dap protocol error: %s", e.Err)
}

func WithProtocolError(err error) error {
	return &ErrProtocolError{Err: err}
}

// ErrTimeout is returned when a pending request's deadline expires before
// a response arrives. The session state is unaffected.
type ErrTimeout struct {
	Command string
	Seq     int
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("dap request %q (seq %d) timed out", e.Command, e.Seq)
}

func WithTimeout(command string, seq int) error {
	return &ErrTimeout{Command: command, Seq: seq}
}

// ErrCancelled is returned to a caller whose in-flight request was
// cancelled, either explicitly or as a side effect of stop-session.
type ErrCancelled struct {
	Command string
	Seq     int
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("dap request %q (seq %d) cancelled", e.Command, e.Seq)
}

func WithCancelled(command string, seq int) error {
	return &ErrCancelled{Command: command, Seq: seq}
}

// ErrAdapterError wraps a DAP response with success=false. The session
// itself continues; the error is surfaced to the caller verbatim.
type ErrAdapterError struct {
	Command string
	Message string
	Body    interface{}
}

func (e *ErrAdapterError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("adapter rejected %q", e.Command)
	}
	return fmt.Sprintf("adapter rejected %q: %s", e.Command, e.Message)
}

func WithAdapterError(command, message string, body interface{}) error {
	return &ErrAdapterError{Command: command, Message: message, Body: body}
}

// ErrPreLaunchFailed aborts start-session before any session is created.
type ErrPreLaunchFailed struct {
	ExitCode int
	Stderr   string
}

func (e *ErrPreLaunchFailed) Error() string {
	return fmt.Sprintf("pre-launch task failed with exit code %d: %s", e.ExitCode, e.Stderr)
}

func WithPreLaunchFailed(exitCode int, stderr string) error {
	return &ErrPreLaunchFailed{ExitCode: exitCode, Stderr: stderr}
}

// ErrAdapterNotFound aborts start-session when no launcher is registered
// for the configuration's adapter type.
type ErrAdapterNotFound struct {
	AdapterType string
}

func (e *ErrAdapterNotFound) Error() string {
	return fmt.Sprintf("no adapter installed for type %q", e.AdapterType)
}

func WithAdapterNotFound(adapterType string) error {
	return &ErrAdapterNotFound{AdapterType: adapterType}
}

// ErrConfigParse surfaces a launch-config read/parse failure without
// altering any state.
type ErrConfigParse struct {
	Path string
	Err  error
}

func (e *ErrConfigParse) Unwrap() error { return e.Err }

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse launch config %s: %s", e.Path, e.Err)
}

func WithConfigParse(path string, err error) error {
	return &ErrConfigParse{Path: path, Err: errors.Wrapf(err, "parse %s", path)}
}
