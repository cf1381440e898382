// Package dap holds the thin conventions this module layers on top of
// github.com/google/go-dap: how a request is framed on the wire, how its
// seq is stamped, and how an ad-hoc error response is built. It does not
// redefine any wire type; callers import github.com/google/go-dap directly
// for the message structs and use this package only for the plumbing.
package dap

import (
	"bufio"
	"io"

	"github.com/google/go-dap"
)

// ReadMessage reads one framed DAP message (Content-Length header plus
// JSON body) from r. It is a direct pass-through to go-dap's own framing
// so every component in this module parses the wire the same way.
func ReadMessage(r *bufio.Reader) (dap.Message, error) {
	return dap.ReadProtocolMessage(r)
}

// WriteMessage frames and writes msg to w, flushing the underlying
// bufio.Writer if w is one.
func WriteMessage(w io.Writer, msg dap.Message) error {
	if err := dap.WriteProtocolMessage(w, msg); err != nil {
		return err
	}
	if bw, ok := w.(*bufio.Writer); ok {
		return bw.Flush()
	}
	return nil
}

// SeqCounter is a monotonic sequence counter. The protocol
// requires every request to carry a strictly increasing seq; responses
// and events echo or mint their own. Each Client owns one counter, this
// helper just centralizes the increment-then-read idiom.
type SeqCounter struct {
	n int
}

// Next returns the next seq value, starting at 1.
func (c *SeqCounter) Next() int {
	c.n++
	return c.n
}

// NewRequest stamps a bare dap.Request envelope for command, ready to be
// embedded in one of go-dap's typed Request structs.
func NewRequest(seq int, command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  seq,
			Type: "request",
		},
		Command: command,
	}
}

// NewEvent stamps a bare dap.Event envelope. Used only by test fakes that
// play the role of an adapter.
func NewEvent(seq int, event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  seq,
			Type: "event",
		},
		Event: event,
	}
}

// NewResponse stamps a bare dap.Response envelope that answers req.
func NewResponse(seq int, req dap.RequestMessage) dap.Response {
	r := req.GetRequest()
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  seq,
			Type: "response",
		},
		Command:    r.Command,
		RequestSeq: r.Seq,
		Success:    true,
	}
}

// NewErrorResponse stamps a failure response that answers req.
func NewErrorResponse(seq int, req dap.RequestMessage, message string) *dap.ErrorResponse {
	resp := &dap.ErrorResponse{
		Response: NewResponse(seq, req),
	}
	resp.Success = false
	resp.Message = message
	return resp
}
