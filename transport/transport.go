// Package transport implements the framed byte-stream layer (component C1)
// that carries DAP messages between this module and an external debug
// adapter, whether that adapter is a spawned child process talking stdio or
// a server listening on a TCP socket.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"

	"github.com/chzyer/readline"
	dap "github.com/google/go-dap"
	"golang.org/x/sync/errgroup"

	"github.com/dbgsession/core/internal/errdefs"
)

// Transport carries framed DAP messages to and from a single adapter
// process or connection. Send may be called concurrently with Recv and
// with other Sends: each implementation serializes writes with its own
// write lock.
type Transport interface {
	// Send frames and writes msg.
	Send(msg dap.Message) error

	// Recv blocks until the next framed message arrives, ctx is
	// cancelled, or the transport closes.
	Recv(ctx context.Context) (dap.Message, error)

	// Close tears the transport down, unblocking any pending Recv with
	// errdefs.ErrTransportClosed.
	Close() error

	// Done is closed once the transport has finished closing.
	Done() <-chan struct{}
}

// stdio spawns the adapter as a child process and speaks DAP over its
// stdin/stdout pipes. Grounded on rpc/dapserver/server.go's use of
// readline.NewCancelableStdin to make an otherwise-blocking pipe read
// cancelable from a context, and on the process-spawn lifecycle used by
// the pack's DAP client examples.
type stdio struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *readline.CancelableStdin
	reader *bufio.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewStdio starts command (an adapter executable plus its args) and wires
// its stdio as the transport. The child's stderr is discarded unless the
// caller sets cmd.Stderr before calling.
func NewStdio(cmd *exec.Cmd) (Transport, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start adapter: %w", err)
	}

	cancelable := readline.NewCancelableStdin(stdout)
	t := &stdio{
		cmd:    cmd,
		stdin:  stdin,
		stdout: cancelable,
		reader: bufio.NewReader(cancelable),
		done:   make(chan struct{}),
	}
	return t, nil
}

func (t *stdio) Send(msg dap.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(t.stdin, msg); err != nil {
		return errdefs.WithTransportClosed(err)
	}
	return nil
}

func (t *stdio) Recv(ctx context.Context) (dap.Message, error) {
	type result struct {
		msg dap.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(t.reader)
		ch <- result{msg, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, errdefs.WithTransportClosed(r.err)
		}
		return r.msg, nil
	case <-ctx.Done():
		t.stdout.Close()
		<-ch
		return nil, ctx.Err()
	case <-t.done:
		return nil, errdefs.WithTransportClosed(nil)
	}
}

func (t *stdio) Close() error {
	t.closeOnce.Do(func() {
		t.stdin.Close()
		t.stdout.Close()
		if t.cmd.Process != nil {
			t.cmd.Process.Kill()
		}
		close(t.done)
	})
	return nil
}

func (t *stdio) Done() <-chan struct{} { return t.done }

// Wait blocks until the spawned adapter process exits. Only meaningful on
// a stdio transport; callers type-assert when they need it.
func (t *stdio) Wait() error {
	return t.cmd.Wait()
}

// tcp dials an adapter that is already listening on a host:port.
type tcp struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewTCP dials address and returns a Transport over the resulting
// connection.
func NewTCP(ctx context.Context, address string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &tcp{
		conn:   conn,
		reader: bufio.NewReader(conn),
		done:   make(chan struct{}),
	}, nil
}

func (t *tcp) Send(msg dap.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(t.conn, msg); err != nil {
		return errdefs.WithTransportClosed(err)
	}
	return nil
}

func (t *tcp) Recv(ctx context.Context) (dap.Message, error) {
	type result struct {
		msg dap.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(t.reader)
		ch <- result{msg, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, errdefs.WithTransportClosed(r.err)
		}
		return r.msg, nil
	case <-ctx.Done():
		t.conn.Close()
		<-ch
		return nil, ctx.Err()
	case <-t.done:
		return nil, errdefs.WithTransportClosed(nil)
	}
}

func (t *tcp) Close() error {
	t.closeOnce.Do(func() {
		t.conn.Close()
		close(t.done)
	})
	return nil
}

func (t *tcp) Done() <-chan struct{} { return t.done }

// pipe wraps an arbitrary pair of reader/writer (used by tests to drive a
// fake in-process adapter over io.Pipe, in the style of
// rpc/dapserver/server_test.go's newDebugger harness).
type pipe struct {
	r io.ReadCloser
	w io.WriteCloser

	reader *bufio.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewPipe builds a Transport directly from a reader and a writer. Closing
// it closes both.
func NewPipe(r io.ReadCloser, w io.WriteCloser) Transport {
	return &pipe{
		r:      r,
		w:      w,
		reader: bufio.NewReader(r),
		done:   make(chan struct{}),
	}
}

func (t *pipe) Send(msg dap.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(t.w, msg); err != nil {
		return errdefs.WithTransportClosed(err)
	}
	return nil
}

func (t *pipe) Recv(ctx context.Context) (dap.Message, error) {
	type result struct {
		msg dap.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(t.reader)
		ch <- result{msg, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, errdefs.WithTransportClosed(r.err)
		}
		return r.msg, nil
	case <-ctx.Done():
		t.r.Close()
		<-ch
		return nil, ctx.Err()
	case <-t.done:
		return nil, errdefs.WithTransportClosed(nil)
	}
}

func (t *pipe) Close() error {
	t.closeOnce.Do(func() {
		t.r.Close()
		t.w.Close()
		close(t.done)
	})
	return nil
}

func (t *pipe) Done() <-chan struct{} { return t.done }

// Supervise runs fn under an errgroup derived from ctx and closes done
// (via Close) the moment either fn returns or the transport itself
// closes, mirroring rpc/dapserver/server.go's pattern of an errgroup
// supervising the read loop alongside the send queue and cancelable
// stdin teardown.
func Supervise(ctx context.Context, t Transport, fn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := fn(gctx)
		t.Close()
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return t.Close()
		case <-t.Done():
			return nil
		}
	})
	return g.Wait()
}
