package dapclient

import (
	"context"
	"io"
	"testing"
	"time"

	dap "github.com/google/go-dap"
	"github.com/stretchr/testify/require"

	localdap "github.com/dbgsession/core/dap"
	"github.com/dbgsession/core/transport"
)

// fakeAdapter plays the role of an external debug adapter over an
// io.Pipe pair, in the style of rpc/dapserver/server_test.go's
// newDebugger harness: it answers whatever request handlers are
// registered and otherwise echoes a generic success response.
type fakeAdapter struct {
	t       *testing.T
	clientT transport.Transport
	adapter transport.Transport
	seq     localdap.SeqCounter
	handle  map[string]func(req dap.RequestMessage) dap.Message
	done    chan struct{}
}

func newFakeAdapter(t *testing.T) *fakeAdapter {
	clientRead, adapterWrite := io.Pipe()
	adapterRead, clientWrite := io.Pipe()

	f := &fakeAdapter{
		t:       t,
		clientT: transport.NewPipe(clientRead, clientWrite),
		adapter: transport.NewPipe(adapterRead, adapterWrite),
		handle:  make(map[string]func(req dap.RequestMessage) dap.Message),
		done:    make(chan struct{}),
	}
	go f.serve()
	return f
}

func (f *fakeAdapter) serve() {
	defer close(f.done)
	for {
		msg, err := f.adapter.Recv(context.Background())
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		command := req.GetRequest().Command
		var resp dap.Message
		if h, ok := f.handle[command]; ok {
			resp = h(req)
		} else {
			resp = &dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: f.seq.Next(), Type: "response"},
				Command:         command,
				RequestSeq:      req.GetRequest().Seq,
				Success:         true,
			}
		}
		if resp != nil {
			if err := f.adapter.Send(resp); err != nil {
				return
			}
		}
	}
}

func (f *fakeAdapter) sendEvent(ev dap.Message) {
	_ = f.adapter.Send(ev)
}

func (f *fakeAdapter) close() {
	f.clientT.Close()
	f.adapter.Close()
	<-f.done
}

func TestInitializeReturnsCapabilities(t *testing.T) {
	fake := newFakeAdapter(t)
	defer fake.close()

	fake.handle["initialize"] = func(req dap.RequestMessage) dap.Message {
		resp := &dap.InitializeResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: fake.seq.Next(), Type: "response"},
				Command:         "initialize",
				RequestSeq:      req.GetRequest().Seq,
				Success:         true,
			},
		}
		resp.Body.SupportsConfigurationDoneRequest = true
		return resp
	}

	client := New(fake.clientT, nil)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	caps, err := client.Initialize(ctx, "dbgsession", "fake")
	require.NoError(t, err)
	require.True(t, caps.SupportsConfigurationDoneRequest)
	require.True(t, client.Capabilities().SupportsConfigurationDoneRequest)
}

func TestInitializeFailureSurfacesAdapterError(t *testing.T) {
	fake := newFakeAdapter(t)
	defer fake.close()

	fake.handle["initialize"] = func(req dap.RequestMessage) dap.Message {
		return &dap.InitializeResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: fake.seq.Next(), Type: "response"},
				Command:         "initialize",
				RequestSeq:      req.GetRequest().Seq,
				Success:         false,
				Message:         "adapter not ready",
			},
		}
	}

	client := New(fake.clientT, nil)
	defer client.Close()

	_, err := client.Initialize(context.Background(), "dbgsession", "fake")
	require.ErrorContains(t, err, "adapter not ready")
}

func TestEventsRouteToHandler(t *testing.T) {
	fake := newFakeAdapter(t)
	defer fake.close()

	events := make(chan dap.Message, 4)
	client := New(fake.clientT, func(msg dap.Message) { events <- msg })
	defer client.Close()

	stopped := &dap.StoppedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: fake.seq.Next(), Type: "event"}, Event: "stopped"},
	}
	stopped.Body.Reason = "breakpoint"
	stopped.Body.ThreadId = 1
	fake.sendEvent(stopped)

	select {
	case msg := <-events:
		got, ok := msg.(*dap.StoppedEvent)
		require.True(t, ok)
		require.Equal(t, "breakpoint", got.Body.Reason)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered to handler")
	}
}

func TestSetEventHandlerReplacesHandler(t *testing.T) {
	fake := newFakeAdapter(t)
	defer fake.close()

	client := New(fake.clientT, nil)
	defer client.Close()

	events := make(chan dap.Message, 1)
	client.SetEventHandler(func(msg dap.Message) { events <- msg })

	fake.sendEvent(&dap.TerminatedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: fake.seq.Next(), Type: "event"}, Event: "terminated"},
	})

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("event was not delivered after SetEventHandler")
	}
}

func TestRequestTimesOutWhenAdapterNeverResponds(t *testing.T) {
	fake := newFakeAdapter(t)
	defer fake.close()

	// No handler registered for "threads" would normally auto-respond;
	// delete the fallback by registering a handler that returns nil, so
	// the request is left pending until the ctx deadline fires.
	fake.handle["threads"] = func(req dap.RequestMessage) dap.Message { return nil }

	client := New(fake.clientT, nil)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Threads(ctx)
	require.Error(t, err)
}

func TestSetBreakpointsRoundTrip(t *testing.T) {
	fake := newFakeAdapter(t)
	defer fake.close()

	fake.handle["setBreakpoints"] = func(req dap.RequestMessage) dap.Message {
		sbReq := req.(*dap.SetBreakpointsRequest)
		resp := &dap.SetBreakpointsResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: fake.seq.Next(), Type: "response"},
				Command:         "setBreakpoints",
				RequestSeq:      req.GetRequest().Seq,
				Success:         true,
			},
		}
		for _, bp := range sbReq.Arguments.Breakpoints {
			resp.Body.Breakpoints = append(resp.Body.Breakpoints, dap.Breakpoint{Verified: true, Line: bp.Line})
		}
		return resp
	}

	client := New(fake.clientT, nil)
	defer client.Close()

	bps, err := client.SetBreakpoints(context.Background(), dap.Source{Path: "/main.go"}, []dap.SourceBreakpoint{{Line: 10}, {Line: 20}})
	require.NoError(t, err)
	require.Len(t, bps, 2)
	require.True(t, bps[0].Verified)
	require.Equal(t, 10, bps[0].Line)
}

func TestCloseFailsPendingRequests(t *testing.T) {
	fake := newFakeAdapter(t)
	fake.handle["pause"] = func(req dap.RequestMessage) dap.Message { return nil }

	client := New(fake.clientT, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Pause(context.Background(), 1)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.Close())
	fake.close()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending request was not failed by Close")
	}
}
