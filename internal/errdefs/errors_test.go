package errdefs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithTransportClosed(t *testing.T) {
	cause := errors.New("broken pipe")
	err := WithTransportClosed(cause)
	require.ErrorContains(t, err, "broken pipe")
	require.ErrorIs(t, err, cause)

	nilReason := WithTransportClosed(nil)
	require.EqualError(t, nilReason, "transport closed")
}

func TestWithProtocolError(t *testing.T) {
	cause := errors.New("bad header")
	err := WithProtocolError(cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "dap protocol error")
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout("evaluate", 7)
	require.EqualError(t, err, `dap request "evaluate" (seq 7) timed out`)
	var typed *ErrTimeout
	require.True(t, errors.As(err, &typed))
	require.Equal(t, 7, typed.Seq)
}

func TestWithCancelled(t *testing.T) {
	err := WithCancelled("continue", 3)
	require.EqualError(t, err, `dap request "continue" (seq 3) cancelled`)
}

func TestWithAdapterError(t *testing.T) {
	err := WithAdapterError("launch", "program not found", map[string]string{"path": "/tmp/x"})
	require.Contains(t, err.Error(), "launch")
	require.Contains(t, err.Error(), "program not found")

	empty := WithAdapterError("pause", "", nil)
	require.EqualError(t, empty, `adapter rejected "pause"`)
}

func TestWithPreLaunchFailed(t *testing.T) {
	err := WithPreLaunchFailed(1, "build failed")
	var typed *ErrPreLaunchFailed
	require.True(t, errors.As(err, &typed))
	require.Equal(t, 1, typed.ExitCode)
	require.Contains(t, err.Error(), "build failed")
}

func TestWithAdapterNotFound(t *testing.T) {
	err := WithAdapterNotFound("go")
	require.EqualError(t, err, `no adapter installed for type "go"`)
}

func TestWithConfigParse(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := WithConfigParse("launch.json", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "launch.json")
}
