package controlpipe

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	started map[uint32]uint32
	stopped map[uint32]uint32
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{started: map[uint32]uint32{}, stopped: map[uint32]uint32{}}
}

func (h *recordingHandler) StartStream(targetPID, clientPID uint32) (string, error) {
	h.started[targetPID] = clientPID
	return fmt.Sprintf("presentmon-ring-%d", targetPID), nil
}

func (h *recordingHandler) StopStream(targetPID, clientPID uint32) error {
	h.stopped[targetPID] = clientPID
	return nil
}

func TestStartStopRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	handler := newRecordingHandler()
	server, err := NewServer(socketPath, handler, nil)
	require.NoError(t, err)
	go server.Serve()
	defer server.Close()

	client := NewClient(socketPath, 1234)

	segmentName, err := client.StartStream(42)
	require.NoError(t, err)
	require.Equal(t, "presentmon-ring-42", segmentName)
	require.Equal(t, uint32(1234), handler.started[42])

	require.NoError(t, client.StopStream(42))
	require.Equal(t, uint32(1234), handler.stopped[42])
}

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	req := startStreamRequest{TargetPID: 99}
	decoded, err := unmarshalStartStreamRequest(req.marshal())
	require.NoError(t, err)
	require.Equal(t, req, decoded)

	again, err := unmarshalStartStreamRequest(decoded.marshal())
	require.NoError(t, err)
	require.Equal(t, decoded.marshal(), again.marshal())
}

func TestClientBusyWaitsForListener(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	client := NewClient(socketPath, 1)

	go func() {
		time.Sleep(100 * time.Millisecond)
		handler := newRecordingHandler()
		server, err := NewServer(socketPath, handler, nil)
		if err != nil {
			return
		}
		go server.Serve()
	}()

	_, err := client.StartStream(1)
	require.NoError(t, err)
}

// TestClientDialTimesOutWithErrPipeBusy matches spec.md §7's transient
// I/O error stratum: a pipe that never comes up within the busy-wait
// window reports an errors.Is-comparable ErrPipeBusy, not a bare string.
func TestClientDialTimesOutWithErrPipeBusy(t *testing.T) {
	original := busyWaitTimeout
	busyWaitTimeout = 150 * time.Millisecond
	defer func() { busyWaitTimeout = original }()

	socketPath := filepath.Join(t.TempDir(), "control.sock")
	client := NewClient(socketPath, 1)

	_, err := client.StartStream(1)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPipeBusy))
}
