package controlpipe

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"
)

// busyWaitTimeout is the bounded retry window for a pipe that is not yet
// accepting connections (spec.md §4.3, §7: "the 20-second WaitNamedPipe is
// the only timeout"). A var, not a const, so tests can shrink it rather
// than waiting out the real window.
var busyWaitTimeout = 20 * time.Second

const busyWaitPoll = 50 * time.Millisecond

// ErrPipeBusy is the transient-I/O stratum error for a dial that never
// found the control pipe listening within busyWaitTimeout: the socket
// file was absent or refusing connections (spec.md §7: "the 20-second
// WaitNamedPipe is the only timeout"). Callers compare with errors.Is
// rather than treating it as a configuration error.
var ErrPipeBusy = errors.New("controlpipe: pipe busy")

var requestIDCounter uint64

func nextRequestID() uint64 { return atomic.AddUint64(&requestIDCounter, 1) }

// Client issues one control-pipe call at a time; it is not safe for
// concurrent use by multiple goroutines against the same instance
// (spec.md §5 "no concurrent calls on the same handle").
type Client struct {
	path      string
	clientPID uint32
}

// NewClient does not connect immediately; each call dials fresh, busy-
// waiting up to busyWaitTimeout if the socket is not yet listening.
func NewClient(path string, clientPID uint32) *Client {
	return &Client{path: path, clientPID: clientPID}
}

func (c *Client) dial() (net.Conn, error) {
	deadline := time.Now().Add(busyWaitTimeout)
	for {
		conn, err := net.Dial("unix", c.path)
		if err == nil {
			return conn, nil
		}
		if !isPipeBusy(err) {
			return nil, fmt.Errorf("controlpipe: dial %q: %w", c.path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("controlpipe: dial %q: busy for %s: %w: %w", c.path, busyWaitTimeout, ErrPipeBusy, err)
		}
		time.Sleep(busyWaitPoll)
	}
}

// isPipeBusy treats "socket file not yet present" and "connection
// refused" (listener backlog momentarily full) as the retryable
// "pipe busy" condition; anything else is a hard failure.
func isPipeBusy(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}

// StartStream requests streaming of targetPID and returns the ring segment
// name the service allocated or reused.
func (c *Client) StartStream(targetPID uint32) (string, error) {
	conn, err := c.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	req := startStreamRequest{TargetPID: targetPID}
	h := header{Opcode: OpStartStream, RequestID: nextRequestID(), ClientPID: c.clientPID}
	if err := writeFrame(conn, h, req.marshal()); err != nil {
		return "", fmt.Errorf("controlpipe: write StartStream request: %w", err)
	}

	_, payload, err := readFrame(conn)
	if err != nil {
		return "", fmt.Errorf("controlpipe: read StartStream response: %w", err)
	}
	resp, err := unmarshalStartStreamResponse(payload)
	if err != nil {
		return "", err
	}
	if resp.Status != StatusSuccess {
		return "", fmt.Errorf("controlpipe: StartStream failed: status=%d", resp.Status)
	}
	return resp.SegmentName, nil
}

// StopStream requests that the service deregister this client from
// targetPID's stream.
func (c *Client) StopStream(targetPID uint32) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	req := stopStreamRequest{TargetPID: targetPID}
	h := header{Opcode: OpStopStream, RequestID: nextRequestID(), ClientPID: c.clientPID}
	if err := writeFrame(conn, h, req.marshal()); err != nil {
		return fmt.Errorf("controlpipe: write StopStream request: %w", err)
	}

	_, payload, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("controlpipe: read StopStream response: %w", err)
	}
	resp, err := unmarshalStopStreamResponse(payload)
	if err != nil {
		return err
	}
	if resp.Status != StatusSuccess {
		return fmt.Errorf("controlpipe: StopStream failed: status=%d", resp.Status)
	}
	return nil
}
