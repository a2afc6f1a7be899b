// Package service wires internal/{ring,ringregistry,query} together for
// the control pipe the way engine/engine.go wires crawler/pipeline/resources
// for the teacher: one small struct, StreamHandler, holding the long-lived
// collaborators that a cmd/ entrypoint builds and hands to the control-pipe
// server.
package service

import (
	"fmt"
	"log/slog"

	"github.com/99souls/presentmon/internal/query"
	"github.com/99souls/presentmon/internal/ring"
	"github.com/99souls/presentmon/internal/ringregistry"
	"github.com/99souls/presentmon/internal/telemetry/events"
)

// StreamHandler answers controlpipe START_STREAM/STOP_STREAM requests by
// acquiring or releasing a per-process ring from the registry and keeping
// the query engine's reader set in sync with it (spec.md §4.3 "Stream
// binding"). Frame production onto an acquired ring is out of scope here:
// spec.md names the wire format and lifecycle, not the ETW-equivalent
// capture source that would feed Writer.Push in a full deployment.
type StreamHandler struct {
	registry *ringregistry.Registry
	readers  *query.ReaderSet
	logger   *slog.Logger
	bus      events.Bus
}

// NewStreamHandler constructs a StreamHandler over an already-built
// registry and reader set. bus may be nil; when set, start/stop are
// published under events.CategoryControlPipe.
func NewStreamHandler(registry *ringregistry.Registry, readers *query.ReaderSet, logger *slog.Logger, bus events.Bus) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{registry: registry, readers: readers, logger: logger, bus: bus}
}

func (h *StreamHandler) publish(eventType string, targetPID, clientPID uint32) {
	if h.bus == nil {
		return
	}
	_ = h.bus.Publish(events.Event{
		Category: events.CategoryControlPipe,
		Type:     eventType,
		Labels: map[string]string{
			"target_pid": fmt.Sprint(targetPID),
			"client_pid": fmt.Sprint(clientPID),
		},
	})
}

// StartStream implements controlpipe.Handler. It acquires (creating on
// first use) the target process's ring, opens a reader onto it for the
// query engine, and hands the segment name back so the caller can map it
// directly.
func (h *StreamHandler) StartStream(targetPID, clientPID uint32) (string, error) {
	writer, err := h.registry.Acquire(targetPID)
	if err != nil {
		return "", fmt.Errorf("service: acquire ring for pid %d: %w", targetPID, err)
	}

	if _, ok := h.readers.Reader(targetPID); !ok {
		reader, err := ring.OpenReader(writer.Name())
		if err != nil {
			_ = h.registry.Release(targetPID)
			return "", fmt.Errorf("service: open reader for pid %d: %w", targetPID, err)
		}
		h.readers.Put(targetPID, reader)
	}

	h.logger.Info("stream started", "target_pid", targetPID, "client_pid", clientPID, "segment", writer.Name())
	h.publish("stream_started", targetPID, clientPID)
	return writer.Name(), nil
}

// StopStream implements controlpipe.Handler. It releases the caller's
// reference to the target's ring, tearing down the reader (and, once the
// registry's own reference count reaches zero, the ring itself) when no
// client remains attached.
func (h *StreamHandler) StopStream(targetPID, clientPID uint32) error {
	if err := h.registry.Release(targetPID); err != nil {
		return fmt.Errorf("service: release ring for pid %d: %w", targetPID, err)
	}
	h.logger.Info("stream stopped", "target_pid", targetPID, "client_pid", clientPID)
	h.publish("stream_stopped", targetPID, clientPID)

	if h.registry.RefCount(targetPID) == 0 {
		if err := h.readers.Remove(targetPID); err != nil {
			return fmt.Errorf("service: close reader for pid %d: %w", targetPID, err)
		}
	}
	return nil
}
