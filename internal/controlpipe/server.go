package controlpipe

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Handler implements the two control verbs the service answers (spec.md
// §4.3). StartStream allocates or reuses the target process's ring and
// returns its segment name; StopStream deregisters the caller.
type Handler interface {
	StartStream(targetPID, clientPID uint32) (segmentName string, err error)
	StopStream(targetPID, clientPID uint32) error
}

// Server listens on a Unix domain socket and answers one request per
// connection, mirroring the original's half-duplex, one-request-at-a-time
// contract (spec.md §5 "Control pipe": "no concurrent calls on the same
// handle").
type Server struct {
	path     string
	listener net.Listener
	handler  Handler
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewServer binds path, removing any stale socket file left by a prior
// crashed instance.
func NewServer(path string, handler Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("controlpipe: listen on %q: %w", path, err)
	}
	return &Server{path: path, listener: ln, handler: handler, logger: logger}, nil
}

// Serve accepts connections until the listener is closed. Intended to run
// in its own goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("controlpipe: accept: %w", err)
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections and removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	h, payload, err := readFrame(conn)
	if err != nil {
		s.logger.Warn("controlpipe: failed to read request frame", "err", err)
		return
	}

	switch h.Opcode {
	case OpStartStream:
		s.handleStartStream(conn, h, payload)
	case OpStopStream:
		s.handleStopStream(conn, h, payload)
	default:
		s.logger.Warn("controlpipe: unknown opcode", "opcode", h.Opcode)
	}
}

func (s *Server) handleStartStream(conn net.Conn, h header, payload []byte) {
	req, err := unmarshalStartStreamRequest(payload)
	if err != nil {
		s.respondStartStream(conn, h, startStreamResponse{Status: StatusFailure})
		return
	}
	segmentName, err := s.handler.StartStream(req.TargetPID, h.ClientPID)
	if err != nil {
		s.logger.Warn("controlpipe: StartStream failed", "target_pid", req.TargetPID, "err", err)
		s.respondStartStream(conn, h, startStreamResponse{Status: StatusFailure})
		return
	}
	s.respondStartStream(conn, h, startStreamResponse{Status: StatusSuccess, SegmentName: segmentName})
}

func (s *Server) respondStartStream(conn net.Conn, h header, resp startStreamResponse) {
	if err := writeFrame(conn, header{Opcode: h.Opcode, RequestID: h.RequestID}, resp.marshal()); err != nil {
		s.logger.Warn("controlpipe: failed to write StartStream response", "err", err)
	}
}

func (s *Server) handleStopStream(conn net.Conn, h header, payload []byte) {
	req, err := unmarshalStopStreamRequest(payload)
	if err != nil {
		s.respondStopStream(conn, h, stopStreamResponse{Status: StatusFailure})
		return
	}
	if err := s.handler.StopStream(req.TargetPID, h.ClientPID); err != nil {
		s.logger.Warn("controlpipe: StopStream failed", "target_pid", req.TargetPID, "err", err)
		s.respondStopStream(conn, h, stopStreamResponse{Status: StatusFailure})
		return
	}
	s.respondStopStream(conn, h, stopStreamResponse{Status: StatusSuccess})
}

func (s *Server) respondStopStream(conn net.Conn, h header, resp stopStreamResponse) {
	if err := writeFrame(conn, header{Opcode: h.Opcode, RequestID: h.RequestID}, resp.marshal()); err != nil {
		s.logger.Warn("controlpipe: failed to write StopStream response", "err", err)
	}
}
