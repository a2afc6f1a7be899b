// Package controlpipe implements the message-framed control protocol
// (spec.md §4.3) by which a client negotiates streaming of a target
// process. The original speaks it over a platform message-mode named
// pipe; this implementation speaks the same frame shape over a Unix
// domain socket, since Go has no portable named-pipe primitive and a
// stream socket needs explicit length-prefixed framing to recover message
// boundaries — exactly the {opcode, request-id, client-process-id,
// payload-length} header the spec already prescribes.
package controlpipe

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Opcode identifies the requested operation.
type Opcode uint32

const (
	OpStartStream Opcode = iota
	OpStopStream
)

func (o Opcode) String() string {
	switch o {
	case OpStartStream:
		return "START_STREAM"
	case OpStopStream:
		return "STOP_STREAM"
	default:
		return "UNKNOWN"
	}
}

// StatusCode mirrors the status codes spec.md §6 reserves for the control
// pipe: the same three codes, with the same values, as pmapi.Status.
type StatusCode uint32

const (
	StatusSuccess StatusCode = iota
	StatusFailure
	StatusSessionNotOpen
)

// headerSize is the wire size of {opcode, request-id, client-pid,
// payload-length}: 4 + 8 + 4 + 4 bytes.
const headerSize = 20

// header is the fixed portion of every request and response frame.
type header struct {
	Opcode        Opcode
	RequestID     uint64
	ClientPID     uint32
	PayloadLength uint32
}

func (h header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Opcode))
	binary.LittleEndian.PutUint64(buf[4:12], h.RequestID)
	binary.LittleEndian.PutUint32(buf[12:16], h.ClientPID)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLength)
	return buf
}

func unmarshalHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("controlpipe: short header (%d bytes)", len(buf))
	}
	return header{
		Opcode:        Opcode(binary.LittleEndian.Uint32(buf[0:4])),
		RequestID:     binary.LittleEndian.Uint64(buf[4:12]),
		ClientPID:     binary.LittleEndian.Uint32(buf[12:16]),
		PayloadLength: binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

// readFrame reads one length-prefixed frame, appending chunks into a
// growable buffer until the full payload has arrived — the stream-socket
// equivalent of the original's "read in a loop until no-more-data"
// (spec.md §4.3).
func readFrame(r io.Reader) (header, []byte, error) {
	hbuf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return header{}, nil, err
	}
	h, err := unmarshalHeader(hbuf)
	if err != nil {
		return header{}, nil, err
	}
	payload := make([]byte, h.PayloadLength)
	if h.PayloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return header{}, nil, err
		}
	}
	return h, payload, nil
}

// writeFrame writes header and payload as a single atomic write (spec.md
// §4.3 "writes a request message atomically (in one write)").
func writeFrame(w io.Writer, h header, payload []byte) error {
	h.PayloadLength = uint32(len(payload))
	buf := append(h.marshal(), payload...)
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("controlpipe: short write (%d of %d bytes)", n, len(buf))
	}
	return nil
}

// startStreamRequest encodes/decodes the StartStream request payload.
type startStreamRequest struct {
	TargetPID uint32
}

func (p startStreamRequest) marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.TargetPID)
	return buf
}

func unmarshalStartStreamRequest(buf []byte) (startStreamRequest, error) {
	if len(buf) < 4 {
		return startStreamRequest{}, fmt.Errorf("controlpipe: short StartStream request")
	}
	return startStreamRequest{TargetPID: binary.LittleEndian.Uint32(buf[:4])}, nil
}

type startStreamResponse struct {
	Status      StatusCode
	SegmentName string
}

func (p startStreamResponse) marshal() []byte {
	name := []byte(p.SegmentName)
	buf := make([]byte, 4+len(name))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Status))
	copy(buf[4:], name)
	return buf
}

func unmarshalStartStreamResponse(buf []byte) (startStreamResponse, error) {
	if len(buf) < 4 {
		return startStreamResponse{}, fmt.Errorf("controlpipe: short StartStream response")
	}
	return startStreamResponse{
		Status:      StatusCode(binary.LittleEndian.Uint32(buf[0:4])),
		SegmentName: string(buf[4:]),
	}, nil
}

type stopStreamRequest struct {
	TargetPID uint32
}

func (p stopStreamRequest) marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.TargetPID)
	return buf
}

func unmarshalStopStreamRequest(buf []byte) (stopStreamRequest, error) {
	if len(buf) < 4 {
		return stopStreamRequest{}, fmt.Errorf("controlpipe: short StopStream request")
	}
	return stopStreamRequest{TargetPID: binary.LittleEndian.Uint32(buf[:4])}, nil
}

type stopStreamResponse struct {
	Status StatusCode
}

func (p stopStreamResponse) marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(p.Status))
	return buf
}

func unmarshalStopStreamResponse(buf []byte) (stopStreamResponse, error) {
	if len(buf) < 4 {
		return stopStreamResponse{}, fmt.Errorf("controlpipe: short StopStream response")
	}
	return stopStreamResponse{Status: StatusCode(binary.LittleEndian.Uint32(buf[:4]))}, nil
}
