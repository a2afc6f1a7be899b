package ring

import (
	"fmt"
	"unsafe"

	"github.com/99souls/presentmon/internal/shm"
)

// Reader is a client's read-only view of a per-process ring. Any number of
// readers may view the same ring concurrently with the single writer
// (spec.md §5 "Ring").
type Reader struct {
	segment *shm.Segment
	header  header
	data    []byte
}

// OpenReader opens an existing named ring segment.
func OpenReader(name string) (*Reader, error) {
	segment, err := shm.OpenSegment(name)
	if err != nil {
		return nil, fmt.Errorf("ring: open segment %q: %w", name, err)
	}
	r := &Reader{segment: segment, data: segment.Bytes()}
	r.header = newHeader(r.data)
	return r, nil
}

func (r *Reader) Close() error { return r.segment.Close() }

// ProcessActive mirrors header.ProcessActive; further reads are prohibited
// once it returns false (spec.md §4.3).
func (r *Reader) ProcessActive() bool { return r.header.ProcessActive() }

// TicksPerSecond is the producer's QPC frequency, used to convert tick
// deltas to milliseconds (spec.md glossary "QPC ticks").
func (r *Reader) TicksPerSecond() uint64 { return r.header.ticksPerSecond() }

func (r *Reader) MaxEntries() uint64 { return r.header.maxEntries() }

// GetLatestFrameIndex returns the most recently written index. ok is false
// if the ring has never been written to.
func (r *Reader) GetLatestFrameIndex() (idx uint64, ok bool) {
	head := r.header.headIdx()
	tail := r.header.tailIdx()
	if head == tail && !r.header.isFull() {
		return 0, false
	}
	max := r.header.maxEntries()
	if tail == 0 {
		return max - 1, true
	}
	return tail - 1, true
}

// DecrementIndex returns the previous written index before idx, following
// the original's DecrementIndex (ConcreteMiddleware.cpp): wrap from 0 to
// max_entries-1 if the ring is full, else to tail_idx, and report false
// when idx is already head_idx (the oldest entry), since one more step
// would cross it. On a false return idx is handed back unchanged.
func (r *Reader) DecrementIndex(idx uint64) (uint64, bool) {
	if !r.header.ProcessActive() {
		return idx, false
	}
	if idx == r.header.headIdx() {
		return idx, false
	}
	var currentMaxEntries uint64
	if r.header.isFull() {
		currentMaxEntries = r.header.maxEntries() - 1
	} else {
		currentMaxEntries = r.header.tailIdx()
	}
	if idx == 0 {
		idx = currentMaxEntries
	} else {
		idx--
	}
	return idx, true
}

// ReadAt returns the frame record at the given absolute index.
func (r *Reader) ReadAt(idx uint64) FrameRecord {
	offset := headerSize + int(idx)*int(recordSize)
	return *(*FrameRecord)(unsafe.Pointer(&r.data[offset]))
}
