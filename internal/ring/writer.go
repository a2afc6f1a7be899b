package ring

import (
	"fmt"
	"unsafe"

	"github.com/99souls/presentmon/internal/shm"
)

var recordSize = unsafe.Sizeof(FrameRecord{})

// Writer is the single producer for a per-process ring. Only the service
// holds one of these per active stream.
type Writer struct {
	segment *shm.Segment
	header  header
	data    []byte
}

// NewWriter creates a fresh segment named name with capacity maxEntries
// frame records and initializes its header (spec.md §3 invariants:
// 0 ≤ head_idx, tail_idx < max_entries).
func NewWriter(name string, maxEntries uint64, ticksPerSecond uint64) (*Writer, error) {
	size := headerSize + int(maxEntries)*int(recordSize)
	segment, err := shm.CreateSegment(name, size)
	if err != nil {
		return nil, fmt.Errorf("ring: create segment %q: %w", name, err)
	}
	w := &Writer{segment: segment, data: segment.Bytes()}
	w.header = newHeader(w.data)
	w.header.setMaxEntries(maxEntries)
	w.header.setTicksPerSecond(ticksPerSecond)
	w.header.setProcessActive(true)
	return w, nil
}

// Push writes rec at the current tail, advancing tail_idx and wrapping
// (setting is_full) exactly per spec.md §4.3 "Ring write/read discipline".
func (w *Writer) Push(rec FrameRecord) {
	tail := w.header.tailIdx()
	max := w.header.maxEntries()

	offset := headerSize + int(tail)*int(recordSize)
	*(*FrameRecord)(unsafe.Pointer(&w.data[offset])) = rec

	next := tail + 1
	if next >= max {
		next = 0
	}
	if w.header.isFull() {
		head := w.header.headIdx()
		nextHead := head + 1
		if nextHead >= max {
			nextHead = 0
		}
		w.header.setHeadIdx(nextHead)
	}
	w.header.setTailIdx(next)
	if next == w.header.headIdx() {
		w.header.setIsFull(true)
	}
}

// Close marks the producer inactive and releases the mapping. The segment
// file itself is left for RemoveSegment, which ringregistry calls once the
// ring's reference count reaches zero (spec.md §4.3 "segment is torn down
// after the last viewer closes").
func (w *Writer) Close() error {
	w.header.setProcessActive(false)
	return w.segment.Close()
}

// Name returns the ring's segment name.
func (w *Writer) Name() string { return w.segment.Name() }
