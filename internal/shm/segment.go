// Package shm provides the named-shared-memory substitute used throughout
// the service: a fixed-size, file-backed, memory-mapped segment plus the
// shared/exclusive mutex and counting semaphore the introspection catalog
// and stream rings are built on top of (spec.md §6 "Named shared memory").
//
// Go has no native named-shared-memory, named-mutex, or named-semaphore
// primitive, so each is reconstructed from a regular file: the segment is
// an mmap'd file (github.com/edsrzf/mmap-go), the mutex is an flock(2)
// advisory lock (golang.org/x/sys/unix) taken shared or exclusive, and the
// semaphore is a small companion file whose count is protected by its own
// exclusive flock. All three live under a common directory so "named"
// segments resolve to the same path across processes, mirroring the
// original's global namespace.
package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Dir is the directory under which named segments are resolved. Overridable
// for tests; defaults to a stable, shared location under the OS temp dir so
// unrelated processes agree on where "presentmon-2-bip-shm" lives.
var Dir = filepath.Join(os.TempDir(), "presentmon-shm")

// Segment is a fixed-size, named, memory-mapped region shared across
// processes by path.
type Segment struct {
	name string
	file *os.File
	data mmap.MMap

	mu       sync.Mutex // guards Close against concurrent Bytes() callers during unmap
	unmapped bool
}

func pathFor(name string) string {
	return filepath.Join(Dir, name+".shm")
}

// CreateSegment creates a new named segment of the given size, truncating
// any prior contents. Only the owning service process should call this;
// clients use OpenSegment.
func CreateSegment(name string, size int) (*Segment, error) {
	if err := os.MkdirAll(Dir, 0o755); err != nil {
		return nil, fmt.Errorf("shm: create segment directory: %w", err)
	}
	f, err := os.OpenFile(pathFor(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: create segment %q: %w", name, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: size segment %q: %w", name, err)
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: map segment %q: %w", name, err)
	}
	return &Segment{name: name, file: f, data: data}, nil
}

// OpenSegment opens an existing named segment for read-write access. Returns
// an error if the segment has not been created yet — the caller (spec.md
// §4.2 client contract: "failure to find root... is fatal for that call")
// is expected to treat this as fatal rather than retry indefinitely.
func OpenSegment(name string) (*Segment, error) {
	f, err := os.OpenFile(pathFor(name), os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open segment %q: %w", name, err)
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: map segment %q: %w", name, err)
	}
	return &Segment{name: name, file: f, data: data}, nil
}

// SegmentExists reports whether a named segment has been created, without
// opening it.
func SegmentExists(name string) bool {
	_, err := os.Stat(pathFor(name))
	return err == nil
}

// RemoveSegment deletes a named segment's backing file. Called by the
// owning service on clean shutdown; it is not an error for the file to be
// already gone.
func RemoveSegment(name string) error {
	if err := os.Remove(pathFor(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: remove segment %q: %w", name, err)
	}
	return nil
}

// Name returns the segment's logical name.
func (s *Segment) Name() string { return s.name }

// Bytes returns the mapped region. Callers must not retain it past Close.
func (s *Segment) Bytes() []byte { return s.data }

// Close unmaps and closes the segment's backing file. It does not remove
// the file; only the creator's RemoveSegment does that.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmapped {
		return nil
	}
	s.unmapped = true
	unmapErr := s.data.Unmap()
	closeErr := s.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}
