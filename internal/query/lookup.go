package query

import (
	"sync"

	"github.com/99souls/presentmon/internal/ring"
)

// ReaderSet is a concurrency-safe ReaderLookup backed by explicitly opened
// ring.Reader instances, one per streamed process id. The service opens a
// reader when a client's StartStream call causes a ring to be acquired and
// closes it on the matching StopStream/refcount-to-zero transition.
type ReaderSet struct {
	mu      sync.RWMutex
	readers map[uint32]*ring.Reader
}

// NewReaderSet returns an empty ReaderSet.
func NewReaderSet() *ReaderSet {
	return &ReaderSet{readers: map[uint32]*ring.Reader{}}
}

// Reader implements ReaderLookup.
func (s *ReaderSet) Reader(pid uint32) (*ring.Reader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readers[pid]
	return r, ok
}

// Put registers (or replaces) the reader for pid.
func (s *ReaderSet) Put(pid uint32, reader *ring.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[pid] = reader
}

// Remove closes and forgets the reader for pid, if any.
func (s *ReaderSet) Remove(pid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readers[pid]
	if !ok {
		return nil
	}
	delete(s.readers, pid)
	return r.Close()
}
