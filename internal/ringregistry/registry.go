// Package ringregistry coordinates per-process ring lifecycle the way
// engine/resources.Manager coordinates pipeline resource slots: a mutex-
// guarded map plus explicit acquire/release bookkeeping, adapted here to
// reference-count ring writers instead of caching crawl pages.
package ringregistry

import (
	"fmt"
	"sync"

	"github.com/99souls/presentmon/internal/ring"
	"github.com/99souls/presentmon/internal/shm"
)

// Config controls ring sizing; every ring created by the registry shares
// these defaults (spec.md does not specify per-process overrides).
type Config struct {
	MaxEntries     uint64
	TicksPerSecond uint64
}

type entry struct {
	writer   *ring.Writer
	refCount int
}

// Registry tracks one ring.Writer per target process id, torn down when
// the last client detaches (spec.md §4.3 "Stream binding": "if the ring's
// reference count falls to zero it is torn down").
type Registry struct {
	cfg Config

	mu      sync.Mutex
	byPid   map[uint32]*entry
	nameFor func(pid uint32) string
}

// New constructs an empty registry. nameFor derives a ring's segment name
// from a target process id; tests may override it to avoid collisions.
func New(cfg Config, nameFor func(pid uint32) string) *Registry {
	if nameFor == nil {
		nameFor = func(pid uint32) string { return fmt.Sprintf("presentmon-ring-%d", pid) }
	}
	return &Registry{cfg: cfg, byPid: make(map[uint32]*entry), nameFor: nameFor}
}

// Acquire returns the ring writer for pid, creating it on first use and
// incrementing its reference count. Callers that successfully Acquire must
// eventually call Release exactly once.
func (r *Registry) Acquire(pid uint32) (*ring.Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byPid[pid]; ok {
		e.refCount++
		return e.writer, nil
	}

	w, err := ring.NewWriter(r.nameFor(pid), r.cfg.MaxEntries, r.cfg.TicksPerSecond)
	if err != nil {
		return nil, fmt.Errorf("ringregistry: create ring for pid %d: %w", pid, err)
	}
	r.byPid[pid] = &entry{writer: w, refCount: 1}
	return w, nil
}

// Release decrements pid's reference count, tearing down and removing the
// ring once it reaches zero.
func (r *Registry) Release(pid uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byPid[pid]
	if !ok {
		return fmt.Errorf("ringregistry: release of unknown pid %d", pid)
	}
	e.refCount--
	if e.refCount > 0 {
		return nil
	}
	delete(r.byPid, pid)
	name := e.writer.Name()
	if err := e.writer.Close(); err != nil {
		return err
	}
	return shm.RemoveSegment(name)
}

// RefCount reports the current reference count for pid, for diagnostics
// and tests; zero means no ring is registered.
func (r *Registry) RefCount(pid uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byPid[pid]; ok {
		return e.refCount
	}
	return 0
}

// NameOf returns the segment name that would back (or already backs) pid's
// ring, for handing to a client in a StartStream response.
func (r *Registry) NameOf(pid uint32) string { return r.nameFor(pid) }
