package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Mutex is a named shared/exclusive lock backed by flock(2) on a dedicated
// lock file, standing in for the original's named shared mutex (spec.md §6,
// "in-mtx"). Readers of the introspection tree take it shared; the service
// takes it exclusive while populating.
type Mutex struct {
	name string
	file *os.File
}

func lockPathFor(name string) string {
	return filepath.Join(Dir, name+".lock")
}

// OpenMutex opens (creating if necessary) the named lock file. Multiple
// Mutex values for the same name, in the same or different processes, all
// arbitrate the same underlying flock.
func OpenMutex(name string) (*Mutex, error) {
	if err := os.MkdirAll(Dir, 0o755); err != nil {
		return nil, fmt.Errorf("shm: create lock directory: %w", err)
	}
	f, err := os.OpenFile(lockPathFor(name), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open mutex %q: %w", name, err)
	}
	return &Mutex{name: name, file: f}, nil
}

// Lock acquires the mutex exclusively, blocking until available.
func (m *Mutex) Lock() error {
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("shm: lock %q: %w", m.name, err)
	}
	return nil
}

// Unlock releases a lock held in either mode.
func (m *Mutex) Unlock() error {
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("shm: unlock %q: %w", m.name, err)
	}
	return nil
}

// RLock acquires the mutex in shared mode, blocking until available.
func (m *Mutex) RLock() error {
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("shm: rlock %q: %w", m.name, err)
	}
	return nil
}

// RUnlock is an alias of Unlock; flock does not distinguish release mode.
func (m *Mutex) RUnlock() error { return m.Unlock() }

// Close releases the underlying file descriptor. It does not remove the
// lock file, since other processes may still hold it open.
func (m *Mutex) Close() error {
	return m.file.Close()
}
