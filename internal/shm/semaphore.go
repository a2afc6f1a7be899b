package shm

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval bounds how often Wait re-checks the counter. Go has no
// cross-process condition variable, so the semaphore is a polled counter
// rather than a kernel object; the poll is cheap relative to the 20-second
// scale of every timeout in this system (spec.md §5, §7).
const pollInterval = 2 * time.Millisecond

// Semaphore is a named counting semaphore backed by an 8-byte counter in a
// dedicated file, arbitrated by the file's own flock. It stands in for the
// original's named counting semaphore ("in-sem", posted 8× on readiness;
// spec.md §4.2, §6).
type Semaphore struct {
	name string
	file *os.File
}

func semPathFor(name string) string {
	return filepath.Join(Dir, name+".sem")
}

// OpenSemaphore opens (creating and zero-initializing if necessary) the
// named semaphore.
func OpenSemaphore(name string) (*Semaphore, error) {
	if err := os.MkdirAll(Dir, 0o755); err != nil {
		return nil, fmt.Errorf("shm: create semaphore directory: %w", err)
	}
	path := semPathFor(name)
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open semaphore %q: %w", name, err)
	}
	s := &Semaphore{name: name, file: f}
	if os.IsNotExist(statErr) {
		if err := s.write(0); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Semaphore) read() (uint64, error) {
	var buf [8]byte
	if _, err := s.file.ReadAt(buf[:], 0); err != nil {
		return 0, fmt.Errorf("shm: read semaphore %q: %w", s.name, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (s *Semaphore) write(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if _, err := s.file.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("shm: write semaphore %q: %w", s.name, err)
	}
	return nil
}

// Post increments the semaphore's count by n, atomically with respect to
// other Post/Wait calls on the same name.
func (s *Semaphore) Post(n uint64) error {
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("shm: lock semaphore %q: %w", s.name, err)
	}
	defer unix.Flock(int(s.file.Fd()), unix.LOCK_UN)

	count, err := s.read()
	if err != nil {
		return err
	}
	return s.write(count + n)
}

// Wait blocks until the count is positive, then decrements it by one.
func (s *Semaphore) Wait(ctx context.Context) error {
	for {
		acquired, err := s.tryAcquire()
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *Semaphore) tryAcquire() (bool, error) {
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_EX); err != nil {
		return false, fmt.Errorf("shm: lock semaphore %q: %w", s.name, err)
	}
	defer unix.Flock(int(s.file.Fd()), unix.LOCK_UN)

	count, err := s.read()
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	return true, s.write(count - 1)
}

// Close releases the underlying file descriptor.
func (s *Semaphore) Close() error {
	return s.file.Close()
}
