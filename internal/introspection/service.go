package introspection

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/99souls/presentmon/internal/shm"
)

// DefaultSegmentName is "presentmon-2-bip-shm" (spec.md §6), the
// introspection segment's default name.
const DefaultSegmentName = "presentmon-2-bip-shm"

// DefaultSegmentSize is the fixed 1 MiB capacity spec.md §4.2 mandates.
const DefaultSegmentSize = 1 << 20

const readinessPostCount = 8

const mutexSuffix = "-mtx"
const semaphoreSuffix = "-sem"

// Publisher owns the service-side segment, mutex, and readiness semaphore
// for one introspection catalog. Construct with NewPublisher, call Publish
// once with the populated Root, then Close on shutdown.
type Publisher struct {
	segmentName string
	segment     *shm.Segment
	mutex       *shm.Mutex
	semaphore   *shm.Semaphore
}

// NewPublisher creates the named segment, truncating any existing segment
// file of that name, and opens its mutex and semaphore files, creating them
// if absent. It does not check for another publisher: a second call for the
// same segment name succeeds and shares the same files.
func NewPublisher(segmentName string) (*Publisher, error) {
	if segmentName == "" {
		segmentName = DefaultSegmentName
	}
	segment, err := shm.CreateSegment(segmentName, DefaultSegmentSize)
	if err != nil {
		return nil, err
	}
	mutex, err := shm.OpenMutex(segmentName + mutexSuffix)
	if err != nil {
		segment.Close()
		return nil, err
	}
	sem, err := shm.OpenSemaphore(segmentName + semaphoreSuffix)
	if err != nil {
		mutex.Close()
		segment.Close()
		return nil, err
	}
	return &Publisher{segmentName: segmentName, segment: segment, mutex: mutex, semaphore: sem}, nil
}

// Publish encodes root into the segment under an exclusive lock and then
// posts the readiness semaphore 8 times, the documented ceiling on
// simultaneous late joiners (spec.md §4.2, §9 open questions).
func (p *Publisher) Publish(root *Root) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(root); err != nil {
		return fmt.Errorf("introspection: encode catalog: %w", err)
	}
	if buf.Len()+8 > DefaultSegmentSize {
		return fmt.Errorf("introspection: encoded catalog (%d bytes) exceeds segment capacity", buf.Len())
	}

	if err := p.mutex.Lock(); err != nil {
		return err
	}
	defer p.mutex.Unlock()

	dst := p.segment.Bytes()
	binary.LittleEndian.PutUint64(dst[:8], uint64(buf.Len()))
	copy(dst[8:], buf.Bytes())

	return p.semaphore.Post(readinessPostCount)
}

// Close releases the publisher's handles. It does not remove the segment
// file; call RemoveAll for that on final teardown.
func (p *Publisher) Close() error {
	p.semaphore.Close()
	p.mutex.Close()
	return p.segment.Close()
}

// RemoveAll deletes the segment's backing file; the mutex and semaphore
// files are left in place. Only the owning service should call this, after
// Close, on clean shutdown.
func (p *Publisher) RemoveAll() error {
	_ = shm.RemoveSegment(p.segmentName)
	return nil
}

// WaitAndOpen blocks until a publisher's readiness semaphore has been
// posted (spec.md's readiness race scenario), then opens and decodes the
// catalog exactly as a client does. Exists for same-process callers (tests,
// CLI tools colocated with the service) that do not want to build a
// separate client abstraction.
func WaitAndOpen(ctx context.Context, segmentName string) (*Root, error) {
	return Open(ctx, segmentName)
}
