package introspection

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/99souls/presentmon/internal/shm"
)

// Open implements the client-side contract of spec.md §4.2: open the named
// segment, wait on the readiness semaphore and immediately re-post it
// (pass-through, so later readers never block once the catalog is ready),
// take the mutex shared, and decode the published tree. A missing segment
// is fatal for the call. The mutex and semaphore files are not checked for:
// shm.OpenMutex and shm.OpenSemaphore create them when absent, so a missing
// semaphore shows up as a Wait that runs until ctx is done.
func Open(ctx context.Context, segmentName string) (*Root, error) {
	if segmentName == "" {
		segmentName = DefaultSegmentName
	}
	if !shm.SegmentExists(segmentName) {
		return nil, fmt.Errorf("introspection: segment %q does not exist", segmentName)
	}
	segment, err := shm.OpenSegment(segmentName)
	if err != nil {
		return nil, fmt.Errorf("introspection: open segment: %w", err)
	}
	defer segment.Close()

	mutex, err := shm.OpenMutex(segmentName + mutexSuffix)
	if err != nil {
		return nil, fmt.Errorf("introspection: open mutex: %w", err)
	}
	defer mutex.Close()

	sem, err := shm.OpenSemaphore(segmentName + semaphoreSuffix)
	if err != nil {
		return nil, fmt.Errorf("introspection: open semaphore: %w", err)
	}
	defer sem.Close()

	if err := sem.Wait(ctx); err != nil {
		return nil, fmt.Errorf("introspection: wait for readiness: %w", err)
	}
	if err := sem.Post(1); err != nil {
		return nil, fmt.Errorf("introspection: repost readiness: %w", err)
	}

	if err := mutex.RLock(); err != nil {
		return nil, fmt.Errorf("introspection: rlock: %w", err)
	}
	defer mutex.RUnlock()

	src := segment.Bytes()
	size := binary.LittleEndian.Uint64(src[:8])
	if size == 0 || int(size) > len(src)-8 {
		return nil, fmt.Errorf("introspection: segment %q has no published root", segmentName)
	}

	var root Root
	if err := gob.NewDecoder(bytes.NewReader(src[8 : 8+size])).Decode(&root); err != nil {
		return nil, fmt.Errorf("introspection: decode catalog: %w", err)
	}
	return &root, nil
}
