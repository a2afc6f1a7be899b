package ringregistry

import (
	"fmt"
	"testing"

	"github.com/99souls/presentmon/internal/shm"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseLifecycle(t *testing.T) {
	shm.Dir = t.TempDir()
	reg := New(Config{MaxEntries: 4, TicksPerSecond: 1}, func(pid uint32) string {
		return fmt.Sprintf("reg-test-%d", pid)
	})

	w1, err := reg.Acquire(42)
	require.NoError(t, err)
	require.Equal(t, 1, reg.RefCount(42))

	w2, err := reg.Acquire(42)
	require.NoError(t, err)
	require.Same(t, w1, w2)
	require.Equal(t, 2, reg.RefCount(42))

	require.NoError(t, reg.Release(42))
	require.Equal(t, 1, reg.RefCount(42))

	require.NoError(t, reg.Release(42))
	require.Equal(t, 0, reg.RefCount(42))
}

func TestReleaseUnknownPidErrors(t *testing.T) {
	shm.Dir = t.TempDir()
	reg := New(Config{MaxEntries: 4, TicksPerSecond: 1}, nil)
	require.Error(t, reg.Release(7))
}
