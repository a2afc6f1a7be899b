package ring

import (
	"testing"

	"github.com/99souls/presentmon/internal/shm"
	"github.com/stretchr/testify/require"
)

func freshDir(t *testing.T) {
	t.Helper()
	shm.Dir = t.TempDir()
}

func TestWriterReaderRoundTrip(t *testing.T) {
	freshDir(t)
	w, err := NewWriter("test-ring", 4, 10_000_000)
	require.NoError(t, err)
	defer w.Close()

	r, err := OpenReader("test-ring")
	require.NoError(t, err)
	defer r.Close()

	_, ok := r.GetLatestFrameIndex()
	require.False(t, ok, "empty ring should report no latest frame")

	w.Push(FrameRecord{SwapChainAddress: 1, PresentStartQPC: 100})
	w.Push(FrameRecord{SwapChainAddress: 1, PresentStartQPC: 200})

	idx, ok := r.GetLatestFrameIndex()
	require.True(t, ok)
	require.Equal(t, FrameRecord{SwapChainAddress: 1, PresentStartQPC: 200}, r.ReadAt(idx))

	prev, ok := r.DecrementIndex(idx)
	require.True(t, ok)
	require.Equal(t, FrameRecord{SwapChainAddress: 1, PresentStartQPC: 100}, r.ReadAt(prev))

	_, ok = r.DecrementIndex(prev)
	require.False(t, ok, "walking before the oldest entry must cross head_idx")
}

func TestRingWrapSetsIsFull(t *testing.T) {
	freshDir(t)
	w, err := NewWriter("test-ring-wrap", 3, 1)
	require.NoError(t, err)
	defer w.Close()

	r, err := OpenReader("test-ring-wrap")
	require.NoError(t, err)
	defer r.Close()

	for i := uint64(0); i < 3; i++ {
		w.Push(FrameRecord{PresentStartQPC: i})
	}
	require.True(t, w.header.isFull())

	w.Push(FrameRecord{PresentStartQPC: 99})
	idx, ok := r.GetLatestFrameIndex()
	require.True(t, ok)
	require.Equal(t, uint64(99), r.ReadAt(idx).PresentStartQPC)
}

func TestProcessActiveGatesReads(t *testing.T) {
	freshDir(t)
	w, err := NewWriter("test-ring-active", 4, 1)
	require.NoError(t, err)

	r, err := OpenReader("test-ring-active")
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.ProcessActive())
	w.Push(FrameRecord{PresentStartQPC: 1})
	require.NoError(t, w.Close())
	require.False(t, r.ProcessActive())

	idx, _ := r.GetLatestFrameIndex()
	_, ok := r.DecrementIndex(idx)
	require.False(t, ok)
}
