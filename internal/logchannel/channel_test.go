package logchannel

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingDriver captures every submitted entry for assertion, guarded by
// its own mutex since the worker calls Submit from a single goroutine but
// tests read the slice from another.
type recordingDriver struct {
	mu      sync.Mutex
	name    string
	entries []Entry
	flushes int
	failOn  string
}

func (d *recordingDriver) Name() string { return d.name }

func (d *recordingDriver) Submit(entry Entry) error {
	if d.failOn != "" && entry.Note == d.failOn {
		return errors.New("simulated driver failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
	return nil
}

func (d *recordingDriver) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
	return nil
}

func (d *recordingDriver) snapshot() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Entry(nil), d.entries...)
}

func TestChannelSingleEntrySingleDriver(t *testing.T) {
	ch := New()
	defer ch.Close()

	drv := &recordingDriver{name: "rec"}
	require.NoError(t, ch.AttachComponent(drv))

	ch.Submit(NewEntry(SeverityInfo).WithNote("hello").Build())
	ch.Flush()

	entries := drv.snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "hello", entries[0].Note)
}

func TestChannelPolicyDrop(t *testing.T) {
	ch := New()
	defer ch.Close()

	drv := &recordingDriver{name: "rec"}
	require.NoError(t, ch.AttachComponent(drv))
	require.NoError(t, ch.AttachComponent(&LevelFilterPolicy{Threshold: SeverityWarning}))

	ch.Submit(NewEntry(SeverityDebug).WithNote("dropped").Build())
	ch.Submit(NewEntry(SeverityError).WithNote("kept").Build())
	ch.Flush()

	entries := drv.snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "kept", entries[0].Note)
}

func TestChannelOrderPreservation(t *testing.T) {
	ch := New()
	defer ch.Close()

	drv := &recordingDriver{name: "rec"}
	require.NoError(t, ch.AttachComponent(drv))

	for i := 0; i < 100; i++ {
		ch.Submit(NewEntry(SeverityInfo).WithWatch("i", string(rune('0'+i%10))).Build())
	}
	ch.Flush()

	entries := drv.snapshot()
	require.Len(t, entries, 100)
	for i, e := range entries {
		require.Equal(t, string(rune('0'+i%10)), e.Watches[0].Value)
	}
}

func TestChannelFlushLinearizesAgainstSubmit(t *testing.T) {
	ch := New()
	defer ch.Close()

	drv := &recordingDriver{name: "rec"}
	require.NoError(t, ch.AttachComponent(drv))

	for i := 0; i < 20; i++ {
		ch.Submit(NewEntry(SeverityInfo).Build())
	}
	ch.Flush()
	require.Len(t, drv.snapshot(), 20)
	require.Equal(t, 1, drv.flushes)
}

func TestChannelZeroDriversRoutesToPanicLogger(t *testing.T) {
	ch := New()
	defer ch.Close()

	ch.Submit(NewEntry(SeverityInfo).WithNote("nobody listens").Build())
	ch.Flush()

	found := false
	for _, rec := range GlobalPanicLogger().Snapshot() {
		if rec.Source == "logchannel" {
			found = true
		}
	}
	require.True(t, found)
}

func TestChannelAmbiguousComponentRejected(t *testing.T) {
	ch := New()
	defer ch.Close()

	err := ch.AttachComponent(&bothDriverAndPolicy{})
	require.Error(t, err)
	var ambiguous *ErrAmbiguousComponent
	require.ErrorAs(t, err, &ambiguous)
	require.Equal(t, 2, ambiguous.Matched)
}

type bothDriverAndPolicy struct{}

func (*bothDriverAndPolicy) Name() string      { return "confused" }
func (*bothDriverAndPolicy) Submit(Entry) error { return nil }
func (*bothDriverAndPolicy) Flush() error       { return nil }
func (*bothDriverAndPolicy) Apply(*Entry) bool  { return true }

func TestChannelFaultingPolicyDefaultsToAccept(t *testing.T) {
	ch := New()
	defer ch.Close()

	drv := &recordingDriver{name: "rec"}
	require.NoError(t, ch.AttachComponent(drv))
	require.NoError(t, ch.AttachComponent(&panickyPolicy{}))

	ch.Submit(NewEntry(SeverityInfo).WithNote("survives").Build())
	ch.Flush()

	entries := drv.snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "survives", entries[0].Note)
}

type panickyPolicy struct{}

func (*panickyPolicy) Name() string { return "panicky" }
func (*panickyPolicy) Apply(*Entry) bool {
	panic("policy exploded")
}

func TestChannelFaultingDriverDoesNotStopOthers(t *testing.T) {
	ch := New()
	defer ch.Close()

	good := &recordingDriver{name: "good"}
	bad := &recordingDriver{name: "bad", failOn: "trigger"}
	require.NoError(t, ch.AttachComponent(good))
	require.NoError(t, ch.AttachComponent(bad))

	ch.Submit(NewEntry(SeverityInfo).WithNote("trigger").Build())
	ch.Flush()

	require.Len(t, good.snapshot(), 1)
	require.Len(t, bad.snapshot(), 0)
}

func TestTextDriverRendersWatches(t *testing.T) {
	var buf bytes.Buffer
	drv := NewTextDriver("text", &buf)
	require.NoError(t, drv.Submit(NewEntry(SeverityInfo).WithNote("n").WithWatch("x", "1").Build()))
	require.NoError(t, drv.Flush())
	require.Contains(t, buf.String(), "x = 1")
}

func TestHandlerBridgesSlogToChannel(t *testing.T) {
	ch := New()
	defer ch.Close()
	drv := &recordingDriver{name: "rec"}
	require.NoError(t, ch.AttachComponent(drv))

	handler := NewHandler(ch)
	logger := slog.New(handler)
	logger.Info("via slog", "key", "value")
	ch.Flush()

	entries := drv.snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "via slog", entries[0].Note)
}

func TestRedactPolicyScrubsMatchingWatches(t *testing.T) {
	entry := NewEntry(SeverityInfo).WithWatch("password", "hunter2").WithWatch("user", "alice").Build()
	pol := &RedactPolicy{Symbols: []string{"password"}}
	require.True(t, pol.Apply(&entry))
	require.Equal(t, "[REDACTED]", entry.Watches[0].Value)
	require.Equal(t, "alice", entry.Watches[1].Value)
}

func TestProcessTableLookupAndForget(t *testing.T) {
	table := NewProcessTable()
	table.Record(42, "present_mon")
	name, ok := table.Lookup(42)
	require.True(t, ok)
	require.Equal(t, "present_mon", name)

	table.Forget(42)
	_, ok = table.Lookup(42)
	require.False(t, ok)
}
