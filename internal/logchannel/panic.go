package logchannel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// panicLogRecord is one best-effort diagnostic captured when a policy,
// resolver, or driver faults. Kept deliberately small: this path must
// remain infallible even under memory pressure or during teardown.
type panicLogRecord struct {
	Time    time.Time
	Source  string
	Message string
}

const panicRingCapacity = 256

// panicLogger is the sink of last resort (spec.md §7): a bounded ring
// buffer writable from any goroutine, including ones recovering from a
// panic. Records live in a fixed backing array; Report still allocates the
// message text of each record (fmt.Sprint), and never itself panics.
type panicLogger struct {
	mu     sync.Mutex
	buf    [panicRingCapacity]panicLogRecord
	cursor uint64
	count  uint64
}

var (
	globalPanicLogger *panicLogger
	panicLoggerOnce   sync.Once
)

// GlobalPanicLogger returns the process-wide panic logger singleton,
// constructed lazily on first use and never torn down (it must outlive
// every Channel, since drivers/policies can fault up to the last entry
// processed during FlushEntryPointExit).
func GlobalPanicLogger() *panicLogger {
	panicLoggerOnce.Do(func() { globalPanicLogger = &panicLogger{} })
	return globalPanicLogger
}

// Report records a best-effort diagnostic. Safe to call concurrently, safe
// to call from a recover() handler, and safe to call during process
// teardown.
func (p *panicLogger) Report(source string, err interface{}) {
	defer func() { _ = recover() }() // this sink must never itself panic
	idx := atomic.AddUint64(&p.count, 1) - 1
	slot := idx % panicRingCapacity
	rec := panicLogRecord{Time: time.Now(), Source: source, Message: fmt.Sprint(err)}
	p.mu.Lock()
	p.buf[slot] = rec
	p.cursor = idx
	p.mu.Unlock()
}

// Snapshot returns the most recent records, oldest first, for diagnostics
// tooling. Never used on the hot path.
func (p *panicLogger) Snapshot() []panicLogRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.count
	if n > panicRingCapacity {
		n = panicRingCapacity
	}
	out := make([]panicLogRecord, 0, n)
	start := uint64(0)
	if p.count > panicRingCapacity {
		start = p.count - panicRingCapacity
	}
	for i := start; i < p.count; i++ {
		out = append(out, p.buf[i%panicRingCapacity])
	}
	return out
}

// recoverInto calls fn and, on panic, routes the recovered value to the
// global panic logger tagged with source, then continues — it never
// re-panics and never returns the panic as an error.
func recoverInto(source string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			GlobalPanicLogger().Report(source, r)
		}
	}()
	fn()
}
