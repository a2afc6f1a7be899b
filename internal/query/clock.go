// Package query implements the dynamic query engine (spec.md §4.4): given
// a registered handle describing a time window, an offset, and a list of
// (metric, statistic) elements, it walks a process's frame ring backward
// from the latest record, aggregates per-swap-chain derived intervals, and
// writes out the requested statistics.
package query

import "time"

// Clock abstracts the high-resolution counter the original reads via
// QueryPerformanceCounter, the same way engine/ratelimit.Clock abstracts
// wall-clock time for deterministic rate-limit tests — here so the
// clock-skew-smoothing scenario (spec.md §8 "Clock-skew adaptation") can be
// driven by a fake rather than real sleeps.
type Clock interface {
	// NowQPC returns the current tick count in the same units as
	// FrameRecord timestamps.
	NowQPC() uint64
}

// systemClock ticks in nanoseconds, standing in for the platform's
// QueryPerformanceCounter; TicksPerSecond for a ring produced by this
// clock is 1e9.
type systemClock struct{}

func (systemClock) NowQPC() uint64 { return uint64(time.Now().UnixNano()) }

// NewSystemClock returns the default Clock used outside of tests.
func NewSystemClock() Clock { return systemClock{} }
