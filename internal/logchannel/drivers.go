package logchannel

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/99souls/presentmon/internal/telemetry/metrics"
)

// TextDriver renders entries as single lines to an underlying writer,
// buffering writes and flushing on Flush. Mirrors the teacher's
// output.CompositeSink member sinks in spirit: a terminal, line-oriented
// sink with its own mutex rather than relying on the channel's.
type TextDriver struct {
	mu  sync.Mutex
	w   *bufio.Writer
	tag string
}

// NewTextDriver wraps w for buffered line output. tag names the driver for
// panic-logger attribution.
func NewTextDriver(tag string, w io.Writer) *TextDriver {
	return &TextDriver{w: bufio.NewWriter(w), tag: tag}
}

func (d *TextDriver) Name() string { return d.tag }

func (d *TextDriver) Submit(entry Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintf(d.w, "%s [%s] (%s) %s:%d %s %s\n",
		entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		entry.Severity, entry.CorrelationID, entry.File, entry.Line, entry.Function, entry.Note)
	if err != nil {
		return err
	}
	for _, wp := range entry.Watches {
		if _, err := fmt.Fprintf(d.w, "    %s = %s\n", wp.Symbol, wp.Value); err != nil {
			return err
		}
	}
	return nil
}

func (d *TextDriver) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.Flush()
}

// MetricsDriver records entries purely as counter increments, one per
// severity level, without rendering any text. It never fails Flush (there
// is nothing to flush) and exists to prove a driver can be a pure
// observability sink.
type MetricsDriver struct {
	counters map[Severity]metrics.Counter
}

// NewMetricsDriver builds a MetricsDriver that reports through p.
func NewMetricsDriver(p metrics.Provider) *MetricsDriver {
	d := &MetricsDriver{counters: make(map[Severity]metrics.Counter, 6)}
	for _, sev := range []Severity{SeverityTrace, SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical} {
		d.counters[sev] = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "presentmon",
			Subsystem: "logchannel",
			Name:      "entries_total",
			Help:      "log entries observed by severity",
			Labels:    []string{"severity"},
		}})
	}
	return d
}

func (d *MetricsDriver) Name() string { return "metrics-driver" }

func (d *MetricsDriver) Submit(entry Entry) error {
	if c, ok := d.counters[entry.Severity]; ok {
		c.Inc(1, entry.Severity.String())
	}
	return nil
}

func (d *MetricsDriver) Flush() error { return nil }
