// Package logchannel implements the asynchronous, multi-sink structured
// logging channel described in spec.md §4.1: a single dedicated worker
// drains an MPSC queue of log entries and control packets, applying an
// ordered policy chain before fanning accepted entries out to every
// attached driver. The queue is a channel buffered to 4096 packets, so it
// is bounded: Submit blocks while 4096 packets are waiting. Every other
// operation serializes behind the worker.
//
// Architecture mirrors the teacher's internal pipeline worker pool
// (engine/internal/pipeline): a context-cancellable goroutine drains a
// buffered channel under a WaitGroup, with the same "close a done channel
// to signal waiters" idiom used here for Flush/Kill semantics instead of
// stage completion.
package logchannel

import (
	"errors"
	"sync"

	"github.com/99souls/presentmon/internal/telemetry/metrics"
)

// ErrNoDrivers is returned (and routed to the panic logger, per spec.md
// §4.1) when a log entry reaches the end of the policy chain but zero
// drivers are attached: a misconfiguration, since nothing would ever
// observe the entry.
var ErrNoDrivers = errors.New("logchannel: no drivers attached")

// Channel is the async logging channel. Zero value is not usable; construct
// with New.
type Channel struct {
	queue chan *packet

	mu           sync.Mutex // guards policies/drivers/objects; held only by the worker
	policies     []namedPolicy
	drivers      []namedDriver
	objects      []Object
	resolveStack bool

	done chan struct{} // closed when the worker goroutine exits

	metrics channelMetrics
}

type namedPolicy struct {
	Policy
}
type namedDriver struct {
	Driver
}

type channelMetrics struct {
	submitted metrics.Counter
	dropped   metrics.Counter
	faulted   metrics.Counter
}

// Option configures a Channel at construction.
type Option func(*Channel)

// WithMetrics wires a metrics.Provider for submission/drop/fault counters.
func WithMetrics(p metrics.Provider) Option {
	return func(c *Channel) {
		if p == nil {
			return
		}
		c.metrics.submitted = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "presentmon", Subsystem: "logchannel", Name: "submitted_total", Help: "entries submitted to the log channel"}})
		c.metrics.dropped = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "presentmon", Subsystem: "logchannel", Name: "dropped_total", Help: "entries dropped by a policy"}})
		c.metrics.faulted = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "presentmon", Subsystem: "logchannel", Name: "faulted_total", Help: "component faults routed to the panic logger"}})
	}
}

// New constructs a Channel and starts its worker goroutine immediately.
func New(opts ...Option) *Channel {
	c := &Channel{
		queue:        make(chan *packet, 4096),
		resolveStack: true,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c
}

// Submit enqueues an entry for asynchronous processing. It blocks only for
// the channel send, which waits while the 4096-packet queue is full, and
// never returns an error describing processing outcome — per-entry faults
// are reported through the panic logger, not back to the submitter.
func (c *Channel) Submit(entry Entry) {
	if c.metrics.submitted != nil {
		c.metrics.submitted.Inc(1)
	}
	c.queue <- &packet{kind: packetLogEntry, entry: entry}
}

// Flush blocks until every entry submitted before this call has been
// delivered (or dropped by policy) with respect to every attached driver,
// then blocks until every driver's own Flush returns.
func (c *Channel) Flush() {
	c.sendControl(packetFlush)
}

// AttachComponent attaches a Driver, Policy, or Object. The component's
// capability set is determined by type assertion; attaching something that
// satisfies zero or more than one of the three capabilities is an error.
// Attachment is processed on the worker so it is totally ordered with
// entry processing (spec.md §4.1 "Attachment rule").
func (c *Channel) AttachComponent(component interface{}) error {
	cap, _, err := classify(component)
	if err != nil {
		return err
	}
	req := &attachRequest{cap: cap, component: component, result: make(chan error, 1)}
	done := make(chan struct{})
	c.queue <- &packet{kind: packetAttach, attach: req, done: done}
	<-done
	return <-req.result
}

// FlushEntryPointExit drains the queue while disabling stack-trace
// resolution, for use at process-shutdown when the symbolizer is unsafe to
// call (spec.md §4.1).
func (c *Channel) FlushEntryPointExit() {
	c.sendControl(packetFlushEntryPointExit)
}

// Close enqueues a kill packet asynchronously (without waiting, per spec.md
// §4.1 "Shutdown") and then joins the worker. Entries submitted after Close
// is called race with shutdown and may be lost; Close itself blocks until
// the worker has drained up to and including the kill packet.
func (c *Channel) Close() {
	c.queue <- &packet{kind: packetKill}
	<-c.done
}

func (c *Channel) sendControl(kind packetKind) {
	done := make(chan struct{})
	c.queue <- &packet{kind: kind, done: done}
	<-done
}

func (c *Channel) run() {
	defer close(c.done)
	for p := range c.queue {
		switch p.kind {
		case packetLogEntry:
			c.processEntry(p.entry)
		case packetFlush:
			c.flushDrivers()
			p.signal()
		case packetFlushEntryPointExit:
			c.mu.Lock()
			c.resolveStack = false
			c.mu.Unlock()
			c.flushDrivers()
			p.signal()
		case packetKill:
			p.signal()
			return
		case packetAttach:
			c.doAttach(p.attach)
			p.signal()
		}
	}
}

func (c *Channel) doAttach(req *attachRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch req.cap {
	case capDriver:
		c.drivers = append(c.drivers, namedDriver{req.component.(Driver)})
	case capPolicy:
		c.policies = append(c.policies, namedPolicy{req.component.(Policy)})
	case capObject:
		c.objects = append(c.objects, req.component.(Object))
	}
	req.result <- nil
}

func (c *Channel) flushDrivers() {
	c.mu.Lock()
	drivers := append([]namedDriver(nil), c.drivers...)
	c.mu.Unlock()
	for _, d := range drivers {
		func(d namedDriver) {
			defer func() {
				if r := recover(); r != nil {
					GlobalPanicLogger().Report("driver:"+d.Name()+":flush", r)
					if c.metrics.faulted != nil {
						c.metrics.faulted.Inc(1)
					}
				}
			}()
			if err := d.Flush(); err != nil {
				GlobalPanicLogger().Report("driver:"+d.Name()+":flush", err)
			}
		}(d)
	}
}

func (c *Channel) processEntry(entry Entry) {
	c.mu.Lock()
	policies := append([]namedPolicy(nil), c.policies...)
	drivers := append([]namedDriver(nil), c.drivers...)
	resolveStack := c.resolveStack
	c.mu.Unlock()

	for _, pol := range policies {
		accept := c.applyPolicy(pol, &entry)
		if !accept {
			if c.metrics.dropped != nil {
				c.metrics.dropped.Inc(1)
			}
			return
		}
	}

	if entry.Stack != nil && !entry.Stack.Resolved && resolveStack {
		func() {
			defer func() {
				if r := recover(); r != nil {
					GlobalPanicLogger().Report("stack-resolve", r)
				}
			}()
			entry.Stack.resolve()
		}()
	}

	if len(drivers) == 0 {
		GlobalPanicLogger().Report("logchannel", ErrNoDrivers)
		return
	}

	for _, d := range drivers {
		c.submitToDriver(d, entry)
	}
}

func (c *Channel) applyPolicy(pol namedPolicy, entry *Entry) (accept bool) {
	accept = true
	func() {
		defer func() {
			if r := recover(); r != nil {
				GlobalPanicLogger().Report("policy:"+pol.Name(), r)
				if c.metrics.faulted != nil {
					c.metrics.faulted.Inc(1)
				}
				accept = true // a faulting policy must not silently drop the entry
			}
		}()
		accept = pol.Apply(entry)
	}()
	return accept
}

func (c *Channel) submitToDriver(d namedDriver, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			GlobalPanicLogger().Report("driver:"+d.Name(), r)
			if c.metrics.faulted != nil {
				c.metrics.faulted.Inc(1)
			}
		}
	}()
	if err := d.Submit(entry); err != nil {
		GlobalPanicLogger().Report("driver:"+d.Name(), err)
	}
}
