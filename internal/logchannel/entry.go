package logchannel

import (
	"runtime"
	"time"

	"github.com/google/uuid"
)

// Severity is the level of a log entry, ordered least to most severe.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityTrace:
		return "TRACE"
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// StackTrace holds a captured call stack, either raw program counters
// (unresolved) or symbol names (resolved).
type StackTrace struct {
	PCs      []uintptr
	Frames   []string
	Resolved bool
}

// resolve symbolizes the captured program counters. Swallows no errors of
// its own (runtime.CallersFrames cannot fail) but is unsafe to call during
// process teardown, which is why the channel gates it behind a flag.
func (st *StackTrace) resolve() {
	if st == nil || st.Resolved || len(st.PCs) == 0 {
		return
	}
	frames := runtime.CallersFrames(st.PCs)
	for {
		frame, more := frames.Next()
		st.Frames = append(st.Frames, frame.Function)
		if !more {
			break
		}
	}
	st.Resolved = true
}

// WatchPair is a named, pre-rendered value attached to an entry for
// structured inspection (e.g. a variable dump at the log site).
type WatchPair struct {
	Symbol string
	Value  string
}

// Entry is a log record passed by value. Its slices are shared with the
// submitter, and the worker's components may rewrite them in place
// (RedactPolicy replaces watch values inside Watches).
type Entry struct {
	Severity  Severity
	File      string
	Function  string
	Line      int
	Timestamp time.Time
	ThreadID  int64
	ProcessID int
	Stack     *StackTrace
	Note      string
	Watches   []WatchPair

	// CorrelationID identifies this entry across drivers and, for entries
	// built from a watched request, lets an operator grep one call's
	// entries out of an interleaved multi-sink log.
	CorrelationID string
}

// EntryBuilder constructs an Entry. Call sites typically chain a handful of
// With* calls before Submit.
type EntryBuilder struct {
	entry Entry
}

// NewEntry starts building an entry at the given severity, capturing the
// call site of the NewEntry call itself.
func NewEntry(severity Severity) *EntryBuilder {
	b := &EntryBuilder{entry: Entry{Severity: severity, Timestamp: time.Now(), ProcessID: pid(), CorrelationID: uuid.NewString()}}
	if pc, file, line, ok := runtime.Caller(1); ok {
		b.entry.File = file
		b.entry.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			b.entry.Function = fn.Name()
		}
	}
	return b
}

func (b *EntryBuilder) WithNote(note string) *EntryBuilder {
	b.entry.Note = note
	return b
}

func (b *EntryBuilder) WithWatch(symbol, value string) *EntryBuilder {
	b.entry.Watches = append(b.entry.Watches, WatchPair{Symbol: symbol, Value: value})
	return b
}

// WithStack captures the current call stack (unresolved); resolution is
// deferred to the channel worker, unless trace resolution is disabled.
func (b *EntryBuilder) WithStack(skip int) *EntryBuilder {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	b.entry.Stack = &StackTrace{PCs: pcs[:n]}
	return b
}

func (b *EntryBuilder) WithThreadID(id int64) *EntryBuilder {
	b.entry.ThreadID = id
	return b
}

// Build finalizes the entry without submitting it (useful for tests).
func (b *EntryBuilder) Build() Entry { return b.entry }
