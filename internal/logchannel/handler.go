package logchannel

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/google/uuid"
)

// Handler adapts a Channel into an slog.Handler, so the rest of the service
// can use an idiomatic slog.Logger while every record actually flows
// through the async channel's policy chain and driver fan-out (SPEC_FULL.md
// §A.1). It is deliberately thin: formatting and filtering stay in the
// channel's policies and drivers, not here.
type Handler struct {
	channel *Channel
	attrs   []slog.Attr
	group   string
}

// NewHandler wraps c as an slog.Handler.
func NewHandler(c *Channel) *Handler {
	return &Handler{channel: c}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	entry := Entry{
		Severity:      severityFromLevel(record.Level),
		Timestamp:     record.Time,
		Note:          record.Message,
		ProcessID:     pid(),
		CorrelationID: uuid.NewString(),
	}
	if record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		if frame, _ := frames.Next(); frame.PC != 0 {
			entry.File = frame.File
			entry.Line = frame.Line
			entry.Function = frame.Function
		}
	}
	builder := &EntryBuilder{entry: entry}
	for _, a := range h.attrs {
		builder = builder.WithWatch(h.qualify(a.Key), a.Value.String())
	}
	record.Attrs(func(a slog.Attr) bool {
		builder = builder.WithWatch(h.qualify(a.Key), a.Value.String())
		return true
	})
	h.channel.Submit(builder.Build())
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &Handler{channel: h.channel, group: h.group}
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	next := &Handler{channel: h.channel, attrs: h.attrs}
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return next
}

func (h *Handler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func severityFromLevel(level slog.Level) Severity {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarning
	case level >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}
