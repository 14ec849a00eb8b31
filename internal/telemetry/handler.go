package telemetry

import (
	"context"
	"log/slog"
)

// Handler is a slog.Handler that tees every record into a Recorder while
// delegating to a base handler. It makes the telemetry sink one registered
// listener on the logging pipeline rather than an override of process output.
type Handler struct {
	base     slog.Handler
	recorder *Recorder
	attrs    []slog.Attr
}

// NewHandler wraps base so records are also captured by rec.
func NewHandler(base slog.Handler, rec *Recorder) *Handler {
	return &Handler{base: base, recorder: rec}
}

// Enabled defers to the base handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle captures the record and forwards it. A "depositor" attribute tags
// the entry for per-user filtering; warnings and errors are always marked
// relevant, as is anything carrying an explicit "relevant" attribute.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	var depositor string
	relevant := rec.Level >= slog.LevelWarn

	collect := func(a slog.Attr) {
		switch a.Key {
		case "depositor":
			depositor = a.Value.String()
		case "relevant":
			relevant = relevant || a.Value.Bool()
		}
	}
	for _, a := range h.attrs {
		collect(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	h.recorder.Record(Entry{
		Time:      rec.Time,
		Level:     rec.Level.String(),
		Depositor: depositor,
		Relevant:  relevant,
		Message:   rec.Message,
	})
	return h.base.Handle(ctx, rec)
}

// WithAttrs returns a handler that tracks the added attributes so depositor
// tags survive logger.With chains.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{base: h.base.WithAttrs(attrs), recorder: h.recorder, attrs: merged}
}

// WithGroup defers grouping to the base handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{base: h.base.WithGroup(name), recorder: h.recorder, attrs: h.attrs}
}
