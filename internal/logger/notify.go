package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sink receives log records that cross the notify threshold. The Discord
// adapter implements this to mirror warnings into an instance's log channel.
type Sink interface {
	NotifyLog(ctx context.Context, level slog.Level, message string) error
}

// NotifyHandler is an slog.Handler that passes every record to the inner
// handler and additionally forwards records at or above Threshold to a Sink.
// Sink failures are swallowed; a broken notifier must never break logging.
type NotifyHandler struct {
	inner     slog.Handler
	sink      Sink
	threshold slog.Level
	timeout   time.Duration
	attrs     []slog.Attr
}

// NewNotifyHandler wraps inner with record mirroring to sink.
func NewNotifyHandler(inner slog.Handler, sink Sink, threshold slog.Level) *NotifyHandler {
	return &NotifyHandler{
		inner:     inner,
		sink:      sink,
		threshold: threshold,
		timeout:   10 * time.Second,
	}
}

// Enabled delegates to the inner handler.
func (h *NotifyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle forwards the record to the inner handler, then mirrors it to the
// sink if it meets the threshold.
func (h *NotifyHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	err := h.inner.Handle(ctx, rec)

	if h.sink != nil && rec.Level >= h.threshold {
		// Detach from the caller's context: a cancelled cycle should
		// still get its error mirrored.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		_ = h.sink.NotifyLog(nctx, rec.Level, formatRecord(rec, h.attrs))
	}

	return err
}

// WithAttrs returns a NotifyHandler carrying the extra attrs.
func (h *NotifyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &NotifyHandler{
		inner:     h.inner.WithAttrs(attrs),
		sink:      h.sink,
		threshold: h.threshold,
		timeout:   h.timeout,
		attrs:     merged,
	}
}

// WithGroup delegates grouping to the inner handler. Mirrored messages
// ignore groups; they are flat text for a chat channel.
func (h *NotifyHandler) WithGroup(name string) slog.Handler {
	return &NotifyHandler{
		inner:     h.inner.WithGroup(name),
		sink:      h.sink,
		threshold: h.threshold,
		timeout:   h.timeout,
		attrs:     h.attrs,
	}
}

// formatRecord renders a record as a single line of chat-friendly text.
func formatRecord(rec slog.Record, bound []slog.Attr) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(rec.Level.String())
	b.WriteString("] ")
	b.WriteString(rec.Message)
	for _, a := range bound {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	return b.String()
}
