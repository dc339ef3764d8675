package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// AsyncHandler decouples log producers from slow sinks by queueing records
// on a buffered channel. A single drain goroutine preserves record order,
// which matters when the inner handler forwards to a chat channel. When the
// queue is full records are dropped rather than blocking a think cycle.
type AsyncHandler struct {
	inner   slog.Handler
	ch      chan slog.Record
	done    chan struct{}
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a queue of the given capacity and starts
// the drain goroutine. Call Close on shutdown to flush queued records.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		ch:      make(chan slog.Record, capacity),
		done:    make(chan struct{}),
		dropped: &atomic.Int64{},
	}
	go h.drain()
	return h
}

func (h *AsyncHandler) drain() {
	defer close(h.done)
	for rec := range h.ch {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues a clone of the record, since the caller may reuse its
// backing storage once Handle returns. Drops when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.ch <- rec.Clone():
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing this queue over a re-attributed inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		ch:      h.ch,
		done:    h.done,
		dropped: h.dropped,
	}
}

// WithGroup returns a handler sharing this queue over a grouped inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		ch:      h.ch,
		done:    h.done,
		dropped: h.dropped,
	}
}

// DroppedCount reports how many records were discarded because the queue was full.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and blocks until the queue is drained.
func (h *AsyncHandler) Close() {
	close(h.ch)
	<-h.done
}
