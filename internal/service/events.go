package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/echo-agent/echochamber/internal/adapter/otel"
	"github.com/echo-agent/echochamber/internal/adapter/ws"
	"github.com/echo-agent/echochamber/internal/domain/echo"
	"github.com/echo-agent/echochamber/internal/port/broadcast"
	"github.com/echo-agent/echochamber/internal/port/eventstore"
	"github.com/echo-agent/echochamber/internal/port/messagequeue"
)

// Events fans runtime events out to the message queue, the event journal
// and connected WebSocket clients. Every sink is optional; publishing is
// fire-and-forget and never fails the caller.
type Events struct {
	queue       messagequeue.Queue
	journal     eventstore.Store
	broadcaster broadcast.Broadcaster
	metrics     *otel.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewEvents creates the event fan-out. Any of queue, journal and
// broadcaster may be nil.
func NewEvents(queue messagequeue.Queue, journal eventstore.Store, broadcaster broadcast.Broadcaster, logger *slog.Logger) *Events {
	return &Events{
		queue:       queue,
		journal:     journal,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// WithMetrics attaches metric instruments. Returns e for chaining.
func (e *Events) WithMetrics(m *otel.Metrics) *Events {
	e.metrics = m
	return e
}

// StateChanged records a lifecycle transition.
func (e *Events) StateChanged(ctx context.Context, instanceID string, state echo.State, reason string) {
	e.emit(ctx, echo.Event{
		InstanceID: instanceID,
		Type:       echo.EventStateChanged,
		State:      state,
		Reason:     reason,
	}, messagequeue.SubjectState)

	if e.broadcaster != nil {
		e.broadcaster.BroadcastEvent(ctx, ws.EventState, ws.StateEvent{
			InstanceID: instanceID,
			State:      string(state),
			Reason:     reason,
		})
	}
}

// CycleStarted records the start of a think cycle.
func (e *Events) CycleStarted(ctx context.Context, instanceID, reason string) {
	if e.metrics != nil {
		e.metrics.CyclesRun.Add(ctx, 1)
	}
	e.cycle(ctx, instanceID, echo.EventCycleStarted, "started", reason, 0)
}

// CycleFinished records a completed think cycle with its token spend, cost
// and duration.
func (e *Events) CycleFinished(ctx context.Context, instanceID string, tokens int64, cost float64, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.TokensUsed.Add(ctx, tokens)
		e.metrics.CycleCost.Record(ctx, cost)
		e.metrics.CycleDuration.Record(ctx, elapsed.Seconds())
	}
	e.cycle(ctx, instanceID, echo.EventCycleFinished, "finished", "", tokens)
}

// CycleSkipped records a cycle that the preconditions declined.
func (e *Events) CycleSkipped(ctx context.Context, instanceID, reason string) {
	if e.metrics != nil {
		e.metrics.CyclesSkipped.Add(ctx, 1)
	}
	e.cycle(ctx, instanceID, echo.EventCycleSkipped, "skipped", reason, 0)
}

// CycleFailed counts a failed cycle. Failures are logged where they happen;
// this only feeds the metric.
func (e *Events) CycleFailed(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.CyclesFailed.Add(ctx, 1)
	}
}

// ToolCalled counts one tool invocation.
func (e *Events) ToolCalled(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.ToolCalls.Add(ctx, 1)
	}
}

// Thinking forwards one rendered thinking item to WebSocket clients. It is
// deliberately not journaled; thinking text goes to the chat transport's
// thinking channel for durable display.
func (e *Events) Thinking(ctx context.Context, instanceID, text string) {
	if e.broadcaster == nil {
		return
	}
	e.broadcaster.BroadcastEvent(ctx, ws.EventThinking, ws.ThinkingEvent{
		InstanceID: instanceID,
		Text:       text,
		Timestamp:  e.now(),
	})
}

func (e *Events) cycle(ctx context.Context, instanceID string, typ echo.EventType, phase, reason string, tokens int64) {
	e.emit(ctx, echo.Event{
		InstanceID: instanceID,
		Type:       typ,
		Reason:     reason,
		Tokens:     tokens,
	}, messagequeue.SubjectCycle)

	if e.broadcaster != nil {
		e.broadcaster.BroadcastEvent(ctx, ws.EventCycle, ws.CycleEvent{
			InstanceID: instanceID,
			Phase:      phase,
			Reason:     reason,
			Tokens:     tokens,
		})
	}
}

func (e *Events) emit(ctx context.Context, ev echo.Event, suffix string) {
	ev.ID = uuid.NewString()
	ev.Timestamp = e.now()

	if e.journal != nil {
		if err := e.journal.Append(ctx, ev); err != nil {
			e.logger.Warn("event journal append failed",
				"instance_id", ev.InstanceID, "type", ev.Type, "error", err)
		}
	}

	if e.queue != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			e.logger.Warn("event marshal failed", "type", ev.Type, "error", err)
			return
		}
		if err := e.queue.Publish(ctx, messagequeue.Subject(ev.InstanceID, suffix), data); err != nil {
			e.logger.Warn("event publish failed",
				"instance_id", ev.InstanceID, "type", ev.Type, "error", err)
		}
	}
}
