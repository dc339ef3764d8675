package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/echo-agent/echochamber/internal/adapter/otel"
	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/domain/echo"
	"github.com/echo-agent/echochamber/internal/domain/usage"
	"github.com/echo-agent/echochamber/internal/port/chat"
	"github.com/echo-agent/echochamber/internal/port/embedding"
	"github.com/echo-agent/echochamber/internal/port/storage"
)

// Deps bundles the ports one instance's runtime operates against.
type Deps struct {
	Store    storage.Store
	Chat     chat.Transport
	Embedder embedding.Service
	Logger   *slog.Logger
}

// ErrRejected is returned when a lifecycle transition is declined, for
// example waking a sleeping instance without force.
var ErrRejected = fmt.Errorf("transition rejected")

// Lifecycle is the state machine for one instance. All methods must be
// called from the instance's worker goroutine; the supervisor supplies that
// serialization.
type Lifecycle struct {
	inst    config.Instance
	policy  config.Agent
	deps    Deps
	precond *Precondition
	engine  *Engine
	events  *Events
	logger  *slog.Logger
	now     func() time.Time
}

// NewLifecycle creates the controller for one instance.
func NewLifecycle(inst config.Instance, policy config.Agent, deps Deps, precond *Precondition, engine *Engine, events *Events) *Lifecycle {
	return &Lifecycle{
		inst:    inst,
		policy:  policy,
		deps:    deps,
		precond: precond,
		engine:  engine,
		events:  events,
		logger:  deps.Logger.With("instance_id", inst.ID),
		now:     time.Now,
	}
}

// State loads the persisted lifecycle state, defaulting to Idling.
func (l *Lifecycle) State(ctx context.Context) (echo.State, error) {
	var s echo.State
	ok, err := storage.GetJSON(ctx, l.deps.Store, l.inst.ID, storage.KeyState, &s)
	if err != nil {
		return "", fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return echo.StateIdling, nil
	}
	return s, nil
}

func (l *Lifecycle) setState(ctx context.Context, s echo.State, reason string) error {
	if err := storage.PutJSON(ctx, l.deps.Store, l.inst.ID, storage.KeyState, s); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	l.logger.Info("state changed", "state", s, "reason", reason)
	l.events.StateChanged(ctx, l.inst.ID, s, reason)
	return nil
}

// Wake transitions to Idling and arms the next alarm. A sleeping instance
// refuses to wake unless forced.
func (l *Lifecycle) Wake(ctx context.Context, force bool) error {
	state, err := l.State(ctx)
	if err != nil {
		return err
	}
	if state == echo.StateSleeping && !force {
		l.logger.Info("wake rejected while sleeping")
		return fmt.Errorf("wake while sleeping: %w", ErrRejected)
	}

	if err := l.armAlarm(ctx, l.now().Add(l.policy.AlarmInterval)); err != nil {
		return err
	}
	if state == echo.StateIdling {
		return nil
	}
	return l.setState(ctx, echo.StateIdling, "woken")
}

// Sleep transitions to Sleeping and cancels the pending alarm. A running
// instance refuses to sleep unless forced.
func (l *Lifecycle) Sleep(ctx context.Context, force bool) error {
	state, err := l.State(ctx)
	if err != nil {
		return err
	}
	if state == echo.StateSleeping {
		return nil
	}
	if state == echo.StateRunning && !force {
		l.logger.Info("sleep rejected while running")
		return fmt.Errorf("sleep while running: %w", ErrRejected)
	}

	if err := l.deps.Store.DeleteAlarm(ctx, l.inst.ID); err != nil {
		return fmt.Errorf("cancel alarm: %w", err)
	}
	return l.setState(ctx, echo.StateSleeping, "sleeping")
}

// Alarm handles one scheduled wake-up. The next alarm is re-armed before
// anything else so a crash mid-cycle cannot strand the instance without
// future wake-ups. The quiet window is applied before running: the instance
// goes to sleep for the evening at the configured hour and is woken again
// after it ends.
func (l *Lifecycle) Alarm(ctx context.Context) {
	if err := l.armAlarm(ctx, l.now().Add(l.policy.AlarmInterval)); err != nil {
		l.logger.Error("alarm re-arm failed", "error", err)
	}

	state, err := l.State(ctx)
	if err != nil {
		l.logger.Error("alarm state load failed", "error", err)
		return
	}

	local := l.now().In(usage.Zone)
	switch state {
	case echo.StateSleeping:
		if local.Hour() != l.policy.WakeHour {
			return
		}
		if err := l.Wake(ctx, true); err != nil {
			l.logger.Error("quiet window wake failed", "error", err)
			return
		}
	case echo.StateIdling:
		if local.Hour() == l.policy.SleepHour {
			if err := l.Sleep(ctx, false); err != nil {
				l.logger.Error("quiet window sleep failed", "error", err)
				return
			}
			if err := l.armAlarm(ctx, l.nextHour(local, l.policy.WakeHour)); err != nil {
				l.logger.Error("quiet window wake alarm failed", "error", err)
			}
			return
		}
	}

	l.Run(ctx)
}

// Run executes one think cycle when the preconditions allow it. Failures
// are logged and the state always returns to Idling.
func (l *Lifecycle) Run(ctx context.Context) {
	state, err := l.State(ctx)
	if err != nil {
		l.logger.Error("run state load failed", "error", err)
		return
	}
	if state != echo.StateIdling {
		l.logger.Debug("run skipped", "state", state)
		return
	}

	decision := l.precond.Evaluate(ctx, l.inst)
	if !decision.Run {
		l.logger.Info("cycle skipped", "reason", decision.Reason)
		l.events.CycleSkipped(ctx, l.inst.ID, decision.Reason)
		return
	}

	if err := l.setState(ctx, echo.StateRunning, decision.Reason); err != nil {
		l.logger.Error("run start failed", "error", err)
		return
	}
	l.events.CycleStarted(ctx, l.inst.ID, decision.Reason)

	started := l.now()
	cycleCtx, cancel := context.WithTimeout(ctx, l.policy.CycleTimeout)
	cycleCtx, span := otel.StartCycleSpan(cycleCtx, l.inst.ID, decision.Reason)
	tc := buildToolContext(l.inst, l.deps, l.now)
	raw, thinkErr := l.engine.Think(cycleCtx, tc)
	span.End()
	cancel()
	if thinkErr != nil {
		l.logger.Error("think cycle failed", "error", thinkErr)
		l.events.CycleFailed(ctx)
	}

	converted := usage.Convert(raw)
	if raw.TotalTokens > 0 {
		if err := l.recordUsage(ctx, raw); err != nil {
			l.logger.Error("usage record failed", "error", err)
		}
	}
	l.events.CycleFinished(ctx, l.inst.ID, raw.TotalTokens, converted.TotalCost, l.now().Sub(started))

	if err := l.setState(ctx, echo.StateIdling, "cycle complete"); err != nil {
		l.logger.Error("run finish failed", "error", err)
	}
}

// Reset clears the scratchpad and scheduled tasks, the volatile working
// state of an instance. Knowledge, memories and the usage ledger survive.
func (l *Lifecycle) Reset(ctx context.Context) error {
	if err := l.deps.Store.Delete(ctx, l.inst.ID, storage.KeyContext); err != nil {
		return fmt.Errorf("reset context: %w", err)
	}
	if err := l.deps.Store.Delete(ctx, l.inst.ID, storage.KeyTasks); err != nil {
		return fmt.Errorf("reset tasks: %w", err)
	}
	l.logger.Info("instance reset")
	return nil
}

func (l *Lifecycle) recordUsage(ctx context.Context, raw usage.Raw) error {
	rec := usage.Record{}
	if _, err := storage.GetJSON(ctx, l.deps.Store, l.inst.ID, storage.KeyUsage, &rec); err != nil {
		return err
	}
	usage.Add(rec, usage.DayKey(l.now()), usage.Convert(raw))
	return storage.PutJSON(ctx, l.deps.Store, l.inst.ID, storage.KeyUsage, rec)
}

func (l *Lifecycle) armAlarm(ctx context.Context, at time.Time) error {
	if err := l.deps.Store.SetAlarm(ctx, l.inst.ID, at); err != nil {
		return fmt.Errorf("arm alarm: %w", err)
	}
	return nil
}

// nextHour returns the next occurrence of the given local hour after local.
func (l *Lifecycle) nextHour(local time.Time, hour int) time.Time {
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, usage.Zone)
	if !at.After(local) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
