package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/echo-agent/echochamber/internal/config"
)

// command is one serialized operation against an instance actor. Reply is
// closed (after receiving at most one error) when the command completes.
type command struct {
	run   func(ctx context.Context) error
	reply chan error
}

// worker is the actor owning one instance: a goroutine draining an ordered
// command channel, so every lifecycle and storage operation for the
// instance executes one at a time.
type worker struct {
	inst      config.Instance
	lifecycle *Lifecycle
	commands  chan command
	logger    *slog.Logger
}

// Supervisor runs one worker per configured instance and is the only entry
// point the admin surface and the scheduler use to reach them.
type Supervisor struct {
	policy  config.Agent
	workers map[string]*worker
	logger  *slog.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewSupervisor builds the per-instance actors. Lifecycles must be keyed by
// instance ID.
func NewSupervisor(instances []config.Instance, policy config.Agent, lifecycles map[string]*Lifecycle, logger *slog.Logger) *Supervisor {
	workers := make(map[string]*worker, len(instances))
	for _, inst := range instances {
		workers[inst.ID] = &worker{
			inst:      inst,
			lifecycle: lifecycles[inst.ID],
			commands:  make(chan command, 16),
			logger:    logger.With("instance_id", inst.ID),
		}
	}
	return &Supervisor{policy: policy, workers: workers, logger: logger}
}

// Start launches every worker. Workers stop when ctx is cancelled; Wait
// blocks until they have drained.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker) {
			defer s.wg.Done()
			w.loop(ctx, s.policy.AlarmInterval)
		}(w)
	}
	s.logger.Info("supervisor started", "instances", len(s.workers))
}

// Wait blocks until all workers have exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// loop is the actor body: ticks drive alarm checks, commands arrive from
// the admin surface. Both paths run on this goroutine only.
func (w *worker) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Ensure a freshly provisioned instance has a first alarm.
	if err := w.lifecycle.Wake(ctx, false); err != nil {
		w.logger.Warn("initial wake skipped", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkAlarm(ctx)
		case cmd := <-w.commands:
			err := cmd.run(ctx)
			if err != nil {
				cmd.reply <- err
			}
			close(cmd.reply)
		}
	}
}

// checkAlarm fires the lifecycle alarm when the scheduled wake-up is due.
func (w *worker) checkAlarm(ctx context.Context) {
	at, ok, err := w.lifecycle.deps.Store.GetAlarm(ctx, w.inst.ID)
	if err != nil {
		w.logger.Error("alarm lookup failed", "error", err)
		return
	}
	if !ok || at.After(w.lifecycle.now()) {
		return
	}
	w.lifecycle.Alarm(ctx)
}

// dispatch enqueues fn on the instance's actor and waits for it.
func (s *Supervisor) dispatch(ctx context.Context, instanceID string, fn func(ctx context.Context) error) error {
	w, ok := s.workers[instanceID]
	if !ok {
		return fmt.Errorf("unknown instance %q", instanceID)
	}

	cmd := command{run: fn, reply: make(chan error, 1)}
	select {
	case w.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake wakes an instance through its actor.
func (s *Supervisor) Wake(ctx context.Context, instanceID string, force bool) error {
	return s.dispatch(ctx, instanceID, func(ctx context.Context) error {
		return s.workers[instanceID].lifecycle.Wake(ctx, force)
	})
}

// Sleep puts an instance to sleep through its actor.
func (s *Supervisor) Sleep(ctx context.Context, instanceID string, force bool) error {
	return s.dispatch(ctx, instanceID, func(ctx context.Context) error {
		return s.workers[instanceID].lifecycle.Sleep(ctx, force)
	})
}

// Run forces one think cycle, bypassing the alarm schedule but not the
// preconditions. Used by the dev-mode admin endpoint.
func (s *Supervisor) Run(ctx context.Context, instanceID string) error {
	return s.dispatch(ctx, instanceID, func(ctx context.Context) error {
		s.workers[instanceID].lifecycle.Run(ctx)
		return nil
	})
}

// Reset clears an instance's scratchpad and tasks through its actor.
func (s *Supervisor) Reset(ctx context.Context, instanceID string) error {
	return s.dispatch(ctx, instanceID, func(ctx context.Context) error {
		return s.workers[instanceID].lifecycle.Reset(ctx)
	})
}

// Lifecycle exposes the controller for read-only admin queries. State reads
// are safe off-actor; the storage port serializes individual reads.
func (s *Supervisor) Lifecycle(instanceID string) (*Lifecycle, bool) {
	w, ok := s.workers[instanceID]
	if !ok {
		return nil, false
	}
	return w.lifecycle, true
}
