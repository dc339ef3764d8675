package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/domain/echo"
	"github.com/echo-agent/echochamber/internal/domain/usage"
	"github.com/echo-agent/echochamber/internal/port/chat"
	"github.com/echo-agent/echochamber/internal/port/storage"
)

// Decision is the outcome of the run-precondition check.
type Decision struct {
	Run    bool
	Reason string
}

// Precondition decides whether a woken instance should spend tokens on a
// think cycle. Checks are ordered and short-circuit: unread messages always
// justify a run, a due task justifies one while the hard budget holds, and
// spontaneous thinking is allowed only under the soft budget.
type Precondition struct {
	store  storage.Store
	chat   chat.Transport
	policy config.Agent
	logger *slog.Logger
	now    func() time.Time
}

// NewPrecondition creates the evaluator.
func NewPrecondition(store storage.Store, transport chat.Transport, policy config.Agent, logger *slog.Logger) *Precondition {
	return &Precondition{
		store:  store,
		chat:   transport,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate runs the ordered checks for one instance. A chat transport
// failure is not fatal; the check falls through to the task and budget
// rules so a broken transport cannot silence the instance entirely.
func (p *Precondition) Evaluate(ctx context.Context, inst config.Instance) Decision {
	now := p.now()

	unread, err := p.chat.UnreadCount(ctx, inst.ChatChannelID)
	if err != nil {
		p.logger.Warn("unread check failed", "instance_id", inst.ID, "error", err)
	} else if unread > 0 {
		return Decision{Run: true, Reason: fmt.Sprintf("%d unread messages", unread)}
	}

	used, err := p.usedToday(ctx, inst.ID, now)
	if err != nil {
		p.logger.Warn("usage lookup failed", "instance_id", inst.ID, "error", err)
		// Without a readable ledger, spend nothing.
		return Decision{Reason: "usage ledger unavailable"}
	}

	due, err := p.dueTask(ctx, inst.ID, now)
	if err != nil {
		p.logger.Warn("task lookup failed", "instance_id", inst.ID, "error", err)
	}
	if due != nil {
		hard := usage.DynamicLimit(now, p.policy.DailyTokenLimit, p.policy.BufferFactor)
		if used < hard {
			return Decision{Run: true, Reason: fmt.Sprintf("task '%s' is due", due.Name)}
		}
		p.logger.Warn("task due but token budget exhausted",
			"instance_id", inst.ID, "task", due.Name, "used", used, "limit", hard)
		return Decision{Reason: "hard token budget exhausted"}
	}

	soft := usage.DynamicLimit(now, p.policy.SoftTokenLimit, 1.0)
	if used < soft {
		return Decision{Run: true, Reason: "spontaneous"}
	}
	return Decision{Reason: "soft token budget exhausted"}
}

// usedToday sums the ledger entry for the current budget day.
func (p *Precondition) usedToday(ctx context.Context, instanceID string, now time.Time) (int64, error) {
	rec := usage.Record{}
	if _, err := storage.GetJSON(ctx, p.store, instanceID, storage.KeyUsage, &rec); err != nil {
		return 0, err
	}
	u, ok := rec[usage.DayKey(now)]
	if !ok {
		return 0, nil
	}
	return u.TotalTokens, nil
}

// dueTask returns the first task due before the next alarm would fire.
func (p *Precondition) dueTask(ctx context.Context, instanceID string, now time.Time) (*echo.Task, error) {
	var tasks []echo.Task
	if _, err := storage.GetJSON(ctx, p.store, instanceID, storage.KeyTasks, &tasks); err != nil {
		return nil, err
	}
	return echo.DueTask(tasks, now.Add(p.policy.AlarmInterval)), nil
}
