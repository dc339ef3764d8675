package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/domain/echo"
	"github.com/echo-agent/echochamber/internal/domain/knowledge"
	"github.com/echo-agent/echochamber/internal/domain/usage"
	"github.com/echo-agent/echochamber/internal/port/eventstore"
	"github.com/echo-agent/echochamber/internal/port/storage"
	"github.com/echo-agent/echochamber/internal/service"
)

// Handlers holds dependencies for all admin HTTP handlers.
type Handlers struct {
	cfg        *config.Holder
	supervisor *service.Supervisor
	store      storage.Store
	journal    eventstore.Store
}

// NewHandlers creates the handler set. journal may be nil when no event
// store is configured.
func NewHandlers(cfg *config.Holder, supervisor *service.Supervisor, store storage.Store, journal eventstore.Store) *Handlers {
	return &Handlers{cfg: cfg, supervisor: supervisor, store: store, journal: journal}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instanceStatus is the admin view of one instance.
type instanceStatus struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	State     echo.State        `json:"state"`
	NextAlarm *time.Time        `json:"next_alarm,omitempty"`
	Context   string            `json:"context,omitempty"`
	Tasks     []echo.Task       `json:"tasks"`
	Knowledge []knowledge.Entry `json:"knowledge"`
	Usage     usage.Record      `json:"usage"`
}

// GetInstance returns the full status view for one instance.
func (h *Handlers) GetInstance(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	inst, lc, ok := h.resolve(w, id)
	if !ok {
		return
	}
	ctx := r.Context()

	state, err := lc.State(ctx)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	status := instanceStatus{
		ID:        inst.ID,
		Name:      inst.Name,
		State:     state,
		Tasks:     []echo.Task{},
		Knowledge: []knowledge.Entry{},
		Usage:     usage.Record{},
	}

	if at, ok, err := h.store.GetAlarm(ctx, id); err != nil {
		writeInternalError(w, err)
		return
	} else if ok {
		status.NextAlarm = &at
	}

	if _, err := storage.GetJSON(ctx, h.store, id, storage.KeyContext, &status.Context); err != nil {
		writeInternalError(w, err)
		return
	}
	if _, err := storage.GetJSON(ctx, h.store, id, storage.KeyTasks, &status.Tasks); err != nil {
		writeInternalError(w, err)
		return
	}
	if _, err := storage.GetJSON(ctx, h.store, id, storage.KeyKnowledge, &status.Knowledge); err != nil {
		writeInternalError(w, err)
		return
	}
	if _, err := storage.GetJSON(ctx, h.store, id, storage.KeyUsage, &status.Usage); err != nil {
		writeInternalError(w, err)
		return
	}

	// Longest-retained knowledge first.
	sort.SliceStable(status.Knowledge, func(a, b int) bool {
		return status.Knowledge[a].ForgottenAt.After(status.Knowledge[b].ForgottenAt)
	})

	writeJSON(w, http.StatusOK, status)
}

// WakeInstance transitions an instance to Idling. ?force=true overrides the
// sleeping gate.
func (h *Handlers) WakeInstance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.supervisor.Wake)
}

// SleepInstance puts an instance to sleep. ?force=true overrides the
// running gate.
func (h *Handlers) SleepInstance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.supervisor.Sleep)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, bool) error) {
	id := urlParam(r, "id")
	if _, _, ok := h.resolve(w, id); !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"

	if err := op(r.Context(), id, force); err != nil {
		if errors.Is(err, service.ErrRejected) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RunInstance forces one think cycle. Mounted behind DevModeOnly.
func (h *Handlers) RunInstance(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, _, ok := h.resolve(w, id); !ok {
		return
	}
	if err := h.supervisor.Run(r.Context(), id); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetInstance clears an instance's scratchpad and scheduled tasks.
func (h *Handlers) ResetInstance(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, _, ok := h.resolve(w, id); !ok {
		return
	}
	if err := h.supervisor.Reset(r.Context(), id); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteTask removes one scheduled task by name: DELETE /tasks?name=.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, _, ok := h.resolve(w, id); !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx := r.Context()

	var tasks []echo.Task
	if _, err := storage.GetJSON(ctx, h.store, id, storage.KeyTasks, &tasks); err != nil {
		writeInternalError(w, err)
		return
	}

	kept := tasks[:0]
	found := false
	for _, t := range tasks {
		if t.Name == name {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	if err := storage.PutJSON(ctx, h.store, id, storage.KeyTasks, kept); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetUsage returns the instance's per-day token ledger.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, _, ok := h.resolve(w, id); !ok {
		return
	}

	rec := usage.Record{}
	if _, err := storage.GetJSON(r.Context(), h.store, id, storage.KeyUsage, &rec); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListEvents returns recent journaled runtime events, newest first.
// ?limit= caps the page (default 50, max 200).
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, _, ok := h.resolve(w, id); !ok {
		return
	}
	if h.journal == nil {
		writeError(w, http.StatusNotImplemented, "event journal not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	events, err := h.journal.LoadRecent(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if events == nil {
		events = []echo.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// resolve looks up the instance config and lifecycle, writing a 404 when
// the instance is unknown.
func (h *Handlers) resolve(w http.ResponseWriter, id string) (config.Instance, *service.Lifecycle, bool) {
	inst, ok := h.cfg.Get().InstanceByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown instance")
		return config.Instance{}, nil, false
	}
	lc, ok := h.supervisor.Lifecycle(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown instance")
		return config.Instance{}, nil, false
	}
	return inst, lc, true
}
