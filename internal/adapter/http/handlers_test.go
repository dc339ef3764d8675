package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/echo-agent/echochamber/internal/adapter/ws"
	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/domain/echo"
	"github.com/echo-agent/echochamber/internal/domain/knowledge"
	"github.com/echo-agent/echochamber/internal/domain/usage"
	"github.com/echo-agent/echochamber/internal/port/chat"
	"github.com/echo-agent/echochamber/internal/port/completion"
	"github.com/echo-agent/echochamber/internal/port/storage"
	"github.com/echo-agent/echochamber/internal/service"
	"github.com/echo-agent/echochamber/internal/tool"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	alarms map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), alarms: make(map[string]time.Time)}
}

func (s *memStore) Get(_ context.Context, instanceID, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[instanceID+"/"+key]
	return v, ok, nil
}

func (s *memStore) Put(_ context.Context, instanceID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[instanceID+"/"+key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, instanceID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, instanceID+"/"+key)
	return nil
}

func (s *memStore) GetAlarm(_ context.Context, instanceID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.alarms[instanceID]
	return at, ok, nil
}

func (s *memStore) SetAlarm(_ context.Context, instanceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[instanceID] = at
	return nil
}

func (s *memStore) DeleteAlarm(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, instanceID)
	return nil
}

type stubChat struct{}

func (stubChat) UnreadCount(context.Context, string) (int, error) { return 0, nil }
func (stubChat) ReadMessages(context.Context, string, int) ([]chat.Message, error) {
	return nil, nil
}
func (stubChat) Send(context.Context, string, string) error       { return nil }
func (stubChat) React(context.Context, string, string, string) error { return nil }

type stubCompleter struct{}

func (stubCompleter) CreateResponse(context.Context, completion.Request) (*completion.Response, error) {
	return &completion.Response{ID: "resp"}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float64, error) {
	return []float64{1}, nil
}

type fakeJournal struct {
	events []echo.Event
}

func (f *fakeJournal) Append(_ context.Context, ev echo.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeJournal) LoadRecent(_ context.Context, _ string, limit int) ([]echo.Event, error) {
	if limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit], nil
}

type env struct {
	store   *memStore
	journal *fakeJournal
	server  *httptest.Server
	cancel  context.CancelFunc
	sup     *service.Supervisor
}

func newEnv(t *testing.T, devMode bool) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	journal := &fakeJournal{}

	cfg := config.Defaults()
	cfg.Instances = []config.Instance{{
		ID: "echo-1", Name: "Echo", SystemPrompt: "prompt",
		BotToken: "t", ChatChannelID: "chan-1",
	}}
	holder := config.NewHolder(&cfg, "")

	deps := service.Deps{Store: store, Chat: stubChat{}, Embedder: stubEmbedder{}, Logger: logger}
	events := service.NewEvents(nil, journal, nil, logger)
	precond := service.NewPrecondition(store, stubChat{}, cfg.Agent, logger)
	engine := service.NewEngine(stubCompleter{}, tool.DefaultRegistry(), events, cfg.Agent.MaxTurns, logger)
	lc := service.NewLifecycle(cfg.Instances[0], cfg.Agent, deps, precond, engine, events)

	sup := service.NewSupervisor(cfg.Instances, cfg.Agent,
		map[string]*service.Lifecycle{"echo-1": lc}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	h := NewHandlers(holder, sup, store, journal)
	router := NewRouter(h, ws.NewHub(), "echochamber-test", devMode)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
		sup.Wait()
	})
	return &env{store: store, journal: journal, server: server, cancel: cancel, sup: sup}
}

func do(t *testing.T, method, url string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	e := newEnv(t, false)
	status, body := do(t, http.MethodGet, e.server.URL+"/health")
	if status != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Errorf("health = %d %s", status, body)
	}
}

func TestGetInstanceUnknown(t *testing.T) {
	e := newEnv(t, false)
	status, _ := do(t, http.MethodGet, e.server.URL+"/api/v1/instances/nope/")
	if status != http.StatusNotFound {
		t.Errorf("status = %d", status)
	}
}

func TestGetInstanceStatus(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	now := time.Now().UTC()
	_ = storage.PutJSON(ctx, e.store, "echo-1", storage.KeyContext, "thinking about rain")
	_ = storage.PutJSON(ctx, e.store, "echo-1", storage.KeyTasks, []echo.Task{
		{Name: "t1", Content: "x", ExecutionTime: now.Add(time.Hour)},
	})
	_ = storage.PutJSON(ctx, e.store, "echo-1", storage.KeyKnowledge, []knowledge.Entry{
		{Content: "short-lived", Category: knowledge.CategoryFact, ForgottenAt: now.AddDate(0, 0, 1)},
		{Content: "long-lived", Category: knowledge.CategoryRule, ForgottenAt: now.AddDate(0, 0, 300)},
	})
	_ = storage.PutJSON(ctx, e.store, "echo-1", storage.KeyUsage, usage.Record{
		"2025-06-01": {TotalTokens: 1234},
	})

	status, body := do(t, http.MethodGet, e.server.URL+"/api/v1/instances/echo-1/")
	if status != http.StatusOK {
		t.Fatalf("status = %d %s", status, body)
	}

	var got struct {
		ID        string            `json:"id"`
		State     string            `json:"state"`
		Context   string            `json:"context"`
		Tasks     []echo.Task       `json:"tasks"`
		Knowledge []knowledge.Entry `json:"knowledge"`
		Usage     usage.Record      `json:"usage"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if got.ID != "echo-1" || got.State != string(echo.StateIdling) {
		t.Errorf("id/state = %s/%s", got.ID, got.State)
	}
	if got.Context != "thinking about rain" || len(got.Tasks) != 1 {
		t.Errorf("context/tasks = %q/%d", got.Context, len(got.Tasks))
	}
	if len(got.Knowledge) != 2 || got.Knowledge[0].Content != "long-lived" {
		t.Errorf("knowledge order = %+v", got.Knowledge)
	}
	if got.Usage["2025-06-01"] == nil || got.Usage["2025-06-01"].TotalTokens != 1234 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestWakeSleepLifecycle(t *testing.T) {
	e := newEnv(t, false)
	base := e.server.URL + "/api/v1/instances/echo-1"

	if status, _ := do(t, http.MethodPost, base+"/sleep"); status != http.StatusOK {
		t.Fatalf("sleep status = %d", status)
	}

	// Waking a sleeping instance without force conflicts.
	if status, _ := do(t, http.MethodPost, base+"/wake"); status != http.StatusConflict {
		t.Errorf("unforced wake status = %d", status)
	}
	if status, _ := do(t, http.MethodPost, base+"/wake?force=true"); status != http.StatusOK {
		t.Errorf("forced wake status = %d", status)
	}

	status, body := do(t, http.MethodGet, base+"/")
	if status != http.StatusOK || !strings.Contains(string(body), `"Idling"`) {
		t.Errorf("final state: %d %s", status, body)
	}
}

func TestRunRequiresDevMode(t *testing.T) {
	e := newEnv(t, false)
	status, _ := do(t, http.MethodPost, e.server.URL+"/api/v1/instances/echo-1/run")
	if status != http.StatusForbidden {
		t.Errorf("status = %d", status)
	}

	dev := newEnv(t, true)
	status, _ = do(t, http.MethodPost, dev.server.URL+"/api/v1/instances/echo-1/run")
	if status != http.StatusOK {
		t.Errorf("dev status = %d", status)
	}
}

func TestResetClearsWorkingState(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	_ = storage.PutJSON(ctx, e.store, "echo-1", storage.KeyContext, "note")
	_ = storage.PutJSON(ctx, e.store, "echo-1", storage.KeyTasks, []echo.Task{
		{Name: "t1", Content: "x", ExecutionTime: time.Now().Add(time.Hour)},
	})

	if status, _ := do(t, http.MethodPost, e.server.URL+"/api/v1/instances/echo-1/reset"); status != http.StatusOK {
		t.Fatalf("reset failed")
	}

	if _, ok, _ := e.store.Get(ctx, "echo-1", storage.KeyContext); ok {
		t.Error("context survived reset")
	}
	if _, ok, _ := e.store.Get(ctx, "echo-1", storage.KeyTasks); ok {
		t.Error("tasks survived reset")
	}
}

func TestDeleteTaskByName(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	_ = storage.PutJSON(ctx, e.store, "echo-1", storage.KeyTasks, []echo.Task{
		{Name: "keep", Content: "x", ExecutionTime: time.Now().Add(time.Hour)},
		{Name: "drop", Content: "x", ExecutionTime: time.Now().Add(time.Hour)},
	})
	base := e.server.URL + "/api/v1/instances/echo-1/tasks"

	if status, _ := do(t, http.MethodDelete, base); status != http.StatusBadRequest {
		t.Errorf("missing name status = %d", status)
	}
	if status, _ := do(t, http.MethodDelete, base+"?name=drop"); status != http.StatusOK {
		t.Errorf("delete status = %d", status)
	}
	if status, _ := do(t, http.MethodDelete, base+"?name=drop"); status != http.StatusNotFound {
		t.Errorf("repeat delete status = %d", status)
	}

	var tasks []echo.Task
	_, _ = storage.GetJSON(ctx, e.store, "echo-1", storage.KeyTasks, &tasks)
	if len(tasks) != 1 || tasks[0].Name != "keep" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestGetUsage(t *testing.T) {
	e := newEnv(t, false)
	_ = storage.PutJSON(context.Background(), e.store, "echo-1", storage.KeyUsage, usage.Record{
		"2025-06-01": {TotalTokens: 99, TotalCost: 0.5},
	})

	status, body := do(t, http.MethodGet, e.server.URL+"/api/v1/instances/echo-1/usage")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var rec usage.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["2025-06-01"] == nil || rec["2025-06-01"].TotalTokens != 99 {
		t.Errorf("record = %+v", rec)
	}
}

func TestListEvents(t *testing.T) {
	e := newEnv(t, false)
	e.journal.events = []echo.Event{
		{ID: "1", InstanceID: "echo-1", Type: echo.EventCycleFinished},
		{ID: "2", InstanceID: "echo-1", Type: echo.EventStateChanged},
	}
	base := e.server.URL + "/api/v1/instances/echo-1/events"

	status, body := do(t, http.MethodGet, base+"?limit=1")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var events []echo.Event
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events = %d", len(events))
	}

	if status, _ := do(t, http.MethodGet, base+"?limit=0"); status != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", status)
	}
	if status, _ := do(t, http.MethodGet, base+"?limit=999"); status != http.StatusBadRequest {
		t.Errorf("limit=999 status = %d", status)
	}
}
