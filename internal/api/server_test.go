package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"todoapp/internal/api/middleware"
	"todoapp/internal/config"
	"todoapp/internal/mockapi"
	"todoapp/internal/model"
	"todoapp/internal/pkg/kvstore"
	"todoapp/internal/pkg/ratelimit"
	"todoapp/internal/service"
	"todoapp/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type testEnv struct {
	srv  *Server
	kv   kvstore.Store
	root *store.Root
}

func newTestEnv(t *testing.T, kv kvstore.Store, limiter middleware.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := mockapi.NewEngine(kv, logger, mockapi.WithDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	root := store.NewRoot(context.Background(), service.NewAuthService(engine), service.NewTaskService(engine), kv, logger)
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	return &testEnv{
		srv:  NewServer(cfg, logger, kv, root, limiter),
		kv:   kv,
		root: root,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			payload, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			reader = bytes.NewReader(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/login", gin.H{"email": mockapi.DemoEmail, "password": mockapi.DemoPassword}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var state store.SessionState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if state.User == nil || state.User.Token == "" {
		t.Fatalf("expected user with token, got %+v", state)
	}
	return state.User.Token
}

func decodeTasks(t *testing.T, w *httptest.ResponseRecorder) store.TaskState {
	t.Helper()
	var state store.TaskState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode tasks: %v (%s)", err, w.Body.String())
	}
	return state
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, kvstore.NewMemoryStore(), nil)

	w := env.do(t, http.MethodPost, "/login", gin.H{"email": "x@x.com", "password": "bad"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Credenciales incorrectas") {
		t.Fatalf("expected credentials message, got %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/login", "{", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", w.Code)
	}

	token := env.login(t)
	if token != mockapi.DemoToken {
		t.Fatalf("unexpected token: %s", token)
	}

	w = env.do(t, http.MethodGet, "/session", nil, "")
	if !strings.Contains(w.Body.String(), `"isAuthenticated":true`) {
		t.Fatalf("expected authenticated session, got %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/logout", nil, "")
	if w.Code != http.StatusOK || env.root.Auth().IsAuthenticated() {
		t.Fatalf("logout failed: %d %s", w.Code, w.Body.String())
	}
	if _, err := env.kv.Get(context.Background(), store.SessionKey); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("expected session record removed, got %v", err)
	}
}

func TestTasksRequireSession(t *testing.T) {
	env := newTestEnv(t, kvstore.NewMemoryStore(), nil)

	if w := env.do(t, http.MethodGet, "/tasks", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/tasks", nil, mockapi.DemoToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}

	env.login(t)
	if w := env.do(t, http.MethodGet, "/tasks", nil, "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t, kvstore.NewMemoryStore(), nil)
	token := env.login(t)

	w := env.do(t, http.MethodPost, "/tasks", gin.H{"title": "  "}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/tasks", gin.H{"title": "Buy milk", "description": "2 liters"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	state := decodeTasks(t, w)
	if len(state.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %+v", state.Tasks)
	}
	task := state.Tasks[0]
	if task.Title != "Buy milk" || task.UserID != mockapi.DemoUserID || task.Status != model.TaskStatusPending {
		t.Fatalf("unexpected task: %+v", task)
	}

	w = env.do(t, http.MethodPatch, "/tasks/"+task.ID, gin.H{"status": "archived"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", w.Code)
	}
	w = env.do(t, http.MethodPatch, "/tasks/"+task.ID, gin.H{}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", w.Code)
	}

	w = env.do(t, http.MethodPatch, "/tasks/"+task.ID, gin.H{"status": "completed", "title": "Buy oat milk"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	state = decodeTasks(t, w)
	if state.Tasks[0].Status != model.TaskStatusCompleted || state.Tasks[0].Title != "Buy oat milk" {
		t.Fatalf("unexpected task after update: %+v", state.Tasks[0])
	}
	if state.Stats.Completed != 1 || state.Stats.Pending != 0 {
		t.Fatalf("unexpected stats: %+v", state.Stats)
	}

	w = env.do(t, http.MethodPost, "/tasks/"+task.ID+"/toggle", nil, token)
	if w.Code != http.StatusOK || decodeTasks(t, w).Tasks[0].Status != model.TaskStatusPending {
		t.Fatalf("toggle failed: %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/tasks/missing/toggle", nil, token); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown toggle, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/stats", nil, token)
	var stats model.TaskStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil || stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %s", w.Body.String())
	}

	for i := 0; i < 2; i++ {
		w = env.do(t, http.MethodDelete, "/tasks/"+task.ID, nil, token)
		if w.Code != http.StatusOK || len(decodeTasks(t, w).Tasks) != 0 {
			t.Fatalf("delete #%d failed: %d %s", i, w.Code, w.Body.String())
		}
	}

	w = env.do(t, http.MethodGet, "/tasks?refresh=true", nil, token)
	if w.Code != http.StatusOK || len(decodeTasks(t, w).Tasks) != 0 {
		t.Fatalf("refresh failed: %d %s", w.Code, w.Body.String())
	}
}

func TestTaskDescriptionStoredVerbatim(t *testing.T) {
	env := newTestEnv(t, kvstore.NewMemoryStore(), nil)
	token := env.login(t)

	w := env.do(t, http.MethodPost, "/tasks", gin.H{"title": "  Buy milk ", "description": "  2 liters  "}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	task := decodeTasks(t, w).Tasks[0]
	if task.Title != "Buy milk" || task.Description != "  2 liters  " {
		t.Fatalf("unexpected task after create: %+v", task)
	}

	w = env.do(t, http.MethodPatch, "/tasks/"+task.ID, gin.H{"description": "  x  "}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeTasks(t, w).Tasks[0].Description; got != "  x  " {
		t.Fatalf("expected description kept as sent, got %q", got)
	}
}

func TestTaskFailuresReturnBadGateway(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	env := newTestEnv(t, kv, nil)
	token := env.login(t)

	// 更新不存在的任务：乐观更新无变化，服务端返回未找到
	w := env.do(t, http.MethodPatch, "/tasks/nope", gin.H{"title": "x"}, token)
	if w.Code != http.StatusBadGateway || decodeTasks(t, w).Error != "Error al actualizar la tarea" {
		t.Fatalf("expected 502 with update error, got %d %s", w.Code, w.Body.String())
	}

	// 错误槽保留，但之后成功的请求返回 200
	w = env.do(t, http.MethodDelete, "/tasks/nope", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decodeTasks(t, w).Error != "Error al actualizar la tarea" {
		t.Fatalf("expected error slot to persist, got %s", w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/tasks?refresh=true", nil, token)
	if w.Code != http.StatusOK || decodeTasks(t, w).Error != "" {
		t.Fatalf("expected refresh to clear error, got %d %s", w.Code, w.Body.String())
	}
}

type failingPingStore struct {
	*kvstore.MemoryStore
}

func (failingPingStore) Ping(context.Context) error { return errors.New("down") }

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, kvstore.NewMemoryStore(), nil)
	if w := env.do(t, http.MethodGet, "/healthz", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	env = newTestEnv(t, failingPingStore{kvstore.NewMemoryStore()}, nil)
	if w := env.do(t, http.MethodGet, "/healthz", nil, ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestLoginThrottle(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	kv, err := kvstore.NewRedisStoreWithClient(rdb, "")
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	limiter := ratelimit.NewRedisLimiter(rdb, nil, "", 0.001, 2)
	env := newTestEnv(t, kv, limiter)

	creds := gin.H{"email": "x@x.com", "password": "bad"}
	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodPost, "/login", creds, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, w.Code)
		}
	}
	w := env.do(t, http.MethodPost, "/login", creds, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Redis 不可用时放行
	mr.Close()
	if w := env.do(t, http.MethodPost, "/login", creds, ""); w.Code == http.StatusTooManyRequests {
		t.Fatalf("expected fail-open when limiter is unavailable, got %d", w.Code)
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, kvstore.NewMemoryStore(), nil)
	token := env.login(t)

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	waitFor := func(substr string) {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream waiting for %q: %v", substr, err)
			}
			if strings.Contains(line, substr) {
				return
			}
		}
	}

	waitFor("event:session")
	waitFor("event:tasks")

	env.root.TaskStore().SetTasks([]model.Task{{
		Entity: model.Entity{ID: "1"},
		Title:  "Buy milk",
		Status: model.TaskStatusPending,
		UserID: mockapi.DemoUserID,
	}})
	waitFor("Buy milk")
}

func TestSeedDemoData(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()

	if err := SeedDemoData(ctx, kv, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	env := newTestEnv(t, kv, nil)
	token := env.login(t)
	w := env.do(t, http.MethodGet, "/tasks", nil, token)
	state := decodeTasks(t, w)
	if len(state.Tasks) != 2 || state.Stats.Completed != 1 {
		t.Fatalf("unexpected seeded tasks: %+v", state)
	}

	// 非空时不重复写入
	if err := SeedDemoData(ctx, kv, nil); err != nil {
		t.Fatalf("seed again: %v", err)
	}
	raw, _ := kv.Get(ctx, mockapi.TasksKey)
	var stored []model.Task
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || len(stored) != 2 {
		t.Fatalf("expected 2 stored tasks, got %d (%v)", len(stored), err)
	}

	if err := kv.Set(ctx, mockapi.TasksKey, "{broken"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if err := SeedDemoData(ctx, kv, nil); err == nil {
		t.Fatal("expected error for corrupted collection")
	}
}
