package store

import (
	"context"
	"errors"
	"testing"

	"todoapp/internal/mockapi"
	"todoapp/internal/model"
	"todoapp/internal/pkg/kvstore"
	"todoapp/internal/service"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	engine := newTestEngine(t, kv)
	return NewRoot(context.Background(), service.NewAuthService(engine), service.NewTaskService(engine), kv, discardLogger())
}

func TestRoot_TasksRequireUser(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	if err := r.Tasks().AddTask(ctx, "Buy milk", ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := r.Tasks().Refresh(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	r.Tasks().EnsureLoaded(ctx)
	if len(r.Tasks().Tasks()) != 0 {
		t.Fatal("ensure loaded must be a no-op without a user")
	}
}

func TestRoot_BuyMilkFlow(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)
	r.Auth().Login(ctx, model.LoginCredentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword})
	if !r.Auth().IsAuthenticated() {
		t.Fatalf("login failed: %q", r.Auth().Error())
	}

	if err := r.Tasks().AddTask(ctx, "  Buy milk  ", "2 liters"); err != nil {
		t.Fatalf("add: %v", err)
	}
	tasks := r.Tasks().Tasks()
	if len(tasks) != 1 || tasks[0].Title != "Buy milk" || tasks[0].UserID != "u-1" || tasks[0].Status != model.TaskStatusPending {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	if err := r.Tasks().ToggleStatus(ctx, tasks[0].ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if st := r.Tasks().Stats(); st.Completed != 1 || st.Pending != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if err := r.Tasks().ToggleStatus(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	// 新的 Root 从持久化记录恢复会话，并按需加载任务
	kv := kvstore.NewMemoryStore()
	engine := newTestEngine(t, kv)
	r2 := NewRoot(ctx, service.NewAuthService(engine), service.NewTaskService(engine), kv, discardLogger())
	r2.Auth().Login(ctx, model.LoginCredentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword})
	_ = r2.Tasks().AddTask(ctx, "Buy milk", "")
	r3 := NewRoot(ctx, service.NewAuthService(engine), service.NewTaskService(engine), kv, discardLogger())
	if !r3.Auth().IsAuthenticated() {
		t.Fatal("expected hydrated session")
	}
	r3.Tasks().EnsureLoaded(ctx)
	if len(r3.Tasks().Tasks()) != 1 {
		t.Fatalf("expected tasks loaded on demand, got %+v", r3.Tasks().Tasks())
	}

	r.Tasks().DeleteTask(ctx, tasks[0].ID)
	if len(r.Tasks().Tasks()) != 0 {
		t.Fatal("expected task removed")
	}
}
