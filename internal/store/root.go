// Package store 保存应用状态：当前会话与任务集合。
//
// Root 是唯一的组合点，在 main 中创建一次后显式传递给 HTTP 层。
// 状态迁移完成后同步通知订阅者，回调执行时不持有 store 的锁。
package store

import (
	"context"
	"log/slog"
	"strings"

	"todoapp/internal/model"
	"todoapp/internal/pkg/kvstore"
)

// Root 持有两个 store。
type Root struct {
	session *SessionStore
	tasks   *TaskStore
}

// NewRoot 创建 Root，会话 store 在此处同步恢复。
func NewRoot(ctx context.Context, auth Authenticator, tasks TaskService, kv kvstore.Store, logger *slog.Logger) *Root {
	if logger == nil {
		logger = slog.Default()
	}
	return &Root{
		session: NewSessionStore(ctx, auth, kv, logger.With(slog.String("store", "session"))),
		tasks:   NewTaskStore(tasks, logger.With(slog.String("store", "tasks"))),
	}
}

// Auth 返回会话 store。
func (r *Root) Auth() *SessionStore { return r.session }

// TaskStore 返回底层任务 store。
func (r *Root) TaskStore() *TaskStore { return r.tasks }

// Tasks 返回注入当前用户的任务视图。
func (r *Root) Tasks() *TaskFacade {
	return &TaskFacade{session: r.session, store: r.tasks}
}

// TaskFacade 基于当前会话的任务操作。
type TaskFacade struct {
	session *SessionStore
	store   *TaskStore
}

func (f *TaskFacade) Tasks() []model.Task { return f.store.Tasks() }
func (f *TaskFacade) IsLoading() bool { return f.store.IsLoading() }
func (f *TaskFacade) Error() string { return f.store.Error() }
func (f *TaskFacade) Stats() model.TaskStats { return f.store.Stats() }
func (f *TaskFacade) Failures() uint64 { return f.store.Failures() }
func (f *TaskFacade) Snapshot() TaskState { return f.store.Snapshot() }
func (f *TaskFacade) Subscribe(fn func(TaskState)) func() { return f.store.Subscribe(fn) }

// EnsureLoaded 已登录且本地集合为空时拉取一次。
func (f *TaskFacade) EnsureLoaded(ctx context.Context) {
	user := f.session.User()
	if user == nil || len(f.store.Tasks()) > 0 {
		return
	}
	f.store.FetchTasks(ctx, user.ID)
}

// Refresh 强制重新拉取当前用户的任务。
func (f *TaskFacade) Refresh(ctx context.Context) error {
	user := f.session.User()
	if user == nil {
		return ErrNotAuthenticated
	}
	f.store.FetchTasks(ctx, user.ID)
	return nil
}

// AddTask 以当前用户身份创建任务。
func (f *TaskFacade) AddTask(ctx context.Context, title, description string) error {
	user := f.session.User()
	if user == nil {
		return ErrNotAuthenticated
	}
	f.store.AddTask(ctx, model.CreateTaskDTO{
		Title:       strings.TrimSpace(title),
		Description: description,
	}, user.ID)
	return nil
}

func (f *TaskFacade) UpdateTask(ctx context.Context, id string, changes model.UpdateTaskDTO) {
	f.store.UpdateTask(ctx, id, changes)
}

func (f *TaskFacade) DeleteTask(ctx context.Context, id string) {
	f.store.RemoveTask(ctx, id)
}

// ToggleStatus 在 pending 与 completed 之间切换。
func (f *TaskFacade) ToggleStatus(ctx context.Context, id string) error {
	task, ok := f.store.Task(id)
	if !ok {
		return ErrTaskNotFound
	}
	next := task.Status.Toggle()
	f.store.UpdateTask(ctx, id, model.UpdateTaskDTO{Status: &next})
	return nil
}
