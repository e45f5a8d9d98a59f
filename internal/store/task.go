package store

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"todoapp/internal/model"
	"todoapp/internal/pkg/metrics"
)

const (
	fetchFallbackMessage = "Error desconocido al cargar tareas"
	createFailedMessage  = "No se pudo crear la tarea"
	updateFailedMessage  = "Error al actualizar la tarea"
	removeFailedMessage  = "Error al eliminar, cambios revertidos"
)

// TaskService 任务服务。
type TaskService interface {
	GetAll(ctx context.Context, userID string) ([]model.Task, error)
	Create(ctx context.Context, dto model.CreateTaskDTO, userID string) (model.Task, error)
	Update(ctx context.Context, id string, changes model.UpdateTaskDTO) (model.Task, error)
	Delete(ctx context.Context, id string) error
}

// TaskState 任务状态快照。
type TaskState struct {
	Tasks     []model.Task    `json:"tasks"`
	IsLoading bool            `json:"isLoading"`
	Error     string          `json:"error"`
	Stats     model.TaskStats `json:"stats"`
}

// TaskStore 任务集合的内存缓存。
//
// 创建是悲观的（确认后才追加），更新与删除是乐观的（先改本地，失败回滚到快照）。
type TaskStore struct {
	svc    TaskService
	logger *slog.Logger
	obs    *observers[TaskState]

	mu        sync.RWMutex
	tasks     []model.Task
	isLoading bool
	err       string
	stats     *model.TaskStats
	failures  uint64
}

// NewTaskStore 创建任务 store。
func NewTaskStore(svc TaskService, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TaskStore{
		svc:    svc,
		logger: logger,
		obs:    newObservers[TaskState]("tasks"),
		tasks:  []model.Task{},
	}
}

// FetchTasks 拉取用户的全部任务并整体替换本地集合。
func (s *TaskStore) FetchTasks(ctx context.Context, userID string) {
	s.mu.Lock()
	s.isLoading = true
	s.err = ""
	s.notifyLocked()

	tasks, err := s.svc.GetAll(ctx, userID)

	s.mu.Lock()
	if err != nil {
		s.err = userMessage(err, fetchFallbackMessage)
		s.failures++
		s.logger.Warn("fetch tasks failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	} else {
		if tasks == nil {
			tasks = []model.Task{}
		}
		s.setTasksLocked(tasks)
	}
	s.isLoading = false
	s.notifyLocked()
}

// AddTask 创建任务，服务确认后才追加到本地集合。
func (s *TaskStore) AddTask(ctx context.Context, dto model.CreateTaskDTO, userID string) {
	s.mu.Lock()
	s.isLoading = true
	s.notifyLocked()

	task, err := s.svc.Create(ctx, dto, userID)

	s.mu.Lock()
	if err != nil {
		s.err = createFailedMessage
		s.failures++
		s.logger.Warn("create task failed", slog.String("error", err.Error()))
	} else {
		next := slices.Clone(s.tasks)
		s.setTasksLocked(append(next, task))
	}
	s.isLoading = false
	s.notifyLocked()
}

// UpdateTask 乐观更新。本地不存在该 ID 时不改集合，但请求照常发送。
func (s *TaskStore) UpdateTask(ctx context.Context, id string, changes model.UpdateTaskDTO) {
	s.mu.Lock()
	snapshot := slices.Clone(s.tasks)
	if idx := indexOf(s.tasks, id); idx >= 0 {
		next := slices.Clone(s.tasks)
		next[idx] = changes.Apply(next[idx])
		s.setTasksLocked(next)
	}
	s.notifyLocked()

	if _, err := s.svc.Update(ctx, id, changes); err != nil {
		s.rollback(snapshot, updateFailedMessage, "update", id, err)
	}
}

// RemoveTask 乐观删除，重复删除同一 ID 不改变结果。
func (s *TaskStore) RemoveTask(ctx context.Context, id string) {
	s.mu.Lock()
	snapshot := slices.Clone(s.tasks)
	s.setTasksLocked(slices.DeleteFunc(slices.Clone(s.tasks), func(t model.Task) bool {
		return t.ID == id
	}))
	s.notifyLocked()

	if err := s.svc.Delete(ctx, id); err != nil {
		s.rollback(snapshot, removeFailedMessage, "remove", id, err)
	}
}

func (s *TaskStore) rollback(snapshot []model.Task, msg, action, id string, err error) {
	metrics.StoreRollbackTotal.WithLabelValues(action).Inc()
	s.logger.Warn("optimistic change reverted",
		slog.String("action", action),
		slog.String("task_id", id),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	s.setTasksLocked(snapshot)
	s.err = msg
	s.failures++
	s.notifyLocked()
}

// SetTasks 直接替换本地集合，不访问服务。
func (s *TaskStore) SetTasks(tasks []model.Task) {
	next := slices.Clone(tasks)
	if next == nil {
		next = []model.Task{}
	}
	s.mu.Lock()
	s.setTasksLocked(next)
	s.notifyLocked()
}

// Tasks 返回集合副本。
func (s *TaskStore) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tasks)
}

// Task 按 ID 查找本地任务。
func (s *TaskStore) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := indexOf(s.tasks, id); idx >= 0 {
		return s.tasks[idx], true
	}
	return model.Task{}, false
}

func (s *TaskStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

func (s *TaskStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Failures 返回累计失败次数，调用方可据此判断某次操作是否失败。
func (s *TaskStore) Failures() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Stats 返回统计信息，集合不变时复用缓存。
func (s *TaskStore) Stats() model.TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// Snapshot 返回一致的状态快照。
func (s *TaskStore) Snapshot() TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe 注册状态变化回调，返回取消订阅函数。
func (s *TaskStore) Subscribe(fn func(TaskState)) func() {
	return s.obs.subscribe(fn)
}

func (s *TaskStore) setTasksLocked(tasks []model.Task) {
	s.tasks = tasks
	s.stats = nil
}

func (s *TaskStore) statsLocked() model.TaskStats {
	if s.stats == nil {
		st := model.ComputeStats(s.tasks)
		s.stats = &st
	}
	return *s.stats
}

func (s *TaskStore) snapshotLocked() TaskState {
	return TaskState{
		Tasks:     slices.Clone(s.tasks),
		IsLoading: s.isLoading,
		Error:     s.err,
		Stats:     s.statsLocked(),
	}
}

// notifyLocked 生成快照、释放锁后通知订阅者。调用方必须持有写锁。
func (s *TaskStore) notifyLocked() {
	seq, state := s.obs.stamp(), s.snapshotLocked()
	s.mu.Unlock()
	s.obs.notify(seq, state)
}

func indexOf(tasks []model.Task, id string) int {
	return slices.IndexFunc(tasks, func(t model.Task) bool { return t.ID == id })
}
