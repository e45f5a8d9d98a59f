// Package mockapi 在本地键值存储之上模拟一组 REST 端点。
//
// 每次调用都会先等待固定的延迟来模拟网络耗时，然后按「端点 + 方法」分发。
// 成功结果统一包装为 model.Response；失败直接返回 error。
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"todoapp/internal/model"
	"todoapp/internal/pkg/kvstore"
	"todoapp/internal/pkg/localdb"
	"todoapp/internal/pkg/metrics"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultDelay 默认模拟延迟。
	DefaultDelay = 400 * time.Millisecond
	// TasksKey 任务集合的存储键。
	TasksKey = "db_tasks"

	tasksEndpoint = "/tasks"
)

// 唯一的演示账号。
const (
	DemoEmail    = "demo@gmail.com"
	DemoPassword = "123456"
	DemoUserID   = "u-1"
	DemoUserName = "Usuario Demo"
	DemoToken    = "mock-jwt-token-123"
)

// QueryParams GET 请求的过滤参数。
type QueryParams map[string]string

// Engine 是 Mock API 引擎。
type Engine struct {
	tasks    *localdb.Collection[model.Task]
	logger   *slog.Logger
	delay    time.Duration
	now      func() time.Time
	newID    func() string
	demoHash []byte
}

// Option 配置 Engine。
type Option func(*Engine)

// WithDelay 设置模拟延迟，<=0 时使用 DefaultDelay。
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delay = d
		}
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator 替换 ID 生成器。
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// NewEngine 创建引擎。
//
// 参数:
//
//	kv: 持久化后端
//	logger: 日志记录器
//	opts: 可选配置
//
// 返回值:
//
//	*Engine: 引擎实例
//	error: 演示密码哈希生成失败时返回
func NewEngine(kv kvstore.Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		tasks:    localdb.New[model.Task](kv, TasksKey),
		logger:   logger,
		delay:    DefaultDelay,
		now:      time.Now,
		newID:    uuid.NewString,
		demoHash: hash,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Delay 返回当前的模拟延迟。
func (e *Engine) Delay() time.Duration {
	return e.delay
}

// Login 校验演示账号。
//
// 只有 demo@gmail.com / 123456 能登录成功，返回固定 ID 的用户与静态 token。
func (e *Engine) Login(ctx context.Context, email, password string) (resp model.Response[model.User], err error) {
	defer e.observe("login", time.Now(), &err)
	if err = e.wait(ctx); err != nil {
		return resp, err
	}

	if email != DemoEmail || bcrypt.CompareHashAndPassword(e.demoHash, []byte(password)) != nil {
		return resp, &AuthenticationError{
			Message: fmt.Sprintf("Credenciales incorrectas (Usa: %s / %s)", DemoEmail, DemoPassword),
		}
	}

	user := model.User{
		Entity: model.Entity{ID: DemoUserID, CreatedAt: model.Timestamp(e.now())},
		Email:  email,
		Name:   DemoUserName,
		Token:  DemoToken,
	}
	return model.OK(user, 200), nil
}

// Get 读取资源列表，目前只支持 /tasks，可按 userId 过滤。
func (e *Engine) Get(ctx context.Context, endpoint string, params QueryParams) (resp model.Response[[]model.Task], err error) {
	defer e.observe("get", time.Now(), &err)
	if err = e.wait(ctx); err != nil {
		return resp, err
	}

	if endpoint != tasksEndpoint {
		return resp, endpointNotFound(endpoint, "GET")
	}

	items, err := e.loadTasks(ctx)
	if err != nil {
		return resp, err
	}
	if userID := params["userId"]; userID != "" {
		filtered := make([]model.Task, 0, len(items))
		for _, t := range items {
			if t.UserID == userID {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}
	return model.OK(items, 200), nil
}

// Post 创建资源，分配新的 ID 与创建时间，返回 201。
func (e *Engine) Post(ctx context.Context, endpoint string, body model.NewTaskPayload) (resp model.Response[model.Task], err error) {
	defer e.observe("post", time.Now(), &err)
	if err = e.wait(ctx); err != nil {
		return resp, err
	}

	if endpoint != tasksEndpoint {
		return resp, endpointNotFound(endpoint, "POST")
	}

	task := model.Task{
		Entity:      model.Entity{ID: e.newID(), CreatedAt: model.Timestamp(e.now())},
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		UserID:      body.UserID,
	}

	items, err := e.loadTasks(ctx)
	if err != nil {
		return resp, err
	}
	if err := e.tasks.Save(ctx, append(items, task)); err != nil {
		return resp, err
	}

	e.logger.Debug("task created", slog.String("id", task.ID), slog.String("user_id", task.UserID))
	return model.OK(task, 201), nil
}

// Put 按 /tasks/{id} 浅合并更新资源。
func (e *Engine) Put(ctx context.Context, endpoint string, changes model.UpdateTaskDTO) (resp model.Response[model.Task], err error) {
	defer e.observe("put", time.Now(), &err)
	if err = e.wait(ctx); err != nil {
		return resp, err
	}

	id, err := taskID(endpoint, "PUT")
	if err != nil {
		return resp, err
	}

	items, err := e.loadTasks(ctx)
	if err != nil {
		return resp, err
	}
	index := -1
	for i := range items {
		if items[i].ID == id {
			index = i
			break
		}
	}
	if index == -1 {
		return resp, &NotFoundError{Message: "Elemento no encontrado"}
	}

	items[index] = changes.Apply(items[index])
	if err := e.tasks.Save(ctx, items); err != nil {
		return resp, err
	}
	return model.OK(items[index], 200), nil
}

// Delete 按 /tasks/{id} 删除资源，ID 不存在时不报错。
func (e *Engine) Delete(ctx context.Context, endpoint string) (resp model.Response[struct{}], err error) {
	defer e.observe("delete", time.Now(), &err)
	if err = e.wait(ctx); err != nil {
		return resp, err
	}

	id, err := taskID(endpoint, "DELETE")
	if err != nil {
		return resp, err
	}

	items, err := e.loadTasks(ctx)
	if err != nil {
		return resp, err
	}
	remaining := make([]model.Task, 0, len(items))
	for _, t := range items {
		if t.ID != id {
			remaining = append(remaining, t)
		}
	}
	if err := e.tasks.Save(ctx, remaining); err != nil {
		return resp, err
	}
	return model.OK(struct{}{}, 200), nil
}

// loadTasks 读取任务集合。损坏的集合按空集合处理并被重置。
func (e *Engine) loadTasks(ctx context.Context) ([]model.Task, error) {
	items, err := e.tasks.GetAll(ctx)
	if errors.Is(err, localdb.ErrParse) {
		e.logger.Warn("reset corrupted collection",
			slog.String("key", e.tasks.Key()),
			slog.String("error", err.Error()),
		)
		if err := e.tasks.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset collection: %w", err)
		}
		return []model.Task{}, nil
	}
	return items, err
}

// wait 模拟网络延迟。
func (e *Engine) wait(ctx context.Context) error {
	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) observe(op string, start time.Time, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = "error"
		e.logger.Debug("mock api call failed", slog.String("op", op), slog.String("error", (*errp).Error()))
	}
	metrics.MockAPIRequestsTotal.WithLabelValues(op, outcome).Inc()
	metrics.MockAPILatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// taskID 从 /tasks/{id} 中解析 ID。
func taskID(endpoint, method string) (string, error) {
	rest, ok := strings.CutPrefix(endpoint, tasksEndpoint+"/")
	if !ok {
		return "", endpointNotFound(endpoint, method)
	}
	if rest == "" || strings.Contains(rest, "/") {
		return "", &NotFoundError{Message: "ID inválido"}
	}
	return rest, nil
}

func endpointNotFound(endpoint, method string) error {
	return &NotFoundError{Message: fmt.Sprintf("Endpoint %s not found (%s)", endpoint, method)}
}
