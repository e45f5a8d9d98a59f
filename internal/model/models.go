package model

import "time"

// isoLayout 与浏览器端 toISOString() 的输出格式一致（UTC，毫秒精度）。
const isoLayout = "2006-01-02T15:04:05.000Z"

// Entity 是所有可持久化实体的公共字段。
//
// ID 与 CreatedAt 由 Mock API 在创建时生成，之后不可修改。
type Entity struct {
	ID        string `json:"id"`        // 唯一标识
	CreatedAt string `json:"createdAt"` // ISO-8601 创建时间
}

// Timestamp 将时间格式化为实体使用的 ISO-8601 字符串。
func Timestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// TaskStatus 任务状态。
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid 判断状态值是否合法。
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// Toggle 返回相反的状态。
func (s TaskStatus) Toggle() TaskStatus {
	if s == TaskStatusPending {
		return TaskStatusCompleted
	}
	return TaskStatusPending
}

// Task 表示用户的一条待办事项。
//
// UserID 在创建时由调用方注入，之后不可修改。
type Task struct {
	Entity
	Title       string     `json:"title"`       // 标题（非空）
	Description string     `json:"description"` // 描述（可为空）
	Status      TaskStatus `json:"status"`      // pending / completed
	UserID      string     `json:"userId"`      // 所属用户 ID
}

// NewTaskPayload 是提交给 POST /tasks 的请求体（尚未分配 ID 与时间戳）。
type NewTaskPayload struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	UserID      string     `json:"userId"`
}

// CreateTaskDTO 创建任务时用户可编辑的字段。
type CreateTaskDTO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTaskDTO 部分更新任务。
//
// nil 字段表示不修改；id / userId / createdAt 不在此结构中，因此不可被修改。
type UpdateTaskDTO struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
}

// Empty 判断是否没有任何需要修改的字段。
func (d UpdateTaskDTO) Empty() bool {
	return d.Title == nil && d.Description == nil && d.Status == nil
}

// Apply 将变更浅合并到任务上并返回新值，原值不受影响。
func (d UpdateTaskDTO) Apply(t Task) Task {
	if d.Title != nil {
		t.Title = *d.Title
	}
	if d.Description != nil {
		t.Description = *d.Description
	}
	if d.Status != nil {
		t.Status = *d.Status
	}
	return t
}

// TaskStats 由当前任务集合派生的统计信息。
type TaskStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// ComputeStats 统计任务集合。Pending 恒等于 Total - Completed。
func ComputeStats(tasks []Task) TaskStats {
	completed := 0
	for _, t := range tasks {
		if t.Status == TaskStatusCompleted {
			completed++
		}
	}
	return TaskStats{
		Total:     len(tasks),
		Completed: completed,
		Pending:   len(tasks) - completed,
	}
}
