package service

import (
	"context"

	"todoapp/internal/mockapi"
	"todoapp/internal/model"
)

// TaskAPI 任务相关端点。
type TaskAPI interface {
	Get(ctx context.Context, endpoint string, params mockapi.QueryParams) (model.Response[[]model.Task], error)
	Post(ctx context.Context, endpoint string, body model.NewTaskPayload) (model.Response[model.Task], error)
	Put(ctx context.Context, endpoint string, changes model.UpdateTaskDTO) (model.Response[model.Task], error)
	Delete(ctx context.Context, endpoint string) (model.Response[struct{}], error)
}

// TaskService 任务服务。
type TaskService struct {
	api TaskAPI
}

// NewTaskService 创建任务服务。
func NewTaskService(api TaskAPI) *TaskService {
	return &TaskService{api: api}
}

// GetAll 获取用户的全部任务。
func (s *TaskService) GetAll(ctx context.Context, userID string) ([]model.Task, error) {
	resp, err := s.api.Get(ctx, "/tasks", mockapi.QueryParams{"userId": userID})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Create 创建任务，初始状态固定为 pending。
func (s *TaskService) Create(ctx context.Context, dto model.CreateTaskDTO, userID string) (model.Task, error) {
	resp, err := s.api.Post(ctx, "/tasks", model.NewTaskPayload{
		Title:       dto.Title,
		Description: dto.Description,
		Status:      model.TaskStatusPending,
		UserID:      userID,
	})
	if err != nil {
		return model.Task{}, err
	}
	return resp.Data, nil
}

// Update 部分更新任务。
func (s *TaskService) Update(ctx context.Context, id string, changes model.UpdateTaskDTO) (model.Task, error) {
	resp, err := s.api.Put(ctx, "/tasks/"+id, changes)
	if err != nil {
		return model.Task{}, err
	}
	return resp.Data, nil
}

// Delete 删除任务。
func (s *TaskService) Delete(ctx context.Context, id string) error {
	_, err := s.api.Delete(ctx, "/tasks/"+id)
	return err
}
