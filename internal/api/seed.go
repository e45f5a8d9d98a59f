package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"todoapp/internal/mockapi"
	"todoapp/internal/model"
	"todoapp/internal/pkg/kvstore"
	"todoapp/internal/pkg/localdb"

	"github.com/google/uuid"
)

// SeedDemoData 在任务集合为空时为演示用户写入示例任务。
// 已有数据（包括损坏的集合）一律不动。
func SeedDemoData(ctx context.Context, kv kvstore.Store, logger *slog.Logger) error {
	tasks := localdb.New[model.Task](kv, mockapi.TasksKey)
	existing, err := tasks.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now()
	demo := []model.Task{
		{
			Entity:      model.Entity{ID: uuid.NewString(), CreatedAt: model.Timestamp(now)},
			Title:       "Comprar leche",
			Description: "Tarea de ejemplo",
			Status:      model.TaskStatusPending,
			UserID:      mockapi.DemoUserID,
		},
		{
			Entity:      model.Entity{ID: uuid.NewString(), CreatedAt: model.Timestamp(now.Add(time.Millisecond))},
			Title:       "Revisar el correo",
			Status:      model.TaskStatusCompleted,
			UserID:      mockapi.DemoUserID,
		},
	}
	if err := tasks.Save(ctx, demo); err != nil {
		return fmt.Errorf("save demo tasks: %w", err)
	}
	if logger != nil {
		logger.Info("demo tasks seeded", slog.Int("count", len(demo)))
	}
	return nil
}
