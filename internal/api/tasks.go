package api

import (
	"errors"
	"net/http"
	"strings"

	"todoapp/internal/model"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

type createTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// respondTasks 返回任务快照。本次操作产生新失败时使用 502。
func (s *Server) respondTasks(c *gin.Context, failuresBefore uint64) {
	tasks := s.root.Tasks()
	status := http.StatusOK
	if tasks.Failures() > failuresBefore {
		status = http.StatusBadGateway
	}
	c.JSON(status, tasks.Snapshot())
}

// handleListTasks 返回当前用户的任务。
//
// GET /tasks?refresh=true
func (s *Server) handleListTasks(c *gin.Context) {
	tasks := s.root.Tasks()
	before := tasks.Failures()

	if c.Query("refresh") == "true" {
		if err := tasks.Refresh(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	} else {
		tasks.EnsureLoaded(c.Request.Context())
	}
	s.respondTasks(c, before)
}

// handleCreateTask 创建任务。
//
// POST /tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
		return
	}

	tasks := s.root.Tasks()
	before := tasks.Failures()
	if err := tasks.AddTask(c.Request.Context(), req.Title, req.Description); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	s.respondTasks(c, before)
}

// handleUpdateTask 部分更新任务。
//
// PATCH /tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var changes model.UpdateTaskDTO
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
			return
		}
		changes.Title = &title
	}
	if req.Description != nil {
		changes.Description = req.Description
	}
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		changes.Status = &status
	}
	if changes.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updates"})
		return
	}

	tasks := s.root.Tasks()
	before := tasks.Failures()
	tasks.UpdateTask(c.Request.Context(), c.Param("id"), changes)
	s.respondTasks(c, before)
}

// handleToggleTask 切换任务完成状态。
//
// POST /tasks/:id/toggle
func (s *Server) handleToggleTask(c *gin.Context) {
	tasks := s.root.Tasks()
	before := tasks.Failures()
	if err := tasks.ToggleStatus(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.respondTasks(c, before)
}

// handleDeleteTask 删除任务，重复删除同样返回 200。
//
// DELETE /tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	tasks := s.root.Tasks()
	before := tasks.Failures()
	tasks.DeleteTask(c.Request.Context(), c.Param("id"))
	s.respondTasks(c, before)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.root.Tasks().Stats())
}
