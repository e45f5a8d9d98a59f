package api

import (
	"io"
	"log/slog"

	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

const eventBuffer = 16

type storeEvent struct {
	name string
	data any
}

// handleEvents 以 SSE 推送 store 状态变化。慢客户端会丢失中间状态，但总能收到之后的快照。
//
// GET /events
func (s *Server) handleEvents(c *gin.Context) {
	events := make(chan storeEvent, eventBuffer)
	push := func(ev storeEvent) {
		select {
		case events <- ev:
		default:
		}
	}

	unsubSession := s.root.Auth().Subscribe(func(st store.SessionState) {
		push(storeEvent{name: "session", data: st})
	})
	defer unsubSession()
	unsubTasks := s.root.Tasks().Subscribe(func(st store.TaskState) {
		push(storeEvent{name: "tasks", data: st})
	})
	defer unsubTasks()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("session", s.root.Auth().Snapshot())
	c.SSEvent("tasks", s.root.Tasks().Snapshot())
	c.Writer.Flush()

	s.logger.Debug("event stream opened", slog.String("client_ip", c.ClientIP()))
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(ev.name, ev.data)
			return true
		}
	})
	s.logger.Debug("event stream closed", slog.String("client_ip", c.ClientIP()))
}
