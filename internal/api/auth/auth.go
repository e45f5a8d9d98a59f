// Package auth 提供登录、登出与会话查询接口。
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"todoapp/internal/model"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler 会话相关的 HTTP 处理器。
type Handler struct {
	session *store.SessionStore
	logger  *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(session *store.SessionStore, logger *slog.Logger) *Handler {
	return &Handler{session: session, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 使用凭据登录，失败时返回 store 错误槽中的文案。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.session.Login(c.Request.Context(), model.LoginCredentials{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})

	state := h.session.Snapshot()
	if !state.IsAuthenticated {
		msg := state.Error
		if msg == "" {
			msg = "login failed"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, state)
}

// Logout 清除当前会话。
func (h *Handler) Logout(c *gin.Context) {
	h.session.Logout(c.Request.Context())
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// Session 返回当前会话快照。
func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}
