package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"todoapp/internal/api/auth"
	"todoapp/internal/api/middleware"
	"todoapp/internal/config"
	"todoapp/internal/pkg/kvstore"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它不持有任何业务状态，所有读写都经过 store.Root。
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	kv      kvstore.Store
	root    *store.Root
	auth    *auth.Handler
	limiter middleware.Limiter
	router  *gin.Engine
}

// NewServer 初始化 API 服务器。limiter 为 nil 时登录不限流。
func NewServer(cfg *config.Config, logger *slog.Logger, kv kvstore.Store, root *store.Root, limiter middleware.Limiter) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		kv:      kv,
		root:    root,
		auth:    auth.NewHandler(root.Auth(), logger),
		limiter: limiter,
		router:  r,
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/login", middleware.Throttle(s.limiter, s.logger), s.auth.Login)
	s.router.POST("/logout", s.auth.Logout)
	s.router.GET("/session", s.auth.Session)

	authed := s.router.Group("/")
	authed.Use(middleware.RequireSession(s.root.Auth()))
	authed.GET("/tasks", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.PATCH("/tasks/:id", s.handleUpdateTask)
	authed.POST("/tasks/:id/toggle", s.handleToggleTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
	authed.GET("/stats", s.handleStats)
	authed.GET("/events", s.handleEvents)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.kv == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.kv.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
