package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"todoapp/internal/api"
	"todoapp/internal/api/middleware"
	"todoapp/internal/config"
	"todoapp/internal/mockapi"
	"todoapp/internal/pkg/kvstore"
	"todoapp/internal/pkg/logger"
	"todoapp/internal/pkg/metrics"
	"todoapp/internal/pkg/ratelimit"
	"todoapp/internal/service"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

// main 是服务入口。
//
// 它负责：
// 1. 加载配置并初始化日志
// 2. 打开存储后端，组装 Mock API、服务层与 store
// 3. 启动 HTTP 服务并在收到信号后优雅关闭
//
// 指定 -write-config 时只写出合并后的配置并退出。
func main() {
	configPath := flag.String("config", "", "配置文件路径，默认 configs/config.json")
	writeConfig := flag.String("write-config", "", "将合并默认值与环境变量后的配置写入该路径后退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *writeConfig != "" {
		if err := config.Save(*writeConfig, cfg); err != nil {
			log.Fatalf("write config: %v", err)
		}
		log.Printf("config written to %s", *writeConfig)
		return
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.InitMetrics()
	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	kv, err := kvstore.Open(ctx, kvstore.Options{
		Driver:        cfg.Storage.Driver,
		Namespace:     cfg.Storage.Namespace,
		SQLitePath:    cfg.Storage.SQLitePath,
		MySQLDSN:      cfg.MySQL.DSN,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Error("open storage failed",
			slog.String("driver", cfg.Storage.Driver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			appLogger.Error("close storage failed", slog.String("error", err.Error()))
		}
	}()

	if cfg.App.SeedDemo {
		if err := api.SeedDemoData(ctx, kv, appLogger); err != nil {
			appLogger.Error("seed demo data failed", slog.String("error", err.Error()))
		}
	}

	engine, err := mockapi.NewEngine(kv, appLogger.With(slog.String("component", "mockapi")),
		mockapi.WithDelay(cfg.App.MockDelay()),
	)
	if err != nil {
		appLogger.Error("init mock api failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	root := store.NewRoot(ctx,
		service.NewAuthService(engine),
		service.NewTaskService(engine),
		kv,
		appLogger,
	)

	var limiter middleware.Limiter
	if rs, ok := kv.(*kvstore.RedisStore); ok {
		limiter = ratelimit.NewRedisLimiter(rs.Client(), appLogger, "", cfg.App.LoginRateLimit, cfg.App.LoginRateBurst)
	}

	srv := api.NewServer(cfg, appLogger, kv, root, limiter)
	httpServer := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		appLogger.Info("todoapp listening",
			slog.String("addr", cfg.App.HTTPAddr),
			slog.String("storage", cfg.Storage.Driver),
			slog.Duration("mock_delay", engine.Delay()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
}
