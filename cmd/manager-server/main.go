// 文件: cmd/manager-server/main.go
package main

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/internal/api"
	"Image_Repo_Server/internal/app"
	"Image_Repo_Server/internal/task"
	"Image_Repo_Server/pkg/logger"
	"Image_Repo_Server/pkg/scanner"
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// --- 1. 初始化 ---
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	if err := logger.InitLogger(); err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}
	slog.Info("应用启动")
	defer slog.Info("应用关闭")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. 连接存储并创建编目 ---
	a, err := app.New(ctx, config.C, prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("FATAL: 无法初始化存储", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())
	slog.Info("存储连接成功", "database", config.C.Database.Driver, "blob", config.C.Blob.Driver)

	// 预热主表，启动失败不致命，第一次请求会再次加载
	if n, err := a.Catalog.Images.Len(ctx); err != nil {
		slog.Warn("预热图片缓存失败", "error", err)
	} else {
		slog.Info("图片缓存已预热", "count", n)
	}

	// --- 3. 创建后台任务 ---
	importer := scanner.NewImporter(a.Catalog, config.C.Task.WorkerCount, "importer")
	taskManager := task.NewManager(a.Catalog, importer)
	defer taskManager.Shutdown()
	slog.Info("任务管理器创建成功")

	// --- 4. 设置并启动HTTP服务器 ---
	router := api.RegisterRoutes(a.Catalog, taskManager, "config.yaml")

	server := &http.Server{
		Addr:         config.C.Server.Port,
		Handler:      router,
		ReadTimeout:  config.C.Server.Timeout,
		WriteTimeout: config.C.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("收到退出信号，正在关闭HTTP服务器")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("关闭HTTP服务器失败", "error", err)
		}
	}()

	slog.Info("HTTP服务器正在启动...", "地址", config.C.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("无法启动HTTP服务器", "error", err)
		os.Exit(1)
	}
}
