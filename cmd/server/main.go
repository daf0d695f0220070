// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/api"
	"github.com/Corphon/ChatNovelEngine/internal/app"
	"github.com/Corphon/ChatNovelEngine/internal/config"
	"github.com/Corphon/ChatNovelEngine/internal/utils"
	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("starting ChatNovelEngine server...")

	// 1. 加载基础配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// 2. 创建必要的目录
	createDirectories(cfg)

	// 3. 初始化配置系统（data/config.json 覆盖环境变量）
	if err := config.InitConfig(cfg); err != nil {
		log.Fatalf("init config: %v", err)
	}

	// 4. 初始化日志
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "engine.log")); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	// 5. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("init services: %v", err)
	}
	defer app.Shutdown()

	// 6. 设置路由
	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("setup router: %v", err)
	}

	log.Printf("listening on port %s", cfg.Port)
	runWithGracefulShutdown(router, cfg.Port)
}

// runWithGracefulShutdown 启动服务器并在收到信号时优雅关闭
func runWithGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.AppConfig) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "characters"),
		filepath.Join(cfg.DataDir, "scenarios"),
		cfg.LogDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("create directory %s: %v", dir, err)
		}
	}
}
