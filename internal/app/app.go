// internal/app/app.go
package app

import (
	"fmt"

	"github.com/Corphon/ChatNovelEngine/internal/api"
	"github.com/Corphon/ChatNovelEngine/internal/config"
	"github.com/Corphon/ChatNovelEngine/internal/di"
	"github.com/Corphon/ChatNovelEngine/internal/services"
	"github.com/Corphon/ChatNovelEngine/internal/storage"
	"github.com/Corphon/ChatNovelEngine/internal/storage/sqlitestore"

	_ "github.com/Corphon/ChatNovelEngine/internal/llm/providers/anthropic"
	_ "github.com/Corphon/ChatNovelEngine/internal/llm/providers/openai"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	container := di.GetContainer()

	// 存储层
	store, err := sqlitestore.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	container.Register("store", store)

	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init file storage: %w", err)
	}
	container.Register("file_storage", fileStorage)

	// 回复缓存：多实例部署用Redis，单实例用进程内缓存
	var cache services.ReplyCache
	if cfg.RedisAddr != "" {
		cache = services.NewRedisReplyCache(cfg.RedisAddr)
	} else {
		cache = services.NewMemoryReplyCache()
	}
	container.Register("reply_cache", cache)

	// 领域服务
	userService := services.NewUserService(store)
	sessionService := services.NewSessionService(store)
	characterService := services.NewCharacterService(fileStorage)
	scenarioService := services.NewScenarioService(fileStorage)
	relationshipService := services.NewRelationshipService(store)
	progressService := services.NewProgressService(store, scenarioService, relationshipService)
	llmService := services.NewLLMService(cache)

	container.Register("user", userService)
	container.Register("session", sessionService)
	container.Register("character", characterService)
	container.Register("scenario", scenarioService)
	container.Register("relationship", relationshipService)
	container.Register("progress", progressService)
	container.Register("llm", llmService)

	// 推送中心
	hub := api.NewTurnHub()
	container.Register("hub", hub)

	// 回合管线
	turnService := services.NewTurnService(
		store,
		userService,
		sessionService,
		characterService,
		scenarioService,
		relationshipService,
		progressService,
		llmService,
		hub,
	)
	container.Register("turn", turnService)

	// 认证
	if err := api.InitializeAuth(); err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	return nil
}

// Shutdown 释放持有的资源
func Shutdown() error {
	container := di.GetContainer()
	if store, ok := container.Get("store").(*sqlitestore.Store); ok && store != nil {
		return store.Close()
	}
	return nil
}
