// internal/api/router.go
package api

import (
	"fmt"

	"github.com/Corphon/ChatNovelEngine/internal/config"
	"github.com/Corphon/ChatNovelEngine/internal/di"
	"github.com/Corphon/ChatNovelEngine/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 只从容器获取服务，不创建新实例
	turnService, ok := container.Get("turn").(*services.TurnService)
	if !ok {
		return nil, fmt.Errorf("turn service not initialized")
	}
	userService, ok := container.Get("user").(*services.UserService)
	if !ok {
		return nil, fmt.Errorf("user service not initialized")
	}
	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("session service not initialized")
	}
	characterService, ok := container.Get("character").(*services.CharacterService)
	if !ok {
		return nil, fmt.Errorf("character service not initialized")
	}
	scenarioService, ok := container.Get("scenario").(*services.ScenarioService)
	if !ok {
		return nil, fmt.Errorf("scenario service not initialized")
	}
	relationshipService, ok := container.Get("relationship").(*services.RelationshipService)
	if !ok {
		return nil, fmt.Errorf("relationship service not initialized")
	}
	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("progress service not initialized")
	}
	hub, ok := container.Get("hub").(*TurnHub)
	if !ok {
		return nil, fmt.Errorf("turn hub not initialized")
	}

	handler := NewHandler(
		turnService,
		userService,
		sessionService,
		characterService,
		scenarioService,
		relationshipService,
		progressService,
		hub,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(DefaultRateLimit())

	// ===============================
	// 公开路由
	// ===============================
	r.POST("/api/auth/token", handler.IssueToken)
	r.GET("/api/llm/status", handler.GetLLMStatus)

	// ===============================
	// 认证路由
	// ===============================
	authed := r.Group("/", AuthMiddleware())
	{
		// WebSocket 推送
		authed.GET("/ws/turns", handler.TurnStream)

		api := authed.Group("/api")
		{
			// 对话回合
			api.POST("/turn", TurnRateLimit(), handler.ExecuteTurn)

			// 角色目录
			api.GET("/characters", handler.GetCharacters)
			api.GET("/characters/:character_id", handler.GetCharacter)
			api.GET("/characters/:character_id/scenarios", handler.GetAvailableScenarios)
			api.GET("/characters/:character_id/session", handler.GetActiveSession)

			// 剧本
			api.POST("/scenarios/:scenario_id/start", handler.StartScenario)

			// 关系与进度
			api.GET("/relationships/:character_id", handler.GetRelationship)
			api.GET("/progress/:character_id", handler.GetProgress)
			api.GET("/memories/:character_id", handler.GetMemories)

			// 会话
			api.POST("/sessions/:session_id/end", handler.EndSession)

			// 余额
			api.GET("/balance", handler.GetBalance)
			api.POST("/balance/topup", handler.TopUpBalance)

			// 内容管理
			admin := api.Group("/admin")
			{
				admin.POST("/scenarios", handler.SaveScenario)
				admin.DELETE("/scenarios/:scenario_id", handler.DeactivateScenario)
				admin.POST("/characters", handler.SaveCharacter)
			}

			// LLM配置
			api.PUT("/llm/config", handler.UpdateLLMConfig)

			// 运维观察
			api.GET("/ws/status", handler.GetWebSocketStatus)
		}
	}

	return r, nil
}
