// internal/api/handlers.go
package api

import (
	"net/http"

	"github.com/Corphon/ChatNovelEngine/internal/config"
	"github.com/Corphon/ChatNovelEngine/internal/llm"
	"github.com/Corphon/ChatNovelEngine/internal/models"
	"github.com/Corphon/ChatNovelEngine/internal/services"
	"github.com/gin-gonic/gin"
)

// Handler API处理器
type Handler struct {
	turns         *services.TurnService
	users         *services.UserService
	sessions      *services.SessionService
	characters    *services.CharacterService
	scenarios     *services.ScenarioService
	relationships *services.RelationshipService
	progress      *services.ProgressService
	hub           *TurnHub
	respond       *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	turns *services.TurnService,
	users *services.UserService,
	sessions *services.SessionService,
	characters *services.CharacterService,
	scenarios *services.ScenarioService,
	relationships *services.RelationshipService,
	progress *services.ProgressService,
	hub *TurnHub,
) *Handler {
	return &Handler{
		turns:         turns,
		users:         users,
		sessions:      sessions,
		characters:    characters,
		scenarios:     scenarios,
		relationships: relationships,
		progress:      progress,
		hub:           hub,
		respond:       NewResponseHelper(),
	}
}

// ===============================
// 认证
// ===============================

// IssueToken 为用户签发访问令牌
// POST /api/auth/token
func (h *Handler) IssueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respond.BadRequest(c, "user_id is required")
		return
	}

	if err := h.users.EnsureUser(c.Request.Context(), req.UserID); err != nil {
		h.respond.FromAppError(c, err)
		return
	}

	token, err := GenerateUserToken(req.UserID)
	if err != nil {
		h.respond.InternalError(c, "failed to issue token")
		return
	}
	h.respond.Success(c, gin.H{"token": token, "user_id": req.UserID})
}

// ===============================
// 对话回合
// ===============================

// ExecuteTurn 执行一次计费对话回合
// POST /api/turn
func (h *Handler) ExecuteTurn(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	var req services.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respond.BadRequest(c, "invalid turn request body")
		return
	}
	req.UserID = userID

	result, err := h.turns.ExecuteTurn(c.Request.Context(), req)
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, result)
}

// ===============================
// 角色
// ===============================

// GetCharacters 返回全部角色
// GET /api/characters
func (h *Handler) GetCharacters(c *gin.Context) {
	characters, err := h.characters.ListCharacters()
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, characters)
}

// GetCharacter 返回单个角色
// GET /api/characters/:character_id
func (h *Handler) GetCharacter(c *gin.Context) {
	character, err := h.characters.GetCharacter(c.Param("character_id"))
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, character)
}

// ===============================
// 剧本
// ===============================

// GetAvailableScenarios 返回当前关系下已解锁的剧本
// GET /api/characters/:character_id/scenarios
func (h *Handler) GetAvailableScenarios(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	scenarios, err := h.progress.AvailableScenarios(c.Request.Context(), userID, c.Param("character_id"))
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, scenarios)
}

// StartScenario 开始一个剧本并创建新会话
// POST /api/scenarios/:scenario_id/start
func (h *Handler) StartScenario(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	scenarioID := c.Param("scenario_id")

	scenario, err := h.scenarios.GetScenario(scenarioID)
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}

	prog, err := h.progress.Start(c.Request.Context(), userID, scenario.CharacterID, scenarioID)
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}

	sess, err := h.sessions.StartScenario(c.Request.Context(), userID, scenario.CharacterID, scenario)
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}

	startScene, _ := scenario.Scene(scenario.StartSceneID())
	h.respond.Created(c, gin.H{
		"session":  sess,
		"progress": prog,
		"scene":    startScene,
	})
}

// ===============================
// 关系与进度
// ===============================

// GetRelationship 返回用户与角色的关系状态
// GET /api/relationships/:character_id
func (h *Handler) GetRelationship(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	rec, err := h.relationships.GetOrCreate(c.Request.Context(), userID, c.Param("character_id"))
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, rec)
}

// GetProgress 返回用户与角色的全部剧本进度
// GET /api/progress/:character_id
func (h *Handler) GetProgress(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	records, err := h.progress.ListProgress(c.Request.Context(), userID, c.Param("character_id"))
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, records)
}

// GetMemories 返回已解锁的回忆
// GET /api/memories/:character_id
func (h *Handler) GetMemories(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	memories, err := h.relationships.ListMemories(c.Request.Context(), userID, c.Param("character_id"))
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, memories)
}

// ===============================
// 会话
// ===============================

// GetActiveSession 返回当前会话及最近的对话窗口
// GET /api/characters/:character_id/session
func (h *Handler) GetActiveSession(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	sess, err := h.sessions.ResolveOrCreate(c.Request.Context(), userID, c.Param("character_id"))
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}

	history, err := h.sessions.History(c.Request.Context(), sess.ID, 50)
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, gin.H{"session": sess, "history": history})
}

// EndSession 结束一个会话
// POST /api/sessions/:session_id/end
func (h *Handler) EndSession(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	sessionID := c.Param("session_id")

	// Ownership check before ending; the persona binding does not
	// matter here.
	if _, err := h.sessions.Validate(c.Request.Context(), sessionID, userID, ""); err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	if err := h.sessions.End(c.Request.Context(), sessionID); err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, gin.H{"session_id": sessionID, "status": models.SessionEnded})
}

// ===============================
// 余额
// ===============================

// GetBalance 返回当前余额
// GET /api/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	if err := h.users.EnsureUser(c.Request.Context(), userID); err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	balance, err := h.users.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, gin.H{"balance": balance})
}

// TopUpBalance 充值余额
// POST /api/balance/topup
func (h *Handler) TopUpBalance(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	var req struct {
		Amount int64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respond.BadRequest(c, "amount is required")
		return
	}

	if err := h.users.EnsureUser(c.Request.Context(), userID); err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	balance, err := h.users.TopUp(c.Request.Context(), userID, req.Amount)
	if err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, gin.H{"balance": balance})
}

// ===============================
// 内容管理
// ===============================

// SaveScenario 发布或更新剧本
// POST /api/admin/scenarios
func (h *Handler) SaveScenario(c *gin.Context) {
	var scenario models.Scenario
	if err := c.ShouldBindJSON(&scenario); err != nil {
		h.respond.BadRequest(c, "invalid scenario body")
		return
	}

	result, err := h.scenarios.SaveScenario(&scenario)
	if err != nil {
		if result != nil && !result.Valid {
			h.respond.Error(c, http.StatusUnprocessableEntity, ErrorScenarioInvalid,
				"scenario failed graph validation", map[string]interface{}{
					"errors":   result.Errors,
					"warnings": result.Warnings,
				})
			return
		}
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Created(c, gin.H{"scenario_id": scenario.ID, "validation": result})
}

// DeactivateScenario 下线剧本
// DELETE /api/admin/scenarios/:scenario_id
func (h *Handler) DeactivateScenario(c *gin.Context) {
	if err := h.scenarios.Deactivate(c.Param("scenario_id")); err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Success(c, gin.H{"scenario_id": c.Param("scenario_id"), "active": false})
}

// SaveCharacter 发布或更新角色
// POST /api/admin/characters
func (h *Handler) SaveCharacter(c *gin.Context) {
	var character models.Character
	if err := c.ShouldBindJSON(&character); err != nil {
		h.respond.BadRequest(c, "invalid character body")
		return
	}
	if err := h.characters.SaveCharacter(&character); err != nil {
		h.respond.FromAppError(c, err)
		return
	}
	h.respond.Created(c, gin.H{"character_id": character.ID})
}

// ===============================
// LLM配置
// ===============================

// GetLLMStatus 返回当前生成后端状态
// GET /api/llm/status
func (h *Handler) GetLLMStatus(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	h.respond.Success(c, gin.H{
		"provider":   cfg.LLMProvider,
		"configured": cfg.LLMConfig["api_key"] != "",
		"available":  llm.DefaultRegistry.GetAvailableProviders(),
	})
}

// UpdateLLMConfig 更新生成后端配置
// PUT /api/llm/config
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respond.BadRequest(c, "provider is required")
		return
	}

	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.respond.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, err.Error(), nil)
		return
	}
	h.respond.Success(c, gin.H{"provider": req.Provider})
}

// ===============================
// WebSocket
// ===============================

// TurnStream 升级到WebSocket以接收回合推送
// GET /ws/turns
func (h *Handler) TurnStream(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		h.respond.InternalError(c, "websocket upgrade failed")
	}
}

// GetWebSocketStatus 返回连接统计
// GET /api/ws/status
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.respond.Success(c, h.hub.Status())
}
