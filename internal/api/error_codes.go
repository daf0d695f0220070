// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"

	// 计费相关错误
	ErrorInsufficientBalance = "INSUFFICIENT_BALANCE"

	// 角色相关错误
	ErrorCharacterNotFound = "CHARACTER_NOT_FOUND"

	// 剧本相关错误
	ErrorScenarioNotFound   = "SCENARIO_NOT_FOUND"
	ErrorScenarioLocked     = "SCENARIO_LOCKED"
	ErrorScenarioInvalid    = "SCENARIO_INVALID"
	ErrorChoiceInvalid      = "CHOICE_INVALID"
	ErrorScenarioInProgress = "SCENARIO_IN_PROGRESS"

	// 会话相关错误
	ErrorSessionNotFound        = "SESSION_NOT_FOUND"
	ErrorSessionOwnership       = "SESSION_OWNERSHIP"
	ErrorSessionPersonaMismatch = "SESSION_PERSONA_MISMATCH"
	ErrorSessionEnded           = "SESSION_ENDED"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMTimeout            = "LLM_TIMEOUT"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
)
