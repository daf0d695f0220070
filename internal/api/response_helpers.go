// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"time"

	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/gin-gonic/gin"
)

// APIResponse 统一响应信封
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 响应中的错误载荷
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(http.StatusOK, response)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(http.StatusCreated, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details map[string]interface{}) {
	response := &APIResponse{
		Success: false,
		Error: &APIError{
			Code:    errorCode,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, nil)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, code, message string) {
	rh.Error(c, http.StatusNotFound, code, message, nil)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, nil)
}

// FromAppError maps a service-layer error onto the HTTP surface.
//
// Caller errors map to 4xx, insufficient balance to 402 so clients can
// prompt a top-up, backend failures to 502/504, everything else to 500.
func (rh *ResponseHelper) FromAppError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		rh.InternalError(c, err.Error())
		return
	}

	status := http.StatusInternalServerError
	code := ErrorInternalError

	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		status, code = http.StatusBadRequest, ErrorBadRequest
	case apperrors.ErrorTypeNotFound:
		status, code = http.StatusNotFound, ErrorNotFound
	case apperrors.ErrorTypeUnauthorized:
		status, code = http.StatusUnauthorized, ErrorUnauthorized
	case apperrors.ErrorTypeForbidden:
		status, code = http.StatusForbidden, ErrorForbidden
	case apperrors.ErrorTypeConflict:
		status, code = http.StatusConflict, ErrorConflict
	case apperrors.ErrorTypeInsufficientBalance:
		status, code = http.StatusPaymentRequired, ErrorInsufficientBalance
	case apperrors.ErrorTypeBackend:
		status, code = http.StatusBadGateway, ErrorLLMServiceUnavailable
	case apperrors.ErrorTypeTimeout:
		status, code = http.StatusGatewayTimeout, ErrorLLMTimeout
	}

	// A service may attach a more specific code (session ownership,
	// persona mismatch); it wins over the type-derived one.
	if appErr.Code != "" {
		code = appErr.Code
	}

	rh.Error(c, status, code, appErr.Message, appErr.Details)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}
