// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// Caller errors: surfaced immediately, never retried.
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"

	// Resource errors: the caller can recover by topping up.
	ErrorTypeInsufficientBalance ErrorType = "insufficient_balance"

	// Backend errors: absorbed by the deterministic fallback, logged only.
	ErrorTypeBackend ErrorType = "backend_unavailable"
	ErrorTypeTimeout ErrorType = "timeout"

	// Everything else.
	ErrorTypeError ErrorType = "processing_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string                 // 用户友好的错误代码
	Details map[string]interface{} // structured payload, e.g. balance/required
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a structured detail to the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// WithCode overrides the type-derived error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

// NewForbiddenError 创建禁止错误
func NewForbiddenError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewInsufficientBalanceError carries the current balance and the
// amount the turn required so the caller can prompt a top-up.
func NewInsufficientBalanceError(balance, required int64) *AppError {
	err := NewAppError(ErrorTypeInsufficientBalance, "insufficient balance for this turn", nil)
	return err.WithDetail("balance", balance).WithDetail("required", required)
}

// NewBackendError 创建生成后端错误
func NewBackendError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeBackend, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsUnauthorizedError 检查是否为未授权错误
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError 检查是否为禁止错误
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsInsufficientBalanceError 检查是否为余额不足错误
func IsInsufficientBalanceError(err error) bool {
	return hasType(err, ErrorTypeInsufficientBalance)
}

// IsBackendError reports whether the error came from the generation
// backend (including timeouts), the class absorbed by fallbacks.
func IsBackendError(err error) bool {
	return hasType(err, ErrorTypeBackend) || hasType(err, ErrorTypeTimeout)
}

// IsCallerError reports whether the error is the caller's fault and
// must not be retried.
func IsCallerError(err error) bool {
	var appError *AppError
	if !errors.As(err, &appError) {
		return false
	}
	switch appError.Type {
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeUnauthorized,
		ErrorTypeForbidden, ErrorTypeConflict:
		return true
	}
	return false
}

func hasType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeForbidden:
		return "FORBIDDEN"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case ErrorTypeBackend:
		return "BACKEND_UNAVAILABLE"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
			Details: appError.Details,
		}
	}

	return NewAppError(errType, message, err)
}
