// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 请求发出前的本地校验失败，网络调用被跳过
	ErrorTypeValidation ErrorType = "validation_error"
	// 非 2xx 状态或网络故障
	ErrorTypeTransport ErrorType = "transport_error"
	// HTTP 成功但返回体 success=false
	ErrorTypeLogical ErrorType = "logical_failure"
	// 期望 JSON 但返回体无法解析
	ErrorTypeParse    ErrorType = "parse_error"
	ErrorTypeConflict ErrorType = "conflict"
	ErrorTypeNotFound ErrorType = "not_found"
	ErrorTypeTimeout  ErrorType = "timeout"
)

// 稳定的错误代码
const (
	CodeMissingProjectID  = "MISSING_PROJECT_ID"
	CodeNoProjectID       = "NO_PROJECT_ID"
	CodeNoChapters        = "NO_CHAPTERS"
	CodeMissingTemplateID = "MISSING_TEMPLATE_ID"
	CodeRequestFailed     = "REQUEST_FAILED"
	CodeSaveRejected      = "SAVE_REJECTED"
	CodeAlreadyRunning    = "ALREADY_RUNNING"
	CodeExportFailed      = "EXPORT_FAILED"
	CodeInvalidResponse   = "INVALID_RESPONSE"
	CodeNotConnected      = "NOT_CONNECTED"
	CodeChapterNotFound   = "CHAPTER_NOT_FOUND"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
	Status  int    // HTTP 状态码，网络故障时为 0
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

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// WithCode 返回带指定错误代码的副本
func (e *AppError) WithCode(code string) *AppError {
	cp := *e
	cp.Code = code
	return &cp
}

// NewValidationError 创建验证错误
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, nil).WithCode(code)
}

// NewTransportError 创建传输错误，即 RequestFailed{status}
func NewTransportError(status int, message string, originalError error) *AppError {
	e := NewAppError(ErrorTypeTransport, message, originalError)
	e.Status = status
	return e
}

// NewLogicalFailure 创建逻辑失败错误
func NewLogicalFailure(code, message string) *AppError {
	return NewAppError(ErrorTypeLogical, message, nil).WithCode(code)
}

// NewParseError 创建解析错误
func NewParseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeParse, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(code, message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, nil).WithCode(code)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(code, message string) *AppError {
	return NewAppError(ErrorTypeNotFound, message, nil).WithCode(code)
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsTransportError 检查是否为传输错误
func IsTransportError(err error) bool { return isType(err, ErrorTypeTransport) }

// IsLogicalFailure 检查是否为逻辑失败
func IsLogicalFailure(err error) bool { return isType(err, ErrorTypeLogical) }

// IsParseError 检查是否为解析错误
func IsParseError(err error) bool { return isType(err, ErrorTypeParse) }

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// HasCode 检查错误链中是否存在指定代码
func HasCode(err error, code string) bool {
	for err != nil {
		var appError *AppError
		if !errors.As(err, &appError) {
			return false
		}
		if appError.Code == code {
			return true
		}
		err = appError.Err
	}
	return false
}

// StatusOf 返回错误链中的 HTTP 状态码
func StatusOf(err error) int {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Status
	}
	return 0
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeTransport:
		return CodeRequestFailed
	case ErrorTypeLogical:
		return "LOGICAL_FAILURE"
	case ErrorTypeParse:
		return CodeInvalidResponse
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
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
		// 如果已经是 AppError，保留类型、代码和状态码
		return &AppError{
			Type:    appError.Type,
			Message: message,
			Err:     appError,
			Code:    appError.Code,
			Status:  appError.Status,
		}
	}

	return NewAppError(errType, message, err)
}
