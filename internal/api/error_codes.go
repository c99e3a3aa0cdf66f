// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 会话
	ErrorNoSession = "NO_SESSION"

	// 后端
	ErrorBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrorBackendRejected    = "BACKEND_REJECTED"
	ErrorInvalidResponse    = "INVALID_RESPONSE"

	// 文件
	ErrorFileInvalid = "FILE_INVALID"
)
