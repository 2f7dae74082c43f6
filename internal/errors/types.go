package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// 文档处理错误
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeExtractionFailed  ErrorCode = "EXTRACTION_FAILED"

	// 外部服务错误
	ErrCodeEmbeddingService ErrorCode = "EMBEDDING_SERVICE_ERROR"
	ErrCodeIndexQuery       ErrorCode = "INDEX_QUERY_ERROR"
	ErrCodeGeneration       ErrorCode = "GENERATION_ERROR"
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewUnsupportedFormatError 创建不支持的文件格式错误
// 属于用户输入错误，返回400
func NewUnsupportedFormatError(filename string) *AppError {
	return &AppError{
		Code:     ErrCodeUnsupportedFormat,
		Message:  fmt.Sprintf("unsupported file format: %s", filename),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewExtractionFailedError 创建文本提取失败错误
// 任何策略都无法从文件中恢复文本时返回
func NewExtractionFailedError(filename string) *AppError {
	return &AppError{
		Code:     ErrCodeExtractionFailed,
		Message:  fmt.Sprintf("no text could be extracted from %s", filename),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusUnprocessableEntity,
	}
}

// NewEmbeddingServiceError 创建向量化服务错误
func NewEmbeddingServiceError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeEmbeddingService,
		Message:  "embedding service request failed",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// NewIndexQueryError 创建向量索引查询错误
func NewIndexQueryError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeIndexQuery,
		Message:  "vector index query failed",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// NewGenerationError 创建生成服务错误
func NewGenerationError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeGeneration,
		Message:  "generation service request failed",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// NewDatabaseError 创建数据库错误
func NewDatabaseError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeDatabaseError,
		Message:  "database operation failed",
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// HasCode 判断错误链中是否包含指定错误码
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
