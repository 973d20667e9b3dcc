package embedding

import (
	"context"
	"errors"
	"fmt"
)

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
	Err     error  // 底层错误
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding error (code=%d): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e EmbeddingError) Unwrap() error {
	return e.Err
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeDimension      = 1008 // 向量维度不一致
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgDimension      = "embedding count does not match input count"
)

var (
	// ErrEmptyText 输入文本为空
	ErrEmptyText = NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// WrapError 包装底层错误，超时单独归类
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var embErr EmbeddingError
	if errors.As(err, &embErr) {
		return err
	}
	code := ErrCodeServerError
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	return EmbeddingError{Code: code, Message: message, Err: err}
}

// IsEmbeddingError 判断是否为指定错误码的嵌入错误
func IsEmbeddingError(err error, code int) bool {
	var embErr EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Code == code
	}
	return false
}
