package llm

import (
	"context"
	"errors"
	"fmt"
)

// 生成失败的两类哨兵错误，LLMError按错误码匹配其中之一
var (
	ErrGenerationFailed  = errors.New("generation failed")
	ErrGenerationTimeout = errors.New("generation timed out")
)

// LLMError 大模型调用错误类型
type LLMError struct {
	Code    int    // 错误码
	Message string // 错误消息
	Err     error  // 原始错误
}

// Error 实现error接口
func (e *LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *LLMError) Unwrap() error {
	return e.Err
}

// Is 超时错误码匹配ErrGenerationTimeout，其余匹配ErrGenerationFailed
func (e *LLMError) Is(target error) bool {
	switch target {
	case ErrGenerationTimeout:
		return e.Code == ErrCodeTimeout
	case ErrGenerationFailed:
		return e.Code != ErrCodeTimeout
	}
	return false
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyPrompt    = 1007 // 提示词为空
	ErrCodeEmptyResponse  = 1008 // 模型没有返回内容
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyPrompt    = "prompt cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgEmptyResponse  = "model returned no choices"
)

// NewLLMError 创建新的大模型错误
func NewLLMError(code int, message string) *LLMError {
	return &LLMError{
		Code:    code,
		Message: message,
	}
}

// WrapError 包装普通错误为LLM错误
// 上下文超时统一归类为ErrCodeTimeout
func WrapError(err error, code int) error {
	if err == nil {
		return nil
	}

	// 如果已经是LLMError类型，则直接返回
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	return &LLMError{
		Code:    code,
		Message: err.Error(),
		Err:     err,
	}
}

// IsLLMError 判断错误是否为指定错误码的LLM错误
func IsLLMError(err error, code int) bool {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Code == code
	}
	return false
}
