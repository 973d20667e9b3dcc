package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation    = "VALIDATION_ERROR"    // 输入验证错误
	ErrorTypeUnprocessable = "UNPROCESSABLE_ERROR" // 请求体无法解析
	ErrorTypeBusiness      = "BUSINESS_ERROR"      // 业务逻辑错误
	ErrorTypeTooMany       = "TOO_MANY_REQUESTS"   // 请求过于频繁
	ErrorTypeInternal      = "INTERNAL_ERROR"      // 内部服务器错误
)

// AppError 应用错误结构体
// Message会原样作为响应的detail返回给客户端
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息，只写入日志
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUnprocessableError 创建请求体校验失败错误
func NewUnprocessableError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeUnprocessable,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusUnprocessableEntity,
	}
}

// NewBusinessError 创建业务逻辑错误
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewTooManyRequestsError 创建限流错误
func NewTooManyRequestsError(message string) AppError {
	return AppError{
		Type:    ErrorTypeTooMany,
		Message: message,
		Code:    http.StatusTooManyRequests,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// ErrorMiddleware 统一错误处理中间件
// 处理器通过HandleError上报错误，这里统一渲染为{"detail": ...}
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					FieldError:   err,
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: c.GetString(TraceIDKey),
					"stack":      string(debug.Stack()),
				}).Error("Panic recovered in API request")

				detail := "An unexpected error occurred"
				if gin.Mode() == gin.DebugMode {
					detail = fmt.Sprintf("Panic: %v", err)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, model.NewErrorResponse(detail))
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// 取最后一个错误进行处理
		err := c.Errors.Last().Err
		fields := logrus.Fields{
			FieldTraceID: c.GetString(TraceIDKey),
			FieldPath:    c.Request.URL.Path,
		}

		var appErr AppError
		var appErrPtr *AppError
		switch {
		case errors.As(err, &appErr):
		case errors.As(err, &appErrPtr):
			appErr = *appErrPtr
		default:
			log.WithFields(fields).Error(err.Error())

			detail := "Internal server error"
			if gin.Mode() == gin.DebugMode {
				detail = err.Error()
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, model.NewErrorResponse(detail))
			return
		}

		fields["error_type"] = appErr.Type
		if appErr.Details != "" {
			fields["details"] = appErr.Details
		}
		entry := log.WithFields(fields)
		if appErr.Code >= http.StatusInternalServerError {
			entry.Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		c.AbortWithStatusJSON(appErr.Code, model.NewErrorResponse(appErr.Message))
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}
