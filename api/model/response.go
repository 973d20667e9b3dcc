package model

import "github.com/fyerfyer/pdf-chat/internal/models"

// ErrorResponse 错误响应，detail字段与前端约定一致
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(detail string) *ErrorResponse {
	return &ErrorResponse{Detail: detail}
}

// UploadResponse 上传成功响应
type UploadResponse struct {
	Message string `json:"message"`
}

// AskResponse 提问成功响应
type AskResponse struct {
	Answer string `json:"answer"`
}

// SessionResponse 会话状态响应
type SessionResponse struct {
	Active  bool                `json:"active"`
	Session *models.SessionInfo `json:"session,omitempty"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status string `json:"status"`
}
