package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Response 大模型响应
type Response struct {
	Text         string    `json:"text"`                    // 生成的文本
	TokenCount   int       `json:"token_count,omitempty"`   // 消耗的Token数
	ModelName    string    `json:"model_name"`              // 模型名称
	FinishReason string    `json:"finish_reason,omitempty"` // 结束原因
	FinishTime   time.Time `json:"finish_time"`             // 完成时间
}

// RAGResponse 检索增强生成的响应
type RAGResponse struct {
	Answer  string            `json:"answer"`            // 回答内容
	Sources []SourceReference `json:"sources,omitempty"` // 引用来源
}

// SourceReference 回答引用的段落
type SourceReference struct {
	Position int    `json:"position"` // 段落在文档中的序号
	Content  string `json:"content"`  // 段落内容
}
