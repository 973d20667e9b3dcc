package models

import "time"

// Turn 一轮问答
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo 当前会话的只读快照
type SessionInfo struct {
	ID        string    `json:"id"`         // 会话ID
	FileName  string    `json:"file_name"`  // 上传的文件名
	Fragments int       `json:"fragments"`  // 索引中的段落数
	Pages     int       `json:"pages"`      // PDF总页数
	TextPages int       `json:"text_pages"` // 提取到文本的页数
	Turns     int       `json:"turns"`      // 已完成的问答轮数
	Model     string    `json:"model"`      // 嵌入模型
	CreatedAt time.Time `json:"created_at"` // 创建时间
}
