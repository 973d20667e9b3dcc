package models

import "errors"

var (
	// ErrNoActiveSession 还没有上传文档，不存在可用的会话
	ErrNoActiveSession = errors.New("no chat session is active")

	// ErrInvalidUpload 上传的文件不是PDF
	ErrInvalidUpload = errors.New("invalid file type")

	// ErrEmptyQuestion 问题为空
	ErrEmptyQuestion = errors.New("question cannot be empty")
)
