package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// TurnArchive 问答归档
// 归档只写不读，失败不会影响问答本身
type TurnArchive interface {
	// StartSession 记录一次新的上传
	StartSession(ctx context.Context, info models.SessionInfo) error

	// RecordTurn 记录一轮完成的问答及其引用段落
	RecordTurn(ctx context.Context, sessionID string, turn models.Turn, sources []models.Source) error
}

// ChatService 基于数据库的问答归档服务
type ChatService struct {
	repo   repository.ChatRepository // 聊天仓储接口
	logger *logrus.Logger            // 日志记录器
}

// ChatOption 聊天服务配置选项
type ChatOption func(*ChatService)

// NewChatService 创建聊天服务实例
func NewChatService(repo repository.ChatRepository, opts ...ChatOption) *ChatService {
	service := &ChatService{
		repo:   repo,
		logger: logrus.New(),
	}

	// 应用配置选项
	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithChatLogger 设置日志记录器
func WithChatLogger(logger *logrus.Logger) ChatOption {
	return func(s *ChatService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// StartSession 创建归档会话
func (s *ChatService) StartSession(ctx context.Context, info models.SessionInfo) error {
	metadata, err := json.Marshal(map[string]interface{}{
		"text_pages": info.TextPages,
		"model":      info.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}

	session := &models.ChatSession{
		ID:        info.ID,
		FileName:  info.FileName,
		Fragments: info.Fragments,
		Pages:     info.Pages,
		CreatedAt: info.CreatedAt,
		Metadata:  datatypes.JSON(metadata),
	}
	if err := s.repo.WithContext(ctx).CreateSession(session); err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"file_name":  session.FileName,
	}).Debug("Chat session archived")
	return nil
}

// RecordTurn 写入一轮问答
func (s *ChatService) RecordTurn(ctx context.Context, sessionID string, turn models.Turn, sources []models.Source) error {
	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	question := &models.ChatMessage{Content: turn.Question, CreatedAt: turn.CreatedAt}
	answer := &models.ChatMessage{Content: turn.Answer, CreatedAt: turn.CreatedAt, Sources: datatypes.JSON(data)}
	if err := s.repo.WithContext(ctx).SaveTurn(sessionID, question, answer); err != nil {
		return fmt.Errorf("failed to save chat turn: %w", err)
	}
	return nil
}
