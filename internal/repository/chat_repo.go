package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSessionNotFound 归档中不存在该会话
var ErrSessionNotFound = errors.New("chat session not found")

// ChatRepository 问答归档仓储接口
// 只负责写入和审计查询，归档不会被加载回内存会话
type ChatRepository interface {
	// CreateSession 创建聊天会话
	CreateSession(session *models.ChatSession) error

	// GetSession 获取聊天会话
	GetSession(id string) (*models.ChatSession, error)

	// SaveTurn 在一个事务中写入一轮问答
	SaveTurn(sessionID string, question, answer *models.ChatMessage) error

	// GetMessages 按时间顺序获取会话消息
	GetMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error)

	// CountMessages 统计会话消息数量
	CountMessages(sessionID string) (int64, error)

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) ChatRepository
}

// chatRepo 聊天仓储实现
type chatRepo struct {
	db *gorm.DB // 数据库连接
}

// NewChatRepository 使用指定的数据库连接创建聊天仓储实例
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepo{
		db: db,
	}
}

// WithContext 创建带有上下文的仓储
func (r *chatRepo) WithContext(ctx context.Context) ChatRepository {
	return &chatRepo{
		db: r.db.WithContext(ctx),
	}
}

// CreateSession 创建聊天会话
func (r *chatRepo) CreateSession(session *models.ChatSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	return r.db.Create(session).Error
}

// GetSession 获取聊天会话
func (r *chatRepo) GetSession(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &session, nil
}

// SaveTurn 在一个事务中写入一轮问答并刷新会话更新时间
func (r *chatRepo) SaveTurn(sessionID string, question, answer *models.ChatMessage) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.ChatSession{}).Where("id = ?", sessionID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}

		question.SessionID = sessionID
		question.Role = models.RoleUser
		answer.SessionID = sessionID
		answer.Role = models.RoleAssistant

		// 回答的时间不早于问题，保证按时间排序时顺序正确
		now := time.Now()
		if question.CreatedAt.IsZero() {
			question.CreatedAt = now
		}
		if answer.CreatedAt.Before(question.CreatedAt) {
			answer.CreatedAt = question.CreatedAt
		}

		if err := tx.Create(question).Error; err != nil {
			return err
		}
		if err := tx.Create(answer).Error; err != nil {
			return err
		}

		return tx.Model(&models.ChatSession{}).
			Where("id = ?", sessionID).
			Update("updated_at", now).Error
	})
}

// GetMessages 获取会话消息列表
func (r *chatRepo) GetMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	var messages []*models.ChatMessage
	var total int64

	err := r.db.Model(&models.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// CountMessages 统计会话消息数量
func (r *chatRepo) CountMessages(sessionID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error

	return count, err
}
