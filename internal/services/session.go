package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Session 一次成功上传产生的会话
type Session struct {
	info         models.SessionInfo
	index        *vectordb.Index
	conversation *Conversation
}

// SessionManager 进程内唯一的会话槽位
// 上传在锁外构建新会话，成功后在写锁内替换；提问在读锁内完成
type SessionManager struct {
	documents *DocumentService
	rag       *llm.RAGService
	archive   TurnArchive
	topK      int
	logger    *logrus.Logger

	mu      sync.RWMutex
	current *Session
}

// SessionOption 会话管理器配置选项
type SessionOption func(*SessionManager)

// WithSessionArchive 设置问答归档
func WithSessionArchive(archive TurnArchive) SessionOption {
	return func(m *SessionManager) {
		m.archive = archive
	}
}

// WithSessionTopK 设置每次检索的段落数
func WithSessionTopK(k int) SessionOption {
	return func(m *SessionManager) {
		if k > 0 {
			m.topK = k
		}
	}
}

// WithSessionLogger 设置日志记录器
func WithSessionLogger(logger *logrus.Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSessionManager 创建处于空状态的会话管理器
func NewSessionManager(documents *DocumentService, rag *llm.RAGService, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		documents: documents,
		rag:       rag,
		topK:      vectordb.DefaultTopK,
		logger:    logrus.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Upload 处理新文档并替换当前会话
// 失败时保持原来的状态不变
func (m *SessionManager) Upload(ctx context.Context, filename string, r io.Reader) (models.SessionInfo, error) {
	if !document.IsPDF(filename) {
		return models.SessionInfo{}, fmt.Errorf("%w: %s", models.ErrInvalidUpload, filename)
	}

	result, err := m.documents.Ingest(ctx, filename, r)
	if err != nil {
		return models.SessionInfo{}, err
	}

	info := models.SessionInfo{
		ID:        uuid.New().String(),
		FileName:  filename,
		Fragments: result.Fragments,
		Pages:     result.Pages,
		TextPages: result.TextPages,
		Model:     result.Index.Model(),
		CreatedAt: time.Now(),
	}

	archive := m.archive
	if archive != nil {
		if err := archive.StartSession(ctx, info); err != nil {
			m.logger.WithError(err).WithField("session_id", info.ID).Warn("Failed to archive chat session")
			archive = nil
		}
	}

	session := &Session{
		info:  info,
		index: result.Index,
		conversation: NewConversation(result.Index, m.rag,
			WithTopK(m.topK),
			WithArchive(archive),
			WithSessionID(info.ID),
			WithConversationLogger(m.logger),
		),
	}

	m.mu.Lock()
	previous := m.current
	m.current = session
	m.mu.Unlock()

	// 写锁保证旧会话上已没有进行中的提问
	if previous != nil {
		if err := previous.index.Close(); err != nil {
			m.logger.WithError(err).Warn("Failed to release previous index")
		}
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": info.ID,
		"file_name":  filename,
		"fragments":  info.Fragments,
		"replaced":   previous != nil,
	}).Info("Chat session created")
	return info, nil
}

// Ask 在当前会话中提问
func (m *SessionManager) Ask(ctx context.Context, question string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return "", models.ErrNoActiveSession
	}
	return m.current.conversation.Ask(ctx, question)
}

// Status 返回当前会话的快照，没有会话时第二个返回值为false
func (m *SessionManager) Status() (models.SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return models.SessionInfo{}, false
	}
	info := m.current.info
	info.Turns = m.current.conversation.Len()
	return info, true
}

// Transcript 返回当前会话的历史
func (m *SessionManager) Transcript() ([]models.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, models.ErrNoActiveSession
	}
	return m.current.conversation.Transcript(), nil
}

// Close 释放当前会话
func (m *SessionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	err := m.current.index.Close()
	m.current = nil
	return err
}
