package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// Retriever 按文本检索最相关的段落
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]vectordb.SearchResult, error)
}

// Conversation 绑定到一个索引的多轮问答
// 同一会话的提问串行执行，历史只在问答成功后追加
type Conversation struct {
	sessionID  string
	retriever  Retriever
	rag        *llm.RAGService
	archive    TurnArchive
	topK       int
	logger     *logrus.Logger
	mu         sync.Mutex
	transcript []models.Turn
}

// ConversationOption 会话配置选项
type ConversationOption func(*Conversation)

// WithTopK 设置每次检索的段落数
func WithTopK(k int) ConversationOption {
	return func(c *Conversation) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithArchive 设置问答归档
func WithArchive(archive TurnArchive) ConversationOption {
	return func(c *Conversation) {
		c.archive = archive
	}
}

// WithConversationLogger 设置日志记录器
func WithConversationLogger(logger *logrus.Logger) ConversationOption {
	return func(c *Conversation) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionID 设置归档使用的会话ID
func WithSessionID(id string) ConversationOption {
	return func(c *Conversation) {
		c.sessionID = id
	}
}

// NewConversation 创建空历史的会话
func NewConversation(retriever Retriever, rag *llm.RAGService, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		retriever: retriever,
		rag:       rag,
		topK:      vectordb.DefaultTopK,
		logger:    logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask 回答一个问题
// 有历史时先改写为独立问题再检索，回答使用原始问题
func (c *Conversation) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", models.ErrEmptyQuestion
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logger.WithField("session_id", c.sessionID)

	standalone, err := c.rag.Condense(ctx, c.history(), question)
	if err != nil {
		log.WithError(err).Warn("Failed to condense question")
		return "", fmt.Errorf("failed to condense question: %w", err)
	}

	results, err := c.retriever.Query(ctx, standalone, c.topK)
	if err != nil {
		log.WithError(err).Warn("Retrieval failed")
		return "", err
	}

	sources := make([]llm.SourceReference, len(results))
	for i, res := range results {
		sources[i] = llm.SourceReference{
			Position: res.Document.Position,
			Content:  res.Document.Text,
		}
	}

	resp, err := c.rag.Answer(ctx, question, sources)
	if err != nil {
		log.WithError(err).Warn("Failed to generate answer")
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	turn := models.Turn{
		Question:  question,
		Answer:    resp.Answer,
		CreatedAt: time.Now(),
	}
	c.transcript = append(c.transcript, turn)

	log.WithFields(logrus.Fields{
		"turns":      len(c.transcript),
		"standalone": standalone != question,
		"fragments":  len(results),
	}).Info("Question answered")

	c.record(ctx, turn, results)
	return resp.Answer, nil
}

// Transcript 返回历史的副本
func (c *Conversation) Transcript() []models.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Turn(nil), c.transcript...)
}

// Len 返回已完成的问答轮数
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transcript)
}

// history 把历史转换为模型消息，调用方需持有锁
func (c *Conversation) history() []llm.Message {
	messages := make([]llm.Message, 0, len(c.transcript)*2)
	for _, turn := range c.transcript {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.Question},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Answer},
		)
	}
	return messages
}

// record 写入归档，失败只记录日志
func (c *Conversation) record(ctx context.Context, turn models.Turn, results []vectordb.SearchResult) {
	if c.archive == nil || c.sessionID == "" {
		return
	}

	sources := make([]models.Source, len(results))
	for i, res := range results {
		sources[i] = models.Source{
			Position: res.Document.Position,
			Text:     res.Document.Text,
			Score:    res.Score,
		}
	}
	if err := c.archive.RecordTurn(ctx, c.sessionID, turn, sources); err != nil {
		c.logger.WithError(err).WithField("session_id", c.sessionID).Warn("Failed to archive chat turn")
	}
}
