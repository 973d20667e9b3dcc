package vectordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultTopK 默认检索的段落数
const DefaultTopK = 4

// Index 一次上传对应的只读检索索引
// 查询时使用构建索引时的同一个嵌入客户端
type Index struct {
	repo     Repository
	embedder embedding.Client
	size     int
}

// Query 返回与文本最相似的k个段落
// k不大于0时使用DefaultTopK，k超过段落总数时返回全部段落
func (idx *Index) Query(ctx context.Context, text string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrRetrieval)
	}

	vector, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}

	results, err := idx.repo.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrRetrieval, err)
	}
	return results, nil
}

// Size 返回段落数量
func (idx *Index) Size() int {
	return idx.size
}

// Model 返回构建索引使用的嵌入模型名称
func (idx *Index) Model() string {
	return idx.embedder.Name()
}

// Close 释放底层存储
func (idx *Index) Close() error {
	return idx.repo.Close()
}

// Builder 索引构建器
type Builder struct {
	processor *embedding.BatchProcessor
	config    Config
	logger    *logrus.Logger
}

// BuilderOption 构建器配置选项
type BuilderOption func(*Builder)

// WithBuilderLogger 设置日志记录器
func WithBuilderLogger(logger *logrus.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithStoreConfig 设置向量存储配置
func WithStoreConfig(config Config) BuilderOption {
	return func(b *Builder) {
		b.config = config
	}
}

// NewBuilder 创建索引构建器
func NewBuilder(processor *embedding.BatchProcessor, opts ...BuilderOption) *Builder {
	b := &Builder{
		processor: processor,
		config:    DefaultConfig(),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 为段落计算向量并构建索引
// 段落为空时直接失败，不会调用嵌入模型
func (b *Builder) Build(ctx context.Context, fragments []document.Content) (*Index, error) {
	if len(fragments) == 0 {
		return nil, ErrNoFragments
	}

	texts := make([]string, len(fragments))
	for i, frag := range fragments {
		texts[i] = frag.Text
	}

	vectors, err := b.processor.Process(ctx, texts)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to embed fragments")
		return nil, &IndexBuildError{Stage: "embed", Err: err}
	}

	config := b.config
	config.Dimension = len(vectors[0])
	repo, err := NewRepository(config)
	if err != nil {
		return nil, &IndexBuildError{Stage: "store", Err: err}
	}

	docs := make([]Document, len(fragments))
	for i, frag := range fragments {
		docs[i] = Document{
			ID:       uuid.NewString(),
			Position: i,
			Text:     frag.Text,
			Vector:   vectors[i],
		}
	}
	if err := repo.AddBatch(ctx, docs); err != nil {
		_ = repo.Close()
		return nil, &IndexBuildError{Stage: "store", Err: err}
	}

	b.logger.WithFields(logrus.Fields{
		"fragments": len(docs),
		"dimension": config.Dimension,
		"store":     config.Type,
		"model":     b.processor.Client().Name(),
	}).Info("Index built")

	return &Index{
		repo:     repo,
		embedder: b.processor.Client(),
		size:     len(docs),
	}, nil
}
