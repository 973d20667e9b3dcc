package vectordb

import (
	"context"
	"errors"
	"fmt"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")

	// ErrIndexBuild 索引构建失败
	ErrIndexBuild = errors.New("failed to build index")
	// ErrRetrieval 检索失败
	ErrRetrieval = errors.New("failed to retrieve fragments")
	// ErrNoFragments 没有可索引的段落
	ErrNoFragments = fmt.Errorf("%w: no text fragments to index", ErrIndexBuild)
)

// IndexBuildError 索引构建错误
type IndexBuildError struct {
	Stage string // 失败阶段: embed, store
	Err   error
}

// Error 实现error接口
func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("failed to build index (%s): %v", e.Stage, e.Err)
}

// Unwrap 返回底层错误
func (e *IndexBuildError) Unwrap() error {
	return e.Err
}

// Is 使errors.Is(err, ErrIndexBuild)成立
func (e *IndexBuildError) Is(target error) bool {
	return target == ErrIndexBuild
}

// Document 已向量化的文档段落
type Document struct {
	ID       string    // 唯一标识符
	Position int       // 在段落序列中的位置，同分时按它排序
	Text     string    // 原始文本内容
	Vector   []float32 // 向量表示
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Document Document // 文档对象
	Score    float32  // 相似度得分，越大越相似
	Distance float32  // 计算的距离
}

// Repository 向量存储接口
// 每个会话独占一个实例，写入完成后只读
type Repository interface {
	// AddBatch 按顺序批量添加文档
	AddBatch(ctx context.Context, docs []Document) error

	// Search 返回最相似的k个文档，按得分降序，同分按Position升序
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// Count 获取文档总数
	Count() int

	// Dimension 返回向量维数，空库返回0
	Dimension() int

	// Close 释放资源
	Close() error
}

// Config 向量存储配置
type Config struct {
	Type         string       // 存储类型: "memory", "chromem", "faiss"
	Dimension    int          // 向量维度，0表示由第一批向量决定
	DistanceType DistanceType // 距离计算类型
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Type:         "memory",
		DistanceType: Cosine,
	}
}

// Factory 向量存储工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量存储实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量存储工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量存储实例
func NewRepository(config Config) (Repository, error) {
	if config.DistanceType == "" {
		config.DistanceType = Cosine
	}
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		if config.Type != "" && config.Type != "memory" {
			return nil, fmt.Errorf("unsupported vector store type: %s", config.Type)
		}
		factory = NewMemoryRepository
	}
	return factory(config)
}
