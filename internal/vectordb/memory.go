package vectordb

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository 内存向量存储
// 精确的暴力搜索，文档按插入顺序保存
type MemoryRepository struct {
	mu        sync.RWMutex
	documents []Document
	dimension int
	distType  DistanceType
}

// NewMemoryRepository 创建内存向量存储
func NewMemoryRepository(config Config) (Repository, error) {
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	if _, err := ComputeDistance(nil, nil, distType); err != nil {
		return nil, err
	}
	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  distType,
	}, nil
}

// AddBatch 批量添加文档
func (r *MemoryRepository) AddBatch(ctx context.Context, docs []Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dim := r.dimension
	for i, doc := range docs {
		if dim == 0 {
			dim = len(doc.Vector)
		}
		if err := ValidateVector(doc.Vector, dim); err != nil {
			return fmt.Errorf("invalid vector for document %d: %w", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.dimension = dim
	r.documents = append(r.documents, docs...)
	return nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(r.documents))
	for i, doc := range r.documents {
		// 大文档时定期检查取消
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    DistanceToScore(dist, r.distType),
			Distance: dist,
		})
	}

	SortSearchResults(results)
	return topK(results, k), nil
}

// Count 获取文档总数
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents)
}

// Dimension 返回向量维数
func (r *MemoryRepository) Dimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// Close 释放文档
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = nil
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
