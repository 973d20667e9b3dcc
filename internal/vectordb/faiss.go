//go:build faiss

package vectordb

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss平坦索引的向量存储
// 需要本地安装libfaiss_c，使用 -tags faiss 编译
type FaissRepository struct {
	mu        sync.RWMutex
	index     faiss.Index
	documents []Document
	dimension int
	distType  DistanceType
}

// NewFaissRepository 创建Faiss向量存储
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("faiss store requires a positive vector dimension")
	}
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	index, err := createFaissIndex(config.Dimension, distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create Faiss index: %w", err)
	}

	return &FaissRepository{
		index:     index,
		dimension: config.Dimension,
		distType:  distType,
	}, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	switch distType {
	case Cosine, DotProduct:
		return faiss.NewIndexFlat(dimension, faiss.MetricInnerProduct)
	case Euclidean:
		return faiss.NewIndexFlat(dimension, faiss.MetricL2)
	default:
		return nil, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// AddBatch 批量添加文档
func (r *FaissRepository) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	flat := make([]float32, 0, len(docs)*r.dimension)
	for i := range docs {
		if err := ValidateVector(docs[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %d: %w", i, err)
		}
		if r.distType == Cosine {
			docs[i].Vector = normalizeVector(docs[i].Vector)
		}
		flat = append(flat, docs[i].Vector...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.index.Add(flat); err != nil {
		return fmt.Errorf("failed to add vectors to index: %w", err)
	}
	r.documents = append(r.documents, docs...)
	return nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.documents)
	if total == 0 {
		return []SearchResult{}, nil
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	// 取回全部结果以便同分时按位置排序
	distances, labels, err := r.index.Search(vector, int64(total))
	if err != nil {
		return nil, fmt.Errorf("faiss search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(labels))
	for i, label := range labels {
		if label < 0 || int(label) >= total {
			continue
		}
		score := distances[i]
		distance := 1 - score
		if r.distType == Euclidean {
			// MetricL2 返回平方距离
			distance = sqrt32(distances[i])
			score = DistanceToScore(distance, Euclidean)
		} else if r.distType == DotProduct {
			distance = score
		}
		results = append(results, SearchResult{
			Document: r.documents[label],
			Score:    score,
			Distance: distance,
		})
	}

	SortSearchResults(results)
	return topK(results, k), nil
}

// Count 获取文档总数
func (r *FaissRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents)
}

// Dimension 返回向量维数
func (r *FaissRepository) Dimension() int {
	return r.dimension
}

// Close 释放Faiss索引
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		r.index.Delete()
		r.index = nil
	}
	r.documents = nil
	return nil
}

func sqrt32(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(v)))
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
