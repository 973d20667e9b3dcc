package vectordb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const positionKey = "position"

// ChromemRepository 基于chromem-go内存集合的向量存储
// chromem只支持余弦相似度，向量在写入时被归一化
type ChromemRepository struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
}

// NewChromemRepository 创建chromem向量存储，每个实例使用独立的集合
func NewChromemRepository(config Config) (Repository, error) {
	if config.DistanceType != "" && config.DistanceType != Cosine {
		return nil, fmt.Errorf("chromem store only supports cosine distance, got %s", config.DistanceType)
	}

	db := chromem.NewDB()
	// 向量总是预先计算好的，不需要嵌入函数
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, errors.New("chromem collection expects precomputed embeddings")
	}
	collection, err := db.CreateCollection("fragments-"+uuid.NewString(), nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem collection: %w", err)
	}

	return &ChromemRepository{
		db:         db,
		collection: collection,
		dimension:  config.Dimension,
	}, nil
}

// AddBatch 批量添加文档
func (r *ChromemRepository) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dim := r.dimension
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if dim == 0 {
			dim = len(doc.Vector)
		}
		if err := ValidateVector(doc.Vector, dim); err != nil {
			return fmt.Errorf("invalid vector for document %d: %w", i, err)
		}
		if vectorNorm(doc.Vector) == 0 {
			return fmt.Errorf("invalid vector for document %d: zero vector", i)
		}
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Metadata:  map[string]string{positionKey: strconv.Itoa(doc.Position)},
			Embedding: doc.Vector,
			Content:   doc.Text,
		}
	}

	if err := r.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents to chromem: %w", err)
	}
	r.dimension = dim
	return nil
}

// Search 相似度搜索
// 取回全部结果后自行排序，保证同分时的顺序稳定
func (r *ChromemRepository) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	var results []SearchResult
	if vectorNorm(vector) == 0 {
		// 零向量与任何文档都不相似
		var err error
		results, err = r.allWithZeroScore(ctx, count)
		if err != nil {
			return nil, err
		}
	} else {
		found, err := r.collection.QueryEmbedding(ctx, vector, count, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query failed: %w", err)
		}
		results = make([]SearchResult, 0, len(found))
		for _, res := range found {
			doc, err := toDocument(res.ID, res.Metadata, res.Content, res.Embedding)
			if err != nil {
				return nil, err
			}
			results = append(results, SearchResult{
				Document: doc,
				Score:    res.Similarity,
				Distance: 1 - res.Similarity,
			})
		}
	}

	SortSearchResults(results)
	return topK(results, k), nil
}

func (r *ChromemRepository) allWithZeroScore(ctx context.Context, count int) ([]SearchResult, error) {
	// 用任意单位向量取出全部文档，再把得分置零
	probe := make([]float32, r.dimension)
	probe[0] = 1
	found, err := r.collection.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}
	results := make([]SearchResult, 0, len(found))
	for _, res := range found {
		doc, err := toDocument(res.ID, res.Metadata, res.Content, res.Embedding)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Document: doc, Score: 0, Distance: 1})
	}
	return results, nil
}

func toDocument(id string, metadata map[string]string, content string, vector []float32) (Document, error) {
	position, err := strconv.Atoi(metadata[positionKey])
	if err != nil {
		return Document{}, fmt.Errorf("document %s has invalid position: %w", id, err)
	}
	return Document{
		ID:       id,
		Position: position,
		Text:     content,
		Vector:   vector,
	}, nil
}

// Count 获取文档总数
func (r *ChromemRepository) Count() int {
	return r.collection.Count()
}

// Dimension 返回向量维数
func (r *ChromemRepository) Dimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// Close 删除集合
func (r *ChromemRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.DeleteCollection(r.collection.Name)
}

func init() {
	RegisterRepository("chromem", NewChromemRepository)
}
