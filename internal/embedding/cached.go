package embedding

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 以模型名和文本摘要为键缓存向量，缓存故障只记录日志，不影响结果
type CachedClient struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 创建带缓存的嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{
		client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Embed 生成单条文本的向量表示
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, vec)
	return vec, nil
}

// EmbedBatch 批量生成向量，只为未命中的文本调用底层客户端
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := c.client.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, NewEmbeddingError(ErrCodeDimension, ErrMsgDimension)
	}
	for j, idx := range missIdx {
		results[idx] = vectors[j]
		c.store(ctx, keys[idx], vectors[j])
	}
	return results, nil
}

// Name 返回底层模型名称
func (c *CachedClient) Name() string {
	return c.client.Name()
}

func (c *CachedClient) key(text string) string {
	return cache.GenerateCacheKey("emb", c.client.Name(), cache.HashKey(text))
}

func (c *CachedClient) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).Warn("Embedding cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) == 0 {
		c.logger.WithField("key", key).Warn("Discarding malformed cached embedding")
		_ = c.cache.Delete(ctx, key)
		return nil, false
	}
	return vec, true
}

func (c *CachedClient) store(ctx context.Context, key string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.WithError(err).Warn("Embedding cache write failed")
	}
}
