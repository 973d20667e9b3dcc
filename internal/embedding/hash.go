package embedding

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "so", "such", "into", "about", "than", "can", "will", "just",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// HashClient 基于特征哈希的本地嵌入客户端
// 不依赖外部服务，适合离线运行和测试；词和相邻词对被哈希到固定维度并做L2归一化
type HashClient struct {
	model      string
	dimensions int
}

// NewHashClient 创建特征哈希嵌入客户端
func NewHashClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.Dimensions <= 0 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "dimensions must be positive")
	}
	model := cfg.Model
	if model == "" || model == DefaultConfig().Model {
		model = "feature-hash"
	}
	return &HashClient{model: model, dimensions: cfg.Dimensions}, nil
}

// Embed 生成单条文本的向量表示
func (c *HashClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapError(err, "embedding cancelled")
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vec := make([]float64, c.dimensions)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		// 没有可用的词时退化为按字符哈希，保证向量非零
		for _, r := range strings.TrimSpace(text) {
			tokens = append(tokens, string(r))
		}
	}
	for i, tok := range tokens {
		c.add(vec, tok, 1.0)
		if i > 0 {
			c.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return normalize(vec), nil
}

// EmbedBatch 批量生成向量
func (c *HashClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

// Name 返回模型名称
func (c *HashClient) Name() string {
	return c.model
}

func (c *HashClient) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(c.dimensions))
	// 最高位决定符号，减少碰撞带来的偏差
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func normalize(vec []float64) []float32 {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	for i, v := range vec {
		if norm > 0 {
			out[i] = float32(v / norm)
		}
	}
	return out
}

func init() {
	RegisterClient("hash", NewHashClient)
}
