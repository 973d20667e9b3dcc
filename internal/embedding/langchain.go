package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/embeddings/huggingface"
	hfllm "github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient 基于langchaingo嵌入器的客户端
// 同一个实例同时用于文档段落和查询，保证两者处于同一向量空间
type LangChainClient struct {
	embedder embeddings.Embedder
	model    string
	timeout  time.Duration
}

// NewLangChainClient 包装一个langchaingo嵌入器
func NewLangChainClient(embedder embeddings.Embedder, model string, timeout time.Duration) *LangChainClient {
	return &LangChainClient{
		embedder: embedder,
		model:    model,
		timeout:  timeout,
	}
}

// NewHuggingFaceClient 创建HuggingFace推理API嵌入客户端
func NewHuggingFaceClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	hfOpts := []huggingface.Option{
		huggingface.WithModel(cfg.Model),
		huggingface.WithBatchSize(cfg.BatchSize),
	}
	if cfg.APIKey != "" {
		llmOpts := []hfllm.Option{hfllm.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			llmOpts = append(llmOpts, hfllm.WithURL(cfg.BaseURL))
		}
		llm, err := hfllm.New(llmOpts...)
		if err != nil {
			return nil, WrapError(err, "failed to create huggingface client")
		}
		hfOpts = append(hfOpts, huggingface.WithClient(*llm))
	}

	embedder, err := huggingface.NewHuggingface(hfOpts...)
	if err != nil {
		return nil, WrapError(err, "failed to create huggingface embedder")
	}
	return NewLangChainClient(embedder, cfg.Model, cfg.Timeout), nil
}

// NewOpenAIClient 创建OpenAI兼容接口的嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.Model == DefaultConfig().Model {
		cfg.Model = "text-embedding-3-small"
	}

	llmOpts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, WrapError(err, "failed to create openai client")
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, WrapError(err, "failed to create openai embedder")
	}
	return NewLangChainClient(embedder, cfg.Model, cfg.Timeout), nil
}

// NewOllamaClient 创建本地Ollama嵌入客户端
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.Model == DefaultConfig().Model {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, WrapError(err, "failed to create ollama client")
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, WrapError(err, "failed to create ollama embedder")
	}
	return NewLangChainClient(embedder, cfg.Model, cfg.Timeout), nil
}

// Embed 生成单条文本的向量表示
func (c *LangChainClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vec, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, WrapError(err, "embed query failed")
	}
	return vec, nil
}

// EmbedBatch 批量生成多条文本的向量表示
func (c *LangChainClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, WrapError(err, "embed documents failed")
	}
	if len(vectors) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeDimension, ErrMsgDimension)
	}
	return vectors, nil
}

// Name 返回模型名称
func (c *LangChainClient) Name() string {
	return c.model
}

func (c *LangChainClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func init() {
	RegisterClient("huggingface", NewHuggingFaceClient)
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("ollama", NewOllamaClient)
}
