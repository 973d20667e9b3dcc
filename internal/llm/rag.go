package llm

import (
	"context"
	"strings"
	"time"
)

// DefaultCondenseTemplate 把追问改写为独立问题的提示词模板
// 包含变量：
// {{.History}} - 以Human/Assistant标注的历史对话
// {{.Question}} - 用户的追问
const DefaultCondenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.History}}
Follow Up Input: {{.Question}}
Standalone question:`

// DefaultAnswerTemplate 基于检索上下文回答问题的提示词模板
// 包含变量：
// {{.Context}} - 检索到的段落，以空行分隔
// {{.Question}} - 用户问题
const DefaultAnswerTemplate = `You are a helpful AI assistant. Use the following context from a research paper to answer the user's question. If you don't know the answer from the context, just say that you don't know. Do not make up information.

Context:
{{.Context}}

Question:
{{.Question}}

Answer:`

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 改写问题的提示词模板
	CondenseTemplate string
	// 回答问题的提示词模板
	AnswerTemplate string
	// 最大Token数
	MaxTokens int
	// 温度参数
	Temperature float32
	// 单次模型调用的超时时间
	Timeout time.Duration
	// 是否带上引用来源
	IncludeSources bool
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		CondenseTemplate: DefaultCondenseTemplate,
		AnswerTemplate:   DefaultAnswerTemplate,
		MaxTokens:        1024,
		Temperature:      0.2,
		Timeout:          60 * time.Second,
		IncludeSources:   true,
	}
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithCondenseTemplate 设置改写问题的模板
func WithCondenseTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.CondenseTemplate = template
	}
}

// WithAnswerTemplate 设置回答问题的模板
func WithAnswerTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.AnswerTemplate = template
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithSources 设置是否包含引用来源
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// RAGService 实现检索增强生成服务
type RAGService struct {
	Client Client     // 大模型客户端
	config *RAGConfig // 创建后只读
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// Condense 结合历史对话把追问改写为独立问题
// 历史为空时原样返回问题，不调用模型
func (r *RAGService) Condense(ctx context.Context, history []Message, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}
	if len(history) == 0 {
		return question, nil
	}

	cfg := *r.config
	prompt := render(cfg.CondenseTemplate, map[string]string{
		"History":  formatHistory(history),
		"Question": question,
	})

	resp, err := r.generate(ctx, cfg, prompt)
	if err != nil {
		return "", err
	}

	standalone := strings.TrimSpace(resp.Text)
	if standalone == "" {
		return "", NewLLMError(ErrCodeEmptyResponse, "condensed question is empty")
	}
	return standalone, nil
}

// Answer 根据检索到的段落和问题生成回答
// 段落按传入顺序以空行拼接为上下文
func (r *RAGService) Answer(ctx context.Context, question string, sources []SourceReference) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	cfg := *r.config
	prompt := r.buildPrompt(cfg, question, sources)

	resp, err := r.generate(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}

	ragResponse := &RAGResponse{
		Answer: strings.TrimSpace(resp.Text),
	}
	if cfg.IncludeSources && len(sources) > 0 {
		ragResponse.Sources = append([]SourceReference(nil), sources...)
	}
	return ragResponse, nil
}

// generate 在超时上下文中调用模型
func (r *RAGService) generate(ctx context.Context, cfg RAGConfig, prompt string) (*Response, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, err := r.Client.Generate(
		ctx,
		prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, WrapError(context.DeadlineExceeded, ErrCodeTimeout)
		}
		return nil, WrapError(err, ErrCodeServerError)
	}
	return resp, nil
}

// buildPrompt 构建增强提示词
func (r *RAGService) buildPrompt(cfg RAGConfig, question string, sources []SourceReference) string {
	return render(cfg.AnswerTemplate, map[string]string{
		"Context":  formatContext(sources),
		"Question": question,
	})
}

// formatContext 以空行拼接段落
func formatContext(sources []SourceReference) string {
	texts := make([]string, len(sources))
	for i, src := range sources {
		texts[i] = src.Content
	}
	return strings.Join(texts, "\n\n")
}

// formatHistory 把历史消息渲染为Human/Assistant对话
func formatHistory(history []Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		prefix := "Human: "
		if msg.Role == RoleAssistant {
			prefix = "Assistant: "
		}
		lines = append(lines, prefix+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// render 简单的模板替换
func render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{."+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
