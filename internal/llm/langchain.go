package llm

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

func init() {
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("groq", NewOpenAIClient)
	RegisterClient("ollama", NewOllamaClient)
}

// LangChainClient 基于langchaingo的大模型客户端
type LangChainClient struct {
	model  llms.Model
	config *Config
}

// NewLangChainClient 使用任意langchaingo模型创建客户端
func NewLangChainClient(model llms.Model, opts ...Option) *LangChainClient {
	return &LangChainClient{
		model:  model,
		config: NewConfig(opts...),
	}
}

// NewOpenAIClient 创建OpenAI兼容接口的客户端，默认指向Groq
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	model, err := openai.New(
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, WrapError(err, ErrCodeInvalidRequest)
	}
	return &LangChainClient{model: model, config: cfg}, nil
}

// NewOllamaClient 创建本地Ollama客户端
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.BaseURL == DefaultBaseURL || cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == DefaultModel || cfg.Model == "" {
		cfg.Model = "llama3"
	}

	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, WrapError(err, ErrCodeInvalidRequest)
	}
	return &LangChainClient{model: model, config: cfg}, nil
}

// Generate 根据单条提示词生成回答
func (c *LangChainClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 进行多轮对话
func (c *LangChainClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	content := make([]llms.MessageContent, len(messages))
	for i, msg := range messages {
		content[i] = llms.TextParts(messageType(msg.Role), msg.Content)
	}

	resp, err := c.model.GenerateContent(ctx, content, c.callOptions(options)...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, WrapError(ctx.Err(), ErrCodeTimeout)
		}
		return nil, WrapError(err, ErrCodeServerError)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	choice := resp.Choices[0]
	result := &Response{
		Text:         choice.Content,
		ModelName:    c.config.Model,
		FinishReason: choice.StopReason,
		FinishTime:   time.Now(),
	}
	if tokens, ok := choice.GenerationInfo["TotalTokens"].(int); ok {
		result.TokenCount = tokens
	}
	return result, nil
}

// Name 返回模型名称
func (c *LangChainClient) Name() string {
	return c.config.Model
}

func (c *LangChainClient) callOptions(options []GenerateOption) []llms.CallOption {
	opts := ResolveOptions(options...)

	temperature := c.config.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := c.config.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	callOpts := []llms.CallOption{llms.WithTemperature(float64(temperature))}
	if maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(maxTokens))
	}
	return callOpts
}

func messageType(role MessageRole) schema.ChatMessageType {
	switch role {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
