package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Cors      CorsConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Document  DocumentConfig  `mapstructure:"document"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Cache     CacheConfig     `mapstructure:"cache"`
	History   HistoryConfig   `mapstructure:"history"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host          string        `mapstructure:"host"`           // 服务器主机
	Port          int           `mapstructure:"port"`           // 服务器端口
	Mode          string        `mapstructure:"mode"`           // gin运行模式
	MaxUploadMB   int           `mapstructure:"max_upload_mb"`  // 上传文件的内存上限
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`   // 读取超时
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`  // 写入超时
	IngestTimeout time.Duration `mapstructure:"ingest_timeout"` // 单次上传处理超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // 日志级别
	File       string `mapstructure:"file"`         // 日志文件，为空只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数量
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧文件保留天数
}

// CorsConfig 跨域配置
type CorsConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"` // 允许的来源
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enable bool    `mapstructure:"enable"` // 是否启用
	RPS    float64 `mapstructure:"rps"`    // 每秒请求数
	Burst  int     `mapstructure:"burst"`  // 突发请求数
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	ChunkSize    int      `mapstructure:"chunk_size"`    // 分块大小
	ChunkOverlap int      `mapstructure:"chunk_overlap"` // 分块重叠大小
	MinLength    int      `mapstructure:"min_length"`    // 段落最短长度
	DropMarkers  []string `mapstructure:"drop_markers"`  // 含有这些标记的段落被丢弃
	MaxChunks    int      `mapstructure:"max_chunks"`    // 最大分块数量
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider"`   // 提供商：huggingface, openai, ollama, hash
	Model      string        `mapstructure:"model"`      // 模型名称
	APIKey     string        `mapstructure:"api_key"`    // API密钥（如果需要）
	Endpoint   string        `mapstructure:"endpoint"`   // API端点
	BatchSize  int           `mapstructure:"batch_size"` // 批处理大小
	Dimensions int           `mapstructure:"dimensions"` // 向量维度，仅hash使用
	Workers    int           `mapstructure:"workers"`    // 并行批次数
	Timeout    time.Duration `mapstructure:"timeout"`    // 请求超时
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`    // 提供商：groq, openai, ollama
	Model       string        `mapstructure:"model"`       // 模型名称
	APIKey      string        `mapstructure:"api_key"`     // API密钥
	Endpoint    string        `mapstructure:"endpoint"`    // API端点
	MaxTokens   int           `mapstructure:"max_tokens"`  // 最大生成token数量
	Temperature float32       `mapstructure:"temperature"` // 采样温度
	Timeout     time.Duration `mapstructure:"timeout"`     // 请求超时
}

// SearchConfig 检索配置
type SearchConfig struct {
	Store    string `mapstructure:"store"`    // 向量存储：memory, chromem, faiss
	Distance string `mapstructure:"distance"` // 距离度量：cosine, dot, l2
	TopK     int    `mapstructure:"top_k"`    // 每次检索的段落数
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`   // 是否启用缓存
	Type     string        `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string        `mapstructure:"address"`  // Redis地址
	Password string        `mapstructure:"password"` // Redis密码
	DB       int           `mapstructure:"db"`       // Redis数据库
	TTL      time.Duration `mapstructure:"ttl"`      // 缓存TTL
	Prefix   string        `mapstructure:"prefix"`   // 键前缀
}

// HistoryConfig 对话归档配置
type HistoryConfig struct {
	Enable bool   `mapstructure:"enable"` // 是否归档问答
	Type   string `mapstructure:"type"`   // 数据库类型
	DSN    string `mapstructure:"dsn"`    // 数据源名称
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时使用默认值，环境变量以PDFCHAT_为前缀覆盖配置项
func Load(configPath string) (*Config, error) {
	// .env只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Warnf("Config file not found at %s, using defaults", configPath)
	} else {
		logrus.Infof("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖，例如 PDFCHAT_LLM_API_KEY
	v.SetEnvPrefix("pdfchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&config)
	return &config, config.Validate()
}

// processEnvironmentVariables 展开形如${VAR}的配置值
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.Embed.Endpoint,
		&cfg.LLM.APIKey,
		&cfg.LLM.Endpoint,
		&cfg.Cache.Address,
		&cfg.Cache.Password,
		&cfg.History.DSN,
	} {
		*field = expandEnv(*field)
	}

	// GROQ_API_KEY是最常见的部署方式
	if cfg.LLM.APIKey == "" && (cfg.LLM.Provider == "groq" || cfg.LLM.Provider == "") {
		cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	}
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Document.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Document.ChunkOverlap < 0 || c.Document.ChunkOverlap >= c.Document.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size)")
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2]")
	}
	return nil
}

// Address 返回服务监听地址
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.ingest_timeout", "5m")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("cors.allow_origins", []string{"*"})

	v.SetDefault("ratelimit.enable", false)
	v.SetDefault("ratelimit.rps", 5)
	v.SetDefault("ratelimit.burst", 10)

	// 文档处理默认配置
	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)
	v.SetDefault("document.min_length", 100)
	v.SetDefault("document.drop_markers", []string{})
	v.SetDefault("document.max_chunks", 0)

	// Embedding默认配置
	v.SetDefault("embed.provider", "huggingface")
	v.SetDefault("embed.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embed.api_key", "${HUGGINGFACEHUB_API_TOKEN}")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.dimensions", 384)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.timeout", "30s")

	// LLM默认配置
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "llama3-8b-8192")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", "60s")

	// 检索默认配置
	v.SetDefault("search.store", "memory")
	v.SetDefault("search.distance", "cosine")
	v.SetDefault("search.top_k", 4)

	// 缓存默认配置
	v.SetDefault("cache.enable", false)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.prefix", "pdfchat:")

	// 归档默认配置
	v.SetDefault("history.enable", false)
	v.SetDefault("history.type", "sqlite")
	v.SetDefault("history.dsn", "data/history.db")
}
