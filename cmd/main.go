package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/pdf-chat/api"
	"github.com/fyerfyer/pdf-chat/api/handler"
	"github.com/fyerfyer/pdf-chat/api/middleware"
	appconfig "github.com/fyerfyer/pdf-chat/config"
	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/fyerfyer/pdf-chat/internal/database"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 命令行参数，非零值时覆盖配置文件
type flags struct {
	ConfigFile string
	Port       int
	Mode       string
	LogLevel   string
}

func main() {
	f := parseFlags()

	cfg, err := appconfig.Load(f.ConfigFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, f)

	gin.SetMode(cfg.Server.Mode)

	// 初始化日志
	logCloser := middleware.ConfigureLogger(middleware.LogOptions{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()
	logger := middleware.GetLogger()
	logger.Info("Starting PDF chat service...")

	// 创建嵌入客户端
	embedder, err := setupEmbedding(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	// 创建大语言模型客户端
	llmClient, err := setupLLM(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// 初始化对话归档（如果启用）
	var archive services.TurnArchive
	if cfg.History.Enable {
		db, err := setupDatabase(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer database.Close(db)
		archive = services.NewChatService(repository.NewChatRepository(db), services.WithChatLogger(logger))
		logger.Info("Chat history archive enabled")
	}

	documents := services.NewDocumentService(
		document.NewPDFParser(document.WithPDFLogger(logger)),
		document.NewTextSplitter(document.SplitterConfig{
			ChunkSize:    cfg.Document.ChunkSize,
			ChunkOverlap: cfg.Document.ChunkOverlap,
			Separators:   document.DefaultSeparators,
			MinLength:    cfg.Document.MinLength,
			DropMarkers:  cfg.Document.DropMarkers,
			MaxChunks:    cfg.Document.MaxChunks,
		}),
		vectordb.NewBuilder(
			embedding.NewBatchProcessor(embedder, cfg.Embed.BatchSize, cfg.Embed.Workers),
			vectordb.WithStoreConfig(vectordb.Config{
				Type:         cfg.Search.Store,
				DistanceType: vectordb.DistanceType(cfg.Search.Distance),
			}),
			vectordb.WithBuilderLogger(logger),
		),
		services.WithTimeout(cfg.Server.IngestTimeout),
		services.WithLogger(logger),
	)

	rag := llm.NewRAG(llmClient,
		llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(cfg.LLM.Temperature),
		llm.WithRAGTimeout(cfg.LLM.Timeout),
	)

	sessionOpts := []services.SessionOption{
		services.WithSessionTopK(cfg.Search.TopK),
		services.WithSessionLogger(logger),
	}
	if archive != nil {
		sessionOpts = append(sessionOpts, services.WithSessionArchive(archive))
	}
	sessions := services.NewSessionManager(documents, rag, sessionOpts...)
	defer sessions.Close()

	router := api.SetupRouter(handler.NewSessionHandler(sessions), api.RouterOptions{
		AllowOrigins:   cfg.Cors.AllowOrigins,
		RateLimit:      cfg.RateLimit.Enable,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 在单独的goroutine中启动服务器
	go func() {
		logger.WithFields(logrus.Fields{
			"address":   srv.Addr,
			"embedding": embedder.Name(),
			"llm":       llmClient.Name(),
			"store":     cfg.Search.Store,
		}).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号优雅关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.IntVar(&f.Port, "port", 0, "Server port (overrides config)")
	flag.StringVar(&f.Mode, "mode", "", "Server mode: debug or release (overrides config)")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()
	return f
}

// applyFlags 用命令行参数覆盖配置
func applyFlags(cfg *appconfig.Config, f flags) {
	if f.Port > 0 {
		cfg.Server.Port = f.Port
	}
	if f.Mode != "" {
		cfg.Server.Mode = f.Mode
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
}

// setupEmbedding 创建嵌入客户端，启用缓存时包一层CachedClient
func setupEmbedding(cfg *appconfig.Config, logger *logrus.Logger) (embedding.Client, error) {
	opts := []embedding.Option{
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
		embedding.WithTimeout(cfg.Embed.Timeout),
	}
	if cfg.Embed.APIKey != "" {
		opts = append(opts, embedding.WithAPIKey(cfg.Embed.APIKey))
	}
	if cfg.Embed.Endpoint != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.Embed.Endpoint))
	}

	client, err := embedding.NewClient(cfg.Embed.Provider, opts...)
	if err != nil {
		return nil, err
	}
	if !cfg.Cache.Enable {
		return client, nil
	}

	store, err := cache.NewCache(cache.Config{
		Type:            cfg.Cache.Type,
		RedisAddr:       cfg.Cache.Address,
		RedisPassword:   cfg.Cache.Password,
		RedisDB:         cfg.Cache.DB,
		KeyPrefix:       cfg.Cache.Prefix,
		DefaultTTL:      cfg.Cache.TTL,
		CleanupInterval: 10 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("type", cfg.Cache.Type).Info("Embedding cache enabled")
	return embedding.NewCachedClient(client, store, cfg.Cache.TTL, logger), nil
}

// setupLLM 创建大语言模型客户端
func setupLLM(cfg *appconfig.Config) (llm.Client, error) {
	opts := []llm.Option{
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithTimeout(cfg.LLM.Timeout),
	}
	if cfg.LLM.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLM.Endpoint))
	}
	return llm.NewClient(cfg.LLM.Provider, opts...)
}

// setupDatabase 打开归档数据库
func setupDatabase(cfg *appconfig.Config, logger *logrus.Logger) (*gorm.DB, error) {
	dbCfg := database.DefaultConfig()
	if cfg.History.Type != "" {
		dbCfg.Type = cfg.History.Type
	}
	if cfg.History.DSN != "" {
		dbCfg.DSN = cfg.History.DSN
	}
	return database.Open(dbCfg, logger)
}
