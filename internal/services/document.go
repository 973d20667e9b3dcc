package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// DocumentService 文档服务
// 负责把上传的PDF依次抽取文本、分段并构建检索索引
type DocumentService struct {
	parser   document.Parser   // 文档解析器
	splitter document.Splitter // 文本分段器
	builder  *vectordb.Builder // 索引构建器
	timeout  time.Duration     // 处理超时时间
	logger   *logrus.Logger    // 日志记录器
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// IngestResult 一次成功处理的结果
type IngestResult struct {
	Index     *vectordb.Index // 检索索引
	Pages     int             // PDF总页数
	TextPages int             // 产出文本的页数
	Fragments int             // 过滤后的段落数
}

// NewDocumentService 创建一个新的文档服务
func NewDocumentService(
	parser document.Parser,
	splitter document.Splitter,
	builder *vectordb.Builder,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		parser:   parser,
		splitter: splitter,
		builder:  builder,
		timeout:  5 * time.Minute, // 默认超时时间
		logger:   logrus.New(),    // 默认日志记录器
	}

	// 应用配置选项
	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Ingest 处理上传的文档并返回新的索引
// 任一阶段失败都会返回错误，不产生任何半成品
func (s *DocumentService) Ingest(ctx context.Context, filename string, r io.Reader) (*IngestResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := s.logger.WithField("file_name", filename)
	start := time.Now()

	extraction, err := s.parser.ParseReader(r)
	if err != nil {
		log.WithError(err).Warn("Failed to extract text")
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	fragments, err := s.splitter.Split(extraction.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to split content: %w", err)
	}
	log.WithFields(logrus.Fields{
		"pages":      extraction.Pages,
		"text_pages": extraction.TextPages,
		"fragments":  len(fragments),
	}).Debug("Document split into fragments")

	index, err := s.builder.Build(ctx, fragments)
	if err != nil {
		log.WithError(err).Warn("Failed to build index")
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	log.WithFields(logrus.Fields{
		"fragments": index.Size(),
		"elapsed":   time.Since(start).String(),
	}).Info("Document processing completed successfully")

	return &IngestResult{
		Index:     index,
		Pages:     extraction.Pages,
		TextPages: extraction.TextPages,
		Fragments: index.Size(),
	}, nil
}
