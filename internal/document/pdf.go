package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// PDFParser PDF文档解析器
// 先用pdfcpu做宽松校验，再用ledongthuc/pdf逐页抽取文本
type PDFParser struct {
	logger *logrus.Logger
}

// PDFOption PDF解析器配置选项
type PDFOption func(*PDFParser)

// WithPDFLogger 设置日志记录器
func WithPDFLogger(logger *logrus.Logger) PDFOption {
	return func(p *PDFParser) {
		p.logger = logger
	}
}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser(opts ...PDFOption) *PDFParser {
	p := &PDFParser{
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse 解析PDF文件并提取其文本内容
func (p *PDFParser) Parse(filePath string) (*Extraction, error) {
	if DetectContentType(filePath) != PDF {
		return nil, newExtractionError(filePath, fmt.Errorf("unsupported document type"))
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, newExtractionError(filePath, err)
	}
	return p.extract(filePath, data)
}

// ParseReader 从Reader读取PDF并提取文本
func (p *PDFParser) ParseReader(r io.Reader) (*Extraction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newExtractionError("", err)
	}
	return p.extract("", data)
}

func (p *PDFParser) extract(source string, data []byte) (*Extraction, error) {
	if len(data) == 0 {
		return nil, newExtractionError(source, fmt.Errorf("empty file"))
	}

	// 宽松模式校验，拒绝明显不是PDF的输入
	if err := api.Validate(bytes.NewReader(data), validationConfig()); err != nil {
		p.logger.WithFields(logrus.Fields{
			"source": source,
			"error":  err.Error(),
		}).Warn("PDF validation failed")
		return nil, newExtractionError(source, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"source": source,
			"error":  err.Error(),
		}).Warn("Failed to open PDF")
		return nil, newExtractionError(source, err)
	}

	result := &Extraction{Pages: reader.NumPage()}
	if result.Pages == 0 {
		return result, nil
	}

	var text strings.Builder
	for i := 1; i <= result.Pages; i++ {
		pageText := p.pageText(reader, i)
		if pageText == "" {
			p.logger.WithFields(logrus.Fields{
				"source": source,
				"page":   i,
			}).Debug("Page yielded no text, skipped")
			continue
		}
		text.WriteString(pageText)
		result.TextPages++
	}

	if result.TextPages == 0 {
		p.logger.WithFields(logrus.Fields{
			"source": source,
			"pages":  result.Pages,
		}).Warn("No page yielded text")
		return nil, ErrNoExtractableText
	}

	result.Text = text.String()
	p.logger.WithFields(logrus.Fields{
		"source":     source,
		"pages":      result.Pages,
		"text_pages": result.TextPages,
		"length":     len(result.Text),
	}).Debug("PDF text extracted")
	return result, nil
}

// pageText 提取单页文本，页面损坏时按无文本处理
func (p *PDFParser) pageText(reader *pdf.Reader, index int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"page":  index,
				"panic": r,
			}).Warn("Recovered while reading page")
			text = ""
		}
	}()

	page := reader.Page(index)
	if page.V.IsNull() {
		return ""
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"page":  index,
			"error": err.Error(),
		}).Warn("Failed to extract text from page")
		return ""
	}
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return content
}

// validationConfig 每次校验都创建新配置，pdfcpu会在校验过程中修改它
func validationConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
