package document

import (
	"io"
	"path/filepath"
	"strings"
)

// Parser 文档解析器接口
// 负责将文档解析为按页拼接的纯文本
type Parser interface {
	// Parse 解析磁盘上的文档
	Parse(filePath string) (*Extraction, error)

	// ParseReader 从Reader解析文档，Reader只会被读取一次
	ParseReader(r io.Reader) (*Extraction, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filename string) ContentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return PDF
	default:
		return Unknown
	}
}

// IsPDF 判断文件名是否以.pdf结尾（大小写敏感）
func IsPDF(filename string) bool {
	return strings.HasSuffix(filename, ".pdf")
}

// Extraction 文本抽取结果
type Extraction struct {
	Text      string // 按页顺序拼接的文本
	Pages     int    // 文档总页数
	TextPages int    // 产出了文本的页数
}

// Empty 文档没有任何页面时返回true
func (e *Extraction) Empty() bool {
	return e.Pages == 0
}

// Content 表示文档的内容段落
type Content struct {
	Text  string // 段落文本内容
	Index int    // 段落索引
}

// Splitter 文本分段器接口
// 负责将长文本分割成适合向量化的小段
type Splitter interface {
	// Split 将文本分割成段落
	Split(text string) ([]Content, error)
}
