package document

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators 默认分隔符，从粗到细依次尝试
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitterConfig 分段器配置
type SplitterConfig struct {
	ChunkSize    int      // 分块大小（按字符数）
	ChunkOverlap int      // 分块重叠大小（字符数）
	Separators   []string // 递归使用的分隔符
	MinLength    int      // 段落长度不超过该值时丢弃
	DropMarkers  []string // 包含任一标记的段落被丢弃
	MaxChunks    int      // 最大分块数量（0表示不限制）
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   DefaultSeparators,
		MinLength:    100,
		MaxChunks:    0,
	}
}

// Validate 检查配置是否有效
func (c SplitterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSplitterConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidSplitterConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// TextSplitter 递归字符分段器
// 依次尝试更细的分隔符，把文本切成不超过ChunkSize的窗口，相邻窗口保留ChunkOverlap的重叠
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter 创建新的文本分段器
func NewTextSplitter(config SplitterConfig) *TextSplitter {
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}
	return &TextSplitter{
		config: config,
	}
}

// Split 将文本分割成内容段落，并过滤掉退化的段落
func (s *TextSplitter) Split(text string) ([]Content, error) {
	chunks, err := s.SplitText(text)
	if err != nil {
		return nil, err
	}

	contents := make([]Content, 0, len(chunks))
	for _, chunk := range chunks {
		if !s.keep(chunk) {
			continue
		}
		contents = append(contents, Content{
			Text:  chunk,
			Index: len(contents),
		})
		if s.config.MaxChunks > 0 && len(contents) >= s.config.MaxChunks {
			break
		}
	}
	return contents, nil
}

// SplitText 只做分块，不做过滤
func (s *TextSplitter) SplitText(text string) ([]string, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}
	return s.splitText(text, s.config.Separators), nil
}

// keep 判断段落是否保留
func (s *TextSplitter) keep(chunk string) bool {
	if utf8.RuneCountInString(chunk) <= s.config.MinLength {
		return false
	}
	for _, marker := range s.config.DropMarkers {
		if marker != "" && strings.Contains(chunk, marker) {
			return false
		}
	}
	return true
}

func (s *TextSplitter) splitText(text string, separators []string) []string {
	var final []string

	// 选择文本中出现的第一个分隔符
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < s.config.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}
	return final
}

// mergeSplits 把小片段合并成窗口，窗口之间保留重叠
func (s *TextSplitter) mergeSplits(splits []string) []string {
	size, overlap := s.config.ChunkSize, s.config.ChunkOverlap

	var docs []string
	var current []string
	total := 0
	for _, piece := range splits {
		n := utf8.RuneCountInString(piece)
		if total+n > size && len(current) > 0 {
			if doc := joinPieces(current); doc != "" {
				docs = append(docs, doc)
			}
			// 从窗口头部弹出，直到剩余部分不超过重叠大小
			for total > overlap || (total+n > size && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := joinPieces(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

// splitKeepSeparator 按分隔符切分，分隔符保留在后一段的开头
func splitKeepSeparator(text, separator string) []string {
	var pieces []string
	if separator == "" {
		pieces = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces = make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = separator + part
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}
