package document

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionFailed 文档无法打开或不是合法的PDF
	ErrExtractionFailed = errors.New("failed to extract text from document")

	// ErrNoExtractableText 文档有页面但没有任何一页产出文本
	ErrNoExtractableText = errors.New("no extractable text found in document")

	// ErrInvalidSplitterConfig 分段器配置无效
	ErrInvalidSplitterConfig = errors.New("invalid splitter config")
)

// ExtractionError 文本抽取错误
type ExtractionError struct {
	Source string // 文档来源（文件名或路径）
	Err    error  // 底层错误
}

// Error 实现error接口
func (e *ExtractionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("could not read PDF: %v", e.Err)
	}
	return fmt.Sprintf("could not read PDF %s: %v", e.Source, e.Err)
}

// Unwrap 返回底层错误
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is 使errors.Is(err, ErrExtractionFailed)成立
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// newExtractionError 创建抽取错误
func newExtractionError(source string, err error) *ExtractionError {
	return &ExtractionError{Source: source, Err: err}
}
