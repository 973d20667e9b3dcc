package document

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF 生成PDF，空字符串表示空白页
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		if text != "" {
			pdf.MultiCell(0, 10, text, "", "", false)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func createTempPDF(t *testing.T, pages ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "docqa-test.pdf")
	require.NoError(t, os.WriteFile(path, buildPDF(t, pages...), 0o644))
	return path
}

func TestPDFParser(t *testing.T) {
	parser := NewPDFParser()

	t.Run("parse file", func(t *testing.T) {
		file := createTempPDF(t, "This is a PDF test.")

		result, err := parser.Parse(file)
		require.NoError(t, err)
		assert.Contains(t, result.Text, "PDF test")
		assert.Equal(t, 1, result.Pages)
		assert.Equal(t, 1, result.TextPages)
	})

	t.Run("blank pages are skipped", func(t *testing.T) {
		data := buildPDF(t, "Alpha page content", "", "Omega page content")

		result, err := parser.ParseReader(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 3, result.Pages)
		assert.Equal(t, 2, result.TextPages, "空白页不应计入")

		alpha := strings.Index(result.Text, "Alpha")
		omega := strings.Index(result.Text, "Omega")
		require.GreaterOrEqual(t, alpha, 0)
		require.GreaterOrEqual(t, omega, 0)
		assert.Less(t, alpha, omega, "页面文本应按页码顺序拼接")
	})

	t.Run("no page yields text", func(t *testing.T) {
		data := buildPDF(t, "", "")

		result, err := parser.ParseReader(bytes.NewReader(data))
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrNoExtractableText)
		assert.NotErrorIs(t, err, ErrExtractionFailed)
	})

	t.Run("not a pdf", func(t *testing.T) {
		result, err := parser.ParseReader(strings.NewReader("definitely not a pdf document"))
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrExtractionFailed)

		var extractionErr *ExtractionError
		assert.True(t, errors.As(err, &extractionErr))
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := parser.ParseReader(bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrExtractionFailed)
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("plain"), 0o644))

		_, err := parser.Parse(path)
		assert.ErrorIs(t, err, ErrExtractionFailed)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := parser.Parse(filepath.Join(t.TempDir(), "missing.pdf"))
		assert.ErrorIs(t, err, ErrExtractionFailed)
	})
}

// TestPDFParser_ConcurrentParse 同一个解析器被多个上传请求同时使用
func TestPDFParser_ConcurrentParse(t *testing.T) {
	parser := NewPDFParser()
	data := buildPDF(t, "Shared parser page one", "Shared parser page two")

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*Extraction, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = parser.ParseReader(bytes.NewReader(data))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, results[i].Pages)
		assert.Equal(t, results[0].Text, results[i].Text)
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		expected ContentType
	}{
		{"paper.pdf", PDF},
		{"PAPER.PDF", PDF},
		{"notes.txt", Unknown},
		{"archive", Unknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetectContentType(tt.name), tt.name)
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("paper.pdf"))
	assert.True(t, IsPDF("my.report.pdf"))
	assert.False(t, IsPDF("paper.PDF"))
	assert.False(t, IsPDF("paper.pdf.txt"))
	assert.False(t, IsPDF(""))
}
