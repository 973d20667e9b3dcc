package document

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitText 测试递归分块
func TestSplitText(t *testing.T) {
	splitter := NewTextSplitter(DefaultSplitterConfig())

	t.Run("empty input", func(t *testing.T) {
		chunks, err := splitter.SplitText("")
		require.NoError(t, err)
		assert.Empty(t, chunks)

		contents, err := splitter.Split("")
		require.NoError(t, err)
		assert.Empty(t, contents)
	})

	t.Run("hard cut without separators", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 250)

		chunks, err := splitter.SplitText(text)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, text[0:1000], chunks[0])
		assert.Equal(t, text[800:1800], chunks[1])
		assert.Equal(t, text[1600:2500], chunks[2])
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		text := "A short paragraph.\n\nAnother short paragraph."
		chunks, err := splitter.SplitText(text)
		require.NoError(t, err)
		assert.Equal(t, []string{text}, chunks)
	})

	t.Run("prefers paragraph boundaries", func(t *testing.T) {
		first := strings.Repeat("first ", 120)
		second := strings.Repeat("second ", 120)
		text := strings.TrimSpace(first) + "\n\n" + strings.TrimSpace(second)

		chunks, err := splitter.SplitText(text)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.True(t, strings.HasPrefix(chunks[0], "first"))
		assert.NotContains(t, chunks[0], "second")
		assert.True(t, strings.HasPrefix(chunks[1], "second"))
	})

	t.Run("chunks are ordered substrings within size", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 400; i++ {
			b.WriteString("word")
			b.WriteString(strings.Repeat("x", i%7))
			if i%37 == 0 {
				b.WriteString(".\n\n")
			} else if i%11 == 0 {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		text := b.String()

		chunks, err := splitter.SplitText(text)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		offset := 0
		for i, chunk := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 1000, "分块 %d 超出大小", i)
			pos := strings.Index(text[offset:], chunk)
			if assert.GreaterOrEqual(t, pos, 0, "分块 %d 应该是原文的子串", i) {
				offset += pos
			}
		}
	})

	t.Run("rune aware", func(t *testing.T) {
		text := strings.Repeat("文", 1500)
		chunks, err := splitter.SplitText(text)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
		assert.Equal(t, 700, utf8.RuneCountInString(chunks[1]))
	})
}

// TestSplitFilter 测试退化段落的过滤
func TestSplitFilter(t *testing.T) {
	t.Run("drops short fragments", func(t *testing.T) {
		config := DefaultSplitterConfig()
		config.ChunkSize = 120
		config.ChunkOverlap = 0
		splitter := NewTextSplitter(config)

		long := strings.Repeat("y", 110)
		text := "tiny note\n\n" + long + "\n\n" + strings.Repeat("z", 100)

		contents, err := splitter.Split(text)
		require.NoError(t, err)
		require.Len(t, contents, 1, "长度不超过100的段落应被丢弃")
		assert.Equal(t, long, contents[0].Text)
		assert.Equal(t, 0, contents[0].Index)
	})

	t.Run("whitespace only input", func(t *testing.T) {
		splitter := NewTextSplitter(DefaultSplitterConfig())
		contents, err := splitter.Split(strings.Repeat(" \n", 800))
		require.NoError(t, err)
		assert.Empty(t, contents)
	})

	t.Run("drop markers", func(t *testing.T) {
		config := DefaultSplitterConfig()
		config.ChunkSize = 200
		config.ChunkOverlap = 0
		config.DropMarkers = []string{"..."}
		splitter := NewTextSplitter(config)

		clean := strings.Repeat("k", 150)
		truncated := strings.Repeat("t", 140) + "..."
		contents, err := splitter.Split(clean + "\n\n" + truncated)
		require.NoError(t, err)
		require.Len(t, contents, 1)
		assert.Equal(t, clean, contents[0].Text)
	})

	t.Run("indexes are consecutive", func(t *testing.T) {
		splitter := NewTextSplitter(DefaultSplitterConfig())
		contents, err := splitter.Split(strings.Repeat("lorem ipsum dolor sit amet ", 300))
		require.NoError(t, err)
		require.Greater(t, len(contents), 1)
		for i, c := range contents {
			assert.Equal(t, i, c.Index)
			assert.Greater(t, utf8.RuneCountInString(c.Text), 100)
		}
	})

	t.Run("max chunks", func(t *testing.T) {
		config := DefaultSplitterConfig()
		config.MaxChunks = 2
		splitter := NewTextSplitter(config)
		contents, err := splitter.Split(strings.Repeat("lorem ipsum dolor sit amet ", 300))
		require.NoError(t, err)
		assert.Len(t, contents, 2)
	})
}

// TestSplitterConfig 测试配置校验
func TestSplitterConfig(t *testing.T) {
	assert.NoError(t, DefaultSplitterConfig().Validate())

	config := DefaultSplitterConfig()
	config.ChunkOverlap = config.ChunkSize
	_, err := NewTextSplitter(config).Split("some text")
	assert.ErrorIs(t, err, ErrInvalidSplitterConfig)

	config = DefaultSplitterConfig()
	config.ChunkSize = 0
	assert.ErrorIs(t, config.Validate(), ErrInvalidSplitterConfig)
}
