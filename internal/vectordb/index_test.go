package vectordb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testFragments(texts ...string) []document.Content {
	contents := make([]document.Content, len(texts))
	for i, text := range texts {
		contents[i] = document.Content{Text: text, Index: i}
	}
	return contents
}

func newHashProcessor(t *testing.T) *embedding.BatchProcessor {
	client, err := embedding.NewHashClient(embedding.WithDimensions(128))
	require.NoError(t, err)
	return embedding.NewBatchProcessor(client, 2, 2)
}

// TestBuilder 测试索引构建与检索
func TestBuilder(t *testing.T) {
	ctx := context.Background()
	fragments := testFragments(
		"Gradient descent updates the parameters along the negative gradient.",
		"The attention mechanism lets the transformer weigh every token.",
		"Convolutional networks share weights across spatial positions.",
		"Dropout randomly disables units during training to regularize.",
		"Batch normalization stabilizes activations between layers.",
	)

	for _, store := range []string{"memory", "chromem"} {
		t.Run(store, func(t *testing.T) {
			builder := NewBuilder(newHashProcessor(t), WithStoreConfig(Config{Type: store, DistanceType: Cosine}))
			index, err := builder.Build(ctx, fragments)
			require.NoError(t, err)
			defer index.Close()

			assert.Equal(t, 5, index.Size())
			assert.Equal(t, "feature-hash", index.Model())

			results, err := index.Query(ctx, "how does the attention mechanism in a transformer work", 0)
			require.NoError(t, err)
			require.Len(t, results, DefaultTopK)
			assert.Equal(t, 1, results[0].Document.Position)
			assert.Equal(t, fragments[1].Text, results[0].Document.Text)

			all, err := index.Query(ctx, "training", 10)
			require.NoError(t, err)
			require.Len(t, all, 5, "k超过段落数时返回全部段落")

			known := make(map[string]bool)
			for _, f := range fragments {
				known[f.Text] = true
			}
			seen := make(map[int]bool)
			for _, res := range all {
				assert.True(t, known[res.Document.Text], "只能返回本次上传的段落")
				assert.False(t, seen[res.Document.Position])
				seen[res.Document.Position] = true
			}
		})
	}
}

// TestBuilderEmpty 测试空段落直接失败
func TestBuilderEmpty(t *testing.T) {
	m := embedding.NewMockClient(t)
	builder := NewBuilder(embedding.NewBatchProcessor(m, 4, 1))

	index, err := builder.Build(context.Background(), nil)
	assert.Nil(t, index)
	assert.ErrorIs(t, err, ErrNoFragments)
	assert.ErrorIs(t, err, ErrIndexBuild)
	m.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}

// TestBuilderEmbeddingFailure 测试嵌入失败
func TestBuilderEmbeddingFailure(t *testing.T) {
	m := embedding.NewMockClient(t)
	boom := errors.New("model offline")
	m.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, boom)

	builder := NewBuilder(embedding.NewBatchProcessor(m, 4, 1))
	_, err := builder.Build(context.Background(), testFragments("some fragment text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexBuild)
	assert.ErrorIs(t, err, boom)

	var buildErr *IndexBuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, "embed", buildErr.Stage)
}

// TestIndexQueryUsesBuildEmbedder 测试查询使用构建时的嵌入客户端
func TestIndexQueryUsesBuildEmbedder(t *testing.T) {
	ctx := context.Background()
	m := embedding.NewMockClient(t)
	m.On("Name").Return("mock").Maybe()
	m.On("EmbedBatch", mock.Anything, []string{"alpha", "beta"}).
		Return([][]float32{{1, 0}, {0, 1}}, nil).Once()
	m.On("Embed", mock.Anything, "which one").Return([]float32{0.1, 0.9}, nil).Once()
	m.On("Embed", mock.Anything, "broken").Return(nil, fmt.Errorf("quota exceeded")).Once()

	index, err := NewBuilder(embedding.NewBatchProcessor(m, 8, 1)).Build(ctx, testFragments("alpha", "beta"))
	require.NoError(t, err)

	results, err := index.Query(ctx, "which one", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "beta", results[0].Document.Text)

	_, err = index.Query(ctx, "broken", 1)
	assert.ErrorIs(t, err, ErrRetrieval)

	_, err = index.Query(ctx, "  ", 1)
	assert.ErrorIs(t, err, ErrRetrieval)
}
