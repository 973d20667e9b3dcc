package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const paperText = "The Transformer is a model architecture that relies entirely on an attention mechanism " +
	"to draw global dependencies between input and output. It dispenses with recurrence and convolutions " +
	"entirely and allows for significantly more parallelization. Experiments on two machine translation " +
	"tasks show these models to be superior in quality while requiring significantly less time to train."

const recipeText = "To bake sourdough bread, feed the starter the night before, mix flour and water for the " +
	"autolyse, then add salt and the levain. Stretch and fold the dough every thirty minutes for two hours, " +
	"shape it into a boule and let it proof overnight in the fridge before baking in a hot dutch oven."

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

func newTestManager(t *testing.T, client llm.Client, opts ...SessionOption) *SessionManager {
	t.Helper()

	embedder, err := embedding.NewHashClient(embedding.WithDimensions(256))
	require.NoError(t, err)

	logger := quietLogger()
	documents := NewDocumentService(
		document.NewPDFParser(document.WithPDFLogger(logger)),
		document.NewTextSplitter(document.DefaultSplitterConfig()),
		vectordb.NewBuilder(embedding.NewBatchProcessor(embedder, 8, 2), vectordb.WithBuilderLogger(logger)),
		WithLogger(logger),
		WithTimeout(time.Minute),
	)

	opts = append([]SessionOption{WithSessionLogger(logger)}, opts...)
	manager := NewSessionManager(documents, llm.NewRAG(client), opts...)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func answerWith(text string) *llm.Response {
	return &llm.Response{Text: text}
}

func TestSessionManager_AskWithoutSession(t *testing.T) {
	client := llm.NewMockClient(t)
	manager := newTestManager(t, client)

	_, err := manager.Ask(context.Background(), "Anything there?")
	assert.ErrorIs(t, err, models.ErrNoActiveSession)

	_, active := manager.Status()
	assert.False(t, active)

	_, err = manager.Transcript()
	assert.ErrorIs(t, err, models.ErrNoActiveSession)
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionManager_UploadAndAsk(t *testing.T) {
	client := llm.NewMockClient(t)
	client.EXPECT().
		Generate(mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return isAnswerPrompt(prompt) && strings.Contains(prompt, "attention mechanism")
		}), mock.Anything).
		Return(answerWith("It relies on attention."), nil).
		Once()

	manager := newTestManager(t, client)
	ctx := context.Background()

	info, err := manager.Upload(ctx, "attention.pdf", bytes.NewReader(buildPDF(t, paperText, "", paperText)))
	require.NoError(t, err)
	assert.Equal(t, "attention.pdf", info.FileName)
	assert.Equal(t, 3, info.Pages)
	assert.Equal(t, 2, info.TextPages)
	assert.GreaterOrEqual(t, info.Fragments, 1)
	assert.NotEmpty(t, info.ID)

	answer, err := manager.Ask(ctx, "What does the Transformer rely on?")
	require.NoError(t, err)
	assert.Equal(t, "It relies on attention.", answer)

	status, active := manager.Status()
	require.True(t, active)
	assert.Equal(t, 1, status.Turns)
	assert.Equal(t, info.ID, status.ID)
}

func TestSessionManager_InvalidUpload(t *testing.T) {
	manager := newTestManager(t, llm.NewMockClient(t))
	ctx := context.Background()

	for _, name := range []string{"notes.txt", "paper.PDF", "archive.pdf.zip"} {
		_, err := manager.Upload(ctx, name, bytes.NewReader(buildPDF(t, paperText)))
		assert.ErrorIs(t, err, models.ErrInvalidUpload, name)
	}

	_, active := manager.Status()
	assert.False(t, active)
}

func TestSessionManager_FailedUploadKeepsState(t *testing.T) {
	ctx := context.Background()

	t.Run("empty state stays empty", func(t *testing.T) {
		manager := newTestManager(t, llm.NewMockClient(t))

		_, err := manager.Upload(ctx, "scan.pdf", bytes.NewReader(buildPDF(t, "", "")))
		assert.ErrorIs(t, err, document.ErrNoExtractableText)

		_, err = manager.Upload(ctx, "short.pdf", bytes.NewReader(buildPDF(t, "Too short to index.")))
		assert.ErrorIs(t, err, vectordb.ErrIndexBuild)

		_, active := manager.Status()
		assert.False(t, active)
	})

	t.Run("previous session survives", func(t *testing.T) {
		client := llm.NewMockClient(t)
		client.EXPECT().
			Generate(mock.Anything, mock.MatchedBy(isAnswerPrompt), mock.Anything).
			Return(answerWith("answer"), nil).
			Once()
		client.EXPECT().
			Generate(mock.Anything, mock.MatchedBy(isCondensePrompt), mock.Anything).
			Return(answerWith("What else does the Transformer do?"), nil).
			Once()
		client.EXPECT().
			Generate(mock.Anything, mock.MatchedBy(func(prompt string) bool {
				// 旧会话的段落仍然可用
				return isAnswerPrompt(prompt) && strings.Contains(prompt, "attention mechanism")
			}), mock.Anything).
			Return(answerWith("second answer"), nil).
			Once()

		manager := newTestManager(t, client)
		original, err := manager.Upload(ctx, "attention.pdf", bytes.NewReader(buildPDF(t, paperText)))
		require.NoError(t, err)
		_, err = manager.Ask(ctx, "What is the Transformer?")
		require.NoError(t, err)

		_, err = manager.Upload(ctx, "broken.pdf", strings.NewReader("this is not a pdf at all"))
		assert.ErrorIs(t, err, document.ErrExtractionFailed)

		status, active := manager.Status()
		require.True(t, active)
		assert.Equal(t, original.ID, status.ID)
		assert.Equal(t, 1, status.Turns)

		answer, err := manager.Ask(ctx, "What else?")
		require.NoError(t, err)
		assert.Equal(t, "second answer", answer)
	})
}

func TestSessionManager_UploadResetsHistory(t *testing.T) {
	client := llm.NewMockClient(t)
	// 问题X和Z都在空历史上提问，只有Y需要改写
	client.EXPECT().
		Generate(mock.Anything, mock.MatchedBy(isCondensePrompt), mock.Anything).
		Return(answerWith("standalone"), nil).
		Once()
	client.EXPECT().
		Generate(mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return isAnswerPrompt(prompt) && strings.Contains(prompt, "sourdough")
		}), mock.Anything).
		Return(answerWith("bake it"), nil).
		Once()
	client.EXPECT().
		Generate(mock.Anything, mock.MatchedBy(isAnswerPrompt), mock.Anything).
		Return(answerWith("answer"), nil).
		Twice()

	manager := newTestManager(t, client)
	ctx := context.Background()

	_, err := manager.Upload(ctx, "a.pdf", bytes.NewReader(buildPDF(t, paperText)))
	require.NoError(t, err)
	_, err = manager.Ask(ctx, "X: what is proposed?")
	require.NoError(t, err)
	_, err = manager.Ask(ctx, "Y: and why?")
	require.NoError(t, err)

	second, err := manager.Upload(ctx, "b.pdf", bytes.NewReader(buildPDF(t, recipeText)))
	require.NoError(t, err)
	answer, err := manager.Ask(ctx, "Z: how do I bake sourdough?")
	require.NoError(t, err)
	assert.Equal(t, "bake it", answer)

	transcript, err := manager.Transcript()
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, "Z: how do I bake sourdough?", transcript[0].Question)

	status, _ := manager.Status()
	assert.Equal(t, second.ID, status.ID)
	assert.Equal(t, "b.pdf", status.FileName)
}

func TestSessionManager_ArchivesTurns(t *testing.T) {
	dbName := fmt.Sprintf("file:memdb_session_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ChatSession{}, &models.ChatMessage{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := repository.NewChatRepository(db)
	archive := NewChatService(repo, WithChatLogger(quietLogger()))

	client := llm.NewMockClient(t)
	client.EXPECT().
		Generate(mock.Anything, mock.Anything, mock.Anything).
		Return(answerWith("archived answer"), nil)

	manager := newTestManager(t, client, WithSessionArchive(archive))
	ctx := context.Background()

	info, err := manager.Upload(ctx, "attention.pdf", bytes.NewReader(buildPDF(t, paperText)))
	require.NoError(t, err)
	_, err = manager.Ask(ctx, "What is the Transformer?")
	require.NoError(t, err)

	saved, err := repo.GetSession(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "attention.pdf", saved.FileName)

	messages, total, err := repo.GetMessages(info.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "What is the Transformer?", messages[0].Content)
	assert.Equal(t, "archived answer", messages[1].Content)
	assert.NotEmpty(t, messages[1].Sources)
}

func TestSessionManager_ConcurrentUploadAndAsk(t *testing.T) {
	client := llm.NewMockClient(t)
	client.EXPECT().
		Generate(mock.Anything, mock.Anything, mock.Anything).
		Return(answerWith("concurrent answer"), nil)

	manager := newTestManager(t, client)
	ctx := context.Background()

	_, err := manager.Upload(ctx, "initial.pdf", bytes.NewReader(buildPDF(t, paperText)))
	require.NoError(t, err)

	const workers = 8
	paperPDF := buildPDF(t, paperText)
	recipePDF := buildPDF(t, recipeText)

	var wg sync.WaitGroup
	uploaded := make([]models.SessionInfo, workers)
	uploadErrs := make([]error, workers)
	askErrs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			data := paperPDF
			if i%2 == 1 {
				data = recipePDF
			}
			name := fmt.Sprintf("upload-%d.pdf", i)
			uploaded[i], uploadErrs[i] = manager.Upload(ctx, name, bytes.NewReader(data))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, askErrs[i] = manager.Ask(ctx, fmt.Sprintf("Question %d about the document?", i))
		}(i)
	}
	wg.Wait()

	ids := make(map[string]string, workers)
	for i := 0; i < workers; i++ {
		require.NoError(t, uploadErrs[i], "upload %d", i)
		require.NoError(t, askErrs[i], "ask %d", i)
		ids[uploaded[i].ID] = uploaded[i].FileName
	}

	// 最终会话一定是某次并发上传的结果，且状态与历史一致
	status, active := manager.Status()
	require.True(t, active)
	fileName, ok := ids[status.ID]
	require.True(t, ok, "final session must come from one of the uploads")
	assert.Equal(t, fileName, status.FileName)

	transcript, err := manager.Transcript()
	require.NoError(t, err)
	assert.Equal(t, len(transcript), status.Turns)
	assert.LessOrEqual(t, status.Turns, workers)
}
