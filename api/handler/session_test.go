package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockSessions SessionService的testify mock
type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Upload(ctx context.Context, filename string, r io.Reader) (models.SessionInfo, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(filename, string(data))
	return args.Get(0).(models.SessionInfo), args.Error(1)
}

func (m *mockSessions) Ask(ctx context.Context, question string) (string, error) {
	args := m.Called(question)
	return args.String(0), args.Error(1)
}

func (m *mockSessions) Status() (models.SessionInfo, bool) {
	args := m.Called()
	return args.Get(0).(models.SessionInfo), args.Bool(1)
}

func setupHandler(t *testing.T) (*gin.Engine, *mockSessions) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	model.RegisterValidators()

	sessions := &mockSessions{}
	t.Cleanup(func() { sessions.AssertExpectations(t) })

	h := NewSessionHandler(sessions)
	router := gin.New()
	router.Use(middleware.ErrorMiddleware())
	router.POST("/upload_pdf/", h.UploadPDF)
	router.POST("/ask/", h.Ask)
	router.GET("/session/", h.Status)
	return router, sessions
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func detailOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Detail
}

func TestUploadPDF(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router, sessions := setupHandler(t)
		sessions.On("Upload", "paper.pdf", "%PDF-fake").
			Return(models.SessionInfo{ID: "s1", FileName: "paper.pdf", Fragments: 3}, nil).Once()

		body, contentType := multipartBody(t, "file", "paper.pdf", []byte("%PDF-fake"))
		req := httptest.NewRequest(http.MethodPost, "/upload_pdf/", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp model.UploadResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Successfully processed 'paper.pdf' and created a new chat session.", resp.Message)
	})

	t.Run("wrong extension", func(t *testing.T) {
		router, sessions := setupHandler(t)

		body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
		req := httptest.NewRequest(http.MethodPost, "/upload_pdf/", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgInvalidFileType, detailOf(t, w))
		sessions.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	})

	t.Run("missing file field", func(t *testing.T) {
		router, _ := setupHandler(t)

		body, contentType := multipartBody(t, "document", "paper.pdf", []byte("%PDF"))
		req := httptest.NewRequest(http.MethodPost, "/upload_pdf/", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("processing failure", func(t *testing.T) {
		router, sessions := setupHandler(t)
		sessions.On("Upload", "paper.pdf", "broken").
			Return(models.SessionInfo{}, errors.New("failed to extract text: corrupt xref")).Once()

		body, contentType := multipartBody(t, "file", "paper.pdf", []byte("broken"))
		req := httptest.NewRequest(http.MethodPost, "/upload_pdf/", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Failed to process PDF. Error: failed to extract text: corrupt xref", detailOf(t, w))
	})
}

func TestAsk(t *testing.T) {
	post := func(router *gin.Engine, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/ask/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("success", func(t *testing.T) {
		router, sessions := setupHandler(t)
		sessions.On("Ask", "What is attention?").Return("A weighting mechanism.", nil).Once()

		w := post(router, `{"question": "What is attention?"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp model.AskResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "A weighting mechanism.", resp.Answer)
	})

	t.Run("no active session", func(t *testing.T) {
		router, sessions := setupHandler(t)
		sessions.On("Ask", "Hello?").Return("", models.ErrNoActiveSession).Once()

		w := post(router, `{"question": "Hello?"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgNoActiveSession, detailOf(t, w))
	})

	t.Run("generation failure", func(t *testing.T) {
		router, sessions := setupHandler(t)
		sessions.On("Ask", "Hello?").Return("", errors.New("generation failed: upstream 503")).Once()

		w := post(router, `{"question": "Hello?"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Failed to get answer. Error: generation failed: upstream 503", detailOf(t, w))
	})

	t.Run("malformed bodies", func(t *testing.T) {
		router, sessions := setupHandler(t)
		for _, body := range []string{``, `{}`, `{"question": 42}`, `{"question": "   "}`, `not json`} {
			w := post(router, body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
		}
		sessions.AssertNotCalled(t, "Ask", mock.Anything)
	})
}

func TestStatus(t *testing.T) {
	t.Run("inactive", func(t *testing.T) {
		router, sessions := setupHandler(t)
		sessions.On("Status").Return(models.SessionInfo{}, false).Once()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"active": false}`, w.Body.String())
	})

	t.Run("active", func(t *testing.T) {
		router, sessions := setupHandler(t)
		created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		sessions.On("Status").Return(models.SessionInfo{
			ID: "s1", FileName: "paper.pdf", Fragments: 7, Turns: 2, CreatedAt: created,
		}, true).Once()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session/", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp model.SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.True(t, resp.Active)
		require.NotNil(t, resp.Session)
		assert.Equal(t, "paper.pdf", resp.Session.FileName)
		assert.Equal(t, 2, resp.Session.Turns)
	})
}
