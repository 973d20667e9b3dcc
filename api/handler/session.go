package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 与前端约定的提示文案
const (
	MsgInvalidFileType = "Invalid file type. Please upload a PDF."
	MsgNoActiveSession = "No chat session is active. Please upload a PDF first."
)

// SessionService 会话服务，由services.SessionManager实现
type SessionService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (models.SessionInfo, error)
	Ask(ctx context.Context, question string) (string, error)
	Status() (models.SessionInfo, bool)
}

// SessionHandler 处理上传和问答请求
type SessionHandler struct {
	sessions SessionService // 会话服务
	logger   *logrus.Logger // 日志记录器
}

// NewSessionHandler 创建新的会话处理器
func NewSessionHandler(sessions SessionService) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   middleware.GetLogger(),
	}
}

// UploadPDF 上传PDF并创建新的会话
// POST /upload_pdf/
func (h *SessionHandler) UploadPDF(c *gin.Context) {
	var req model.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewUnprocessableError("Field 'file' is required.", err.Error()))
		return
	}

	filename := req.File.Filename
	if err := model.ValidateUploadName(filename); err != nil {
		middleware.HandleError(c, middleware.NewValidationError(MsgInvalidFileType, filename))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError(
			fmt.Sprintf("Failed to process PDF. Error: %v", err)))
		return
	}
	defer file.Close()

	log := h.logger.WithFields(logrus.Fields{
		"file_name":             filename,
		"size":                  req.File.Size,
		middleware.FieldTraceID: c.GetString(middleware.TraceIDKey),
	})
	log.Info("Processing uploaded PDF")

	info, err := h.sessions.Upload(c.Request.Context(), filename, file)
	if err != nil {
		if errors.Is(err, models.ErrInvalidUpload) {
			middleware.HandleError(c, middleware.NewValidationError(MsgInvalidFileType, err.Error()))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError(
			fmt.Sprintf("Failed to process PDF. Error: %v", err)))
		return
	}

	log.WithFields(logrus.Fields{
		"session_id": info.ID,
		"fragments":  info.Fragments,
	}).Info("Chat session ready")

	c.JSON(http.StatusOK, model.UploadResponse{
		Message: fmt.Sprintf("Successfully processed '%s' and created a new chat session.", filename),
	})
}

// Ask 在当前会话中提问
// POST /ask/
func (h *SessionHandler) Ask(c *gin.Context) {
	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewUnprocessableError("Field 'question' must be a non-empty string.", err.Error()))
		return
	}

	answer, err := h.sessions.Ask(c.Request.Context(), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoActiveSession):
			middleware.HandleError(c, middleware.NewBusinessError(MsgNoActiveSession))
		case errors.Is(err, models.ErrEmptyQuestion):
			middleware.HandleError(c, middleware.NewUnprocessableError("Field 'question' must be a non-empty string."))
		default:
			middleware.HandleError(c, middleware.NewInternalError(
				fmt.Sprintf("Failed to get answer. Error: %v", err)))
		}
		return
	}

	c.JSON(http.StatusOK, model.AskResponse{Answer: answer})
}

// Status 返回当前会话状态
// GET /session/
func (h *SessionHandler) Status(c *gin.Context) {
	info, active := h.sessions.Status()
	resp := model.SessionResponse{Active: active}
	if active {
		resp.Session = &info
	}
	c.JSON(http.StatusOK, resp)
}
