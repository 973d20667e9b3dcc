package api

import (
	"net/http"

	"github.com/fyerfyer/pdf-chat/api/handler"
	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/gin-gonic/gin"
)

// RouterOptions 路由配置
type RouterOptions struct {
	AllowOrigins   []string // 允许跨域的来源，为空表示全部
	RateLimit      bool     // 是否启用限流
	RateLimitRPS   float64  // 每秒请求数
	RateLimitBurst int      // 突发请求数
	MaxUploadBytes int64    // multipart内存上限
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(sessionHandler *handler.SessionHandler, opts RouterOptions) *gin.Engine {
	model.RegisterValidators()

	router := gin.New()
	if opts.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = opts.MaxUploadBytes
	}

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.Cors(opts.AllowOrigins))

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	if opts.RateLimit {
		router.Use(middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).Middleware())
	}

	// 上传PDF - POST /upload_pdf/
	router.POST("/upload_pdf/", sessionHandler.UploadPDF)

	// 提问 - POST /ask/
	router.POST("/ask/", sessionHandler.Ask)

	// 当前会话 - GET /session/
	router.GET("/session/", sessionHandler.Status)

	// 健康检查API
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.HealthResponse{Status: "ok"})
	})

	return router
}
