package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/sheetscan/api/handlers"
	"github.com/feichai0017/sheetscan/api/middleware"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

type Options struct {
	// MaxBodySize limits upload requests, in bytes. Zero means no limit.
	MaxBodySize int64
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger, opts Options) {
	// 全局中间件
	r.Use(middleware.RequestID(), middleware.AccessLog(log), middleware.CORS())

	r.GET("/health", handlers.HealthCheck)

	// API 版本组
	v1 := r.Group("/api/v1")
	v1.Use(middleware.MaxBodySize(opts.MaxBodySize))

	// 同步识别
	v1.POST("/ocr", h.Document.OCR)
	v1.POST("/ocr/batch", h.Document.OCRBatch)

	// 文档处理路由组
	docs := v1.Group("/documents")
	{
		docs.POST("/process", h.Document.ProcessDocument)
		docs.GET("/status/:taskId", h.Document.GetStatus)
		docs.GET("/result/:taskId", h.Document.GetResult)
		docs.GET("/download/:taskId", h.Document.DownloadResult)
		docs.DELETE("/task/:taskId", h.Document.CancelTask)
	}
}
