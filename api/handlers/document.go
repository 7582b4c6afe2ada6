package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/internal/service/document"
	"github.com/feichai0017/sheetscan/internal/spreadsheet"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
	"github.com/feichai0017/sheetscan/pkg/source"
)

// Pipeline 同步处理接口, 由 document.Orchestrator 实现
type Pipeline interface {
	Process(ctx context.Context, src source.Source, lang models.Language, sink progress.Sink) (*models.ProcessedDocument, error)
	ProcessBatch(ctx context.Context, srcs []source.Source, lang models.Language, sink progress.Sink) (*models.BatchResult, error)
}

type DocumentHandler struct {
	pipeline Pipeline
	service  document.DocumentProcessor
	logger   logger.ContextLogger
}

// OCRResponse 同步处理单个文件的响应
type OCRResponse struct {
	Success           bool                  `json:"success"`
	Rows              models.TableData      `json:"rows"`
	FileName          string                `json:"fileName"`
	Analysis          models.AnalysisResult `json:"analysis"`
	SpreadsheetBuffer []byte                `json:"spreadsheetBuffer"`
}

// ProcessResponse 定义处理响应结构
type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewDocumentHandler(pipeline Pipeline, service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		pipeline: pipeline,
		service:  service,
		logger:   logger.NewContextLogger(log.Named("document-handler")),
	}
}

func (h *DocumentHandler) language(c *gin.Context) (models.Language, error) {
	return models.ParseLanguage(c.PostForm("language"))
}

// OCR 同步处理单个文件并返回表格、分析和工作簿
func (h *DocumentHandler) OCR(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, "Invalid file upload", fmt.Errorf("%w: %v", models.ErrNoFile, err))
		return
	}
	lang, err := h.language(c)
	if err != nil {
		h.handleError(c, "Invalid language", err)
		return
	}

	doc, err := h.pipeline.Process(c.Request.Context(), source.FromMultipart(header), lang, nil)
	if err != nil {
		h.handleError(c, "Failed to process file", err)
		return
	}

	c.JSON(http.StatusOK, OCRResponse{
		Success:           true,
		Rows:              doc.Rows,
		FileName:          doc.FileName,
		Analysis:          doc.Analysis,
		SpreadsheetBuffer: doc.SpreadsheetBuffer,
	})
}

// OCRBatch 同步处理多个文件, 生成一个合并工作簿
func (h *DocumentHandler) OCRBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, "Invalid form data", fmt.Errorf("%w: %v", models.ErrNoFile, err))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, "No files provided", models.ErrNoFile)
		return
	}
	lang, err := h.language(c)
	if err != nil {
		h.handleError(c, "Invalid language", err)
		return
	}

	srcs := make([]source.Source, len(files))
	for i, fh := range files {
		srcs[i] = source.FromMultipart(fh)
	}

	result, err := h.pipeline.ProcessBatch(c.Request.Context(), srcs, lang, nil)
	if err != nil {
		h.handleError(c, "Failed to process files", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProcessDocument 上传文件并创建异步任务
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, "Invalid file upload", fmt.Errorf("%w: %v", models.ErrNoFile, err))
		return
	}
	lang, err := h.language(c)
	if err != nil {
		h.handleError(c, "Invalid language", err)
		return
	}

	task, err := h.service.ProcessFile(c.Request.Context(), source.FromMultipart(header), lang)
	if err != nil {
		h.handleError(c, "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, newProcessResponse(task, header))
}

func newProcessResponse(task *models.ProcessingTask, header *multipart.FileHeader) ProcessResponse {
	return ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		FileType:  filepath.Ext(header.Filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}
}

// GetStatus 获取处理状态
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetProcessingStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"stage":     task.Stage,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

// GetResult 返回处理结果 JSON
func (h *DocumentHandler) GetResult(c *gin.Context) {
	result, err := h.service.GetProcessedResult(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, "Failed to get result", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DownloadResult 下载工作簿
func (h *DocumentHandler) DownloadResult(c *gin.Context) {
	reader, filename, err := h.service.GetSpreadsheet(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, "Failed to get spreadsheet", err)
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, -1, spreadsheet.ContentType, reader, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}

// CancelTask 取消处理任务
func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

// statusFor 错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case models.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTaskNotFound), errors.Is(err, models.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTaskNotCompleted), errors.Is(err, models.ErrTaskFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError 统一错误处理
func (h *DocumentHandler) handleError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	log := h.logger.FromContext(c.Request.Context())
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	c.JSON(status, ErrorResponse{Error: err.Error(), Message: message})
}
