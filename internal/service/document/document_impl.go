package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/internal/spreadsheet"
	"github.com/feichai0017/sheetscan/internal/utils/validator"
	"github.com/feichai0017/sheetscan/pkg/converters"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
	"github.com/feichai0017/sheetscan/pkg/queue"
	"github.com/feichai0017/sheetscan/pkg/source"
	"github.com/feichai0017/sheetscan/pkg/storage"
)

type DocumentService struct {
	orchestrator *Orchestrator
	validator    *validator.DocumentValidator
	queue        queue.Queue
	storage      storage.Storage
	converter    *converters.JSONConverter
	logger       logger.Logger
	config       *ServiceConfig
	now          func() time.Time
}

type ServiceConfig struct {
	Validator       validator.ValidatorConfig
	QueuePriority   int
	RetentionPeriod time.Duration
}

func NewService(
	orchestrator *Orchestrator,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 24 * time.Hour
	}
	if cfg.QueuePriority == 0 {
		cfg.QueuePriority = 2
	}

	return &DocumentService{
		orchestrator: orchestrator,
		validator:    validator.NewDocumentValidator(log, &cfg.Validator),
		queue:        q,
		storage:      store,
		converter:    converters.NewJSONConverter(),
		logger:       log.Named("document-service"),
		config:       cfg,
		now:          time.Now,
	}
}

func uploadKey(taskID string) string   { return "uploads/" + taskID }
func resultKey(taskID string) string   { return "results/" + taskID + ".json" }
func workbookKey(taskID string) string { return "results/" + taskID + ".xlsx" }

// ProcessFile 校验并存储上传文件, 然后加入处理队列
func (s *DocumentService) ProcessFile(ctx context.Context, src source.Source, lang models.Language) (*models.ProcessingTask, error) {
	if src == nil {
		return nil, models.ErrNoFile
	}
	if sized, ok := src.(source.Sized); ok {
		if err := s.validator.CheckSize(sized.Size()); err != nil {
			return nil, err
		}
	}
	data, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	info, err := s.validator.Validate(src.Name(), data)
	if err != nil {
		s.logger.Warn("File validation failed",
			logger.String("filename", src.Name()),
			logger.Error(err),
		)
		return nil, err
	}

	taskID := uuid.New().String()
	now := s.now()
	task := &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      queue.TaskTypeDocumentProcess,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": info.Filename,
			"size":     strconv.FormatInt(info.Size, 10),
			"type":     info.MimeType,
			"language": string(lang),
			"hash":     info.Hash,
		},
	}

	// 存储文件
	if err := s.storage.Put(ctx, uploadKey(taskID), bytes.NewReader(data), info.Size, info.MimeType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	queueTask := &queue.Task{
		ID:       taskID,
		Type:     task.Type,
		Priority: task.Priority,
		Payload: queue.Payload{
			ObjectKey: uploadKey(taskID),
			FileName:  info.Filename,
			MimeType:  info.MimeType,
			FileSize:  info.Size,
			Language:  string(lang),
		},
		Metadata:  task.Metadata,
		CreatedAt: now,
	}

	// 加入处理队列
	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		if delErr := s.storage.Delete(ctx, uploadKey(taskID)); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", logger.String("taskId", taskID), logger.Error(delErr))
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("File processing task created",
		logger.String("taskId", taskID),
		logger.String("filename", info.Filename),
		logger.String("mimeType", info.MimeType),
	)
	return task, nil
}

// HandleDocument 由 worker 调用, 执行完整处理流程并保存结果
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" || task.Payload.ObjectKey == "" {
		return fmt.Errorf("%w: invalid task, missing required data", models.ErrInvalidInput)
	}
	ctx = logger.WithTaskID(ctx, task.ID)
	log := logger.NewContextLogger(s.logger).FromContext(ctx)

	if current, err := s.queue.GetTaskStatus(ctx, task.ID); err == nil && current.Status == models.StatusCancelled {
		log.Info("Skipping cancelled task")
		return nil
	}

	lang, err := models.ParseLanguage(task.Payload.Language)
	if err != nil {
		return s.fail(ctx, task, err)
	}

	base := queue.TaskStatus{
		TaskID:    task.ID,
		FileName:  task.Payload.FileName,
		CreatedAt: task.CreatedAt,
		StartedAt: s.now(),
	}
	sink := queue.ProgressSink(ctx, s.queue, base, log)
	sink.Report(0, progress.StagePreparing)

	log.Info("Processing document", logger.String("filename", task.Payload.FileName))
	start := s.now()
	src := source.FromObject(s.storage, task.Payload.ObjectKey, task.Payload.FileName)
	doc, err := s.orchestrator.Process(ctx, src, lang, sink)
	if err != nil {
		return s.fail(ctx, task, err)
	}

	data, err := s.converter.Marshal(task.ID, doc, task.Payload.FileSize, s.now().Sub(start))
	if err != nil {
		return s.fail(ctx, task, err)
	}
	if err := s.storage.Put(ctx, resultKey(task.ID), bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return s.fail(ctx, task, fmt.Errorf("failed to store result: %w", err))
	}
	if len(doc.SpreadsheetBuffer) > 0 {
		if err := s.storage.Put(ctx, workbookKey(task.ID), bytes.NewReader(doc.SpreadsheetBuffer), int64(len(doc.SpreadsheetBuffer)), spreadsheet.ContentType); err != nil {
			return s.fail(ctx, task, fmt.Errorf("failed to store spreadsheet: %w", err))
		}
	}

	final := base
	final.Status = models.StatusCompleted
	final.Progress = 100
	final.Stage = string(progress.StageDone)
	final.FinishedAt = s.now()
	if err := s.queue.SaveStatus(ctx, &final); err != nil {
		log.Error("Failed to save final status", logger.Error(err))
	}

	log.Info("Document processing completed",
		logger.Int("rows", len(doc.Rows)),
		logger.Bool("tableDetected", doc.HasTable),
	)
	return nil
}

// fail 记录失败状态, 上下文取消时记为 cancelled
func (s *DocumentService) fail(ctx context.Context, task *queue.Task, err error) error {
	status := &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     models.StatusFailed,
		FileName:   task.Payload.FileName,
		Error:      err.Error(),
		CreatedAt:  task.CreatedAt,
		FinishedAt: s.now(),
	}
	if errors.Is(err, context.Canceled) {
		status.Status = models.StatusCancelled
	}

	log := logger.NewContextLogger(s.logger).FromContext(logger.WithTaskID(ctx, task.ID))
	// 任务上下文可能已取消, 状态写入不能依赖它
	if saveErr := s.queue.SaveStatus(context.WithoutCancel(ctx), status); saveErr != nil {
		log.Error("Failed to save failed status", logger.Error(saveErr))
	}
	log.Error("Document processing failed", logger.Error(err))
	return err
}

// GetProcessingStatus 获取处理状态
func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	updated := status.FinishedAt
	if updated.IsZero() {
		updated = status.StartedAt
	}
	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    status.Status,
		Type:      queue.TaskTypeDocumentProcess,
		Progress:  status.Progress,
		Stage:     status.Stage,
		Error:     status.Error,
		Metadata:  map[string]string{"filename": status.FileName},
		CreatedAt: status.CreatedAt,
		UpdatedAt: updated,
	}, nil
}

func (s *DocumentService) completed(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	task, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotCompleted, task.Status)
	}
	return task, nil
}

// GetProcessedResult 获取处理结果
func (s *DocumentService) GetProcessedResult(ctx context.Context, taskID string) (*converters.ProcessedResult, error) {
	if _, err := s.completed(ctx, taskID); err != nil {
		return nil, err
	}

	reader, err := s.storage.Get(ctx, resultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	var result converters.ProcessedResult
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// GetSpreadsheet 返回工作簿内容和下载文件名
func (s *DocumentService) GetSpreadsheet(ctx context.Context, taskID string) (io.ReadCloser, string, error) {
	task, err := s.completed(ctx, taskID)
	if err != nil {
		return nil, "", err
	}

	reader, err := s.storage.Get(ctx, workbookKey(taskID))
	if err != nil {
		return nil, "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	return reader, downloadName(task.Metadata["filename"], taskID), nil
}

func downloadName(fileName, taskID string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if base == "" || base == "." {
		base = "ocr-result-" + taskID
	}
	return base + ".xlsx"
}

// CancelTask 取消任务
func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get task status: %w", err)
	}
	if status.Status.Terminal() {
		return fmt.Errorf("%w: %s", models.ErrTaskFinished, status.Status)
	}

	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	status.Status = models.StatusCancelled
	status.FinishedAt = s.now()
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save cancelled status", logger.String("taskId", taskID), logger.Error(err))
	}

	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks 清理过期的上传文件和结果
func (s *DocumentService) CleanupTasks(ctx context.Context) (int, error) {
	threshold := s.now().Add(-s.config.RetentionPeriod)

	total := 0
	for _, prefix := range []string{"uploads/", "results/"} {
		n, err := s.storage.CleanupBefore(ctx, prefix, threshold)
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to cleanup storage: %w", err)
		}
	}

	s.logger.Info("Completed tasks cleanup",
		logger.Time("threshold", threshold),
		logger.Int("deleted", total),
	)
	return total, nil
}
