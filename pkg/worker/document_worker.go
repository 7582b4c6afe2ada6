package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/internal/service/document"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/queue"
)

// TaskTypeCleanup removes expired uploads and results.
const TaskTypeCleanup = "document:cleanup"

type DocumentWorker struct {
	BaseWorker
	docService document.DocumentProcessor
}

func NewDocumentWorker(cfg *Config, docService document.DocumentProcessor, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = DefaultQueues()
	}

	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
			Logger:   asynqLogger{log.Named("asynq")},
			LogLevel: asynq.WarnLevel,
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log.Named("document-worker"),
		},
		docService: docService,
	}

	if cfg.CleanupInterval > 0 {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), &asynq.SchedulerOpts{
			Logger:   asynqLogger{log.Named("asynq-scheduler")},
			LogLevel: asynq.WarnLevel,
		})
		spec := fmt.Sprintf("@every %s", cfg.CleanupInterval)
		if _, err := w.scheduler.Register(spec, asynq.NewTask(TaskTypeCleanup, nil, asynq.Queue("low"))); err != nil {
			return nil, fmt.Errorf("failed to register cleanup schedule: %w", err)
		}
	}

	// 注册任务处理器
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentProcess, w.handleDocumentProcess)
	w.mux.HandleFunc(TaskTypeCleanup, w.handleCleanup)
}

func (w *DocumentWorker) handleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	// 反序列化任务
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing document task",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Payload.FileName),
		logger.String("mimeType", task.Payload.MimeType),
	)

	// 获取任务写入器, 直接构造的任务没有写入器
	rw := t.ResultWriter()

	if err := w.docService.HandleDocument(ctx, &task); err != nil {
		if rw != nil {
			if _, writeErr := rw.Write([]byte(fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))); writeErr != nil {
				w.logger.Error("Failed to write task failure", logger.Error(writeErr))
			}
		}
		return retryable(err)
	}

	// 写入完成状态
	if rw != nil {
		if _, err := rw.Write([]byte(`{"status":"completed","progress":100}`)); err != nil {
			w.logger.Error("Failed to write task completion", logger.Error(err))
		}
	}
	return nil
}

func (w *DocumentWorker) handleCleanup(ctx context.Context, _ *asynq.Task) error {
	n, err := w.docService.CleanupTasks(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("Cleanup finished", logger.Int("deleted", n))
	return nil
}

// retryable 输入错误和阶段失败重试也不会成功, 交给 asynq 直接归档
func retryable(err error) error {
	var stageErr *models.StageError
	switch {
	case models.IsInputError(err),
		errors.As(err, &stageErr),
		errors.Is(err, models.ErrObjectNotFound),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

// asynqLogger 将 asynq 日志转到 zap
type asynqLogger struct{ l logger.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...)) }
