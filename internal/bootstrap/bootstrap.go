// Package bootstrap wires configuration into the pipeline, storage and queue
// shared by the server, worker and CLI binaries.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	cfg "github.com/feichai0017/sheetscan/config"
	"github.com/feichai0017/sheetscan/internal/agent"
	"github.com/feichai0017/sheetscan/internal/analysis"
	"github.com/feichai0017/sheetscan/internal/service/document"
	"github.com/feichai0017/sheetscan/internal/utils/validator"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/queue"
	"github.com/feichai0017/sheetscan/pkg/storage"
)

// NewLogger builds the process logger, tagging every entry with service.
// defaultFile is used when LOG_FILE is unset; an empty value logs to stdout only.
func NewLogger(app *cfg.AppConfig, service, defaultFile string) (logger.Logger, error) {
	outputs := []string{"stdout"}
	file := app.LogFile
	if file == "" {
		file = defaultFile
	}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		outputs = append(outputs, file)
	}
	return logger.NewLogger(
		logger.WithLevel(app.LogLevel),
		logger.WithEncoding(app.LogEncoding),
		logger.WithOutputPaths(outputs),
		logger.WithInitialFields(map[string]interface{}{"service": service}),
	)
}

// Pipeline holds the synchronous processing stack.
type Pipeline struct {
	Factory      *agent.ProcessorFactory
	Orchestrator *document.Orchestrator
}

func (p *Pipeline) Close() error {
	return p.Factory.Close()
}

// ValidatorConfig derives upload limits from the application config.
func ValidatorConfig(app *cfg.AppConfig) validator.ValidatorConfig {
	return validator.ValidatorConfig{
		MaxFileSize:  app.MaxUploadSize,
		MaxPageCount: app.MaxPDFPages,
	}
}

// NewPipeline validates the provider selection and builds the orchestrator.
func NewPipeline(ctx context.Context, app *cfg.AppConfig, ai *cfg.AIConfig, log logger.Logger) (*Pipeline, error) {
	if err := ai.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	factory, err := agent.NewProcessorFactory(ctx, ai, app.Pipeline, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor factory: %w", err)
	}
	gen, err := agent.NewGenerator(ai, log)
	if err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}

	// gen is nil for TEXT_PROVIDER=none, which selects the offline analysis
	analyzer := analysis.NewPipeline(gen, app.Pipeline.Analysis, log)

	orch := document.NewOrchestrator(factory, analyzer, log, document.OrchestratorConfig{
		InitialDelay: app.Pipeline.InitialDelay,
		OCRRetry:     app.Pipeline.OCRRetry,
		Table:        app.Pipeline.Table,
		Validator:    ValidatorConfig(app),
	})
	return &Pipeline{Factory: factory, Orchestrator: orch}, nil
}

// QueueConfig maps the Redis settings onto the queue.
func QueueConfig(rc *cfg.RedisConfig) queue.QueueConfig {
	return queue.QueueConfig{
		RedisAddr:      rc.Addr,
		RedisPassword:  rc.Password,
		RedisDB:        rc.DB,
		MaxRetries:     3,
		ProcessTimeout: rc.ProcessTimeout,
		StatusTTL:      rc.StatusTTL,
	}
}

// Service holds the asynchronous stack.
type Service struct {
	Documents *document.DocumentService
	Queue     *queue.AsynqQueue
	Storage   storage.Storage
}

func (s *Service) Close() error {
	return s.Queue.Close()
}

// NewService connects storage and Redis and builds the async document service.
func NewService(ctx context.Context, app *cfg.AppConfig, p *Pipeline, log logger.Logger) (*Service, error) {
	store, err := storage.NewStorage(ctx, storage.StorageType(app.StorageType), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	q := queue.NewAsynqQueue(QueueConfig(cfg.GetRedisConfig()))
	if err := q.Ping(ctx); err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	svc := document.NewService(p.Orchestrator, q, store, log, &document.ServiceConfig{
		Validator:       ValidatorConfig(app),
		RetentionPeriod: app.Retention,
	})
	return &Service{Documents: svc, Queue: q, Storage: store}, nil
}
