package document

import (
	"context"
	"io"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/converters"
	"github.com/feichai0017/sheetscan/pkg/queue"
	"github.com/feichai0017/sheetscan/pkg/source"
)

// DocumentProcessor is the asynchronous side of the service: uploads are stored,
// queued and processed by the worker.
type DocumentProcessor interface {
	ProcessFile(ctx context.Context, src source.Source, lang models.Language) (*models.ProcessingTask, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetProcessedResult(ctx context.Context, taskID string) (*converters.ProcessedResult, error)
	GetSpreadsheet(ctx context.Context, taskID string) (io.ReadCloser, string, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) (int, error)
}
