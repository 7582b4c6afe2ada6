package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentdoc "github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/internal/spreadsheet"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/queue"
	"github.com/feichai0017/sheetscan/pkg/source"
	"github.com/feichai0017/sheetscan/pkg/storage/memory"
)

type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Task
	statuses   map[string]queue.TaskStatus
	history    []queue.TaskStatus
	cancelled  []string
	enqueueErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	q.enqueued = append(q.enqueued, task)
	q.mu.Unlock()
	return q.SaveStatus(ctx, &queue.TaskStatus{TaskID: task.ID, Status: models.StatusPending, FileName: task.Payload.FileName, CreatedAt: task.CreatedAt})
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	return &status, nil
}

func (q *fakeQueue) SaveStatus(_ context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = *status
	q.history = append(q.history, *status)
	return nil
}

func (q *fakeQueue) CancelTask(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *fakeQueue) progress(taskID string) []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []int
	for _, s := range q.history {
		if s.TaskID == taskID && s.Status == models.StatusRunning {
			out = append(out, s.Progress)
		}
	}
	return out
}

type serviceFixture struct {
	svc   *DocumentService
	queue *fakeQueue
	store *memory.Storage
	proc  *fakeProcessor
	log   *logger.TestLogger
}

func newServiceFixture(t *testing.T, text string, ocrErr error) *serviceFixture {
	t.Helper()
	proc := &fakeProcessor{fn: func(agentdoc.Input) (string, error) { return text, ocrErr }}
	q := newFakeQueue()
	store := memory.New()
	log := logger.NewTestLogger()
	svc := NewService(newTestOrchestrator(proc, nil), q, store, log, &ServiceConfig{})
	return &serviceFixture{svc: svc, queue: q, store: store, proc: proc, log: log}
}

func (f *serviceFixture) submit(t *testing.T, name string) *queue.Task {
	t.Helper()
	_, err := f.svc.ProcessFile(context.Background(), source.FromBytes(name, pngOfWidth(t, 4)), models.Indonesian)
	require.NoError(t, err)
	require.Len(t, f.queue.enqueued, 1)
	return f.queue.enqueued[0]
}

func TestProcessFileStoresAndEnqueues(t *testing.T) {
	f := newServiceFixture(t, "", nil)

	task, err := f.svc.ProcessFile(context.Background(), source.FromBytes("receipt.png", pngOfWidth(t, 4)), models.Indonesian)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, "image/png", task.Metadata["type"])
	assert.Equal(t, "id", task.Metadata["language"])

	require.Len(t, f.queue.enqueued, 1)
	queued := f.queue.enqueued[0]
	assert.Equal(t, task.ID, queued.ID)
	assert.Equal(t, "uploads/"+task.ID, queued.Payload.ObjectKey)
	assert.Equal(t, []string{"uploads/" + task.ID}, f.store.Keys())
}

func TestProcessFileRejectsUnsupportedType(t *testing.T) {
	f := newServiceFixture(t, "", nil)

	_, err := f.svc.ProcessFile(context.Background(), source.FromBytes("notes.txt", []byte("plain words")), models.English)

	assert.ErrorIs(t, err, models.ErrUnsupportedType)
	assert.Empty(t, f.queue.enqueued)
	assert.Empty(t, f.store.Keys())
}

func TestProcessFileRemovesUploadWhenEnqueueFails(t *testing.T) {
	f := newServiceFixture(t, "", nil)
	f.queue.enqueueErr = errors.New("redis down")

	_, err := f.svc.ProcessFile(context.Background(), source.FromBytes("receipt.png", pngOfWidth(t, 4)), models.English)

	assert.Error(t, err)
	assert.Empty(t, f.store.Keys())
}

func TestHandleDocumentStoresResults(t *testing.T) {
	f := newServiceFixture(t, "Item,Qty,Price\nTea,2,3.00", nil)
	task := f.submit(t, "receipt.png")

	require.NoError(t, f.svc.HandleDocument(context.Background(), task))

	assert.Equal(t, []int{0, 20, 40, 70, 80, 90, 100}, f.queue.progress(task.ID))

	status, err := f.svc.GetProcessingStatus(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)

	result, err := f.svc.GetProcessedResult(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, result.TaskID)
	assert.Equal(t, models.TableData{{"Item", "Qty", "Price"}, {"Tea", "2", "3.00"}}, result.Rows)

	rc, name, err := f.svc.GetSpreadsheet(context.Background(), task.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "receipt.xlsx", name)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	sheets, err := spreadsheet.Read(data)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, "receipt.png", sheets[0].Name)
	assert.Equal(t, models.TableRow{"Tea", "2", "3.00"}, sheets[0].Rows[1])
}

func TestHandleDocumentRecordsFailure(t *testing.T) {
	f := newServiceFixture(t, "", errors.New("engine crashed"))
	task := f.submit(t, "receipt.png")

	err := f.svc.HandleDocument(context.Background(), task)

	var stageErr *models.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "ocr", stageErr.Stage)

	status, err := f.queue.GetTaskStatus(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "engine crashed")

	_, err = f.svc.GetProcessedResult(context.Background(), task.ID)
	assert.ErrorIs(t, err, models.ErrTaskNotCompleted)
}

func taskIDOf(entry logger.LogEntry) string {
	for _, field := range entry.Fields {
		if field.Key == "task_id" {
			return field.String
		}
	}
	return ""
}

func TestHandleDocumentLogsTaskID(t *testing.T) {
	for name, ocrErr := range map[string]error{"success": nil, "failure": errors.New("engine crashed")} {
		t.Run(name, func(t *testing.T) {
			f := newServiceFixture(t, "Item,Qty,Price\nTea,2,3.00", ocrErr)
			task := f.submit(t, "receipt.png")
			f.log.Clear()

			_ = f.svc.HandleDocument(context.Background(), task)

			entries := f.log.GetEntries()
			require.NotEmpty(t, entries)
			for _, entry := range entries {
				assert.Equal(t, task.ID, taskIDOf(entry), entry.Message)
			}
		})
	}
}

func TestHandleDocumentMarksCancelledContext(t *testing.T) {
	f := newServiceFixture(t, "text", nil)
	task := f.submit(t, "receipt.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.svc.HandleDocument(ctx, task)

	assert.ErrorIs(t, err, context.Canceled)
	status, _ := f.queue.GetTaskStatus(context.Background(), task.ID)
	assert.Equal(t, models.StatusCancelled, status.Status)
}

func TestHandleDocumentSkipsCancelledTask(t *testing.T) {
	f := newServiceFixture(t, "text", nil)
	task := f.submit(t, "receipt.png")
	require.NoError(t, f.svc.CancelTask(context.Background(), task.ID))

	require.NoError(t, f.svc.HandleDocument(context.Background(), task))

	assert.Equal(t, 0, f.proc.calls)
	assert.Equal(t, []string{task.ID}, f.queue.cancelled)
}

func TestHandleDocumentRejectsBadLanguage(t *testing.T) {
	f := newServiceFixture(t, "text", nil)
	task := f.submit(t, "receipt.png")
	task.Payload.Language = "klingon"

	err := f.svc.HandleDocument(context.Background(), task)

	assert.ErrorIs(t, err, models.ErrInvalidLanguage)
	assert.Equal(t, 0, f.proc.calls)
}

func TestCancelFinishedTask(t *testing.T) {
	f := newServiceFixture(t, "text", nil)
	task := f.submit(t, "receipt.png")
	require.NoError(t, f.svc.HandleDocument(context.Background(), task))

	err := f.svc.CancelTask(context.Background(), task.ID)

	assert.ErrorIs(t, err, models.ErrTaskFinished)
	assert.Empty(t, f.queue.cancelled)
}

func TestStatusOfUnknownTask(t *testing.T) {
	f := newServiceFixture(t, "", nil)

	_, err := f.svc.GetProcessingStatus(context.Background(), "missing")

	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestCleanupTasksRemovesExpiredObjects(t *testing.T) {
	f := newServiceFixture(t, "text", nil)
	task := f.submit(t, "receipt.png")
	require.NoError(t, f.svc.HandleDocument(context.Background(), task))

	n, err := f.svc.CleanupTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = f.svc.CleanupTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, f.store.Keys())
}

func TestDownloadName(t *testing.T) {
	assert.Equal(t, "scan.xlsx", downloadName("dir/scan.pdf", "id1"))
	assert.Equal(t, "ocr-result-id1.xlsx", downloadName("", "id1"))
}

func TestProcessedResultIsJSON(t *testing.T) {
	f := newServiceFixture(t, "hello", nil)
	task := f.submit(t, "receipt.png")
	require.NoError(t, f.svc.HandleDocument(context.Background(), task))

	rc, err := f.store.Get(context.Background(), resultKey(task.ID))
	require.NoError(t, err)
	defer rc.Close()
	var raw map[string]any
	require.NoError(t, json.NewDecoder(rc).Decode(&raw))
	assert.Equal(t, "completed", raw["status"])
}
