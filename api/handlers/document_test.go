package handlers_test

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

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/sheetscan/api/handlers"
	"github.com/feichai0017/sheetscan/api/middleware"
	"github.com/feichai0017/sheetscan/api/routes"
	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/converters"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
	"github.com/feichai0017/sheetscan/pkg/queue"
	"github.com/feichai0017/sheetscan/pkg/source"
)

type fakePipeline struct {
	names []string
	lang  models.Language
	err   error
}

func (p *fakePipeline) Process(ctx context.Context, src source.Source, lang models.Language, _ progress.Sink) (*models.ProcessedDocument, error) {
	if _, err := src.Read(ctx); err != nil {
		return nil, err
	}
	p.names = append(p.names, src.Name())
	p.lang = lang
	if p.err != nil {
		return nil, p.err
	}
	return &models.ProcessedDocument{
		Rows:              models.TableData{{"a", "b"}},
		FileName:          src.Name(),
		Analysis:          models.AnalysisResult{Title: "Doc"},
		SpreadsheetBuffer: []byte("xlsx"),
	}, nil
}

func (p *fakePipeline) ProcessBatch(ctx context.Context, srcs []source.Source, lang models.Language, sink progress.Sink) (*models.BatchResult, error) {
	res := &models.BatchResult{}
	for _, src := range srcs {
		doc, err := p.Process(ctx, src, lang, sink)
		if err != nil {
			return nil, err
		}
		res.Documents = append(res.Documents, doc)
	}
	return res, nil
}

type fakeService struct {
	task      *models.ProcessingTask
	statusErr error
	result    *converters.ProcessedResult
	cancelErr error
}

func (s *fakeService) ProcessFile(_ context.Context, src source.Source, lang models.Language) (*models.ProcessingTask, error) {
	return &models.ProcessingTask{ID: "task-1", Status: models.StatusPending, CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}, nil
}

func (s *fakeService) HandleDocument(context.Context, *queue.Task) error { return nil }

func (s *fakeService) GetProcessingStatus(context.Context, string) (*models.ProcessingTask, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.task, nil
}

func (s *fakeService) GetProcessedResult(context.Context, string) (*converters.ProcessedResult, error) {
	if s.result == nil {
		return nil, models.ErrTaskNotCompleted
	}
	return s.result, nil
}

func (s *fakeService) GetSpreadsheet(context.Context, string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("PK-bytes")), "receipt.xlsx", nil
}

func (s *fakeService) CancelTask(context.Context, string) error { return s.cancelErr }

func (s *fakeService) CleanupTasks(context.Context) (int, error) { return 0, nil }

func newRouter(p *fakePipeline, s *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewTestLogger()
	r := gin.New()
	routes.SetupRoutes(r, handlers.NewHandlers(p, s, log), log, routes.Options{})
	return r
}

func multipartBody(t *testing.T, field string, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range files {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestOCRReturnsDocument(t *testing.T) {
	p := &fakePipeline{}
	body, ct := multipartBody(t, "file", map[string]string{"scan.png": "data"}, map[string]string{"language": "id"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr", body)
	req.Header.Set("Content-Type", ct)

	rec := do(newRouter(p, &fakeService{}), req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.OCRResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "scan.png", resp.FileName)
	assert.Equal(t, models.TableData{{"a", "b"}}, resp.Rows)
	assert.Equal(t, []byte("xlsx"), resp.SpreadsheetBuffer)
	assert.Equal(t, models.Indonesian, p.lang)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestOCRMissingFile(t *testing.T) {
	body, ct := multipartBody(t, "file", nil, map[string]string{"language": "en"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr", body)
	req.Header.Set("Content-Type", ct)

	rec := do(newRouter(&fakePipeline{}, &fakeService{}), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no file provided")
}

func TestOCRBadLanguage(t *testing.T) {
	p := &fakePipeline{}
	body, ct := multipartBody(t, "file", map[string]string{"scan.png": "data"}, map[string]string{"language": "fr"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr", body)
	req.Header.Set("Content-Type", ct)

	rec := do(newRouter(p, &fakeService{}), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, p.names)
}

func TestOCRErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unsupported type", models.ErrUnsupportedType, http.StatusBadRequest},
		{"too large", models.ErrFileTooLarge, http.StatusBadRequest},
		{"ocr failure", &models.StageError{Stage: "ocr", Err: errors.New("provider down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, "file", map[string]string{"scan.png": "data"}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr", body)
			req.Header.Set("Content-Type", ct)

			rec := do(newRouter(&fakePipeline{err: tt.err}, &fakeService{}), req)

			assert.Equal(t, tt.code, rec.Code)
			var resp handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestOCRBatch(t *testing.T) {
	p := &fakePipeline{}
	body, ct := multipartBody(t, "files", map[string]string{"a.png": "1", "b.png": "2"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr/batch", body)
	req.Header.Set("Content-Type", ct)

	rec := do(newRouter(p, &fakeService{}), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"a.png", "b.png"}, p.names)
	var resp models.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Documents, 2)
}

func TestProcessDocumentCreatesTask(t *testing.T) {
	body, ct := multipartBody(t, "file", map[string]string{"scan.pdf": "data"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/process", body)
	req.Header.Set("Content-Type", ct)

	rec := do(newRouter(&fakePipeline{}, &fakeService{}), req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp handlers.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, ".pdf", resp.FileType)
	assert.Equal(t, "2024-01-02T03:04:05Z", resp.CreatedAt)
}

func TestTaskEndpoints(t *testing.T) {
	svc := &fakeService{task: &models.ProcessingTask{ID: "task-1", Status: models.StatusRunning, Progress: 40}}
	r := newRouter(&fakePipeline{}, svc)

	rec := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/status/task-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"progress":40`)

	rec = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/result/task-1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/download/task-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PK-bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "receipt.xlsx")

	svc.statusErr = models.ErrTaskNotFound
	rec = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/status/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.cancelErr = models.ErrTaskFinished
	rec = do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/task/task-1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := do(newRouter(&fakePipeline{}, &fakeService{}), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
