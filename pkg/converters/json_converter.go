package converters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feichai0017/sheetscan/internal/models"
)

// ProcessedResult 存储在对象存储中的任务结果
type ProcessedResult struct {
	TaskID      string                `json:"taskId"`
	Status      string                `json:"status"`
	Rows        models.TableData      `json:"rows"`
	Analysis    models.AnalysisResult `json:"analysis"`
	Text        string                `json:"text,omitempty"`
	Metadata    DocumentMetadata      `json:"metadata"`
	ProcessedAt time.Time             `json:"processedAt"`
}

// DocumentMetadata 定义文档元数据
type DocumentMetadata struct {
	FileName      string `json:"fileName"`
	FileType      string `json:"fileType"`
	FileSize      int64  `json:"fileSize"`
	RowCount      int    `json:"rowCount"`
	ColumnCount   int    `json:"columnCount"`
	TableDetected bool   `json:"tableDetected"`
	Language      string `json:"language,omitempty"`
	ProcessingMs  int64  `json:"processingMs"`
}

// JSONConverter 将处理结果转换为存储格式
type JSONConverter struct {
	// IncludeText keeps the raw OCR text in the stored result.
	IncludeText bool
}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{IncludeText: true}
}

func (c *JSONConverter) Convert(taskID string, doc *models.ProcessedDocument, fileSize int64, elapsed time.Duration) (*ProcessedResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("no document to convert")
	}

	result := &ProcessedResult{
		TaskID:      taskID,
		Status:      string(models.StatusCompleted),
		Rows:        doc.Rows,
		Analysis:    doc.Analysis,
		ProcessedAt: time.Now(),
		Metadata: DocumentMetadata{
			FileName:      doc.FileName,
			FileType:      doc.MimeType,
			FileSize:      fileSize,
			RowCount:      len(doc.Rows),
			ColumnCount:   doc.Rows.Columns(),
			TableDetected: doc.HasTable,
			Language:      string(doc.Language),
			ProcessingMs:  elapsed.Milliseconds(),
		},
	}
	if c.IncludeText {
		result.Text = doc.RawText
	}
	return result, nil
}

// Marshal 转换并序列化为 JSON
func (c *JSONConverter) Marshal(taskID string, doc *models.ProcessedDocument, fileSize int64, elapsed time.Duration) ([]byte, error) {
	result, err := c.Convert(taskID, doc, fileSize, elapsed)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}
