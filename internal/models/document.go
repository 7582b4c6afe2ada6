package models

import (
	"fmt"
	"strings"
	"time"
)

// Language 识别与分析使用的语言
type Language string

const (
	English    Language = "en"
	Indonesian Language = "id"
)

// ParseLanguage accepts the short codes, Tesseract codes and English names.
// An empty value selects English.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "en", "eng", "english":
		return English, nil
	case "id", "ind", "indonesian", "bahasa":
		return Indonesian, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
	}
}

// TesseractCode returns the traineddata name for the language.
func (l Language) TesseractCode() string {
	if l == Indonesian {
		return "ind"
	}
	return "eng"
}

// DisplayName is used in model prompts.
func (l Language) DisplayName() string {
	if l == Indonesian {
		return "Indonesian"
	}
	return "English"
}

// TableRow 表格中的一行, 单元格已去除首尾空白且非空
type TableRow []string

// TableData 按原文行顺序排列的表格
type TableData []TableRow

// Columns returns the width of the widest row.
func (t TableData) Columns() int {
	n := 0
	for _, row := range t {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// AnalysisResult 文档摘要
// KeyPoints 和 RecurringWords 始终恰好 5 项
type AnalysisResult struct {
	Title          string   `json:"title"`
	KeyPoints      []string `json:"keyPoints"`
	RecurringWords []string `json:"recurringWords"`
	Context        string   `json:"context"`
}

// ProcessedDocument 单个文档的处理结果
type ProcessedDocument struct {
	Rows              TableData      `json:"rows"`
	FileName          string         `json:"fileName"`
	Analysis          AnalysisResult `json:"analysis"`
	SpreadsheetBuffer []byte         `json:"spreadsheetBuffer"`

	MimeType string   `json:"mimeType,omitempty"`
	Language Language `json:"language,omitempty"`
	HasTable bool     `json:"hasTable"`
	RawText  string   `json:"-"`
}

// FileFailure 批处理中单个文件的失败
type FileFailure struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// BatchResult 批处理结果, 所有成功文件共用一个工作簿
type BatchResult struct {
	Documents         []*ProcessedDocument `json:"results"`
	Failures          []FileFailure        `json:"failures"`
	SpreadsheetBuffer []byte               `json:"spreadsheetBuffer"`
}

type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  int               `json:"progress"`
	Stage     string            `json:"stage,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
