// internal/utils/validator/document.go
package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

// DefaultAllowedTypes 允许上传的 MIME 类型
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/tiff",
	"application/pdf",
}

const DefaultMaxFileSize = 10 << 20

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64    // 最大文件大小（字节）
	AllowedTypes []string // 按内容嗅探得到的 MIME 类型
	MaxPageCount int      // PDF最大页数, 0 表示不检查
}

// Error 验证错误, 包装 models 中的输入错误
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
	Pages     int    `json:"pages,omitempty"`
}

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{}
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if len(config.AllowedTypes) == 0 {
		config.AllowedTypes = DefaultAllowedTypes
	}
	return &DocumentValidator{
		logger: log,
		config: config,
	}
}

// CheckSize rejects oversized uploads before their content is read.
func (v *DocumentValidator) CheckSize(size int64) error {
	if size > v.config.MaxFileSize {
		return &Error{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
			Err:     models.ErrFileTooLarge,
		}
	}
	return nil
}

// Validate 校验文件内容: 非空, 大小, 按内容嗅探的类型
func (v *DocumentValidator) Validate(filename string, data []byte) (*FileInfo, error) {
	if len(data) == 0 {
		return nil, &Error{Code: "EMPTY_FILE", Message: "No file uploaded", Field: "file", Err: models.ErrNoFile}
	}
	if err := v.CheckSize(int64(len(data))); err != nil {
		return nil, err
	}

	detected := mimetype.Detect(data)
	mimeType, ok := v.allowed(detected)
	if !ok {
		v.logger.Warn("Rejected file type",
			logger.String("filename", filename),
			logger.String("mimeType", detected.String()),
		)
		return nil, &Error{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("Invalid file type %s. Please upload an image or PDF file.", detected.String()),
			Field:   "file",
			Err:     models.ErrUnsupportedType,
		}
	}

	hash := sha256.Sum256(data)
	info := &FileInfo{
		Filename:  filename,
		Size:      int64(len(data)),
		MimeType:  mimeType,
		Extension: strings.ToLower(filepath.Ext(filename)),
		Hash:      hex.EncodeToString(hash[:]),
	}

	if mimeType == "application/pdf" && v.config.MaxPageCount > 0 {
		pages, err := v.validatePDF(data)
		if err != nil {
			return nil, err
		}
		info.Pages = pages
	}
	return info, nil
}

// validatePDF 解析 PDF 结构并检查页数
func (v *DocumentValidator) validatePDF(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, &Error{
			Code:    "INVALID_PDF",
			Message: "The PDF file could not be read",
			Field:   "file",
			Err:     fmt.Errorf("%w: %v", models.ErrUnsupportedType, err),
		}
	}
	if ctx.PageCount > v.config.MaxPageCount {
		return 0, &Error{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("PDF has %d pages, the limit is %d", ctx.PageCount, v.config.MaxPageCount),
			Field:   "file",
			Err:     models.ErrFileTooLarge,
		}
	}
	return ctx.PageCount, nil
}

// allowed 匹配允许列表, 兼容别名 (如 image/jpg)
func (v *DocumentValidator) allowed(m *mimetype.MIME) (string, bool) {
	for _, t := range v.config.AllowedTypes {
		if m.Is(t) {
			return t, true
		}
	}
	return "", false
}
