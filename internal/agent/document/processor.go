package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

// ErrNoText 识别成功但没有得到任何文本
var ErrNoText = errors.New("no text recognized")

// Input 一次识别请求
type Input struct {
	Data     []byte
	MimeType string
	Language models.Language
}

// Processor 文档识别器接口
type Processor interface {
	// CanProcess 检查是否可以处理指定MIME类型的文件
	CanProcess(mimeType string) bool

	// Recognize 识别文档并返回原始文本, 行之间以 \n 分隔
	Recognize(ctx context.Context, in Input) (string, error)

	// Close 清理资源
	Close() error
}

// Fallback 主识别器失败或没有文本时使用备用识别器
// 典型场景: 扫描版 PDF 没有文本层
type Fallback struct {
	Primary   Processor
	Secondary Processor
	Logger    logger.Logger
}

func (f *Fallback) CanProcess(mimeType string) bool {
	return f.Primary.CanProcess(mimeType) || f.Secondary.CanProcess(mimeType)
}

func (f *Fallback) Recognize(ctx context.Context, in Input) (string, error) {
	var primaryErr error
	if f.Primary.CanProcess(in.MimeType) {
		text, err := f.Primary.Recognize(ctx, in)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		primaryErr = err
		if f.Logger != nil {
			f.Logger.Info("Primary recognizer produced no text, trying fallback",
				logger.String("mimeType", in.MimeType),
				logger.Any("error", err),
			)
		}
	}
	if !f.Secondary.CanProcess(in.MimeType) {
		if primaryErr != nil {
			return "", primaryErr
		}
		return "", fmt.Errorf("%w for %s", ErrNoText, in.MimeType)
	}
	return f.Secondary.Recognize(ctx, in)
}

func (f *Fallback) Close() error {
	return errors.Join(f.Primary.Close(), f.Secondary.Close())
}
