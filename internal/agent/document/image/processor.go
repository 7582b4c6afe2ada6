// Package image recognizes text in raster scans with a local Tesseract engine.
package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	_ "golang.org/x/image/tiff"

	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/internal/agent/document/image/preprocess"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

// ProcessOptions Tesseract 识别参数
type ProcessOptions struct {
	// Languages overrides the per-request language, e.g. {"eng", "ind"}.
	Languages     []string
	PageSegMode   gosseract.PageSegMode
	MinConfidence float64
	// PreserveSpaces keeps runs of spaces between words so column layouts survive.
	PreserveSpaces bool
	Preprocess     preprocess.Config
}

func DefaultOptions() *ProcessOptions {
	return &ProcessOptions{
		PageSegMode:    gosseract.PSM_AUTO,
		MinConfidence:  60,
		PreserveSpaces: true,
		Preprocess:     preprocess.DefaultConfig(),
	}
}

// Processor 本地 Tesseract 识别器
type Processor struct {
	logger   logger.Logger
	config   *ProcessOptions
	pipeline preprocess.Pipeline
}

// NewProcessor 创建新的处理器
func NewProcessor(log logger.Logger, opts *ProcessOptions) (*Processor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Processor{
		logger:   log.Named("tesseract"),
		config:   opts,
		pipeline: preprocess.NewPipeline(opts.Preprocess),
	}, nil
}

func (p *Processor) CanProcess(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/png", "image/tiff", "image/gif":
		return true
	default:
		return false
	}
}

// Recognize 预处理图像后运行 Tesseract
func (p *Processor) Recognize(ctx context.Context, in document.Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, format, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	processed, err := p.pipeline.Process(img)
	if err != nil {
		return "", fmt.Errorf("failed to preprocess image: %w", err)
	}

	// 每个任务使用独立的 Tesseract 客户端, 客户端不是并发安全的
	client := gosseract.NewClient()
	defer client.Close()

	if err := p.configure(client, in); err != nil {
		return "", err
	}

	// PNG 无损, 不会在二值化后的笔画边缘引入噪点
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, processed); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to get text: %w", err)
	}

	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		confidence, kept := averageConfidence(boxes, p.config.MinConfidence)
		p.logger.Debug("Tesseract recognition finished",
			logger.String("format", format),
			logger.Int("words", len(boxes)),
			logger.Int("confidentWords", kept),
			logger.Float64("confidence", confidence),
		)
	}

	return strings.TrimRight(text, "\n"), nil
}

func (p *Processor) configure(client *gosseract.Client, in document.Input) error {
	langs := p.config.Languages
	if len(langs) == 0 {
		langs = []string{in.Language.TesseractCode()}
	}
	if err := client.SetLanguage(langs...); err != nil {
		return fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(p.config.PageSegMode); err != nil {
		return fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if p.config.PreserveSpaces {
		if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
			return fmt.Errorf("failed to set preserve_interword_spaces: %w", err)
		}
	}
	return nil
}

// averageConfidence 只统计置信度不低于 min 的词
func averageConfidence(boxes []gosseract.BoundingBox, min float64) (float64, int) {
	var total float64
	var kept int
	for _, box := range boxes {
		if box.Confidence >= min {
			total += box.Confidence
			kept++
		}
	}
	if kept == 0 {
		return 0, 0
	}
	return total / float64(kept), kept
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	return nil
}
