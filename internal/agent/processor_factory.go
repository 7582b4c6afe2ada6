package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	cfg "github.com/feichai0017/sheetscan/config"
	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/internal/agent/document/image"
	"github.com/feichai0017/sheetscan/internal/agent/document/pdf"
	"github.com/feichai0017/sheetscan/internal/agent/document/textract"
	"github.com/feichai0017/sheetscan/internal/agent/llm/ollama"
	"github.com/feichai0017/sheetscan/internal/agent/llm/openai"
	"github.com/feichai0017/sheetscan/internal/analysis"
	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

// 识别器注册的 MIME 类型
var mimeTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/tiff",
	"application/pdf",
}

// ProcessorFactory 按 MIME 类型选择识别器
type ProcessorFactory struct {
	mu         sync.RWMutex
	processors map[string]document.Processor
	owned      []document.Processor
	logger     logger.Logger
}

// NewEmptyFactory 返回没有注册任何识别器的工厂
func NewEmptyFactory(log logger.Logger) *ProcessorFactory {
	return &ProcessorFactory{
		processors: make(map[string]document.Processor),
		logger:     log.Named("processor-factory"),
	}
}

// NewProcessorFactory 根据 OCR_PROVIDER 创建图像识别器
// PDF 先读取文本层, 识别器支持 PDF 时作为扫描件的备用
func NewProcessorFactory(ctx context.Context, ai *cfg.AIConfig, pipeline cfg.PipelineConfig, log logger.Logger) (*ProcessorFactory, error) {
	factory := NewEmptyFactory(log)

	ocr, err := newRecognizer(ctx, ai, pipeline, log)
	if err != nil {
		return nil, err
	}

	// 初始化 PDF 处理器
	var pdfProcessor document.Processor = pdf.NewProcessor(log, pipeline.PDF)
	if ocr.CanProcess("application/pdf") {
		pdfProcessor = &document.Fallback{Primary: pdfProcessor, Secondary: ocr, Logger: log.Named("pdf-fallback")}
	}

	for _, mimeType := range mimeTypes {
		switch {
		case mimeType == "application/pdf":
			factory.Register(mimeType, pdfProcessor)
		case ocr.CanProcess(mimeType):
			factory.Register(mimeType, ocr)
		}
	}
	factory.owned = []document.Processor{pdfProcessor}
	if _, wrapped := pdfProcessor.(*document.Fallback); !wrapped {
		factory.owned = append(factory.owned, ocr)
	}

	factory.logger.Info("Processor factory initialized",
		logger.String("ocrProvider", ai.OCRProvider),
		logger.String("mimeTypes", strings.Join(factory.MimeTypes(), ",")),
	)
	return factory, nil
}

func newRecognizer(ctx context.Context, ai *cfg.AIConfig, pipeline cfg.PipelineConfig, log logger.Logger) (document.Processor, error) {
	switch ai.OCRProvider {
	case cfg.ProviderTesseract, "":
		opts := image.DefaultOptions()
		opts.Preprocess = pipeline.Preprocess
		return image.NewProcessor(log, opts)

	case cfg.ProviderTextract:
		tc := cfg.GetTextractConfig()
		p, err := textract.NewProcessor(ctx, &textract.Config{
			Region:        tc.Region,
			AccessKey:     tc.AccessKey,
			SecretKey:     tc.SecretKey,
			MinConfidence: float32(tc.MinConfidence),
			EnableTable:   tc.EnableTable,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract processor: %w", err)
		}
		return p, nil

	case cfg.ProviderOpenAI:
		c, err := openai.NewClient(openAIConfig(ai), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai recognizer: %w", err)
		}
		return c, nil

	case cfg.ProviderOllama:
		return ollama.NewClient(ollamaConfig(ai), log), nil

	default:
		return nil, fmt.Errorf("unknown OCR provider %q", ai.OCRProvider)
	}
}

// NewGenerator 根据 TEXT_PROVIDER 创建文本生成器, none 时返回 nil, 分析走离线规则
func NewGenerator(ai *cfg.AIConfig, log logger.Logger) (analysis.Generator, error) {
	switch ai.TextProvider {
	case cfg.ProviderNone, "":
		return nil, nil
	case cfg.ProviderOpenAI:
		c, err := openai.NewClient(openAIConfig(ai), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai generator: %w", err)
		}
		return c, nil
	case cfg.ProviderOllama:
		return ollama.NewClient(ollamaConfig(ai), log), nil
	default:
		return nil, fmt.Errorf("unknown text provider %q", ai.TextProvider)
	}
}

func openAIConfig(ai *cfg.AIConfig) openai.Config {
	c := openai.DefaultConfig()
	c.APIKey = ai.OpenAIAPIKey
	c.BaseURL = ai.OpenAIBaseURL
	if ai.OpenAIVisionModel != "" {
		c.VisionModel = ai.OpenAIVisionModel
	}
	if ai.OpenAITextModel != "" {
		c.TextModel = ai.OpenAITextModel
	}
	return c
}

func ollamaConfig(ai *cfg.AIConfig) ollama.Config {
	c := ollama.DefaultConfig()
	if ai.OllamaEndpoint != "" {
		c.Endpoint = ai.OllamaEndpoint
	}
	if ai.OllamaVisionModel != "" {
		c.VisionModel = ai.OllamaVisionModel
	}
	if ai.OllamaTextModel != "" {
		c.TextModel = ai.OllamaTextModel
	}
	return c
}

// Register 覆盖指定 MIME 类型的识别器
func (f *ProcessorFactory) Register(mimeType string, p document.Processor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processors[strings.ToLower(mimeType)] = p
}

func (f *ProcessorFactory) GetProcessor(mimeType string) (document.Processor, error) {
	f.mu.RLock()
	processor, ok := f.processors[strings.ToLower(mimeType)]
	f.mu.RUnlock()
	if !ok {
		f.logger.Warn("No processor found", logger.String("mimeType", mimeType))
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedType, mimeType)
	}
	return processor, nil
}

// MimeTypes lists the registered types in sorted order.
func (f *ProcessorFactory) MimeTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.processors))
	for k := range f.processors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (f *ProcessorFactory) Close() error {
	var errs []error
	for _, p := range f.owned {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
