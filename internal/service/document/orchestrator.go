package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/internal/analysis"
	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/internal/spreadsheet"
	"github.com/feichai0017/sheetscan/internal/table"
	"github.com/feichai0017/sheetscan/internal/utils/validator"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
	"github.com/feichai0017/sheetscan/pkg/retry"
	"github.com/feichai0017/sheetscan/pkg/source"
)

// ProcessorSelector picks the OCR processor for a sniffed MIME type.
type ProcessorSelector interface {
	GetProcessor(mimeType string) (document.Processor, error)
}

// WorkbookWriter renders sheets into an XLSX workbook.
type WorkbookWriter interface {
	Write(sheets []spreadsheet.Sheet) ([]byte, error)
}

// OrchestratorConfig 单文档处理流程配置
type OrchestratorConfig struct {
	// InitialDelay is the pause between preparing and the OCR call.
	InitialDelay time.Duration
	OCRRetry     retry.Policy
	Table        table.Config
	Validator    validator.ValidatorConfig
	// Writer defaults to spreadsheet.NewWriter().
	Writer WorkbookWriter
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		InitialDelay: time.Second,
		OCRRetry:     retry.DefaultPolicy(),
		Table:        table.DefaultConfig(),
	}
}

// Orchestrator runs one document through OCR, table inference, analysis and
// workbook generation. It holds no per-document state, so one instance can serve
// concurrent requests.
type Orchestrator struct {
	processors ProcessorSelector
	validator  *validator.DocumentValidator
	inferer    *table.Inferer
	analyzer   *analysis.Pipeline
	writer     WorkbookWriter
	logger     logger.Logger
	config     OrchestratorConfig
	now        func() time.Time
}

func NewOrchestrator(processors ProcessorSelector, analyzer *analysis.Pipeline, log logger.Logger, cfg OrchestratorConfig) *Orchestrator {
	log = log.Named("orchestrator")
	if cfg.OCRRetry.Logger == nil {
		cfg.OCRRetry.Logger = log
	}
	if analyzer == nil {
		analyzer = analysis.NewPipeline(nil, analysis.DefaultConfig(), log)
	}
	if cfg.Writer == nil {
		cfg.Writer = spreadsheet.NewWriter()
	}
	validatorCfg := cfg.Validator
	return &Orchestrator{
		processors: processors,
		validator:  validator.NewDocumentValidator(log, &validatorCfg),
		inferer:    table.NewInferer(cfg.Table),
		analyzer:   analyzer,
		writer:     cfg.Writer,
		logger:     log,
		config:     cfg,
		now:        time.Now,
	}
}

// Process 处理单个文档. 输入错误与 OCR 失败返回错误, 分析和表格生成失败降级处理
func (o *Orchestrator) Process(ctx context.Context, src source.Source, lang models.Language, sink progress.Sink) (*models.ProcessedDocument, error) {
	if src == nil {
		return nil, models.ErrNoFile
	}
	sink = progress.OrNop(sink)
	name := src.Name()
	log := logger.NewContextLogger(o.logger).FromContext(ctx).With(logger.String("file", name))

	if sized, ok := src.(source.Sized); ok {
		if err := o.validator.CheckSize(sized.Size()); err != nil {
			return nil, err
		}
	}
	data, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	info, err := o.validator.Validate(name, data)
	if err != nil {
		return nil, err
	}
	processor, err := o.processors.GetProcessor(info.MimeType)
	if err != nil {
		return nil, err
	}

	sink.Report(20, progress.StagePreparing)
	if err := o.sleep(ctx, o.config.InitialDelay); err != nil {
		return nil, err
	}

	sink.Report(40, progress.StageRecognizing)
	start := o.now()
	text, err := retry.Call(ctx, o.config.OCRRetry, func(ctx context.Context) (string, error) {
		return processor.Recognize(ctx, document.Input{Data: data, MimeType: info.MimeType, Language: lang})
	})
	if err != nil {
		log.Error("OCR failed", logger.String("mimeType", info.MimeType), logger.Error(err))
		return nil, &models.StageError{Stage: "ocr", File: name, Err: err}
	}
	log.Info("OCR finished",
		logger.String("mimeType", info.MimeType),
		logger.Int("textLength", len(text)),
		logger.Duration("elapsed", o.now().Sub(start)),
	)
	sink.Report(70, progress.StageRecognized)

	rows := o.inferer.Infer(text)
	hasTable := len(rows) > 0
	result := o.analyzer.Analyze(ctx, text, lang, sink)

	sink.Report(90, progress.StageSpreadsheet)
	if !hasTable {
		rows = table.LineRows(text)
	}
	// Rows are returned and written identically.
	rows = spreadsheet.CleanRows(rows)

	fileName := name
	if strings.TrimSpace(fileName) == "" {
		fileName = "OCR_Result_" + o.now().Format("2006-01-02")
	}

	sheet := spreadsheet.Sheet{Name: spreadsheet.NewSheetNamer().Next(fileName, 0), Rows: rows}
	buf, err := o.writer.Write([]spreadsheet.Sheet{sheet})
	if err != nil {
		log.Error("Spreadsheet generation failed", logger.Error(err))
		buf = nil
	}

	sink.Report(100, progress.StageDone)
	return &models.ProcessedDocument{
		Rows:              rows,
		FileName:          fileName,
		Analysis:          result,
		SpreadsheetBuffer: buf,
		MimeType:          info.MimeType,
		Language:          lang,
		HasTable:          hasTable,
		RawText:           text,
	}, nil
}

// ProcessBatch 顺序处理多个文件, 单个文件失败不影响其他文件
func (o *Orchestrator) ProcessBatch(ctx context.Context, srcs []source.Source, lang models.Language, sink progress.Sink) (*models.BatchResult, error) {
	if len(srcs) == 0 {
		return nil, models.ErrNoFile
	}
	sink = progress.OrNop(sink)
	sink.Report(5, progress.StagePreparing)

	result := &models.BatchResult{}
	for i, src := range srcs {
		sink.Report(10+80*i/len(srcs), progress.StageFile)

		doc, err := o.Process(ctx, src, lang, nil)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			name := ""
			if src != nil {
				name = src.Name()
			}
			o.logger.Warn("File failed, continuing with the rest of the batch",
				logger.String("file", name),
				logger.Error(err),
			)
			result.Failures = append(result.Failures, models.FileFailure{FileName: name, Error: err.Error()})
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	if len(result.Documents) == 0 {
		errs := make([]error, 0, len(result.Failures)+1)
		errs = append(errs, models.ErrNoDocuments)
		for _, f := range result.Failures {
			errs = append(errs, fmt.Errorf("%s: %s", f.FileName, f.Error))
		}
		return nil, errors.Join(errs...)
	}

	sink.Report(90, progress.StageSpreadsheet)
	files := make([]spreadsheet.FileRows, 0, len(result.Documents))
	for _, doc := range result.Documents {
		files = append(files, spreadsheet.FileRows{FileName: doc.FileName, Rows: doc.Rows})
	}
	buf, err := o.writer.Write(spreadsheet.BatchSheets(files))
	if err != nil {
		o.logger.Error("Batch spreadsheet generation failed", logger.Error(err))
	} else {
		result.SpreadsheetBuffer = buf
	}

	sink.Report(100, progress.StageDone)
	return result, nil
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.config.OCRRetry.Sleep != nil {
		return o.config.OCRRetry.Sleep(ctx, d)
	}
	return retry.Sleep(ctx, d)
}
