// Package analysis produces a structured summary of recognized text, falling back to
// an offline summary whenever the text model is unavailable or unhelpful.
package analysis

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
	"github.com/feichai0017/sheetscan/pkg/retry"
)

// Generator is a single-shot text model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Config struct {
	// MinTextLength is the rune count below which no model call is made.
	MinTextLength   int           `yaml:"minTextLength"`
	PromptLimit     int           `yaml:"promptLimit"`
	EnrichmentLimit int           `yaml:"enrichmentLimit"`
	AnalysisDelay   time.Duration `yaml:"analysisDelay"`
	EnrichmentDelay time.Duration `yaml:"enrichmentDelay"`
	DisableEnrich   bool          `yaml:"disableEnrichment"`
	Retry           retry.Policy  `yaml:"retry"`
}

func DefaultConfig() Config {
	return Config{
		MinTextLength:   100,
		PromptLimit:     4000,
		EnrichmentLimit: 2000,
		AnalysisDelay:   2 * time.Second,
		EnrichmentDelay: 2 * time.Second,
		Retry:           retry.DefaultPolicy(),
	}
}

// Pipeline runs the summary and enrichment calls. A nil generator makes it fully offline.
type Pipeline struct {
	gen    Generator
	cfg    Config
	logger logger.Logger
}

func NewPipeline(gen Generator, cfg Config, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = 100
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = log
	}
	return &Pipeline{gen: gen, cfg: cfg, logger: log.Named("analysis")}
}

// Analyze never fails: every provider or parse problem degrades to DefaultAnalysis, and
// a failed enrichment keeps the summary's own context.
func (p *Pipeline) Analyze(ctx context.Context, rawText string, lang models.Language, sink progress.Sink) models.AnalysisResult {
	sink = progress.OrNop(sink)

	if p.gen == nil || utf8.RuneCountInString(rawText) < p.cfg.MinTextLength {
		sink.Report(80, progress.StageAnalysis)
		return DefaultAnalysis(rawText, lang)
	}

	if err := p.sleep(ctx, p.cfg.AnalysisDelay); err != nil {
		return DefaultAnalysis(rawText, lang)
	}
	sink.Report(80, progress.StageAnalysis)
	result := p.summarize(ctx, rawText, lang)

	if p.cfg.DisableEnrich {
		return result
	}
	if err := p.sleep(ctx, p.cfg.EnrichmentDelay); err != nil {
		return result
	}
	sink.Report(85, progress.StageEnrichment)
	if enriched, ok := p.enrich(ctx, rawText, result.RecurringWords, lang); ok {
		result.Context = enriched
	}
	return result
}

func (p *Pipeline) summarize(ctx context.Context, rawText string, lang models.Language) models.AnalysisResult {
	prompt := SummaryPrompt(rawText, lang, p.cfg.PromptLimit)

	resp, err := retry.Call(ctx, p.cfg.Retry, func(ctx context.Context) (string, error) {
		return p.gen.Generate(ctx, prompt)
	})
	if err != nil {
		p.logger.Warn("Summary call failed, using offline analysis", logger.Error(err))
		return DefaultAnalysis(rawText, lang)
	}

	result, ok := ParseResponse(resp, lang)
	if !ok {
		p.logger.Warn("Summary response not parsed, using offline analysis",
			logger.Int("responseLength", len(resp)),
		)
		return DefaultAnalysis(rawText, lang)
	}
	return result
}

func (p *Pipeline) enrich(ctx context.Context, rawText string, recurring []string, lang models.Language) (string, bool) {
	prompt := EnrichmentPrompt(rawText, recurring, lang, p.cfg.EnrichmentLimit)

	resp, err := retry.Call(ctx, p.cfg.Retry, func(ctx context.Context) (string, error) {
		return p.gen.Generate(ctx, prompt)
	})
	if err != nil {
		p.logger.Warn("Context enrichment failed, keeping summary context", logger.Error(err))
		return "", false
	}

	resp = strings.TrimSpace(resp)
	if resp == "" {
		p.logger.Warn("Context enrichment returned no text")
		return "", false
	}
	return resp, true
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) error {
	sleep := p.cfg.Retry.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	return sleep(ctx, d)
}
