package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
	"github.com/feichai0017/sheetscan/pkg/retry"
)

type scriptedGenerator struct {
	mu        sync.Mutex
	responses []func() (string, error)
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return next()
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func reply(s string) func() (string, error) { return func() (string, error) { return s, nil } }

func fail(err error) func() (string, error) { return func() (string, error) { return "", err } }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AnalysisDelay = 0
	cfg.EnrichmentDelay = 0
	cfg.Retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

var longText = strings.Repeat("Invoice 42 total amount due within thirty days. ", 5)

const goodSummary = `Title: Supplier Invoice
Key Points:
1. Invoice number 42
2. Payment due in 30 days
Recurring Words: invoice, total, amount, due, days
Context: A supplier invoice.`

func TestAnalyzeShortTextIsOffline(t *testing.T) {
	gen := &scriptedGenerator{}
	rec := &progress.Recorder{}
	p := NewPipeline(gen, testConfig(), logger.NewTestLogger())

	got := p.Analyze(context.Background(), "short", models.English, rec)

	assert.Equal(t, 0, gen.calls())
	assert.Equal(t, DefaultAnalysis("short", models.English), got)
	assert.Equal(t, "This document contains 1 lines of text that have been processed and converted to Excel format. The content has been structured to maintain the original formatting as closely as possible.", got.Context)
	assert.Equal(t, []int{80}, rec.Percents())
}

func TestAnalyzeSuccessWithEnrichment(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){
		reply(goodSummary),
		reply("  Invoices like this are common in B2B trade.  "),
	}}
	rec := &progress.Recorder{}
	p := NewPipeline(gen, testConfig(), logger.NewTestLogger())

	got := p.Analyze(context.Background(), longText, models.English, rec)

	assert.Equal(t, 2, gen.calls())
	assert.Equal(t, "Supplier Invoice", got.Title)
	assert.Equal(t, "Invoices like this are common in B2B trade.", got.Context)
	assert.Len(t, got.KeyPoints, 5)
	assert.Equal(t, []string{"invoice", "total", "amount", "due", "days"}, got.RecurringWords)
	assert.Equal(t, []progress.Update{
		{Percent: 80, Stage: progress.StageAnalysis},
		{Percent: 85, Stage: progress.StageEnrichment},
	}, rec.Updates())
	assert.Contains(t, gen.prompts[1], "Recurring Words: invoice, total, amount, due, days")
}

func TestAnalyzeEnrichmentFailureKeepsContext(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){
		reply(goodSummary),
		fail(errors.New("upstream unavailable")),
	}}
	log := logger.NewTestLogger()
	p := NewPipeline(gen, testConfig(), log)

	got := p.Analyze(context.Background(), longText, models.English, nil)

	assert.Equal(t, "A supplier invoice.", got.Context)
	assert.True(t, log.Has("WARN", "Context enrichment failed, keeping summary context"))
}

func TestAnalyzeEmptyEnrichmentKeepsContext(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){
		reply(goodSummary),
		reply("   "),
	}}
	p := NewPipeline(gen, testConfig(), nil)

	got := p.Analyze(context.Background(), longText, models.English, nil)

	assert.Equal(t, "A supplier invoice.", got.Context)
}

func TestAnalyzeUnparsedResponseFallsBack(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){
		reply("Sorry, I cannot help with that."),
		reply("Enriched."),
	}}
	p := NewPipeline(gen, testConfig(), nil)

	got := p.Analyze(context.Background(), longText, models.English, nil)

	want := DefaultAnalysis(longText, models.English)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.KeyPoints, got.KeyPoints)
	assert.Equal(t, "Enriched.", got.Context)
}

func TestAnalyzeRateLimitedEverywhere(t *testing.T) {
	limited := fail(errors.New("429 Too Many Requests"))
	gen := &scriptedGenerator{responses: []func() (string, error){
		limited, limited, limited,
		limited, limited, limited,
	}}
	p := NewPipeline(gen, testConfig(), nil)

	got := p.Analyze(context.Background(), longText, models.English, nil)

	assert.Equal(t, 2*retry.DefaultMaxRetries, gen.calls())
	assert.Equal(t, DefaultAnalysis(longText, models.English), got)
	assert.Len(t, got.KeyPoints, 5)
	assert.Len(t, got.RecurringWords, 5)
}

func TestAnalyzeWithoutGenerator(t *testing.T) {
	p := NewPipeline(nil, testConfig(), nil)

	got := p.Analyze(context.Background(), longText, models.Indonesian, nil)

	assert.Equal(t, DefaultAnalysis(longText, models.Indonesian), got)
}

func TestAnalyzeDisabledEnrichment(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){reply(goodSummary)}}
	cfg := testConfig()
	cfg.DisableEnrich = true
	p := NewPipeline(gen, cfg, nil)

	got := p.Analyze(context.Background(), longText, models.English, nil)

	require.Equal(t, 1, gen.calls())
	assert.Equal(t, "A supplier invoice.", got.Context)
}

func TestAnalyzeCancelledDuringDelay(t *testing.T) {
	gen := &scriptedGenerator{}
	cfg := testConfig()
	cfg.Retry.Sleep = nil
	cfg.AnalysisDelay = time.Hour
	p := NewPipeline(gen, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := p.Analyze(ctx, longText, models.English, nil)

	assert.Equal(t, 0, gen.calls())
	assert.Equal(t, DefaultAnalysis(longText, models.English), got)
}
