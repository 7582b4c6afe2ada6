// Package textract recognizes documents with AWS Textract, rendering detected tables
// as pipe-delimited rows so table inference can pick them up.
package textract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"

	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/retry"
)

// API is the subset of the Textract client used here.
type API interface {
	AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type Config struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
	EnableTable   bool
}

type Processor struct {
	client API
	logger logger.Logger
	config *Config
}

func NewProcessor(ctx context.Context, cfg *Config, log logger.Logger) (*Processor, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	// load aws config
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return NewWithClient(textract.NewFromConfig(awsCfg), cfg, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, cfg *Config, log logger.Logger) *Processor {
	return &Processor{
		client: client,
		logger: log.Named("textract"),
		config: cfg,
	}
}

func (p *Processor) CanProcess(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/png", "image/tiff", "application/pdf":
		return true
	default:
		return false
	}
}

func (p *Processor) Recognize(ctx context.Context, in document.Input) (string, error) {
	doc := &types.Document{Bytes: in.Data}

	var blocks []types.Block
	if p.config.EnableTable {
		out, err := p.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
			Document:     doc,
			FeatureTypes: []types.FeatureType{types.FeatureTypeTables},
		})
		if err != nil {
			return "", classify(fmt.Errorf("failed to analyze document: %w", err))
		}
		blocks = out.Blocks
	} else {
		out, err := p.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{Document: doc})
		if err != nil {
			return "", classify(fmt.Errorf("failed to detect document text: %w", err))
		}
		blocks = out.Blocks
	}

	text := Render(blocks, p.config.MinConfidence)
	p.logger.Debug("Textract analysis finished",
		logger.Int("blocks", len(blocks)),
		logger.Int("textLength", len(text)),
	)
	return text, nil
}

func (p *Processor) Close() error {
	// textract client doesn't need special cleanup
	return nil
}

var throttlingCodes = map[string]bool{
	"ThrottlingException":                    true,
	"ProvisionedThroughputExceededException": true,
	"LimitExceededException":                 true,
}

// classify marks Textract throttling responses for the retry layer.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && throttlingCodes[apiErr.ErrorCode()] {
		return retry.MarkRateLimited(err)
	}
	return err
}

type table struct {
	page int32
	top  float32
	rows [][]string
}

// Render turns Textract blocks into text. Lines made only of table words are replaced
// by the table itself, one "| a | b |" row per table row, placed where the table starts.
func Render(blocks []types.Block, minConfidence float32) string {
	byID := make(map[string]types.Block, len(blocks))
	for _, b := range blocks {
		if b.Id != nil {
			byID[*b.Id] = b
		}
	}

	tableWords := make(map[string]bool)
	var tables []table
	for _, b := range blocks {
		if b.BlockType == types.BlockTypeTable {
			tables = append(tables, buildTable(b, byID, tableWords))
		}
	}

	var out []string
	next := 0
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeLine || b.Text == nil {
			continue
		}
		if b.Confidence != nil && *b.Confidence < minConfidence {
			continue
		}
		page, top := position(b)
		for next < len(tables) && before(tables[next].page, tables[next].top, page, top) {
			out = append(out, renderTable(tables[next])...)
			next++
		}
		if onlyTableWords(b, tableWords) {
			continue
		}
		out = append(out, *b.Text)
	}
	for ; next < len(tables); next++ {
		out = append(out, renderTable(tables[next])...)
	}
	return strings.Join(out, "\n")
}

func buildTable(b types.Block, byID map[string]types.Block, tableWords map[string]bool) table {
	page, top := position(b)
	t := table{page: page, top: top}

	for _, cellID := range childIDs(b) {
		cell, ok := byID[cellID]
		if !ok || cell.BlockType != types.BlockTypeCell || cell.RowIndex == nil || cell.ColumnIndex == nil {
			continue
		}
		row, col := int(*cell.RowIndex)-1, int(*cell.ColumnIndex)-1
		if row < 0 || col < 0 {
			continue
		}
		for len(t.rows) <= row {
			t.rows = append(t.rows, nil)
		}
		for len(t.rows[row]) <= col {
			t.rows[row] = append(t.rows[row], "")
		}

		var words []string
		for _, wordID := range childIDs(cell) {
			if w, ok := byID[wordID]; ok && w.BlockType == types.BlockTypeWord && w.Text != nil {
				words = append(words, *w.Text)
				tableWords[wordID] = true
			}
		}
		t.rows[row][col] = strings.Join(words, " ")
	}
	return t
}

func renderTable(t table) []string {
	lines := make([]string, 0, len(t.rows))
	for _, row := range t.rows {
		if len(row) == 0 {
			continue
		}
		lines = append(lines, "| "+strings.Join(row, " | ")+" |")
	}
	return lines
}

func onlyTableWords(line types.Block, tableWords map[string]bool) bool {
	ids := childIDs(line)
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !tableWords[id] {
			return false
		}
	}
	return true
}

func childIDs(b types.Block) []string {
	var ids []string
	for _, rel := range b.Relationships {
		if rel.Type == types.RelationshipTypeChild {
			ids = append(ids, rel.Ids...)
		}
	}
	return ids
}

func position(b types.Block) (int32, float32) {
	page := aws.ToInt32(b.Page)
	if b.Geometry == nil || b.Geometry.BoundingBox == nil {
		return page, 0
	}
	return page, b.Geometry.BoundingBox.Top
}

func before(page1 int32, top1 float32, page2 int32, top2 float32) bool {
	if page1 != page2 {
		return page1 < page2
	}
	return top1 <= top2
}
