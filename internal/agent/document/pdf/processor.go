// Package pdf extracts the embedded text layer of digital PDFs.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

type Options struct {
	// Layout rebuilds each line from positioned glyphs so column gaps survive as
	// double spaces. Plain mode uses the reader's own text extraction.
	Layout     bool `yaml:"layout"`
	MaxWorkers int  `yaml:"maxWorkers"`
}

func DefaultOptions() Options {
	return Options{Layout: true, MaxWorkers: 4}
}

type Processor struct {
	logger logger.Logger
	opts   Options
}

func NewProcessor(log logger.Logger, opts Options) *Processor {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultOptions().MaxWorkers
	}
	return &Processor{
		logger: log.Named("pdf"),
		opts:   opts,
	}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == "application/pdf"
}

// Recognize 并行提取每一页的文本, 按页码顺序拼接
func (p *Processor) Recognize(ctx context.Context, in document.Input) (string, error) {
	reader := bytes.NewReader(in.Data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]string, numPages)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxWorkers)
	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			page := pdfReader.Page(pageNum)
			if page.V.IsNull() {
				return nil
			}
			text, err := p.pageText(page)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
			}
			pages[pageNum-1] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	nonEmpty := pages[:0]
	for _, text := range pages {
		if strings.TrimSpace(text) != "" {
			nonEmpty = append(nonEmpty, text)
		}
	}

	p.logger.Debug("PDF text extracted",
		logger.Int("pages", numPages),
		logger.Int("pagesWithText", len(nonEmpty)),
	)
	return strings.Join(nonEmpty, "\n"), nil
}

func (p *Processor) pageText(page pdf.Page) (string, error) {
	if p.opts.Layout {
		rows, err := page.GetTextByRow()
		if err == nil {
			lines := make([]string, 0, len(rows))
			for _, row := range rows {
				if line := JoinRow(row.Content); line != "" {
					lines = append(lines, line)
				}
			}
			return strings.Join(lines, "\n"), nil
		}
		p.logger.Debug("Layout extraction failed, using plain text", logger.Error(err))
	}
	return page.GetPlainText(nil)
}

// JoinRow 按 X 坐标拼接同一行的字形
// 间距超过半个字号插入一个空格, 超过 1.5 个字号插入两个空格作为列分隔
func JoinRow(texts []pdf.Text) string {
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var b strings.Builder
	end := 0.0
	for i, t := range sorted {
		if i > 0 {
			size := t.FontSize
			if size <= 0 {
				size = 10
			}
			gap := t.X - end
			switch {
			case gap > 1.5*size:
				b.WriteString("  ")
			case gap > 0.5*size:
				b.WriteString(" ")
			}
		}
		b.WriteString(t.S)
		end = t.X + t.W
	}
	return strings.TrimSpace(b.String())
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	return nil
}
