// Package table guesses row and column structure from recognized text.
package table

import (
	"regexp"
	"strings"

	"github.com/feichai0017/sheetscan/internal/models"
)

// Config tunes the delimiter heuristic. The defaults decide how real documents are
// classified, so change them with care.
type Config struct {
	// Delimiters in tie-break order: on equal counts the earlier one wins.
	Delimiters []string `yaml:"delimiters"`
	// MinDelimiterCount is how many occurrences of the winning delimiter make a line a row.
	MinDelimiterCount int `yaml:"minDelimiterCount"`
	// MinStructuredRows is how many structured lines are needed before any table is returned.
	MinStructuredRows int `yaml:"minStructuredRows"`
}

// DefaultConfig returns comma, tab, pipe, semicolon with thresholds of 2.
func DefaultConfig() Config {
	return Config{
		Delimiters:        []string{",", "\t", "|", ";"},
		MinDelimiterCount: 2,
		MinStructuredRows: 2,
	}
}

// whitespaceRun also matches Unicode spaces such as U+00A0, which OCR engines and PDF
// text layers use for alignment. Go's \s alone is ASCII only.
var whitespaceRun = regexp.MustCompile(`[\s\p{Zs}\v\x{2028}\x{2029}\x{FEFF}]{2,}`)

// Inferer turns raw text into table rows. It is stateless and safe for concurrent use.
type Inferer struct {
	cfg Config
}

// NewInferer fills zero fields of cfg with defaults.
func NewInferer(cfg Config) *Inferer {
	def := DefaultConfig()
	if len(cfg.Delimiters) == 0 {
		cfg.Delimiters = def.Delimiters
	}
	if cfg.MinDelimiterCount <= 0 {
		cfg.MinDelimiterCount = def.MinDelimiterCount
	}
	if cfg.MinStructuredRows <= 0 {
		cfg.MinStructuredRows = def.MinStructuredRows
	}
	return &Inferer{cfg: cfg}
}

// Infer returns the structured lines of rawText, or an empty table when fewer than
// MinStructuredRows lines look tabular. Quoted CSV fields are not honored.
func (i *Inferer) Infer(rawText string) models.TableData {
	rows := models.TableData{}
	structured := 0

	for _, line := range strings.Split(rawText, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if row, ok := i.splitLine(line); ok {
			rows = append(rows, row)
			structured++
		}
	}

	if structured < i.cfg.MinStructuredRows {
		return models.TableData{}
	}
	return rows
}

func (i *Inferer) splitLine(line string) (models.TableRow, bool) {
	delim, count := i.bestDelimiter(line)
	if count >= i.cfg.MinDelimiterCount {
		row := cells(strings.Split(line, delim))
		return row, len(row) > 0
	}

	if whitespaceRun.MatchString(line) {
		row := cells(whitespaceRun.Split(line, -1))
		return row, len(row) > 1
	}
	return nil, false
}

// bestDelimiter picks the delimiter with the strictly highest count, first wins ties.
func (i *Inferer) bestDelimiter(line string) (string, int) {
	best, max := "", 0
	for _, d := range i.cfg.Delimiters {
		if n := strings.Count(line, d); n > max {
			best, max = d, n
		}
	}
	return best, max
}

func cells(parts []string) models.TableRow {
	row := make(models.TableRow, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			row = append(row, p)
		}
	}
	return row
}

// LineRows is the fallback layout: one single-cell row per non-empty line.
func LineRows(rawText string) models.TableData {
	rows := models.TableData{}
	for _, line := range strings.Split(rawText, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, models.TableRow{line})
		}
	}
	return rows
}
