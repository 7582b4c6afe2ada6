package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/sheetscan/internal/models"
)

const (
	defaultTitle  = "Document Analysis"
	maxTitleRunes = 50
)

var defaultRecurringWords = []string{"document", "content", "data", "information", "text"}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// phrases holds the localized fixed strings of the offline summary.
type phrases struct {
	words        string
	paragraphs   string
	extracted    string
	converted    string
	completed    string
	context      string
	filler       string
	parseContext string
}

var localized = map[models.Language]phrases{
	models.English: {
		words:        "Document contains approximately %d words",
		paragraphs:   "Content is structured in %d paragraphs",
		extracted:    "Text has been successfully extracted and processed",
		converted:    "Document has been converted to Excel format",
		completed:    "Analysis completed with basic content extraction",
		context:      "This document contains %d lines of text that have been processed and converted to Excel format. The content has been structured to maintain the original formatting as closely as possible.",
		filler:       "Content successfully processed",
		parseContext: "The document was successfully processed and converted to Excel format.",
	},
	models.Indonesian: {
		words:        "Dokumen berisi sekitar %d kata",
		paragraphs:   "Konten disusun dalam %d paragraf",
		extracted:    "Teks telah berhasil diekstrak dan diproses",
		converted:    "Dokumen telah dikonversi ke format Excel",
		completed:    "Analisis selesai dengan ekstraksi konten dasar",
		context:      "Dokumen ini berisi %d baris teks yang telah diproses dan dikonversi ke format Excel. Konten telah disusun untuk mempertahankan format asli sedekat mungkin.",
		filler:       "Konten berhasil diproses",
		parseContext: "Dokumen berhasil diproses dan dikonversi ke format Excel.",
	},
}

func phrasesFor(lang models.Language) phrases {
	if p, ok := localized[lang]; ok {
		return p
	}
	return localized[models.English]
}

// DefaultAnalysis summarizes text without any provider call. The result depends only
// on its inputs.
func DefaultAnalysis(text string, lang models.Language) models.AnalysisResult {
	p := phrasesFor(lang)

	words := len(strings.Fields(text))
	paragraphs := len(paragraphBreak.Split(text, -1))
	lines := strings.Count(text, "\n") + 1

	return models.AnalysisResult{
		Title: fallbackTitle(text),
		KeyPoints: []string{
			fmt.Sprintf(p.words, words),
			fmt.Sprintf(p.paragraphs, paragraphs),
			p.extracted,
			p.converted,
			p.completed,
		},
		RecurringWords: append([]string(nil), defaultRecurringWords...),
		Context:        fmt.Sprintf(p.context, lines),
	}
}

func fallbackTitle(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(first) > maxTitleRunes {
		return string([]rune(first)[:maxTitleRunes-3]) + "..."
	}
	return first
}
