package analysis

import (
	"regexp"
	"strings"

	"github.com/feichai0017/sheetscan/internal/models"
)

const summarySize = 5

var (
	emphasis     = regexp.MustCompile(`\*\*|__`)
	headingHash  = regexp.MustCompile(`(?m)^[ \t]*#+[ \t]*`)
	titlePattern = regexp.MustCompile(`(?i)(?:title|judul):\s*(.+?)(?:\n|$)`)

	keyPointsSection = sectionPattern(`key points|main points|points|poin utama|poin kunci`)
	recurringSection = sectionPattern(`recurring words|recurring|words|kata berulang`)
	contextSection   = sectionPattern(`context|brief context|konteks`)

	listItem   = regexp.MustCompile(`(?m)^[ \t]*(?:\d+[.)]|[*•-])[ \t]*(.*?)[ \t]*$`)
	wordSplit  = regexp.MustCompile(`,|\n`)
	headerLine = regexp.MustCompile(`(?im)^[ \t]*(?:\d+[.)][ \t]*)?(?:top \d+ )?(?:title|judul|key points|main points|poin utama|poin kunci|recurring words|kata berulang|context|brief context|konteks)[ \t]*:`)
)

// sectionPattern captures the text after label up to a blank line, a line starting with
// a letter, or the end of the response.
func sectionPattern(labels string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + labels + `):([\s\S]*?)(?:\n\n|\n[A-Za-z]|$)`)
}

// ParseResponse extracts a summary from free-form model output. It reports false when
// the text is blank or carries none of the expected section labels.
func ParseResponse(text string, lang models.Language) (result models.AnalysisResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			result, ok = models.AnalysisResult{}, false
		}
	}()

	text = normalize(text)
	if strings.TrimSpace(text) == "" {
		return models.AnalysisResult{}, false
	}

	title := titlePattern.FindStringSubmatch(text)
	keyPoints := section(keyPointsSection, text)
	recurring := section(recurringSection, text)
	context := section(contextSection, text)

	if title == nil && keyPoints == nil && recurring == nil && context == nil {
		return models.AnalysisResult{}, false
	}

	p := phrasesFor(lang)
	result = models.AnalysisResult{
		Title:          defaultTitle,
		KeyPoints:      parseKeyPoints(keyPoints),
		RecurringWords: parseRecurringWords(recurring),
		Context:        p.parseContext,
	}
	if title != nil {
		if t := strings.TrimSpace(title[1]); t != "" {
			result.Title = t
		}
	}
	if context != nil {
		if c := strings.TrimSpace(*context); c != "" {
			result.Context = c
		}
	}

	for len(result.KeyPoints) < summarySize {
		result.KeyPoints = append(result.KeyPoints, p.filler)
	}
	for len(result.RecurringWords) < summarySize {
		result.RecurringWords = append(result.RecurringWords, defaultRecurringWords[len(result.RecurringWords)])
	}
	return result, true
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = emphasis.ReplaceAllString(text, "")
	return headingHash.ReplaceAllString(text, "")
}

// section returns the captured body of re in text, cut at the next section header.
func section(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	body := m[1]
	if loc := headerLine.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	return &body
}

func listItems(body string) []string {
	var items []string
	for _, m := range listItem.FindAllStringSubmatch(body, -1) {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseKeyPoints(body *string) []string {
	if body == nil {
		return nil
	}
	points := listItems(*body)
	if len(points) == 0 {
		for _, line := range strings.Split(*body, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				points = append(points, line)
			}
		}
	}
	return firstN(points, summarySize)
}

func parseRecurringWords(body *string) []string {
	if body == nil {
		return nil
	}
	words := listItems(*body)
	if len(words) == 0 {
		for _, w := range wordSplit.Split(*body, -1) {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
	}
	return firstN(words, summarySize)
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		items = items[:n]
	}
	return items
}
