package analysis

import (
	"fmt"
	"strings"

	"github.com/feichai0017/sheetscan/internal/models"
)

const truncationNotice = "... (text truncated for brevity)"

const summaryPrompt = `Analyze the following text and provide:
1. A concise title (max 10 words)
2. 5 key points summarizing the main information
3. Top 5 recurring words or phrases
4. A brief context about the content

Text to analyze:
%s

Language: %s

Format your response as plain text with clear section headers:
Title:, Key Points:, Recurring Words:, Context:`

const enrichmentPrompt = `Based on the following text and recurring words, provide additional relevant information and context.
Focus on enriching the understanding of the main topics and concepts.

Text excerpt:
%s

Recurring Words: %s
Language: %s

Provide a comprehensive but concise analysis (max 200 words) in %s that includes:
1. Related concepts and their relationships
2. Industry-specific context
3. Potential implications or trends

Format the response as a well-structured paragraph.`

// SummaryPrompt builds the primary analysis request over the first limit runes of text.
func SummaryPrompt(text string, lang models.Language, limit int) string {
	return fmt.Sprintf(summaryPrompt, excerpt(text, limit), lang.DisplayName())
}

// EnrichmentPrompt builds the context enrichment request.
func EnrichmentPrompt(text string, recurring []string, lang models.Language, limit int) string {
	name := lang.DisplayName()
	return fmt.Sprintf(enrichmentPrompt, excerpt(text, limit), strings.Join(recurring, ", "), name, name)
}

// excerpt cuts text to limit runes and appends a notice when it did.
func excerpt(text string, limit int) string {
	r := []rune(text)
	if limit <= 0 || len(r) <= limit {
		return text
	}
	return string(r[:limit]) + truncationNotice
}
