package messaging

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TagExtractor matches a query and an analysis result against the catalog
// vocabulary.
type TagExtractor struct {
	vocab []vocabEntry
}

type vocabEntry struct {
	tag        string
	normalized string
}

// NewTagExtractor builds an extractor over every tag of every category.
func NewTagExtractor(c *Catalog) *TagExtractor {
	te := &TagExtractor{}
	for _, cat := range c.categories {
		for _, tag := range cat.tags {
			te.vocab = append(te.vocab, vocabEntry{tag: tag, normalized: normalizeText(tag)})
		}
	}
	return te
}

// Extract classifies vocabulary matches. Query hits and hits in high-priority
// columns are primary; hits in other columns and in business insights are
// secondary. A tag may land in both sets.
func (te *TagExtractor) Extract(query string, analysis *AnalysisResult) TagSet {
	tags := NewTagSet()
	te.collect(query, tags.Primary)

	if analysis == nil {
		return tags
	}
	for _, col := range analysis.RecommendedColumns {
		target := tags.Secondary
		if col.Priority == PriorityHigh {
			target = tags.Primary
		}
		te.collect(col.Column, target)
		te.collect(col.Description, target)
	}
	for _, insight := range analysis.BusinessInsights {
		te.collect(insight, tags.Secondary)
	}
	return tags
}

func (te *TagExtractor) collect(text string, into StringSet) {
	if text == "" {
		return
	}
	haystack := normalizeText(text)
	for _, v := range te.vocab {
		if strings.Contains(haystack, v.normalized) {
			into.Add(v.tag)
		}
	}
}

// normalizeText composes Hangul jamo (NFC) so decomposed input still matches,
// then lower-cases.
func normalizeText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
