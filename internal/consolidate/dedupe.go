package consolidate

import (
	"context"
	"regexp"
	"strings"

	"github.com/e6labs/ultramemory/internal/memory"
)

// LCS inputs are bounded to keep the pairwise pass tractable.
const fuzzyCompareLimit = 1000

var whitespaceRe = regexp.MustCompile(`\s+`)

// purgeExactDuplicates groups documents by trimmed+lowercased content
// hash and deletes every occurrence after the first.
func (e *Engine) purgeExactDuplicates(ctx context.Context, docs []memory.Document, deleted map[string]bool, report *Report) error {
	seen := make(map[string]string)
	var firstErr error
	for _, doc := range docs {
		key := normalizedHash(doc.Content)
		if _, dup := seen[key]; !dup {
			seen[key] = doc.ID
			continue
		}
		if err := e.vector.Delete(ctx, doc.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted[doc.ID] = true
		report.ExactDuplicatesRemoved++
	}
	return firstErr
}

// purgeSemanticDuplicates re-embeds a sample and deletes near-identical
// search hits.
func (e *Engine) purgeSemanticDuplicates(ctx context.Context, docs []memory.Document, deleted map[string]bool, report *Report) error {
	sample := docs
	if len(sample) > e.config.SampleSize {
		sample = sample[:e.config.SampleSize]
	}

	var firstErr error
	for _, doc := range sample {
		if deleted[doc.ID] || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		vector, err := e.embedder.Embed(ctx, doc.Content)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		hits, err := e.vector.Search(ctx, vector, 5)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, hit := range hits {
			if hit.ID == doc.ID || deleted[hit.ID] || hit.Score < e.config.SimilarityThreshold {
				continue
			}
			if err := e.vector.Delete(ctx, hit.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			deleted[hit.ID] = true
			report.SemanticDuplicatesRemoved++
		}
	}
	return firstErr
}

// purgeFuzzyDuplicates compares a sample pairwise by LCS ratio and
// deletes the later document of each near-duplicate pair.
func (e *Engine) purgeFuzzyDuplicates(ctx context.Context, docs []memory.Document, deleted map[string]bool, report *Report) error {
	sample := docs
	if len(sample) > e.config.SampleSize {
		sample = sample[:e.config.SampleSize]
	}

	normalized := make([][]rune, len(sample))
	for i, doc := range sample {
		normalized[i] = fuzzyNormalize(doc.Content)
	}

	var firstErr error
	for i := range sample {
		if deleted[sample[i].ID] || len(normalized[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(sample); j++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if deleted[sample[j].ID] || len(normalized[j]) == 0 {
				continue
			}
			if lcsRatio(normalized[i], normalized[j]) < e.config.FuzzyThreshold {
				continue
			}
			if err := e.vector.Delete(ctx, sample[j].ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			deleted[sample[j].ID] = true
			report.FuzzyDuplicatesRemoved++
		}
	}
	return firstErr
}

// purgeMalformed deletes empty and below-minimum documents.
func (e *Engine) purgeMalformed(ctx context.Context, docs []memory.Document, deleted map[string]bool, report *Report) error {
	var firstErr error
	for _, doc := range docs {
		if deleted[doc.ID] {
			continue
		}
		if strings.TrimSpace(doc.Content) != "" && len(doc.Content) >= e.config.MinContentLength {
			continue
		}
		if err := e.vector.Delete(ctx, doc.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted[doc.ID] = true
		report.MalformedRemoved++
	}
	return firstErr
}

func fuzzyNormalize(content string) []rune {
	norm := whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(content)), " ")
	runes := []rune(norm)
	if len(runes) > fuzzyCompareLimit {
		runes = runes[:fuzzyCompareLimit]
	}
	return runes
}

// lcsRatio is 2·LCS(a,b) / (len(a)+len(b)), rolling two DP rows.
func lcsRatio(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}
