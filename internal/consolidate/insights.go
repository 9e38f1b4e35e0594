package consolidate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/e6labs/ultramemory/internal/memory"
)

const (
	insightKeywordSample = 200
	insightTopTerms      = 20
)

var insightTermRe = regexp.MustCompile(`\b[a-z]{5,}\b`)

// Frequent function words excluded from the key-concept count.
var insightStopwords = map[string]bool{
	"which": true, "there": true, "their": true, "would": true,
	"could": true, "should": true, "have": true, "been": true,
	"were": true, "this": true,
}

// generateInsights aggregates corpus statistics into a markdown
// document and writes it back into memory as type=insight.
func (e *Engine) generateInsights(ctx context.Context, docs []memory.Document, report *Report) error {
	if e.adder == nil || len(docs) == 0 {
		return nil
	}

	sourceDist := make(map[string]int)
	typeDist := make(map[string]int)
	for _, doc := range docs {
		source := doc.Metadata.Source
		if source == "" {
			source = "unknown"
		}
		sourceDist[source]++

		docType := doc.Metadata.Type
		if docType == "" {
			docType = "unknown"
		}
		typeDist[docType]++
	}

	stats, _ := e.graph.Stats(ctx)
	orphans, _ := e.graph.OrphanCount(ctx)

	var sb strings.Builder
	sb.WriteString("# Deep Insights Generados\n\n")
	sb.WriteString("Fecha: " + e.now().UTC().Format(time.RFC3339) + "\n\n")

	sb.WriteString("## Source Distribution\n\n")
	writeDistribution(&sb, sourceDist)

	sb.WriteString("## Content Types\n\n")
	writeDistribution(&sb, typeDist)

	sb.WriteString("## Graph Health\n\n")
	fmt.Fprintf(&sb, "- nodes: %d\n", stats.TotalNodes)
	fmt.Fprintf(&sb, "- relations: %d\n", stats.TotalRelations)
	fmt.Fprintf(&sb, "- orphaned: %d\n\n", orphans)

	if terms := topTerms(docs); len(terms) > 0 {
		sb.WriteString("## Key Concepts\n\n")
		for _, term := range terms {
			fmt.Fprintf(&sb, "- %s: %d\n", term.word, term.count)
		}
		sb.WriteString("\n")
	}

	meta := memory.Metadata{
		Type:   "insight",
		Source: "consolidator",
		Extra:  map[string]any{"generated_by": "consolidator_deep"},
	}
	if _, err := e.adder.Add(ctx, sb.String(), meta); err != nil {
		return err
	}
	report.InsightGenerated = true
	return nil
}

func writeDistribution(sb *strings.Builder, dist map[string]int) {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if dist[keys[i]] != dist[keys[j]] {
			return dist[keys[i]] > dist[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(sb, "- **%s**: %d\n", k, dist[k])
	}
	sb.WriteString("\n")
}

type termCount struct {
	word  string
	count int
}

// topTerms counts ≥5-letter non-stopword terms over a document sample.
func topTerms(docs []memory.Document) []termCount {
	sample := docs
	if len(sample) > insightKeywordSample {
		sample = sample[:insightKeywordSample]
	}

	freq := make(map[string]int)
	for _, doc := range sample {
		for _, word := range insightTermRe.FindAllString(strings.ToLower(doc.Content), -1) {
			if !insightStopwords[word] {
				freq[word]++
			}
		}
	}

	terms := make([]termCount, 0, len(freq))
	for word, count := range freq {
		terms = append(terms, termCount{word, count})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].count != terms[j].count {
			return terms[i].count > terms[j].count
		}
		return terms[i].word < terms[j].word
	})
	if len(terms) > insightTopTerms {
		terms = terms[:insightTopTerms]
	}
	return terms
}
