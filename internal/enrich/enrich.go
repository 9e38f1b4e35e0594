// Package enrich derives metadata from raw content: keywords, named
// entities, language, source type, content hash and counts. The
// enricher is a pure function over (content, metadata, clock); caller
// supplied fields always win.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/e6labs/ultramemory/internal/memory"
)

const (
	maxKeywords       = 15
	maxEntityPerClass = 3
	// languageMargin is the indicator-count lead one language needs
	// over the other before we commit to a detection.
	languageMargin = 2
)

// stopwords filtered out of keyword extraction and person candidates.
var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"been": true, "were": true, "they": true, "their": true, "which": true,
	"would": true, "could": true, "should": true, "there": true, "where": true,
	"when": true, "what": true, "more": true, "also": true, "just": true,
	"only": true, "very": true, "into": true, "over": true, "such": true,
	"after": true, "before": true, "about": true, "above": true, "below": true,
	"between": true, "under": true, "again": true, "then": true, "once": true,
	"here": true, "some": true, "any": true, "each": true, "most": true,
	"other": true, "these": true, "those": true, "being": true, "having": true,
	"doing": true, "because": true, "while": true, "through": true, "during": true,
}

var (
	wordRe = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)

	orgSuffixRe = regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)\s+(?:Inc\.?|Corp\.?|LLC|Ltd\.?|GmbH|SA|SL)\b`)
	orgKnownRe  = regexp.MustCompile(`\b(Google|Microsoft|Amazon|Apple|Meta|Twitter|OpenAI|Anthropic|Nvidia|Intel)\b`)

	locSuffixRe = regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)\s+(?:City|Country|State|Province|Region|Area)\b`)
	locKnownRe  = regexp.MustCompile(`\b(USA|UK|US|EU|Asia|Europe|America)\b`)

	personRe = regexp.MustCompile(`\b([A-Z][a-z]+\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`)
)

var spanishIndicators = []string{
	" que ", " de ", " la ", " el ", " en ", " con ", " para ",
	" esta ", " son ", " los ", " las ", " una ", " por ", " mas ",
}

var englishIndicators = []string{
	" the ", " is ", " are ", " was ", " were ", " and ", " or ",
	" with ", " for ", " that ", " this ", " have ", " has ",
}

// Enricher implements the memory.Enricher contract.
type Enricher struct {
	now func() time.Time
}

// New returns an enricher using wall-clock time.
func New() *Enricher {
	return &Enricher{now: time.Now}
}

// NewWithClock pins the timestamp source, for tests.
func NewWithClock(now func() time.Time) *Enricher {
	return &Enricher{now: now}
}

// Enrich fills derived metadata fields. Fields already set by the
// caller are left untouched.
func (e *Enricher) Enrich(content string, meta memory.Metadata) memory.Metadata {
	ts := e.now().UTC().Format(time.RFC3339)
	if meta.CreatedAt == "" {
		meta.CreatedAt = ts
	}
	meta.UpdatedAt = ts

	if len(meta.Keywords) == 0 {
		meta.Keywords = Keywords(content, maxKeywords)
	}
	if meta.Entities.Empty() {
		meta.Entities = NamedEntities(content)
	}
	if len(meta.EntityLabels) == 0 {
		meta.EntityLabels = entityLabels(meta.Entities)
	}
	if meta.Language == "" {
		meta.Language = DetectLanguage(content)
	}
	if meta.SourceType == "" {
		meta.SourceType = SourceType(meta.Source)
	}

	meta.ContentHash = ContentHash(content)
	meta.WordCount = len(strings.Fields(content))
	meta.CharCount = len([]rune(content))

	return meta
}

// ContentHash returns the first 16 hex chars of the SHA-256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// Keywords extracts the top-N keywords by frequency: lowercase
// 4+-letter words minus stopwords. Ties break alphabetically so the
// output is deterministic.
func Keywords(text string, limit int) []string {
	if text == "" || limit <= 0 {
		return nil
	}
	freq := make(map[string]int)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if !stopwords[w] {
			freq[w]++
		}
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

// NamedEntities runs the pattern-based extractors, capping and
// deduplicating each class.
func NamedEntities(content string) memory.Entities {
	if content == "" {
		return memory.Entities{}
	}

	var orgs []string
	for _, m := range orgSuffixRe.FindAllStringSubmatch(content, -1) {
		orgs = append(orgs, m[1])
	}
	orgs = append(orgs, orgKnownRe.FindAllString(content, -1)...)

	var locs []string
	for _, m := range locSuffixRe.FindAllStringSubmatch(content, -1) {
		locs = append(locs, m[1])
	}
	locs = append(locs, locKnownRe.FindAllString(content, -1)...)

	var people []string
	for _, m := range personRe.FindAllStringSubmatch(content, -1) {
		if len(people) == 5 {
			break
		}
		name := m[1]
		if len(name) > 3 && !stopwords[strings.ToLower(name)] {
			people = append(people, name)
		}
	}

	return memory.Entities{
		People:        dedupeCap(people, maxEntityPerClass),
		Organizations: dedupeCap(orgs, maxEntityPerClass),
		Locations:     dedupeCap(locs, maxEntityPerClass),
	}
}

func entityLabels(e memory.Entities) []string {
	var labels []string
	for _, p := range e.People {
		labels = append(labels, "Person:"+p)
	}
	for _, o := range e.Organizations {
		labels = append(labels, "Org:"+o)
	}
	for _, l := range e.Locations {
		labels = append(labels, "Location:"+l)
	}
	return labels
}

// DetectLanguage picks "es" or "en" by counting marker words; returns
// empty when neither leads by more than the margin.
func DetectLanguage(content string) string {
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)

	spanish := 0
	for _, ind := range spanishIndicators {
		if strings.Contains(lower, ind) {
			spanish++
		}
	}
	english := 0
	for _, ind := range englishIndicators {
		if strings.Contains(lower, ind) {
			english++
		}
	}

	switch {
	case spanish > english+languageMargin:
		return "es"
	case english > spanish+languageMargin:
		return "en"
	}
	return ""
}

// SourceType classifies the source string: URL host and extension
// first, then filesystem path extension, else bare text.
func SourceType(source string) string {
	if source == "" {
		return "text"
	}
	lower := strings.ToLower(source)

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		switch {
		case strings.Contains(lower, "github"):
			return "github"
		case strings.Contains(lower, "notion"), strings.Contains(lower, "confluence"):
			return "wiki"
		case containsAny(lower, ".pdf", ".doc", ".md"):
			return "document"
		}
		return "url"
	}

	if strings.ContainsAny(source, `/\`) {
		switch {
		case containsAny(lower, ".pdf", ".docx", ".xlsx", ".pptx"):
			return "document"
		case containsAny(lower, ".md", ".txt", ".rst"):
			return "text_file"
		case containsAny(lower, ".py", ".js", ".ts", ".java", ".go"):
			return "code"
		case containsAny(lower, ".json", ".yaml", ".yml", ".toml"):
			return "config"
		}
		return "file"
	}

	return "text"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func dedupeCap(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
