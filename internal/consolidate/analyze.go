package consolidate

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/e6labs/ultramemory/internal/memory"
)

// Mojibake detectors: UTF-8 read as latin-1 and the replacement rune.
var encodingIssuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Ã[^\x00-\x7F]`),
	regexp.MustCompile(`â€`),
	regexp.MustCompile(`Ã¯Â¿Â½`),
	regexp.MustCompile("�"),
}

const lowQualityThreshold = 0.3

// Health score penalty weights per issue class.
const (
	penaltyDuplicate  = 2
	penaltyEmpty      = 5
	penaltyShort      = 1
	penaltyEncoding   = 3
	penaltyLowQuality = 2
	penaltyOrphan     = 4
)

// Analysis is the phase-1 deep inventory of the corpus.
type Analysis struct {
	TotalDocuments  int `json:"total_documents"`
	EmptyContent    int `json:"empty_content"`
	TooShort        int `json:"too_short"`
	TooLong         int `json:"too_long"`
	ExactDuplicates int `json:"exact_duplicates"`
	MissingMetadata int `json:"missing_metadata"`
	EncodingIssues  int `json:"encoding_issues"`
	LowQuality      int `json:"low_quality"`
	OrphanedNodes   int `json:"orphaned_nodes"`

	UniqueContent    int     `json:"unique_content"`
	AvgContentLength float64 `json:"avg_content_length"`
	MetadataCoverage float64 `json:"metadata_coverage"`

	BySource map[string]int `json:"by_source"`
	ByType   map[string]int `json:"by_type"`

	Graph       memory.GraphStats `json:"graph"`
	HealthScore float64           `json:"health_score"`
}

func (e *Engine) analyze(ctx context.Context, docs []memory.Document, report *Report) error {
	a := &Analysis{
		TotalDocuments: len(docs),
		BySource:       make(map[string]int),
		ByType:         make(map[string]int),
	}
	report.Analysis = a

	seen := make(map[string]bool)
	totalLength := 0
	withMetadata := 0

	for _, doc := range docs {
		content := doc.Content
		totalLength += len(content)

		if strings.TrimSpace(content) == "" {
			a.EmptyContent++
			continue
		}
		if len(content) < e.config.MinContentLength {
			a.TooShort++
		}
		if len(content) > e.config.MaxContentLength {
			a.TooLong++
		}

		key := normalizedHash(content)
		if seen[key] {
			a.ExactDuplicates++
		} else {
			seen[key] = true
		}

		if doc.Metadata.Source == "" || doc.Metadata.Type == "" {
			a.MissingMetadata++
		} else {
			withMetadata++
		}

		if hasEncodingIssues(content) {
			a.EncodingIssues++
		}
		if assessQuality(content) < lowQualityThreshold {
			a.LowQuality++
		}

		source := doc.Metadata.Source
		if source == "" {
			source = "unknown"
		}
		a.BySource[source]++

		docType := doc.Metadata.Type
		if docType == "" {
			docType = "unknown"
		}
		a.ByType[docType]++
	}

	a.UniqueContent = len(seen)
	if len(docs) > 0 {
		a.AvgContentLength = float64(totalLength) / float64(len(docs))
		a.MetadataCoverage = float64(withMetadata) / float64(len(docs)) * 100
	}

	stats, err := e.graph.Stats(ctx)
	if err == nil {
		a.Graph = stats
	}
	if orphans, oerr := e.graph.OrphanCount(ctx); oerr == nil {
		a.OrphanedNodes = orphans
	}

	a.HealthScore = healthScore(len(docs), a)
	report.HealthScore = a.HealthScore
	return err
}

func hasEncodingIssues(content string) bool {
	for _, re := range encodingIssuePatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// assessQuality scores content in [0,1]: repeated tokens, missing
// sentence punctuation and symbol-heavy text each shrink the score.
func assessQuality(content string) float64 {
	if content == "" {
		return 0
	}
	score := 1.0

	words := strings.Fields(content)
	if len(words) > 10 {
		unique := make(map[string]bool, len(words))
		for _, w := range words {
			unique[strings.ToLower(w)] = true
		}
		if float64(len(unique))/float64(len(words)) < 0.3 {
			score *= 0.5
		}
	}

	if !strings.ContainsAny(content, ".!?;:") {
		score *= 0.7
	}

	nonAlnum := 0
	total := 0
	for _, r := range content {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			nonAlnum++
		}
	}
	if total > 0 && float64(nonAlnum)/float64(total) > 0.3 {
		score *= 0.6
	}

	return score
}

// healthScore is 100 minus the weighted issue penalty, scaled so five
// penalty points per document floor the score at zero.
func healthScore(total int, a *Analysis) float64 {
	if total == 0 {
		return 100
	}
	penalty := a.ExactDuplicates*penaltyDuplicate +
		a.EmptyContent*penaltyEmpty +
		a.TooShort*penaltyShort +
		a.EncodingIssues*penaltyEncoding +
		a.LowQuality*penaltyLowQuality +
		a.OrphanedNodes*penaltyOrphan

	maxPenalty := float64(total * 5)
	score := 100 - float64(penalty)/maxPenalty*100
	return math.Round(math.Max(0, score)*10) / 10
}
