package consolidate

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/e6labs/ultramemory/internal/memory"
)

// Entity node labels minted by consolidation.
const (
	labelPerson  = "Person"
	labelCompany = "Company"
	labelProject = "Project"
)

var (
	personRe = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`)
	titledRe = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr)\.\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

	companySuffixRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\s+(?:Inc|LLC|Corp|Ltd|SA|SL|Corporation|Company)\b`)
	companyKnownRe  = regexp.MustCompile(`\b(?:Google|Microsoft|Amazon|Apple|Meta|OpenAI|Anthropic|Nvidia|Intel)\b`)

	projectNamedRe  = regexp.MustCompile(`\b(?i:project)\s+([A-Z][a-zA-Z0-9]+)`)
	projectSuffixRe = regexp.MustCompile(`\b([A-Z][a-zA-Z]+)\s+Project\b`)
)

// extractEntities runs the regex families over content and returns
// names per entity label. Company and project matches are excluded
// from the person candidates.
func extractEntities(content string) map[string][]string {
	companies := appendUnique(nil, companySuffixRe.FindAllString(content, -1)...)
	companies = appendUnique(companies, companyKnownRe.FindAllString(content, -1)...)

	var projects []string
	for _, m := range projectNamedRe.FindAllStringSubmatch(content, -1) {
		projects = appendUnique(projects, m[1])
	}
	for _, m := range projectSuffixRe.FindAllStringSubmatch(content, -1) {
		projects = appendUnique(projects, m[1])
	}

	claimed := make(map[string]bool)
	for _, name := range companies {
		claimed[strings.ToLower(name)] = true
	}
	for _, name := range projects {
		claimed[strings.ToLower(name)] = true
	}

	var people []string
	for _, m := range titledRe.FindAllStringSubmatch(content, -1) {
		people = appendUnique(people, m[1])
	}
	for _, name := range personRe.FindAllString(content, -1) {
		if claimed[strings.ToLower(name)] || partOfClaimed(name, claimed) {
			continue
		}
		people = appendUnique(people, name)
	}

	out := make(map[string][]string)
	if len(people) > 0 {
		out[labelPerson] = people
	}
	if len(companies) > 0 {
		out[labelCompany] = companies
	}
	if len(projects) > 0 {
		out[labelProject] = projects
	}
	return out
}

// partOfClaimed filters person candidates overlapping an
// already-claimed company or project name (e.g. "Acme Corp" also
// matching the capitalised-pair pattern).
func partOfClaimed(name string, claimed map[string]bool) bool {
	lower := strings.ToLower(name)
	for c := range claimed {
		if strings.Contains(c, lower) || strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, names ...string) []string {
	for _, name := range names {
		dup := false
		for _, have := range dst {
			if strings.EqualFold(have, name) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, name)
		}
	}
	return dst
}

// extractAndLinkEntities upserts one graph node per (label, lowercase
// name) and creates MENTIONS edges, capped per entity to avoid
// fan-out.
func (e *Engine) extractAndLinkEntities(ctx context.Context, docs []memory.Document, report *Report) error {
	now := e.now().UTC().Format(time.RFC3339)
	upserted := make(map[string]bool)

	var firstErr error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for label, names := range extractEntities(doc.Content) {
			for _, name := range names {
				lower := strings.ToLower(name)
				key := label + ":" + lower

				if !upserted[key] {
					if err := e.graph.UpsertEntity(ctx, label, lower, now); err != nil {
						if firstErr == nil {
							firstErr = err
						}
						continue
					}
					upserted[key] = true
				}

				count, err := e.graph.MentionCount(ctx, label, lower)
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if count >= e.config.MentionCap {
					continue
				}
				if err := e.graph.LinkMention(ctx, doc.ID, label, lower, now); err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				report.EntitiesLinked++
			}
		}
	}
	return firstErr
}
