// Package secrets scans file content for credentials before it is
// indexed, replacing each finding with a redaction marker so secrets
// never reach the vector or graph stores.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding is one detected secret with its location.
type Finding struct {
	RuleID   string
	RuleDesc string
	Line     int
	StartCol int
	EndCol   int
	Match    string
}

// Scanner wraps a gitleaks detector built once and reused across
// files. Safe for concurrent use.
type Scanner struct {
	detector *detect.Detector
}

// NewScanner builds a scanner on the default gitleaks ruleset, with
// the allowlist patterns merged in. allowlist may be nil.
func NewScanner(allowlist *Allowlist) (*Scanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("build secret detector: %w", err)
	}
	if allowlist != nil {
		applyAllowlist(&detector.Config, allowlist)
	}
	return &Scanner{detector: detector}, nil
}

// Detect returns all secrets found in content.
func (s *Scanner) Detect(content string) []Finding {
	raw := s.detector.DetectString(content)
	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		findings = append(findings, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			StartCol: f.StartColumn,
			EndCol:   f.EndColumn,
			Match:    f.Secret,
		})
	}
	return findings
}

// Redact replaces every finding in content with a
// [REDACTED:<rule-id>] marker and returns the findings for reporting.
func (s *Scanner) Redact(content string) (string, []Finding) {
	findings := s.Detect(content)
	if len(findings) == 0 {
		return content, nil
	}
	return replaceFindings(content, findings), findings
}

// replaceFindings rewrites lines back to front so earlier indices
// stay valid.
func replaceFindings(content string, findings []Finding) string {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line > sorted[j].Line
		}
		return sorted[i].StartCol > sorted[j].StartCol
	})

	lines := strings.Split(content, "\n")
	for _, finding := range sorted {
		marker := fmt.Sprintf("[REDACTED:%s]", finding.RuleID)

		// Splice by position only when the reported span really holds
		// the secret; otherwise replace the match textually.
		if finding.Line >= 1 && finding.Line <= len(lines) {
			line := lines[finding.Line-1]
			if spanHolds(line, finding) {
				lines[finding.Line-1] = line[:finding.StartCol] + marker + line[finding.EndCol:]
				continue
			}
			if finding.Match != "" && strings.Contains(line, finding.Match) {
				lines[finding.Line-1] = strings.ReplaceAll(line, finding.Match, marker)
				continue
			}
		}
		if finding.Match != "" {
			for i, line := range lines {
				if strings.Contains(line, finding.Match) {
					lines[i] = strings.ReplaceAll(line, finding.Match, marker)
				}
			}
		}
	}
	return strings.Join(lines, "\n")
}

func spanHolds(line string, f Finding) bool {
	if f.StartCol < 0 || f.EndCol > len(line) || f.StartCol >= f.EndCol {
		return false
	}
	return f.Match == "" || line[f.StartCol:f.EndCol] == f.Match
}

func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	entry := &gitleaksConfig.Allowlist{Description: "ultramemory allowlist"}

	for _, pattern := range allowlist.Paths {
		// Patterns were validated at load time.
		entry.Paths = append(entry.Paths, (*gitleaksRegexp.Regexp)(regexp.MustCompile(pattern)))
	}
	for _, pattern := range allowlist.Regexes {
		entry.Regexes = append(entry.Regexes, (*gitleaksRegexp.Regexp)(regexp.MustCompile(pattern)))
	}
	entry.StopWords = append(entry.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, entry)
}
