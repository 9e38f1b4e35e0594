package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T, allowlist *Allowlist) *Scanner {
	t.Helper()
	s, err := NewScanner(allowlist)
	require.NoError(t, err)
	return s
}

func TestDetectCleanContent(t *testing.T) {
	s := newTestScanner(t, nil)

	findings := s.Detect(`package main

func main() {
	println("hello")
}
`)
	assert.Empty(t, findings)
}

func TestDetectAPIKey(t *testing.T) {
	s := newTestScanner(t, nil)

	content := `const apiKey = "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"`
	findings := s.Detect(content)
	require.NotEmpty(t, findings)
	assert.NotEmpty(t, findings[0].RuleID)
	assert.NotEmpty(t, findings[0].Match)
}

func TestRedactReplacesSecretWithMarker(t *testing.T) {
	s := newTestScanner(t, nil)

	content := `config:
  api_key: "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"
  region: eu-west-1`
	redacted, findings := s.Redact(content)
	require.NotEmpty(t, findings)

	assert.NotContains(t, redacted, "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz")
	assert.Contains(t, redacted, "[REDACTED:")
	assert.Contains(t, redacted, "region: eu-west-1", "surrounding content survives")
}

func TestRedactCleanContentUnchanged(t *testing.T) {
	s := newTestScanner(t, nil)

	content := "nothing sensitive in here"
	redacted, findings := s.Redact(content)
	assert.Equal(t, content, redacted)
	assert.Empty(t, findings)
}

func TestAllowlistSuppressesFindings(t *testing.T) {
	s := newTestScanner(t, &Allowlist{Regexes: []string{`DEMO_API_KEY`}})

	content := `export DEMO_API_KEY="sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"`
	for _, f := range s.Detect(content) {
		assert.NotContains(t, f.Match, "DEMO_API_KEY")
	}
}

func TestLoadAllowlistMissingFiles(t *testing.T) {
	a, err := LoadAllowlist(t.TempDir(), "")
	require.NoError(t, err)
	assert.Empty(t, a.Paths)
	assert.Empty(t, a.Regexes)
}

func TestLoadAllowlistMergesRepoAndUser(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, AllowlistFile), []byte(`
[allowlist]
paths = ["testdata/.*"]
regexes = ["EXAMPLE_KEY"]
`), 0o644))

	user := filepath.Join(t.TempDir(), "allow.toml")
	require.NoError(t, os.WriteFile(user, []byte(`
[allowlist]
regexes = ["PLACEHOLDER"]
`), 0o644))

	a, err := LoadAllowlist(repo, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"testdata/.*"}, a.Paths)
	assert.Equal(t, []string{"EXAMPLE_KEY", "PLACEHOLDER"}, a.Regexes)
}

func TestLoadAllowlistRejectsBadRegex(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, AllowlistFile), []byte(`
[allowlist]
regexes = ["("]
`), 0o644))

	_, err := LoadAllowlist(repo, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRegex)
}

func TestReplaceFindingsOutOfRange(t *testing.T) {
	content := "one line"
	out := replaceFindings(content, []Finding{{Line: 99, StartCol: 0, EndCol: 4, RuleID: "x"}})
	assert.Equal(t, content, out)
}

func TestReplaceFindingsMultiplePerLine(t *testing.T) {
	line := "a=SECRET1 b=SECRET2"
	out := replaceFindings(line, []Finding{
		{Line: 1, StartCol: 2, EndCol: 9, RuleID: "r1", Match: "SECRET1"},
		{Line: 1, StartCol: 12, EndCol: 19, RuleID: "r2", Match: "SECRET2"},
	})
	assert.Equal(t, "a=[REDACTED:r1] b=[REDACTED:r2]", out)
	assert.False(t, strings.Contains(out, "SECRET"))
}
