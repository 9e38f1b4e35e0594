package repoindex

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRepo marks a repository reference that parses to nothing.
var ErrInvalidRepo = errors.New("invalid repository reference")

var (
	githubRefRe = regexp.MustCompile(`github\.com[/:]([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)
	shortRefRe  = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)$`)
)

// ParseRepoRef resolves "owner/repo", an https GitHub URL, or an SSH
// remote into its owner and repo components. Trailing slashes and a
// ".git" suffix are stripped.
func ParseRepoRef(ref string) (owner, name string, err error) {
	ref = strings.TrimSpace(ref)
	if m := githubRefRe.FindStringSubmatch(ref); m != nil {
		return m[1], m[2], nil
	}
	if m := shortRefRe.FindStringSubmatch(strings.TrimSuffix(ref, ".git")); m != nil {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidRepo, ref)
}

// CloneURL returns the https clone URL for an owner/repo pair.
func CloneURL(owner, name string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, name)
}
