package repoindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultCategory applies when nothing more specific matches.
const DefaultCategory = "personal"

// ErrInvalidCategory marks a category outside the known set.
var ErrInvalidCategory = errors.New("invalid category")

var validCategories = map[string]bool{
	"lefarma": true, "e6labs": true, "personal": true,
	"opensource": true, "hobby": true, "trabajo": true,
	"dependencias": true,
}

// ValidCategory reports whether name is one of the known repository
// categories.
func ValidCategory(name string) bool {
	return validCategories[strings.ToLower(name)]
}

// ValidCategories lists the known categories, sorted.
func ValidCategories() []string {
	names := make([]string, 0, len(validCategories))
	for name := range validCategories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Categories is a persisted mapping from repository patterns to
// categories. Keys are "owner/repo", "owner", or the wildcard "*";
// lookup tries them in that order.
type Categories struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// LoadCategories reads the mapping at path, starting empty when the
// file does not exist.
func LoadCategories(path string) (*Categories, error) {
	c := &Categories{path: path, entries: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("parse categories %s: %w", path, err)
	}
	return c, nil
}

// Set records a category for a pattern and persists the mapping.
func (c *Categories) Set(pattern, category string) error {
	category = strings.ToLower(strings.TrimSpace(category))
	if !ValidCategory(category) {
		return fmt.Errorf("%w: %q (valid: %s)", ErrInvalidCategory, category, strings.Join(ValidCategories(), ", "))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(strings.TrimSpace(pattern))] = category
	return c.save()
}

// Remove drops a pattern and persists. Removing an absent pattern is
// a no-op.
func (c *Categories) Remove(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[strings.ToLower(pattern)]; !ok {
		return nil
	}
	delete(c.entries, strings.ToLower(pattern))
	return c.save()
}

// Lookup resolves the category for a repository: exact "owner/repo"
// first, then "owner", then "*", then the default.
func (c *Categories) Lookup(owner, name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range []string{
		strings.ToLower(owner + "/" + name),
		strings.ToLower(owner),
		"*",
	} {
		if cat, ok := c.entries[key]; ok {
			return cat
		}
	}
	return DefaultCategory
}

// List returns a copy of the pattern-to-category mapping.
func (c *Categories) List() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

func (c *Categories) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create categories dir: %w", err)
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write categories: %w", err)
	}
	return nil
}
