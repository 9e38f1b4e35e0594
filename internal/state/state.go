// Package state owns the per-user on-disk layout under ~/.ulmemory:
// settings, schedules, audit logs, research output and the heartbeat
// checklist.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Layout paths relative to the state directory.
const (
	SettingsFile   = "settings.yaml"
	SchedulesFile  = "schedules/tasks.json"
	DeletionsLog   = "logs/deletions.jsonl"
	HeartbeatFile  = "heartbeat.md"
	CategoriesFile = "categories.json"
	ResearchDir    = "research/reports"
	ResearchTodo   = "research/todo.md"
	PRDsDir        = "prds"
	AgentsDir      = "agents"
)

// subdirs created by EnsureLayout.
var subdirs = []string{
	"schedules",
	"logs",
	ResearchDir,
	PRDsDir,
	AgentsDir,
}

// Dir resolves the state directory: the override when set, else
// ~/.ulmemory.
func Dir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ulmemory"), nil
}

// EnsureLayout creates the directory tree. Idempotent.
func EnsureLayout(dir string) error {
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return nil
}

// Path joins the state directory with a relative layout path.
func Path(dir, rel string) string {
	return filepath.Join(dir, filepath.FromSlash(rel))
}

// AuditWriter appends JSON lines to an append-only log file. Safe for
// concurrent use.
type AuditWriter struct {
	mu   sync.Mutex
	path string
}

// NewAuditWriter opens (lazily) the audit log at path.
func NewAuditWriter(path string) *AuditWriter {
	return &AuditWriter{path: path}
}

// Append writes one record as a JSON line.
func (w *AuditWriter) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAll decodes every line of the audit log into out, which must be
// a pointer to a slice. Missing files yield an empty result.
func (w *AuditWriter) ReadAll(decode func(line []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			return err
		}
	}
	return nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
