// Package heartbeat watches the ~/.ulmemory/heartbeat.md checklist and
// surfaces unchecked tasks so the daemon can act on them.
package heartbeat

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrWatcherFailed indicates the filesystem watcher failed to
// initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Task is one checklist entry.
type Task struct {
	Title     string   `json:"title"`
	Completed bool     `json:"completed"`
	Tags      []string `json:"tags,omitempty"`
}

var (
	taskLineRe = regexp.MustCompile(`^-\s*\[([ x])\]\s*(.+)$`)
	tagRe      = regexp.MustCompile(`#(\w+)`)
)

// Parse extracts checklist tasks from heartbeat markdown. Tags
// (`#word`) are lifted out of the title.
func Parse(content string) []Task {
	var tasks []Task
	for _, line := range strings.Split(content, "\n") {
		m := taskLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		raw := strings.TrimSpace(m[2])
		var tags []string
		for _, tag := range tagRe.FindAllStringSubmatch(raw, -1) {
			tags = append(tags, tag[1])
		}
		title := strings.TrimSpace(tagRe.ReplaceAllString(raw, ""))

		tasks = append(tasks, Task{
			Title:     title,
			Completed: m[1] == "x",
			Tags:      tags,
		})
	}
	return tasks
}

// ReadPending reads the heartbeat file and returns its unchecked
// tasks. A missing file is an empty list.
func ReadPending(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var pending []Task
	for _, task := range Parse(string(data)) {
		if !task.Completed {
			pending = append(pending, task)
		}
	}
	return pending, nil
}

// MarkCompleted checks off the task with the given title. Returns
// false when no matching unchecked line exists.
func MarkCompleted(path, title string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	changed := false
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		m := taskLineRe.FindStringSubmatch(line)
		if m == nil || m[1] != " " {
			continue
		}
		raw := strings.TrimSpace(tagRe.ReplaceAllString(m[2], ""))
		if raw == title {
			lines[i] = strings.Replace(line, "- [ ]", "- [x]", 1)
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	return true, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}

// AddTask appends an unchecked task line, creating the file with its
// header when absent.
func AddTask(path, title string, tags []string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte("# Heartbeat - Tareas Pendientes\n\n"), 0o644); err != nil {
			return err
		}
	}

	line := "- [ ] " + title
	for _, tag := range tags {
		line += " #" + tag
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, line)
	return err
}
