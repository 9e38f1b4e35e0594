// Package schedule persists recurring agent tasks and runs them on a
// cron timetable inside the daemon.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrTaskNotFound marks an unknown task ID.
	ErrTaskNotFound = errors.New("scheduled task not found")
	// ErrInvalidCron marks an expression the 5-field parser rejects.
	ErrInvalidCron = errors.New("invalid cron expression")
)

// Task is one persisted schedule entry.
type Task struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Agent   string `json:"agent"`
	Cron    string `json:"cron"`
	Args    string `json:"args"`
	Enabled bool   `json:"enabled"`
	Created string `json:"created"`
	LastRun string `json:"last_run,omitempty"`
}

// Store reads and writes the task file. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore builds a store over the tasks file at path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// ValidateCron checks expr against the standard 5-field format.
func ValidateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, expr, err)
	}
	return nil
}

// List returns all tasks. A missing file is an empty list.
func (s *Store) List() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns one task by ID.
func (s *Store) Get(id int) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
}

// Add validates the cron expression and appends a new task. An empty
// name gets "<agent>-task-<id>".
func (s *Store) Add(name, agent, cronExpr, args string, enabled bool) (*Task, error) {
	if err := ValidateCron(cronExpr); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}

	id := 1
	for _, t := range tasks {
		if t.ID >= id {
			id = t.ID + 1
		}
	}
	if name == "" {
		name = fmt.Sprintf("%s-task-%d", agent, id)
	}

	task := Task{
		ID:      id,
		Name:    name,
		Agent:   agent,
		Cron:    cronExpr,
		Args:    args,
		Enabled: enabled,
		Created: s.now().UTC().Format(time.RFC3339),
	}
	tasks = append(tasks, task)
	if err := s.save(tasks); err != nil {
		return nil, err
	}
	return &task, nil
}

// Remove deletes a task by ID.
func (s *Store) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	kept := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tasks) {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return s.save(kept)
}

// SetEnabled flips a task's enabled flag.
func (s *Store) SetEnabled(id int, enabled bool) error {
	return s.update(id, func(t *Task) { t.Enabled = enabled })
}

// Touch stamps a task's last run time.
func (s *Store) Touch(id int) error {
	now := s.now().UTC().Format(time.RFC3339)
	return s.update(id, func(t *Task) { t.LastRun = now })
}

func (s *Store) update(id int, apply func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			apply(&tasks[i])
			return s.save(tasks)
		}
	}
	return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
}

func (s *Store) load() ([]Task, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedules: %w", err)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse schedules %s: %w", s.path, err)
	}
	return tasks, nil
}

func (s *Store) save(tasks []Task) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
