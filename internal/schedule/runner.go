package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/logging"
)

// AgentRunner executes a named agent. Satisfied by *agents.Registry.
type AgentRunner interface {
	Run(ctx context.Context, name string, args []string) (any, error)
}

// Runner mounts enabled tasks on a cron timetable and executes their
// agents, appending one log line per run to the task's log file.
type Runner struct {
	store   *Store
	agents  AgentRunner
	logsDir string
	logger  *logging.Logger

	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[int]cron.EntryID
}

// NewRunner builds a runner over the store. Logs for task N go to
// <logsDir>/<N>.log.
func NewRunner(store *Store, agents AgentRunner, logsDir string, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:   store,
		agents:  agents,
		logsDir: logsDir,
		logger:  logger.Named("schedule"),
		cron:    cron.New(),
		entries: map[int]cron.EntryID{},
	}
}

// Start mounts every enabled task and starts the timetable. ctx bounds
// all agent executions.
func (r *Runner) Start(ctx context.Context) error {
	tasks, err := r.store.List()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	mounted := 0
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		if err := r.mount(task); err != nil {
			r.logger.Warn(ctx, "task not mounted",
				zap.Int("task_id", task.ID), zap.Error(err))
			continue
		}
		mounted++
	}

	r.cron.Start()
	r.logger.Info(ctx, "scheduler started",
		zap.Int("tasks", mounted), zap.Int("total", len(tasks)))
	return nil
}

// Stop halts the timetable and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// Reload remounts the timetable from the store, picking up added,
// removed, enabled and disabled tasks.
func (r *Runner) Reload() error {
	r.mu.Lock()
	for id, entry := range r.entries {
		r.cron.Remove(entry)
		delete(r.entries, id)
	}
	ctx := r.ctx
	r.mu.Unlock()

	tasks, err := r.store.List()
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		if err := r.mount(task); err != nil {
			r.logger.Warn(ctx, "task not mounted",
				zap.Int("task_id", task.ID), zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) mount(task Task) error {
	id := task.ID
	entry, err := r.cron.AddFunc(task.Cron, func() {
		r.mu.Lock()
		ctx := r.ctx
		r.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		r.execute(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCron, task.Cron)
	}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()
	return nil
}

// RunTask executes one task immediately, regardless of its timetable
// or enabled flag.
func (r *Runner) RunTask(ctx context.Context, id int) error {
	if _, err := r.store.Get(id); err != nil {
		return err
	}
	return r.execute(ctx, id)
}

func (r *Runner) execute(ctx context.Context, id int) error {
	task, err := r.store.Get(id)
	if err != nil {
		return err
	}

	started := time.Now()
	var args []string
	if task.Args != "" {
		args = []string{task.Args}
	}

	output, runErr := r.agents.Run(ctx, task.Agent, args)
	if touchErr := r.store.Touch(id); touchErr != nil {
		r.logger.Warn(ctx, "last_run not recorded",
			zap.Int("task_id", id), zap.Error(touchErr))
	}

	r.appendLog(ctx, task, started, output, runErr)
	if runErr != nil {
		r.logger.Error(ctx, "scheduled task failed",
			zap.Int("task_id", id), zap.String("agent", task.Agent), zap.Error(runErr))
		return runErr
	}
	r.logger.Info(ctx, "scheduled task finished",
		zap.Int("task_id", id), zap.String("agent", task.Agent),
		zap.Duration("took", time.Since(started)))
	return nil
}

// appendLog writes one line per run: timestamp, agent, status, and a
// compact result or error.
func (r *Runner) appendLog(ctx context.Context, task *Task, started time.Time, output any, runErr error) {
	line := fmt.Sprintf("%s agent=%s status=ok", started.UTC().Format(time.RFC3339), task.Agent)
	if runErr != nil {
		line = fmt.Sprintf("%s agent=%s status=error error=%q", started.UTC().Format(time.RFC3339), task.Agent, runErr.Error())
	} else if output != nil {
		if compact, err := json.Marshal(output); err == nil {
			line += " result=" + string(compact)
		}
	}

	if err := os.MkdirAll(r.logsDir, 0o755); err != nil {
		r.logger.Warn(ctx, "task log dir", zap.Error(err))
		return
	}
	f, err := os.OpenFile(r.LogPath(task.ID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Warn(ctx, "task log open", zap.Error(err))
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}

// LogPath returns the log file for a task.
func (r *Runner) LogPath(id int) string {
	return filepath.Join(r.logsDir, fmt.Sprintf("%d.log", id))
}

// ReadLog returns the full run log of a task. A never-run task yields
// an empty string.
func (r *Runner) ReadLog(id int) (string, error) {
	data, err := os.ReadFile(r.LogPath(id))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
