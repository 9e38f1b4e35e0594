package heartbeat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/logging"
)

// DefaultDebounce coalesces editor write bursts into one event.
const DefaultDebounce = 500 * time.Millisecond

// Event carries the pending tasks read after the heartbeat file
// changed.
type Event struct {
	Pending   []Task
	Timestamp time.Time
}

// Watcher emits an Event whenever the heartbeat file is written.
// Writes are debounced; the file's parent directory is watched so
// atomic save-and-rename editors are caught too.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	events   chan Event
	stop     chan struct{}
	logger   *logging.Logger
}

// NewWatcher builds a watcher for the heartbeat file at path.
func NewWatcher(path string, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		watcher:  fsw,
		events:   make(chan Event, 10),
		stop:     make(chan struct{}),
		logger:   logger.Named("heartbeat"),
	}, nil
}

// Start begins watching. Events arrive on Events() until Stop or ctx
// cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and releases its resources. Idempotent.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Events returns the channel of debounced heartbeat changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) loop(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			armed = true

		case <-timer.C:
			armed = false
			w.emit(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "heartbeat watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) emit(ctx context.Context) {
	pending, err := ReadPending(w.path)
	if err != nil {
		w.logger.Warn(ctx, "heartbeat read failed", zap.Error(err))
		return
	}

	select {
	case w.events <- Event{Pending: pending, Timestamp: time.Now()}:
	default:
		// Consumer is behind; drop rather than block the loop.
	}
}
