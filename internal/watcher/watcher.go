// Package watcher feeds diagram source edits made in an external editor
// into a workspace.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rendis/lienzo/internal/logging"
)

// DefaultDebounce collapses the write bursts editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches one source file and reports its content after changes.
type Watcher struct {
	path     string
	onChange func(source string)
	debounce time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last string
}

// New creates a watcher for path. onChange receives the file content; it
// is not called when the content is unchanged since the last report.
func New(path string, onChange func(source string), logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   logging.OrDefault(logger).With("path", path),
	}
}

// WithDebounce sets the debounce duration.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Load reads the file once and reports it, as if it had just changed.
func (w *Watcher) Load() (string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	src := string(data)
	w.mu.Lock()
	w.last = src
	w.mu.Unlock()
	return src, nil
}

// Write stores source in the file without echoing it back through
// onChange.
func (w *Watcher) Write(source string) error {
	w.mu.Lock()
	w.last = source
	w.mu.Unlock()
	if err := os.WriteFile(w.path, []byte(source), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

// Watch blocks until ctx is done. The parent directory is watched so
// editors that replace the file on save are followed.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir, name := filepath.Dir(w.path), filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching source file")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// Replacing editors briefly remove the file.
		w.logger.Debug("source not readable", "error", err)
		return
	}
	src := string(data)
	w.mu.Lock()
	if src == w.last {
		w.mu.Unlock()
		return
	}
	w.last = src
	w.mu.Unlock()

	w.logger.Debug("source changed", "bytes", len(src))
	w.onChange(src)
}
