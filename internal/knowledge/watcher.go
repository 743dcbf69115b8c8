package knowledge

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the retriever when knowledge files change on disk, so
// staff can edit topics without restarting the service.
type Watcher struct {
	retriever *Retriever
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(retriever *Retriever, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(retriever.dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		retriever: retriever,
		watcher:   fw,
		debounce:  500 * time.Millisecond,
		logger:    logger.With("component", "knowledge_watcher"),
	}, nil
}

// Run processes filesystem events until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if base != EntryFile && !strings.HasSuffix(base, ".txt") {
		return
	}
	// Editors write temp files and rename over the original.
	if strings.HasPrefix(base, ".") || strings.Contains(base, ".tmp") || strings.HasSuffix(base, "~") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.retriever.Load(); err != nil {
			w.logger.Error("reload after file change failed", "file", base, "error", err)
			return
		}
		w.logger.Info("knowledge base reloaded", "trigger", base)
	})
}
