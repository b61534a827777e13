// Package watcher watches the Claude Code projects directory and raises a
// debounced change signal whenever a session log is written or created.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"claudeview/internal/logs"
)

// DefaultDelay is how long the watcher waits for writes to settle. A running
// agent appends several lines per turn in quick succession.
const DefaultDelay = 300 * time.Millisecond

// =============================================================================
// FILE WATCHER - Monitors JSONL Files
// =============================================================================

// FileWatcher watches the projects root and every project directory under
// it, including directories created after Start.
type FileWatcher struct {
	watcher     *fsnotify.Watcher
	root        string
	onChange    func()
	debounced   func(func())
	logger      *zap.Logger
	watchedDirs map[string]bool
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewFileWatcher creates a watcher for root. onChange runs on its own
// goroutine once per burst of writes.
func NewFileWatcher(root string, delay time.Duration, onChange func(), logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileWatcher{
		watcher:     w,
		root:        root,
		onChange:    onChange,
		debounced:   debounce.New(delay),
		logger:      logger,
		watchedDirs: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start creates the root if needed, watches it and its project directories,
// and begins processing events.
func (fw *FileWatcher) Start() error {
	if err := os.MkdirAll(fw.root, 0755); err != nil {
		return fmt.Errorf("create projects dir: %w", err)
	}
	if err := fw.addDir(fw.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(fw.root)
	if err != nil {
		return fmt.Errorf("read projects dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := fw.addDir(filepath.Join(fw.root, entry.Name())); err != nil {
			fw.logger.Warn("cannot watch project dir", zap.String("dir", entry.Name()), zap.Error(err))
		}
	}

	go fw.run()
	fw.logger.Info("watching projects", zap.String("root", fw.root), zap.Int("dirs", fw.dirCount()))
	return nil
}

func (fw *FileWatcher) addDir(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.watchedDirs[dir] {
		return nil
	}
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	fw.watchedDirs[dir] = true
	return nil
}

func (fw *FileWatcher) dirCount() int {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return len(fw.watchedDirs)
}

// IsWatching reports whether dir is under watch.
func (fw *FileWatcher) IsWatching(dir string) bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.watchedDirs[dir]
}

// =============================================================================
// EVENT LOOP
// =============================================================================

func (fw *FileWatcher) run() {
	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == fw.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addDir(event.Name); err != nil {
				fw.logger.Warn("cannot watch new project dir", zap.String("dir", event.Name), zap.Error(err))
				return
			}
			fw.logger.Debug("watching new project dir", zap.String("dir", event.Name))
			// files may have landed before the watch was added
			fw.trigger()
			return
		}
	}

	// a deleted or renamed session drops its thread from the listing
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !logs.IsSessionFile(event.Name) {
		return
	}
	fw.trigger()
}

func (fw *FileWatcher) trigger() {
	if fw.onChange == nil {
		return
	}
	fw.debounced(func() {
		if fw.ctx.Err() != nil {
			return
		}
		fw.onChange()
	})
}

// =============================================================================
// CLEANUP
// =============================================================================

// Close stops the watcher and releases resources.
func (fw *FileWatcher) Close() error {
	fw.cancel()
	return fw.watcher.Close()
}
