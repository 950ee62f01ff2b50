package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ModerationWatcher reloads the moderation rule file when it changes
type ModerationWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(ModerationConfig)
	logger   *zap.Logger
	debounce time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewModerationWatcher creates a watcher for the rule file at path.
// onChange receives every valid new rule set.
func NewModerationWatcher(path string, onChange func(ModerationConfig), logger *zap.Logger) (*ModerationWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so atomic saves (rename over the file) are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch moderation rules: %w", err)
	}

	return &ModerationWatcher{
		path:     path,
		watcher:  watcher,
		onChange: onChange,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for changes
func (w *ModerationWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("Moderation rules watcher started", zap.String("path", w.path))
}

// Stop stops watching and waits for the loop to exit
func (w *ModerationWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		<-w.done
		w.logger.Info("Moderation rules watcher stopped")
	})
}

func (w *ModerationWatcher) watchLoop() {
	defer close(w.done)

	// Debounce timer to avoid multiple reloads
	var (
		debounceTimer *time.Timer
		reloads       sync.WaitGroup
	)
	defer func() {
		if debounceTimer != nil && debounceTimer.Stop() {
			reloads.Done()
		}
		reloads.Wait()
	}()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil && debounceTimer.Stop() {
				reloads.Done()
			}
			reloads.Add(1)
			debounceTimer = time.AfterFunc(w.debounce, func() {
				defer reloads.Done()
				w.reload()
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *ModerationWatcher) reload() {
	rules, err := LoadModerationFile(w.path)
	if err != nil {
		w.logger.Error("Invalid moderation rules, keeping current", zap.Error(err))
		return
	}
	w.logger.Info("Moderation rules reloaded",
		zap.String("path", w.path),
		zap.String("default", rules.Default),
		zap.Int("rules", len(rules.Rules)),
	)
	w.onChange(rules)
}
