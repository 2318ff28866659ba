package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"relicforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// SeedWatcher reimports the YAML relic catalog whenever the seed file changes
// on disk. It watches the parent directory rather than the file itself so
// editors that replace the file (write to temp, rename over) keep working.
type SeedWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	store       *Store
	seedPath    string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	// onReload, when set, is called after every reimport attempt.
	onReload func(count int, err error)

	stats SeedWatcherStats
}

// SeedWatcherStats tracks watcher activity for debugging.
type SeedWatcherStats struct {
	Reloads       int
	Errors        int
	LastReload    time.Time
	LastEventPath string
}

// NewSeedWatcher creates a watcher that reimports seedPath into s on change.
// onReload may be nil.
func NewSeedWatcher(seedPath string, s *Store, onReload func(count int, err error)) (*SeedWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &SeedWatcher{
		watcher:     watcher,
		store:       s,
		seedPath:    filepath.Clean(seedPath),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		onReload:    onReload,
	}, nil
}

// Start begins watching the seed file's directory. Non-blocking; the event
// loop runs in a goroutine until Stop or context cancellation.
func (w *SeedWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.seedPath)
	if err := w.watcher.Add(dir); err != nil {
		logging.StoreWarn("SeedWatcher: cannot watch %s: %v", dir, err)
	} else {
		logging.Store("SeedWatcher: watching %s for changes to %s", dir, filepath.Base(w.seedPath))
	}

	go w.run(ctx)

	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *SeedWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.StoreError("SeedWatcher: error closing watcher: %v", err)
	}
	logging.Store("SeedWatcher: stopped")
}

// IsWatching reports whether the event loop is running.
func (w *SeedWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats returns a copy of the watcher statistics.
func (w *SeedWatcher) Stats() SeedWatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *SeedWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Store("SeedWatcher: context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.StoreError("SeedWatcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

// handleEvent records seed file changes for debounced processing. Rapid
// save bursts collapse into a single reimport.
func (w *SeedWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.seedPath {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	logging.StoreDebug("SeedWatcher: %s event for %s", event.Op, event.Name)

	w.mu.Lock()
	w.stats.LastEventPath = event.Name
	w.debounceMap[w.seedPath] = time.Now()
	w.mu.Unlock()
}

func (w *SeedWatcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	due := false
	if eventTime, ok := w.debounceMap[w.seedPath]; ok && now.Sub(eventTime) >= w.debounceDur {
		delete(w.debounceMap, w.seedPath)
		due = true
	}
	w.mu.Unlock()

	if due {
		w.reload(ctx)
	}
}

func (w *SeedWatcher) reload(ctx context.Context) {
	count, err := ImportSeed(ctx, w.store, w.seedPath)

	w.mu.Lock()
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.Reloads++
		w.stats.LastReload = time.Now()
	}
	cb := w.onReload
	w.mu.Unlock()

	if err != nil {
		logging.StoreWarn("SeedWatcher: reimport failed, keeping previous catalog: %v", err)
	} else {
		logging.Store("SeedWatcher: reimported %d relics from %s", count, w.seedPath)
	}

	if cb != nil {
		cb(count, err)
	}
}
