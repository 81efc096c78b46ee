package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Wilson-G/Backlog.md/internal/loader"
)

// FileChange mirrors the raw watch feed: a path plus what happened to it.
type FileChange struct {
	Path string
	Kind FileChangeKind
}

// FileChangeKind categorizes a filesystem event.
type FileChangeKind string

// File change kinds.
const (
	FileCreated  FileChangeKind = "created"
	FileModified FileChangeKind = "modified"
	FileDeleted  FileChangeKind = "deleted"
)

// dirWatcher monitors the backlog data directory for changes using
// filesystem events, falling back to modtime polling when fsnotify is
// unavailable (some filesystems don't support it).
type dirWatcher struct {
	watcher      *fsnotify.Watcher
	watchPaths   []string
	pollingMode  bool
	pollInterval time.Duration
	onChange     func(FileChange)
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex

	// polling state
	lastModTimes map[string]time.Time
}

// newDirWatcher creates a watcher over the entity collection directories
// under dataDir. onChange is invoked from a background goroutine for each
// detected change.
func newDirWatcher(dataDir string, pollInterval time.Duration, onChange func(FileChange)) *dirWatcher {
	dw := &dirWatcher{
		pollInterval: pollInterval,
		onChange:     onChange,
		lastModTimes: make(map[string]time.Time),
	}

	watchPaths := []string{dataDir}
	for _, sub := range []string{
		loader.TasksDir,
		loader.DocsDir,
		loader.DecisionsDir,
		loader.MilestonesDir,
		loader.ArchivedMilestonesDir,
	} {
		p := filepath.Join(dataDir, sub)
		if stat, err := os.Stat(p); err == nil && stat.IsDir() {
			watchPaths = append(watchPaths, p)
		}
	}
	dw.watchPaths = watchPaths

	for _, p := range watchPaths {
		dw.snapshotDir(p)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		dw.pollingMode = true
		return dw
	}

	watchedAny := false
	for _, p := range watchPaths {
		if err := watcher.Add(p); err != nil {
			continue
		}
		watchedAny = true
	}
	if !watchedAny {
		_ = watcher.Close()
		dw.pollingMode = true
		return dw
	}

	dw.watcher = watcher
	return dw
}

// IsPolling reports whether the watcher is in polling fallback mode.
func (dw *dirWatcher) IsPolling() bool {
	return dw.pollingMode
}

// Start begins monitoring. Returns immediately; monitoring happens in a
// background goroutine.
func (dw *dirWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	dw.cancel = cancel

	if dw.pollingMode {
		dw.startPolling(ctx)
	} else {
		dw.startFSWatch(ctx)
	}
}

func (dw *dirWatcher) startFSWatch(ctx context.Context) {
	dw.wg.Add(1)
	go func() {
		defer dw.wg.Done()

		for {
			select {
			case event, ok := <-dw.watcher.Events:
				if !ok {
					return
				}
				change, ok := translate(event)
				if !ok {
					continue
				}
				dw.onChange(change)

			case _, ok := <-dw.watcher.Errors:
				if !ok {
					return
				}
				// Errors are transient; keep watching on the last
				// good subscription.

			case <-ctx.Done():
				return
			}
		}
	}()
}

// scratchFile reports whether a path is one of the loader's atomic
// write artifacts, which the watch feed must not surface.
func scratchFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".lock") || strings.Contains(name, ".tmp")
}

// translate maps an fsnotify event onto the watch feed vocabulary.
func translate(event fsnotify.Event) (FileChange, bool) {
	if scratchFile(event.Name) {
		return FileChange{}, false
	}
	switch {
	case event.Op&fsnotify.Create != 0:
		return FileChange{Path: event.Name, Kind: FileCreated}, true
	case event.Op&fsnotify.Write != 0:
		return FileChange{Path: event.Name, Kind: FileModified}, true
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return FileChange{Path: event.Name, Kind: FileDeleted}, true
	}
	return FileChange{}, false
}

func (dw *dirWatcher) startPolling(ctx context.Context) {
	dw.wg.Add(1)
	go func() {
		defer dw.wg.Done()

		ticker := time.NewTicker(dw.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, ch := range dw.checkForChanges() {
					dw.onChange(ch)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// snapshotDir records the current modtimes of files in a directory.
func (dw *dirWatcher) snapshotDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || scratchFile(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil {
			dw.lastModTimes[filepath.Join(dir, e.Name())] = info.ModTime()
		}
	}
}

// checkForChanges diffs current modtimes against the last poll.
func (dw *dirWatcher) checkForChanges() []FileChange {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var changes []FileChange
	seen := make(map[string]bool)

	for _, dir := range dw.watchPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || scratchFile(e.Name()) {
				continue
			}
			p := filepath.Join(dir, e.Name())
			seen[p] = true
			info, err := e.Info()
			if err != nil {
				continue
			}
			last, exists := dw.lastModTimes[p]
			switch {
			case !exists:
				changes = append(changes, FileChange{Path: p, Kind: FileCreated})
			case !info.ModTime().Equal(last):
				changes = append(changes, FileChange{Path: p, Kind: FileModified})
			}
			dw.lastModTimes[p] = info.ModTime()
		}
	}

	for p := range dw.lastModTimes {
		if !seen[p] {
			delete(dw.lastModTimes, p)
			changes = append(changes, FileChange{Path: p, Kind: FileDeleted})
		}
	}
	return changes
}

// Close stops the watcher and releases resources. Safe to call twice.
func (dw *dirWatcher) Close() error {
	if dw.cancel != nil {
		dw.cancel()
		dw.cancel = nil
	}
	dw.wg.Wait()
	if dw.watcher != nil {
		err := dw.watcher.Close()
		dw.watcher = nil
		return err
	}
	return nil
}
