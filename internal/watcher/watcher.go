// Package watcher provides recursive file system watching with debouncing
// for workflow roots.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/autohub/internal/log"
)

// Watcher monitors workflow roots and signals when candidate files change.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	roots      []string
	extensions map[string]bool
	debounce   time.Duration
	onChange   chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	Roots []string
	// Extensions limits events to files with these extensions (".py").
	// Empty means every file.
	Extensions  []string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(roots []string) Config {
	return Config{
		Roots:       roots,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a new root watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}
	debounce := cfg.DebounceDur
	if debounce <= 0 {
		debounce = DefaultConfig(nil).DebounceDur
	}

	return &Watcher{
		fsWatcher:  fsw,
		roots:      cfg.Roots,
		extensions: exts,
		debounce:   debounce,
		onChange:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching every existing root and its subdirectories.
// Returns a channel that receives one signal per burst of changes.
// Missing roots are skipped.
func (w *Watcher) Start() (<-chan struct{}, error) {
	watched := 0
	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			log.Warn(log.CatWatcher, "Skipping root", "root", root)
			continue
		}
		if err := w.addTree(root); err != nil {
			return nil, err
		}
		watched++
	}
	if watched == 0 {
		return nil, errors.New("no existing roots to watch")
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipName(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		return nil
	})
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			// New directories are watched so nested workflows are noticed
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipName(info.Name()) {
					if err := w.addTree(event.Name); err != nil {
						log.ErrorErr(log.CatWatcher, "Watch new directory", err, "path", event.Name)
					}
					w.mark(&timer, &pending)
					continue
				}
			}

			if !w.isRelevantEvent(event) {
				continue
			}
			log.Debug(log.CatWatcher, "Change detected", "path", event.Name, "op", event.Op.String())
			w.mark(&timer, &pending)

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send - drop if channel full
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "fsnotify error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// mark starts or resets the debounce timer.
func (w *Watcher) mark(timer **time.Timer, pending *bool) {
	if *timer == nil {
		*timer = time.NewTimer(w.debounce)
	} else {
		if !(*timer).Stop() {
			select {
			case <-(*timer).C:
			default:
			}
		}
		(*timer).Reset(w.debounce)
	}
	*pending = true
}

// isRelevantEvent checks if the event should trigger a rescan.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	base := filepath.Base(event.Name)
	if skipName(base) {
		return false
	}
	// Removed directories carry no extension but still change the catalog
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(base) == "" {
		return true
	}
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(base))]
}

func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
