// Package watch reports changes to module package files under a directory.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before OnChange fires.
const DefaultDebounce = 300 * time.Millisecond

// Config holds the parameters for a Watcher.
type Config struct {
	// Root is watched recursively. New directories are added as they appear.
	Root string

	// Pattern is a filepath.Match glob applied to file base names. Empty
	// matches every file.
	Pattern string

	// Debounce coalesces bursts of events. Zero uses DefaultDebounce.
	Debounce time.Duration

	// OnChange receives the changed paths once the debounce window closes.
	OnChange func(ctx context.Context, changed []string)

	// OnError receives non-fatal watcher errors. Nil discards them.
	OnError func(err error)
}

// Watcher runs a debounced fsnotify loop.
type Watcher struct {
	cfg Config
	fsw *fsnotify.Watcher
}

// New creates a watcher and registers every directory under cfg.Root.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("watch: invalid pattern %q: %w", cfg.Pattern, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w := &Watcher{cfg: cfg, fsw: fsw}

	err = filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			cfg.OnError(fmt.Errorf("watch: skipping %s: %w", path, err))
			return nil
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch: register %s: %w", cfg.Root, err)
	}
	return w, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
	)
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		changed := make([]string, 0, len(pending))
		for p := range pending {
			changed = append(changed, p)
		}
		clear(pending)
		mu.Unlock()
		if len(changed) > 0 && w.cfg.OnChange != nil {
			w.cfg.OnChange(ctx, changed)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: event channel closed")
			}
			if evt.Has(fsnotify.Create) {
				w.addIfDir(evt.Name)
			}
			if !w.matches(evt.Name) {
				continue
			}

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.cfg.Debounce, fire)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: error channel closed")
			}
			w.cfg.OnError(err)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	if w.cfg.Pattern == "" {
		return true
	}
	ok, _ := filepath.Match(w.cfg.Pattern, filepath.Base(path))
	return ok
}

func (w *Watcher) addIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.cfg.OnError(fmt.Errorf("watch: add %s: %w", path, err))
	}
}
