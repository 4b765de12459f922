// Package watch keeps module registries in step with their source
// directories. Changes are debounced and replayed as SyncFile calls.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 300 * time.Millisecond

var defaultIgnores = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// Target receives file changes. module.Handler implements it.
type Target interface {
	SyncFile(path string, removed bool) error
}

// Config holds the parameters of a Watcher.
type Config struct {
	// Dir is watched recursively. Paths handed to Target are Dir joined with
	// the path of the file below it, the same form the loader lists.
	Dir string
	// Patterns select the files that matter. Empty means all files.
	Patterns []string
	// Debounce is the quiet period before changes are replayed. Zero means 300ms.
	Debounce time.Duration
	Target   Target
	Logger   zerolog.Logger
}

// Watcher replays changes below a directory onto a Target. Run must be
// called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	debounce time.Duration
	started  atomic.Bool
}

func New(cfg Config) (*Watcher, error) {
	if cfg.Target == nil {
		return nil, errors.New("watch: no target")
	}
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("watch: invalid pattern %q", p)
		}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w := &Watcher{cfg: cfg, fsw: fsw, debounce: debounce}
	if err := w.addDirectories(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled. It returns nil on
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		for _, path := range changed {
			w.sync(path)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.cfg.Logger.Warn().Err(err).Msg("close fsnotify watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed")
			}
			if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			if !w.matches(evt.Name) {
				continue
			}

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed")
			}
			w.cfg.Logger.Warn().Err(err).Str("dir", w.cfg.Dir).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) sync(path string) {
	info, err := os.Stat(path)
	removed := errors.Is(err, fs.ErrNotExist)
	if err == nil && info.IsDir() {
		return
	}

	log := w.cfg.Logger.With().Str("path", path).Bool("removed", removed).Logger()
	if err := w.cfg.Target.SyncFile(path, removed); err != nil {
		log.Error().Err(err).Msg("sync module source")
		return
	}
	log.Info().Msg("module source synced")
}

func (w *Watcher) addDirectories() error {
	err := filepath.WalkDir(w.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.cfg.Logger.Warn().Err(err).Str("path", path).Msg("skipping inaccessible path")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(path); rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", w.cfg.Dir, err)
	}
	return nil
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.ignored(w.rel(path)+"/") {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.cfg.Logger.Warn().Err(err).Str("path", path).Msg("watch new directory")
	}
}

func (w *Watcher) ignored(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, p := range defaultIgnores {
		if ok, _ := doublestar.Match(p, slashed); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.cfg.Dir, path)
	if err != nil {
		return path
	}
	return rel
}

// matches checks path, relative to Dir, against the patterns.
func (w *Watcher) matches(path string) bool {
	rel := w.rel(path)
	if w.ignored(rel) {
		return false
	}
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	slashed := filepath.ToSlash(rel)
	for _, p := range w.cfg.Patterns {
		if ok, _ := doublestar.Match(p, slashed); ok {
			return true
		}
	}
	return false
}
