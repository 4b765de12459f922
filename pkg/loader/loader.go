// Package loader resolves module source files. A source file is a YAML, TOML
// or JSON manifest naming a registered kind; the kind's constructor turns the
// manifest into a module. Files of other types, manifests without a kind and
// manifests of unknown kinds resolve to nothing and are skipped by the
// registry.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/keshon/modkit/pkg/module"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Options configures a FileLoader.
type Options struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Kinds defaults to DefaultKinds.
	Kinds  *Kinds
	Logger zerolog.Logger
}

// FileLoader implements module.Loader. Parsed manifests are cached per path
// until invalidated.
type FileLoader struct {
	fs     afero.Fs
	kinds  *Kinds
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]*Manifest
}

var _ module.Loader = (*FileLoader)(nil)

func New(opts Options) *FileLoader {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Kinds == nil {
		opts.Kinds = DefaultKinds
	}
	return &FileLoader{
		fs:     opts.Fs,
		kinds:  opts.Kinds,
		logger: opts.Logger,
		cache:  make(map[string]*Manifest),
	}
}

// Files lists every regular file under dir, sorted.
func (l *FileLoader) Files(dir string) ([]string, error) {
	var out []string
	err := afero.Walk(l.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// Resolve builds the module described by path, or returns nil for files that
// describe none.
func (l *FileLoader) Resolve(path string) (any, error) {
	m, err := l.manifest(path)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Kind == "" {
		return nil, nil
	}

	ctor, ok := l.kinds.Lookup(m.Kind)
	if !ok {
		l.logger.Debug().Str("path", path).Str("kind", m.Kind).Msg("no constructor registered for kind")
		return nil, nil
	}
	v, err := ctor(m)
	if err != nil {
		return nil, fmt.Errorf("construct %s (%s): %w", path, m.Kind, err)
	}
	return v, nil
}

// Invalidate forgets the cached manifest of path.
func (l *FileLoader) Invalidate(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, path)
}

func (l *FileLoader) manifest(path string) (*Manifest, error) {
	if formatOf(path) == formatNone {
		return nil, nil
	}

	l.mu.Lock()
	m, ok := l.cache[path]
	l.mu.Unlock()
	if ok {
		return m, nil
	}

	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	m, err = parseManifest(path, raw)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[path] = m
	l.mu.Unlock()
	return m, nil
}

// Glob returns a filter accepting paths that match any of the doublestar
// patterns. Paths are matched in slash form.
func Glob(patterns ...string) (module.Filter, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}
	return func(path string) bool {
		if len(patterns) == 0 {
			return true
		}
		slashed := filepath.ToSlash(path)
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, slashed); ok {
				return true
			}
		}
		return false
	}, nil
}
