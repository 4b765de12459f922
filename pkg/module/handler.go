package module

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/util"
	"github.com/rs/zerolog"
)

const defaultLoadConcurrency = 8

// Options configures a Handler.
type Options struct {
	// Name labels the handler in errors, logs and events ("command", "inhibitor").
	Name string
	// Loader resolves source files. Without one only Register and Load with a
	// module value work.
	Loader Loader
	// Client is handed to every registered module.
	Client any
	// Bus receives load and remove notifications.
	Bus *events.Bus
	// AutoCategorize files modules that kept the default category under the
	// name of the directory their source lives in.
	AutoCategorize bool
	// Concurrency bounds LoadAll. Zero means 8.
	Concurrency int
	Logger      zerolog.Logger
}

// Hooks let a specialised registry keep its own indexes in step with the
// module set. Both run while the registry is locked.
type Hooks[T Module] struct {
	// Register may veto a registration by returning an error.
	Register   func(T) error
	Deregister func(T)
}

type entry[T Module] struct {
	mod T
	seq uint64
}

// Handler owns the modules and categories of one kind of pluggable unit.
// It is safe for concurrent use.
type Handler[T Module] struct {
	opts  Options
	hooks Hooks[T]

	mu         sync.RWMutex
	modules    map[string]entry[T]
	categories map[string]*Category
	seq        uint64
}

// NewHandler returns an empty Handler.
func NewHandler[T Module](opts Options) *Handler[T] {
	if opts.Name == "" {
		opts.Name = "module"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultLoadConcurrency
	}
	return &Handler[T]{
		opts:       opts,
		modules:    make(map[string]entry[T]),
		categories: make(map[string]*Category),
	}
}

// SetHooks installs the registration hooks. Call it before loading anything.
func (h *Handler[T]) SetHooks(hooks Hooks[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = hooks
}

func (h *Handler[T]) Name() string            { return h.opts.Name }
func (h *Handler[T]) Bus() *events.Bus        { return h.opts.Bus }
func (h *Handler[T]) Logger() *zerolog.Logger { return &h.opts.Logger }

// Load registers src, which is either a module of type T or the path of a
// source file. A file that resolves to nothing, or to something that is not a
// T, is skipped: Load returns the zero T and a nil error.
func (h *Handler[T]) Load(src any) (T, error) {
	var zero T
	switch v := src.(type) {
	case string:
		m, _, err := h.loadFile(v, false)
		return m, err
	case T:
		if err := h.Register(v, ""); err != nil {
			return zero, err
		}
		h.emitLoad(v, false)
		return v, nil
	default:
		return zero, fmt.Errorf("%w: %s handler got %T", ErrInvalidClassToHandle, h.opts.Name, src)
	}
}

// loadFile reports loaded=false for files that hold no module of type T.
func (h *Handler[T]) loadFile(path string, reload bool) (m T, loaded bool, err error) {
	if h.opts.Loader == nil {
		return m, false, fmt.Errorf("%s handler: no loader configured for %s", h.opts.Name, path)
	}

	v, err := h.opts.Loader.Resolve(path)
	if err != nil {
		h.opts.Loader.Invalidate(path)
		return m, false, fmt.Errorf("%s handler: resolve %s: %w", h.opts.Name, path, err)
	}
	m, ok := v.(T)
	if v == nil || !ok {
		h.opts.Loader.Invalidate(path)
		h.opts.Logger.Debug().Str("handler", h.opts.Name).Str("path", path).Msg("skipping file without module")
		return m, false, nil
	}

	if err := h.Register(m, path); err != nil {
		var zero T
		return zero, false, err
	}
	h.emitLoad(m, reload)
	return m, true, nil
}

// LoadAll loads every file under dir accepted by filter (all files when nil).
// Files load concurrently; the first failure fails the batch once the loads
// already running have returned.
func (h *Handler[T]) LoadAll(ctx context.Context, dir string, filter Filter) error {
	if h.opts.Loader == nil {
		return fmt.Errorf("%s handler: no loader configured", h.opts.Name)
	}
	files, err := h.opts.Loader.Files(dir)
	if err != nil {
		return fmt.Errorf("%s handler: list %s: %w", h.opts.Name, dir, err)
	}

	picked := make([]string, 0, len(files))
	for _, f := range files {
		if filter == nil || filter(f) {
			picked = append(picked, f)
		}
	}

	return util.Parallel(ctx, picked, h.opts.Concurrency, func(_ context.Context, path string) error {
		_, _, err := h.loadFile(path, false)
		return err
	})
}

// Register files m under its category and attaches its back-references.
func (h *Handler[T]) Register(m T, source string) error {
	meta := m.Meta()
	id := m.ID()
	if id == "" {
		return fmt.Errorf("%s handler: module has an empty id", h.opts.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.modules[id]; ok {
		return fmt.Errorf("%w: %s %q", ErrAlreadyLoaded, h.opts.Name, id)
	}

	catID := meta.categoryID
	if h.opts.AutoCategorize && source != "" && catID == DefaultCategory {
		if dir := filepath.Base(filepath.Dir(source)); dir != "." && dir != string(filepath.Separator) {
			catID = dir
		}
	}

	if h.hooks.Register != nil {
		if err := h.hooks.Register(m); err != nil {
			return err
		}
	}

	meta.categoryID = catID
	cat, ok := h.categories[catID]
	if !ok {
		cat = newCategory(catID, h)
		h.categories[cat.id] = cat
	}

	meta.Attach(Attachment{Category: cat, Source: source, Client: h.opts.Client, Owner: h})
	cat.add(m)

	h.seq++
	h.modules[id] = entry[T]{mod: m, seq: h.seq}
	return nil
}

// Deregister removes m from the registry and its category and drops the
// loader's cached copy of its source.
func (h *Handler[T]) Deregister(m T) {
	meta := m.Meta()
	if meta.source != "" && h.opts.Loader != nil {
		h.opts.Loader.Invalidate(meta.source)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.modules[m.ID()]
	if !ok || cur.mod.Meta() != meta {
		return
	}
	delete(h.modules, m.ID())
	if cat := meta.category; cat != nil {
		cat.remove(m.ID())
	}
	if h.hooks.Deregister != nil {
		h.hooks.Deregister(m)
	}
}

// Remove deregisters the module with the given id.
func (h *Handler[T]) Remove(id string) (T, error) {
	m, ok := h.Get(id)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", ErrModuleNotFound, h.opts.Name, id)
	}
	h.Deregister(m)
	h.opts.Logger.Debug().Str("handler", h.opts.Name).Str("id", id).Msg("module removed")
	h.opts.Bus.Emit(RemoveEvent{Handler: h.opts.Name, Module: m})
	return m, nil
}

// Reload replaces the module with a fresh copy read from its source.
func (h *Handler[T]) Reload(id string) (T, error) {
	var zero T
	m, ok := h.Get(id)
	if !ok {
		return zero, fmt.Errorf("%w: %s %q", ErrModuleNotFound, h.opts.Name, id)
	}
	source := m.Meta().Source()
	if source == "" {
		return zero, fmt.Errorf("%w: %s %q", ErrNotReloadable, h.opts.Name, id)
	}

	h.Deregister(m)
	fresh, loaded, err := h.loadFile(source, true)
	if err != nil {
		return zero, err
	}
	if !loaded {
		return zero, fmt.Errorf("%w: %s no longer provides a %s", ErrModuleNotFound, source, h.opts.Name)
	}
	return fresh, nil
}

// ReloadAll reloads every reloadable module.
func (h *Handler[T]) ReloadAll() error {
	var errs []error
	for _, m := range h.reloadable() {
		if _, err := h.Reload(m.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveAll removes every reloadable module. Modules registered from code stay.
func (h *Handler[T]) RemoveAll() error {
	var errs []error
	for _, m := range h.reloadable() {
		if _, err := h.Remove(m.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReloadModule and RemoveModule implement Owner.
func (h *Handler[T]) ReloadModule(id string) error {
	_, err := h.Reload(id)
	return err
}

func (h *Handler[T]) RemoveModule(id string) error {
	_, err := h.Remove(id)
	return err
}

// SyncFile brings the registry in line with a changed source file: a removed
// file drops its module, a known file is reloaded, a new file is loaded.
func (h *Handler[T]) SyncFile(path string, removed bool) error {
	m, known := h.BySource(path)
	switch {
	case removed && known:
		_, err := h.Remove(m.ID())
		return err
	case removed:
		if h.opts.Loader != nil {
			h.opts.Loader.Invalidate(path)
		}
		return nil
	case known:
		_, err := h.Reload(m.ID())
		return err
	default:
		_, _, err := h.loadFile(path, false)
		return err
	}
}

func (h *Handler[T]) Get(id string) (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.modules[id]
	return e.mod, ok
}

// BySource returns the module loaded from path.
func (h *Handler[T]) BySource(path string) (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.modules {
		if e.mod.Meta().Source() == path {
			return e.mod, true
		}
	}
	var zero T
	return zero, false
}

// Modules returns every module in registration order.
func (h *Handler[T]) Modules() []T {
	h.mu.RLock()
	es := make([]entry[T], 0, len(h.modules))
	for _, e := range h.modules {
		es = append(es, e)
	}
	h.mu.RUnlock()

	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })
	out := make([]T, len(es))
	for i, e := range es {
		out[i] = e.mod
	}
	return out
}

func (h *Handler[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.modules)
}

// Categories returns every category, sorted by id.
func (h *Handler[T]) Categories() []*Category {
	h.mu.RLock()
	out := make([]*Category, 0, len(h.categories))
	for _, c := range h.categories {
		out = append(out, c)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// FindCategory looks a category up by id, ignoring case.
func (h *Handler[T]) FindCategory(name string) (*Category, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.categories[name]; ok {
		return c, true
	}
	for id, c := range h.categories {
		if strings.EqualFold(id, name) {
			return c, true
		}
	}
	return nil, false
}

func (h *Handler[T]) reloadable() []T {
	var out []T
	for _, m := range h.Modules() {
		if m.Meta().Reloadable() {
			out = append(out, m)
		}
	}
	return out
}

func (h *Handler[T]) emitLoad(m T, reload bool) {
	h.opts.Logger.Debug().
		Str("handler", h.opts.Name).
		Str("id", m.ID()).
		Str("category", m.CategoryID()).
		Bool("reload", reload).
		Msg("module loaded")
	h.opts.Bus.Emit(LoadEvent{Handler: h.opts.Name, Module: m, Reload: reload})
}
