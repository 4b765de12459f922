package module

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/keshon/modkit/pkg/events"
)

type testModule struct {
	Base
	gen int
}

func newTestModule(id, category string) *testModule {
	return &testModule{Base: NewBase(id, category)}
}

type otherModule struct{ Base }

type fakeLoader struct {
	mu          sync.Mutex
	files       map[string]func() any
	invalidated []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{files: make(map[string]func() any)}
}

func (l *fakeLoader) add(path string, ctor func() any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[path] = ctor
}

func (l *fakeLoader) Files(dir string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for p := range l.files {
		if strings.HasPrefix(p, dir+"/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *fakeLoader) Resolve(path string) (any, error) {
	l.mu.Lock()
	ctor, ok := l.files[path]
	l.mu.Unlock()
	if !ok || ctor == nil {
		return nil, nil
	}
	return ctor(), nil
}

func (l *fakeLoader) Invalidate(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidated = append(l.invalidated, path)
}

func (l *fakeLoader) wasInvalidated(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.invalidated {
		if p == path {
			return true
		}
	}
	return false
}

func newTestHandler(l Loader) (*Handler[*testModule], *events.Bus) {
	bus := events.NewBus()
	h := NewHandler[*testModule](Options{Name: "test", Loader: l, Bus: bus, AutoCategorize: true})
	return h, bus
}

func TestLoadModuleValue(t *testing.T) {
	t.Parallel()

	h, bus := newTestHandler(nil)
	var loads []LoadEvent
	events.Subscribe(bus, func(e LoadEvent) { loads = append(loads, e) })

	m := newTestModule("ping", "")
	if _, err := h.Load(m); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, ok := h.Get("ping"); !ok || got != m {
		t.Fatal("module not registered")
	}
	if m.CategoryID() != DefaultCategory || m.Category() == nil {
		t.Fatalf("category = %q, want %q", m.CategoryID(), DefaultCategory)
	}
	if m.Handler() == nil {
		t.Fatal("owner back-reference not set")
	}
	if len(loads) != 1 || loads[0].Reload {
		t.Fatalf("load events = %+v, want one fresh load", loads)
	}
}

func TestLoadDuplicateID(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(nil)
	first := newTestModule("ping", "")
	if _, err := h.Load(first); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := h.Load(newTestModule("ping", "other"))
	if !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("err = %v, want ErrAlreadyLoaded", err)
	}
	if got, _ := h.Get("ping"); got != first {
		t.Fatal("original module replaced")
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
}

func TestLoadInvalidValue(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(nil)
	if _, err := h.Load(42); !errors.Is(err, ErrInvalidClassToHandle) {
		t.Fatalf("err = %v, want ErrInvalidClassToHandle", err)
	}
}

func TestLoadFileSkipsForeignValues(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	l.add("mods/readme.md", nil)
	l.add("mods/shared.yaml", func() any { return &otherModule{Base: NewBase("shared", "")} })
	h, _ := newTestHandler(l)

	for _, p := range []string{"mods/readme.md", "mods/shared.yaml"} {
		m, err := h.Load(p)
		if err != nil {
			t.Fatalf("Load(%s): %v", p, err)
		}
		if m != nil {
			t.Fatalf("Load(%s) returned %v, want skip", p, m)
		}
		if !l.wasInvalidated(p) {
			t.Fatalf("%s not invalidated after skip", p)
		}
	}
	if h.Len() != 0 {
		t.Fatalf("Len = %d, want 0", h.Len())
	}
}

func TestLoadAllCategorizesByDirectory(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	l.add("mods/util/ping.yaml", func() any { return newTestModule("ping", "") })
	l.add("mods/fun/roll.yaml", func() any { return newTestModule("roll", "") })
	l.add("mods/fun/pinned.yaml", func() any { return newTestModule("pinned", "games") })
	l.add("mods/notes.txt", nil)
	h, _ := newTestHandler(l)

	if err := h.LoadAll(context.Background(), "mods", nil); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}

	util, ok := h.FindCategory("UTIL")
	if !ok || util.Len() != 1 || util.Modules()[0].ID() != "ping" {
		t.Fatalf("util category = %+v", util)
	}
	if c, ok := h.FindCategory("games"); !ok || c.Len() != 1 {
		t.Fatal("declared category not kept")
	}
	ids := make([]string, 0)
	for _, c := range h.Categories() {
		ids = append(ids, c.ID())
	}
	if strings.Join(ids, ",") != "fun,games,util" {
		t.Fatalf("categories = %v", ids)
	}
}

func TestLoadAllFilter(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	l.add("mods/a.yaml", func() any { return newTestModule("a", "") })
	l.add("mods/b.toml", func() any { return newTestModule("b", "") })
	h, _ := newTestHandler(l)

	err := h.LoadAll(context.Background(), "mods", func(p string) bool { return strings.HasSuffix(p, ".yaml") })
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := h.Get("b"); ok {
		t.Fatal("filtered file was loaded")
	}
	if _, ok := h.Get("a"); !ok {
		t.Fatal("accepted file was not loaded")
	}
}

func TestLoadAllFailsOnDuplicate(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	l.add("mods/a.yaml", func() any { return newTestModule("same", "") })
	l.add("mods/b.yaml", func() any { return newTestModule("same", "") })
	h, _ := newTestHandler(l)

	err := h.LoadAll(context.Background(), "mods", nil)
	if !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("err = %v, want ErrAlreadyLoaded", err)
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want exactly one live module", h.Len())
	}
}

func TestReloadWithoutSource(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(newFakeLoader())
	m := newTestModule("ping", "")
	if _, err := h.Load(m); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := h.Reload("ping"); !errors.Is(err, ErrNotReloadable) {
		t.Fatalf("err = %v, want ErrNotReloadable", err)
	}
	if got, ok := h.Get("ping"); !ok || got != m {
		t.Fatal("module deregistered by failed reload")
	}
	if m.Category().Len() != 1 {
		t.Fatal("module dropped from its category")
	}
}

func TestReloadMissing(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(newFakeLoader())
	if _, err := h.Reload("nope"); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("err = %v, want ErrModuleNotFound", err)
	}
}

func TestReloadFromSource(t *testing.T) {
	t.Parallel()

	gen := 0
	l := newFakeLoader()
	l.add("mods/util/ping.yaml", func() any {
		gen++
		m := newTestModule("ping", "")
		m.gen = gen
		return m
	})
	h, bus := newTestHandler(l)
	var reloads int
	events.Subscribe(bus, func(e LoadEvent) {
		if e.Reload {
			reloads++
		}
	})

	first, err := h.Load("mods/util/ping.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fresh, err := h.Reload("ping")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if fresh == first || fresh.gen != 2 {
		t.Fatalf("reload returned generation %d, want a fresh instance", fresh.gen)
	}
	if fresh.Source() != "mods/util/ping.yaml" || fresh.CategoryID() != "util" {
		t.Fatalf("fresh module source=%q category=%q", fresh.Source(), fresh.CategoryID())
	}
	if !l.wasInvalidated("mods/util/ping.yaml") {
		t.Fatal("source cache not invalidated on deregister")
	}
	if c, _ := h.FindCategory("util"); c.Len() != 1 {
		t.Fatalf("category holds %d members, want 1", c.Len())
	}
	if reloads != 1 {
		t.Fatalf("reload events = %d, want 1", reloads)
	}
}

func TestRemoveAllIsIdempotent(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	l.add("mods/a.yaml", func() any { return newTestModule("a", "") })
	l.add("mods/b.yaml", func() any { return newTestModule("b", "") })
	h, bus := newTestHandler(l)
	var removed int
	events.Subscribe(bus, func(RemoveEvent) { removed++ })

	if err := h.LoadAll(context.Background(), "mods", nil); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, err := h.Load(newTestModule("code", "")); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := h.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if err := h.RemoveAll(); err != nil {
		t.Fatalf("second RemoveAll: %v", err)
	}

	if removed != 2 {
		t.Fatalf("remove events = %d, want 2", removed)
	}
	mods := h.Modules()
	if len(mods) != 1 || mods[0].ID() != "code" {
		t.Fatalf("remaining modules = %v, want only the programmatic one", mods)
	}
}

func TestCategoryBulkReload(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	l.add("mods/util/a.yaml", func() any { return newTestModule("a", "") })
	l.add("mods/util/b.yaml", func() any { return newTestModule("b", "") })
	h, _ := newTestHandler(l)
	if err := h.LoadAll(context.Background(), "mods", nil); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	before, _ := h.Get("a")

	c, _ := h.FindCategory("util")
	if err := c.ReloadAll(); err != nil {
		t.Fatalf("ReloadAll: %v", err)
	}
	after, _ := h.Get("a")
	if after == before {
		t.Fatal("category reload kept the old instance")
	}
	if c.Len() != 2 {
		t.Fatalf("category holds %d members, want 2", c.Len())
	}

	if err := c.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if c.Len() != 0 || h.Len() != 0 {
		t.Fatal("category bulk remove left modules behind")
	}
	if _, ok := h.FindCategory("util"); !ok {
		t.Fatal("empty category should persist")
	}
}

func TestSyncFile(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	h, _ := newTestHandler(l)
	path := "mods/util/ping.yaml"

	l.add(path, func() any { return newTestModule("ping", "") })
	if err := h.SyncFile(path, false); err != nil {
		t.Fatalf("SyncFile(create): %v", err)
	}
	first, ok := h.Get("ping")
	if !ok {
		t.Fatal("new file not loaded")
	}

	if err := h.SyncFile(path, false); err != nil {
		t.Fatalf("SyncFile(write): %v", err)
	}
	if again, _ := h.Get("ping"); again == first {
		t.Fatal("changed file not reloaded")
	}

	if err := h.SyncFile(path, true); err != nil {
		t.Fatalf("SyncFile(remove): %v", err)
	}
	if _, ok := h.Get("ping"); ok {
		t.Fatal("removed file still registered")
	}
}

func TestRegisterHookVeto(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(nil)
	veto := errors.New("veto")
	var deregistered []string
	h.SetHooks(Hooks[*testModule]{
		Register: func(m *testModule) error {
			if m.ID() == "bad" {
				return veto
			}
			return nil
		},
		Deregister: func(m *testModule) { deregistered = append(deregistered, m.ID()) },
	})

	if _, err := h.Load(newTestModule("bad", "")); !errors.Is(err, veto) {
		t.Fatalf("err = %v, want veto", err)
	}
	if _, ok := h.FindCategory(DefaultCategory); ok {
		t.Fatal("vetoed module created a category")
	}

	if _, err := h.Load(newTestModule("good", "")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := h.Remove("good"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(deregistered) != 1 || deregistered[0] != "good" {
		t.Fatalf("deregister hook saw %v", deregistered)
	}
}

func TestRegisterHookVetoKeepsCategory(t *testing.T) {
	t.Parallel()

	l := newFakeLoader()
	var rejected *testModule
	l.add("mods/fun/bad.yaml", func() any {
		rejected = newTestModule("bad", "")
		return rejected
	})
	h, _ := newTestHandler(l)
	veto := errors.New("veto")
	h.SetHooks(Hooks[*testModule]{
		Register: func(m *testModule) error { return veto },
	})

	if _, err := h.Load("mods/fun/bad.yaml"); !errors.Is(err, veto) {
		t.Fatalf("err = %v, want veto", err)
	}
	if rejected == nil {
		t.Fatal("loader was not consulted")
	}
	if got := rejected.CategoryID(); got != DefaultCategory {
		t.Fatalf("rejected module category = %q, want %q", got, DefaultCategory)
	}
	if _, ok := h.FindCategory("fun"); ok {
		t.Fatal("vetoed module created a category")
	}
}
