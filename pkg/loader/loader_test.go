package loader

import (
	"errors"
	"testing"

	"github.com/keshon/modkit/pkg/module"
	"github.com/spf13/afero"
)

type echoModule struct {
	module.Base
	Text string
}

type echoSpec struct {
	ID       string `yaml:"id" toml:"id" json:"id"`
	Category string `yaml:"category" toml:"category" json:"category"`
	Text     string `yaml:"text" toml:"text" json:"text"`
}

func newTestLoader(t *testing.T, files map[string]string) (*FileLoader, *int) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, body := range files {
		if err := afero.WriteFile(fs, path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	calls := 0
	kinds := NewKinds()
	kinds.Register("echo", func(m *Manifest) (any, error) {
		calls++
		var s echoSpec
		if err := m.Decode(&s); err != nil {
			return nil, err
		}
		return &echoModule{Base: module.NewBase(s.ID, s.Category), Text: s.Text}, nil
	})
	kinds.Register("broken", func(m *Manifest) (any, error) {
		return nil, errors.New("boom")
	})
	return New(Options{Fs: fs, Kinds: kinds}), &calls
}

func TestResolveFormats(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"mods/a.yaml": "kind: echo\nid: a\ntext: from yaml\n",
		"mods/b.toml": "kind = \"echo\"\nid = \"b\"\ntext = \"from toml\"\n",
		"mods/c.json": `{"kind":"echo","id":"c","text":"from json"}`,
	}
	l, _ := newTestLoader(t, files)

	tests := []struct {
		path string
		id   string
		text string
	}{
		{"mods/a.yaml", "a", "from yaml"},
		{"mods/b.toml", "b", "from toml"},
		{"mods/c.json", "c", "from json"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, err := l.Resolve(tt.path)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			m, ok := v.(*echoModule)
			if !ok {
				t.Fatalf("Resolve returned %T", v)
			}
			if m.ID() != tt.id || m.Text != tt.text {
				t.Errorf("got id=%q text=%q, want id=%q text=%q", m.ID(), m.Text, tt.id, tt.text)
			}
		})
	}
}

func TestResolveSkipsNonModules(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"mods/readme.md":   "# notes",
		"mods/nokind.yaml": "id: x\n",
		"mods/other.yaml":  "kind: unknown\nid: y\n",
	}
	l, _ := newTestLoader(t, files)

	for path := range files {
		v, err := l.Resolve(path)
		if err != nil {
			t.Errorf("Resolve(%s): %v", path, err)
		}
		if v != nil {
			t.Errorf("Resolve(%s) = %v, want nil", path, v)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	l, _ := newTestLoader(t, map[string]string{
		"mods/bad.yaml":    "kind: [echo\n",
		"mods/broken.yaml": "kind: broken\nid: z\n",
	})

	if _, err := l.Resolve("mods/bad.yaml"); err == nil {
		t.Error("malformed manifest: expected error")
	}
	if _, err := l.Resolve("mods/broken.yaml"); err == nil {
		t.Error("failing constructor: expected error")
	}
	if _, err := l.Resolve("mods/missing.yaml"); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestCacheAndInvalidate(t *testing.T) {
	t.Parallel()

	l, _ := newTestLoader(t, map[string]string{"mods/a.yaml": "kind: echo\nid: a\ntext: one\n"})

	if _, err := l.Resolve("mods/a.yaml"); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(l.fs, "mods/a.yaml", []byte("kind: echo\nid: a\ntext: two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, _ := l.Resolve("mods/a.yaml")
	if got := v.(*echoModule).Text; got != "one" {
		t.Errorf("cached Resolve text = %q, want one", got)
	}

	l.Invalidate("mods/a.yaml")
	v, _ = l.Resolve("mods/a.yaml")
	if got := v.(*echoModule).Text; got != "two" {
		t.Errorf("Resolve after Invalidate text = %q, want two", got)
	}
}

func TestFilesWalksRecursively(t *testing.T) {
	t.Parallel()

	l, _ := newTestLoader(t, map[string]string{
		"mods/a.yaml":          "kind: echo\nid: a\n",
		"mods/fun/b.yaml":      "kind: echo\nid: b\n",
		"mods/fun/deep/c.toml": "kind = \"echo\"\nid = \"c\"\n",
		"elsewhere/d.yaml":     "kind: echo\nid: d\n",
	})

	files, err := l.Files("mods")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("Files = %v, want 3 entries", files)
	}
	if _, err := l.Files("nope"); err == nil {
		t.Error("missing dir: expected error")
	}
}

func TestLoadAllThroughHandler(t *testing.T) {
	t.Parallel()

	l, _ := newTestLoader(t, map[string]string{
		"mods/util/a.yaml": "kind: echo\nid: a\n",
		"mods/fun/b.json":  `{"kind":"echo","id":"b","category":"games"}`,
		"mods/fun/c.txt":   "ignored",
	})
	h := module.NewHandler[*echoModule](module.Options{Name: "echo", Loader: l, AutoCategorize: true})

	filter, err := Glob("**/*.yaml", "**/*.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.LoadAll(t.Context(), "mods", filter); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
	a, _ := h.Get("a")
	if a.CategoryID() != "util" {
		t.Errorf("a category = %q, want util", a.CategoryID())
	}
	b, _ := h.Get("b")
	if b.CategoryID() != "games" {
		t.Errorf("b category = %q, want games", b.CategoryID())
	}
}

func TestGlob(t *testing.T) {
	t.Parallel()

	f, err := Glob("**/*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		want bool
	}{
		{"mods/a.yaml", true},
		{"mods/x/y/b.yaml", true},
		{"mods/a.toml", false},
	}
	for _, tt := range tests {
		if got := f(tt.path); got != tt.want {
			t.Errorf("Glob(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if _, err := Glob("[unterminated"); err == nil {
		t.Error("invalid pattern: expected error")
	}
}
