package datastore

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

type record struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func memConfig(fs afero.Fs) Config {
	cfg := DefaultConfig("/data/store.json")
	cfg.Fs = fs
	cfg.AutoSaveInterval = 0
	return cfg
}

func TestPutGetPersist(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	ds, err := NewWithConfig(memConfig(fs))
	if err != nil {
		t.Fatal(err)
	}

	if err := ds.Put("g1", record{Name: "one", Items: []string{"a"}}); err != nil {
		t.Fatal(err)
	}
	var got record
	ok, err := ds.Get("g1", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Name != "one" || len(got.Items) != 1 {
		t.Errorf("got %+v", got)
	}
	if ok, _ := ds.Get("missing", &got); ok {
		t.Error("missing key reported present")
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put("g2", record{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}

	reopened, err := NewWithConfig(memConfig(fs))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	var again record
	if ok, err := reopened.Get("g1", &again); err != nil || !ok || again.Name != "one" {
		t.Errorf("after reopen: %+v, %v, %v", again, ok, err)
	}
	if keys := reopened.Keys(); len(keys) != 1 || keys[0] != "g1" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestBackupsArePruned(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg := memConfig(fs)
	cfg.BackupCount = 2
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	for i, name := range []string{"a", "b", "c", "d", "e"} {
		if err := ds.Put("k", record{Name: strings.Repeat(name, i+1)}); err != nil {
			t.Fatal(err)
		}
		if err := ds.Flush(); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := afero.Glob(fs, cfg.FilePath+".backup.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Errorf("backups = %v, want 2", backups)
	}
}

func TestInvalidFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/data/store.json", []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWithConfig(memConfig(fs)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
