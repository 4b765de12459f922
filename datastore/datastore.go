// Package datastore is a small JSON key-value store kept in memory and
// flushed to a single file with atomic writes and rotating backups.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var ErrClosed = errors.New("datastore is closed")

// Config holds configuration options for the DataStore.
type Config struct {
	FilePath         string
	AutoSaveInterval time.Duration // zero disables the background saver
	BackupCount      int
	Fs               afero.Fs
	Logger           zerolog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig(filePath string) Config {
	return Config{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
		BackupCount:      3,
		Fs:               afero.NewOsFs(),
		Logger:           zerolog.Nop(),
	}
}

type DataStore struct {
	cfg Config
	fs  afero.Fs

	mu           sync.RWMutex
	data         map[string]json.RawMessage
	lastChecksum string
	backups      int
	closed       bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the store at filePath with the default configuration.
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig opens or creates the store file and starts the saver.
func NewWithConfig(cfg Config) (*DataStore, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("datastore: file path cannot be empty")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	if err := cfg.Fs.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create directory: %w", err)
	}

	ds := &DataStore{cfg: cfg, fs: cfg.Fs, data: make(map[string]json.RawMessage)}

	_, err := ds.fs.Stat(cfg.FilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := ds.writeFileAtomic([]byte("{}")); err != nil {
			return nil, fmt.Errorf("datastore: create %s: %w", cfg.FilePath, err)
		}
	case err != nil:
		return nil, fmt.Errorf("datastore: stat %s: %w", cfg.FilePath, err)
	default:
		if err := ds.load(); err != nil {
			return nil, fmt.Errorf("datastore: load %s: %w", cfg.FilePath, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ds.cancel = cancel
	if cfg.AutoSaveInterval > 0 {
		ds.wg.Add(1)
		go ds.autoSave(ctx)
	}
	return ds, nil
}

// Put stores value under key, encoded as JSON.
func (ds *DataStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("datastore: encode %q: %w", key, err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	ds.data[key] = raw
	return nil
}

// Get decodes the value under key into dst. It reports false when the key
// is absent.
func (ds *DataStore) Get(key string, dst any) (bool, error) {
	ds.mu.RLock()
	raw, ok := ds.data[key]
	closed := ds.closed
	ds.mu.RUnlock()

	if closed {
		return false, ErrClosed
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("datastore: decode %q: %w", key, err)
	}
	return true, nil
}

func (ds *DataStore) Delete(key string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	delete(ds.data, key)
}

// Keys returns every key, sorted.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := make([]string, 0, len(ds.data))
	for k := range ds.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Flush writes pending changes to disk now.
func (ds *DataStore) Flush() error {
	ds.mu.RLock()
	closed := ds.closed
	ds.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return ds.save()
}

// Close stops the saver and writes a final snapshot. Further calls are
// no-ops.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return nil
	}
	ds.closed = true
	ds.mu.Unlock()

	ds.cancel()
	ds.wg.Wait()
	return ds.save()
}

// Stats returns statistics about the store.
func (ds *DataStore) Stats() map[string]any {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	var size int
	for _, v := range ds.data {
		size += len(v)
	}
	return map[string]any{
		"keys":      len(ds.data),
		"bytes":     size,
		"file_path": ds.cfg.FilePath,
		"saved":     ds.lastChecksum != "",
	}
}

func (ds *DataStore) save() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	data, err := json.MarshalIndent(ds.data, "", "  ")
	if err != nil {
		return fmt.Errorf("datastore: marshal: %w", err)
	}
	sum := checksum(data)
	if sum == ds.lastChecksum {
		return nil
	}

	if ds.cfg.BackupCount > 0 {
		if err := ds.backup(); err != nil {
			ds.cfg.Logger.Warn().Err(err).Str("file", ds.cfg.FilePath).Msg("backup failed")
		}
	}
	if err := ds.writeFileAtomic(data); err != nil {
		return err
	}
	written, err := afero.ReadFile(ds.fs, ds.cfg.FilePath)
	if err != nil {
		return fmt.Errorf("datastore: verify: %w", err)
	}
	if checksum(written) != sum {
		return errors.New("datastore: verify: checksum mismatch")
	}

	ds.lastChecksum = sum
	return nil
}

func (ds *DataStore) load() error {
	data, err := afero.ReadFile(ds.fs, ds.cfg.FilePath)
	if err != nil {
		return err
	}
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	ds.data = m
	ds.lastChecksum = checksum(data)
	return nil
}

func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmp := ds.cfg.FilePath + ".tmp"
	f, err := ds.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("datastore: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		ds.fs.Remove(tmp)
		return fmt.Errorf("datastore: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		ds.fs.Remove(tmp)
		return fmt.Errorf("datastore: sync temp file: %w", err)
	}
	f.Close()

	if err := ds.fs.Rename(tmp, ds.cfg.FilePath); err != nil {
		ds.fs.Remove(tmp)
		return fmt.Errorf("datastore: rename temp file: %w", err)
	}
	return nil
}

func (ds *DataStore) backup() error {
	current, err := afero.ReadFile(ds.fs, ds.cfg.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	ds.backups++
	name := fmt.Sprintf("%s.backup.%s.%04d", ds.cfg.FilePath, time.Now().Format("20060102_150405"), ds.backups%10000)
	if err := afero.WriteFile(ds.fs, name, current, 0o644); err != nil {
		return err
	}
	ds.pruneBackups()
	return nil
}

// pruneBackups keeps the newest BackupCount backups. Backup names sort by
// creation time.
func (ds *DataStore) pruneBackups() {
	matches, err := afero.Glob(ds.fs, ds.cfg.FilePath+".backup.*")
	if err != nil || len(matches) <= ds.cfg.BackupCount {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-ds.cfg.BackupCount] {
		if err := ds.fs.Remove(old); err != nil {
			ds.cfg.Logger.Warn().Err(err).Str("file", old).Msg("remove backup failed")
		}
	}
}

func (ds *DataStore) autoSave(ctx context.Context) {
	defer ds.wg.Done()

	ticker := time.NewTicker(ds.cfg.AutoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ds.save(); err != nil {
				ds.cfg.Logger.Error().Err(err).Msg("auto-save failed")
			}
		}
	}
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
