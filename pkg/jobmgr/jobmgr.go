// Package jobmgr runs named background jobs (module watchers, cooldown
// sweeps) with cancellation and lifecycle logging.
//
//	jm := jobmgr.NewManager(logger)
//	_ = jm.Start(ctx, "watch:commands", w.Run)
//	defer jm.StopAll()
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a running unit of work.
type Job struct {
	Name    string
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{logger: logger, jobs: make(map[string]*Job)}
}

// Start runs fn in its own goroutine under a context derived from parent.
// Names are unique among running jobs. A job ending with context.Canceled
// counts as stopped, not failed.
func (m *Manager) Start(parent context.Context, name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("job %q is already running", name)
	}
	ctx, cancel := context.WithCancel(parent)
	job := &Job{Name: name, Started: time.Now(), cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()

		m.logger.Debug().Str("job", name).Msg("job running")
		err := fn(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.Error().Err(err).Str("job", name).Msg("job failed")
		default:
			m.logger.Debug().Str("job", name).Dur("ran", time.Since(job.Started)).Msg("job done")
		}

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels a running job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q is not running", name)
	}

	job.cancel()
	<-job.done
	return nil
}

// StopAll cancels every job and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, job := range m.jobs {
		job.cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// List returns the names of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Status summarises the running jobs for humans.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return "Running jobs: " + strings.Join(active, ", ")
}
