// Package status serves a small read-only HTTP view of the running bot:
// a liveness probe and a JSON summary of the loaded modules.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/inhibitor"
	"github.com/rs/zerolog"
)

// Source is what the status page reports on. Any field may be nil.
type Source struct {
	Commands   *command.Handler
	Inhibitors *inhibitor.Handler[*command.Context]
	Ready      func() bool
	Jobs       func() []string
	Started    time.Time
}

type Report struct {
	Ready      bool                `json:"ready"`
	Uptime     string              `json:"uptime"`
	Commands   int                 `json:"commands"`
	Inhibitors int                 `json:"inhibitors"`
	Categories map[string][]string `json:"categories"`
	Jobs       []string            `json:"jobs"`
}

// Snapshot collects the current Report.
func (s Source) Snapshot() Report {
	r := Report{Categories: map[string][]string{}, Jobs: []string{}}
	if s.Ready != nil {
		r.Ready = s.Ready()
	}
	if !s.Started.IsZero() {
		r.Uptime = time.Since(s.Started).Round(time.Second).String()
	}
	if s.Commands != nil {
		r.Commands = s.Commands.Len()
		for _, cat := range s.Commands.Categories() {
			ids := make([]string, 0, cat.Len())
			for _, m := range cat.Modules() {
				ids = append(ids, m.ID())
			}
			sort.Strings(ids)
			r.Categories[cat.ID()] = ids
		}
	}
	if s.Inhibitors != nil {
		r.Inhibitors = s.Inhibitors.Len()
	}
	if s.Jobs != nil {
		r.Jobs = append(r.Jobs, s.Jobs()...)
	}
	return r
}

// Handler routes /healthz and /status.
func Handler(src Source, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if src.Ready != nil && !src.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n")) //nolint:errcheck
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(src.Snapshot()); err != nil {
			logger.Warn().Err(err).Msg("failed to write status")
		}
	})
	return mux
}

// RunServer serves the status page on addr until ctx is cancelled.
func RunServer(ctx context.Context, addr string, src Source, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(src, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info().Str("addr", addr).Msg("status server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
