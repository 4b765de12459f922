package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunFlusher writes the store to disk every interval until ctx is done.
// Run it as a background job alongside the store's own saver when changes
// must reach disk sooner.
func RunFlusher(ctx context.Context, store *Storage, interval time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := store.ds.Flush(); err != nil {
				logger.Error().Err(err).Msg("flush storage")
			}
		}
	}
}
