package discord

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/command"
	"github.com/rs/zerolog"
)

// HistoryMiddleware records every guild invocation in the store before the
// command runs. Storage failures are logged and never block the command.
func HistoryMiddleware(store *storage.Storage, logger zerolog.Logger) command.Middleware {
	return func(next command.ExecFunc) command.ExecFunc {
		return func(ctx context.Context, c *command.Context) (any, error) {
			if store != nil && c.InGuild() {
				if err := store.AppendCommandToHistory(c.GuildID, historyRecord(c, time.Now())); err != nil {
					logger.Warn().Err(err).Str("guild", c.GuildID).Str("command", c.Name).Msg("failed to record command")
				}
			}
			return next(ctx, c)
		}
	}
}

func historyRecord(c *command.Context, at time.Time) storage.CommandHistoryRecord {
	rec := storage.CommandHistoryRecord{
		ChannelID: c.ChannelID,
		UserID:    c.AuthorID(),
		Command:   c.Name,
		Param:     formatOptions(c.Options),
		Datetime:  at,
	}
	if c.Author != nil {
		rec.Username = c.Author.Username
	}
	return rec
}

// formatOptions renders the options the user actually set as sorted
// key=value pairs.
func formatOptions(opts command.Options) string {
	keys := make([]string, 0, len(opts))
	for k, v := range opts {
		if v == nil || k == command.OptionSubcommand || k == command.OptionSubcommandGroup {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, display(opts[k]))
	}
	return strings.Join(parts, " ")
}

func display(v any) any {
	type identified interface{ Mention() string }
	if m, ok := v.(identified); ok {
		return m.Mention()
	}
	return v
}
