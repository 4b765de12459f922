package discord

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/pkg/retrylimit"
	"github.com/rs/zerolog"
)

// commandOverwriter is the part of *discordgo.Session the syncer calls.
type commandOverwriter interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Syncer publishes slash command definitions. Each scope (a guild, or ""
// for global commands) is rewritten only when its definitions changed since
// the last successful sync.
type Syncer struct {
	api     commandOverwriter
	retry   retrylimit.Config
	limiter *retrylimit.AdaptiveLimiter
	logger  zerolog.Logger

	mu     sync.Mutex
	hashes map[string]string
}

func NewSyncer(api commandOverwriter, logger zerolog.Logger) *Syncer {
	retry := retrylimit.DefaultConfig()
	retry.Logger = logger
	return &Syncer{
		api:     api,
		retry:   retry,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 40, 1, 0.5),
		logger:  logger,
		hashes:  make(map[string]string),
	}
}

// Sync overwrites the commands of guildID with defs. It reports whether a
// request was made.
func (s *Syncer) Sync(ctx context.Context, appID, guildID string, defs []*discordgo.ApplicationCommand) (bool, error) {
	if appID == "" {
		return false, fmt.Errorf("sync commands: unknown application id")
	}
	sum := hashCommands(defs)

	s.mu.Lock()
	unchanged := s.hashes[guildID] == sum
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug().Str("guild", guildID).Msg("slash commands unchanged")
		return false, nil
	}

	err := retrylimit.Do(ctx, s.retry, s.limiter, func(ctx context.Context) error {
		_, err := s.api.ApplicationCommandBulkOverwrite(appID, guildID, defs, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return true, fmt.Errorf("sync %d commands to %q: %w", len(defs), guildID, err)
	}

	s.mu.Lock()
	s.hashes[guildID] = sum
	s.mu.Unlock()
	s.logger.Info().Str("guild", guildID).Int("commands", len(defs)).Msg("slash commands synced")
	return true, nil
}

// Forget drops the cached hash of a scope so the next Sync always writes.
func (s *Syncer) Forget(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, guildID)
}

// hashCommands is a deterministic digest of the fields Discord stores for
// each command, independent of definition and option order.
func hashCommands(defs []*discordgo.ApplicationCommand) string {
	normalized := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		if d == nil {
			continue
		}
		entry := map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"type":        d.Type,
		}
		if d.DefaultMemberPermissions != nil {
			entry["default_member_permissions"] = *d.DefaultMemberPermissions
		}
		if len(d.Options) > 0 {
			entry["options"] = normalizeOptions(d.Options)
		}
		normalized = append(normalized, entry)
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i]["name"].(string) < normalized[j]["name"].(string)
	})

	data, _ := json.Marshal(normalized)
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]any {
	out := make([]map[string]any, len(opts))
	for i, o := range opts {
		entry := map[string]any{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]any, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]any{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
