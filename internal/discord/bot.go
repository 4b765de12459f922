// Package discord connects the command pipeline to a Discord gateway
// session: it routes interactions into the handler, answers them from the
// dispatch events and keeps the slash commands published.
package discord

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/module"
	"github.com/rs/zerolog"
)

type BotOptions struct {
	// SyncCommands publishes slash commands on ready and after reloads.
	SyncCommands bool
	// SyncGuildID scopes the published commands to one guild. Empty means
	// global commands.
	SyncGuildID    string
	GuildBlacklist []string
	Logger         zerolog.Logger
}

// Bot is a Discord bot
type Bot struct {
	session  *discordgo.Session
	commands *command.Handler
	syncer   *Syncer
	opts     BotOptions

	ready atomic.Bool
	kick  chan struct{}

	mu  sync.RWMutex
	ctx context.Context
}

func NewBot(session *discordgo.Session, commands *command.Handler, opts BotOptions) *Bot {
	return &Bot{
		session:  session,
		commands: commands,
		syncer:   NewSyncer(session, opts.Logger),
		opts:     opts,
		kick:     make(chan struct{}, 1),
		ctx:      context.Background(),
	}
}

// Ready reports whether the gateway session has received its Ready event.
func (b *Bot) Ready() bool { return b.ready.Load() }

// WatchRegistry resyncs the slash commands whenever a command is loaded or
// removed once the bot is ready.
func (b *Bot) WatchRegistry(bus *events.Bus) {
	name := b.commands.Name()
	events.Subscribe(bus, func(e module.LoadEvent) {
		if e.Handler == name {
			b.requestSync()
		}
	})
	events.Subscribe(bus, func(e module.RemoveEvent) {
		if e.Handler == name {
			b.requestSync()
		}
	})
}

func (b *Bot) requestSync() {
	if !b.ready.Load() {
		return
	}
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *Bot) syncLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
			if err := b.SyncCommands(ctx); err != nil {
				b.opts.Logger.Error().Err(err).Msg("failed to sync slash commands")
			}
		}
	}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.session.Close()

	go b.syncLoop(ctx)
	<-ctx.Done()
	b.opts.Logger.Info().Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) context() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

// SyncCommands publishes the current single-word commands. A no-op when
// syncing is disabled.
func (b *Bot) SyncCommands(ctx context.Context) error {
	if !b.opts.SyncCommands {
		return nil
	}
	appID := ""
	if b.session.State != nil && b.session.State.User != nil {
		appID = b.session.State.User.ID
	}
	_, err := b.syncer.Sync(ctx, appID, b.opts.SyncGuildID, b.commands.Definitions())
	return err
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.opts.Logger.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Int("commands", b.commands.Len()).
		Msg("discord bot is running")

	b.ready.Store(true)
	b.requestSync()
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	event := b.opts.Logger.Info()
	if slices.Contains(b.opts.GuildBlacklist, g.ID) {
		event = b.opts.Logger.Warn().Bool("blacklisted", true)
	}
	event.Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	outcome, err := b.commands.Handle(b.context(), i)
	if err != nil {
		b.opts.Logger.Error().Err(err).Str("outcome", outcome.String()).Msg("interaction failed")
		return
	}
	b.opts.Logger.Debug().Str("outcome", outcome.String()).Msg("interaction handled")
}
