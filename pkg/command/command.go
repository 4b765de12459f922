// Package command implements command modules and the handler that routes
// Discord application-command interactions to them through the inhibitor
// phases, permission checks, cooldowns and per-command locks.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/pkg/module"
)

// Channel restricts where a command may run.
type Channel string

const (
	ChannelAny   Channel = ""
	ChannelGuild Channel = "guild"
	ChannelDM    Channel = "dm"
)

// Config is the static description of a command. It must not change after
// the command is registered.
type Config struct {
	// Name is matched case-insensitively. It may hold a subcommand path such
	// as "music play".
	Name        string
	Aliases     []string
	Category    string
	Description string

	OwnerOnly bool
	Channel   Channel

	ClientPermissions Permissions
	UserPermissions   Permissions
	// IgnorePermissions lets matching users skip the user permission check.
	// Nil falls back to the handler's rule.
	IgnorePermissions IgnoreFunc

	// Lock serialises invocations sharing a key. See LockGuild, LockChannel
	// and LockUser.
	Lock LockFunc

	// Cooldown is the window in which a user may run the command Ratelimit
	// times. Zero falls back to the handler default.
	Cooldown       time.Duration
	Ratelimit      int
	IgnoreCooldown IgnoreFunc

	// Definition is the slash command schema. It drives option defaults and
	// is what gets registered with Discord. Nil means a bare command.
	Definition *discordgo.ApplicationCommand
}

// Command is a module that can be dispatched to. Embed *Base and implement Exec.
type Command interface {
	module.Module
	Name() string
	Aliases() []string
	Config() Config
	Definition() *discordgo.ApplicationCommand
	// Locks is nil for commands without a lock strategy.
	Locks() *Locker
	Exec(ctx context.Context, c *Context) (any, error)
}

// Base holds the configuration and runtime state shared by every command.
type Base struct {
	module.Base
	cfg   Config
	locks *Locker
}

// NewBase normalises cfg and returns the base for a command. The module id
// is the lower-cased name.
func NewBase(cfg Config) *Base {
	cfg.Name = normalizeName(cfg.Name)
	aliases := make([]string, 0, len(cfg.Aliases))
	for _, a := range cfg.Aliases {
		if a = normalizeName(a); a != "" && a != cfg.Name {
			aliases = append(aliases, a)
		}
	}
	cfg.Aliases = aliases
	if cfg.Ratelimit <= 0 {
		cfg.Ratelimit = 1
	}

	b := &Base{Base: module.NewBase(cfg.Name, cfg.Category), cfg: cfg}
	if cfg.Lock != nil {
		b.locks = newLocker()
	}
	return b
}

func (b *Base) Name() string      { return b.cfg.Name }
func (b *Base) Aliases() []string { return append([]string(nil), b.cfg.Aliases...) }
func (b *Base) Config() Config    { return b.cfg }
func (b *Base) Locks() *Locker    { return b.locks }

// Definition returns the slash command schema, synthesising a bare one when
// none was configured.
func (b *Base) Definition() *discordgo.ApplicationCommand {
	if b.cfg.Definition != nil {
		return b.cfg.Definition
	}
	desc := b.cfg.Description
	if desc == "" {
		desc = "No description"
	}
	return &discordgo.ApplicationCommand{Name: b.cfg.Name, Description: desc}
}

// ExecFunc is the execution entry point of a command.
type ExecFunc func(ctx context.Context, c *Context) (any, error)

// Func is a command whose Exec is a plain function.
type Func struct {
	*Base
	exec ExecFunc
}

// New returns a command running exec.
func New(cfg Config, exec ExecFunc) *Func {
	return &Func{Base: NewBase(cfg), exec: exec}
}

func (f *Func) Exec(ctx context.Context, c *Context) (any, error) {
	if f.exec == nil {
		return nil, fmt.Errorf("command %q has no exec function", f.Name())
	}
	return f.exec(ctx, c)
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
