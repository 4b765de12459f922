package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/pkg/inhibitor"
	"github.com/keshon/modkit/pkg/module"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/keshon/modkit/pkg/command"

// Outcome is the terminal state of a dispatch.
type Outcome int

const (
	// Declined means the interaction was not run: no such command, a block,
	// a cooldown, or a command that returned an error.
	Declined Outcome = iota
	// Handled means the command ran, or was rejected because its lock key was
	// held.
	Handled
	// Failed means dispatch broke before execution: an inhibitor, permission
	// or lock key error.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Declined:
		return "declined"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Module configures the underlying registry. Its Client defaults to Client.
	Module module.Options
	Client Client
	// Inhibitors is consulted in the all, pre and post phases. Nil means none.
	Inhibitors *inhibitor.Handler[*Context]

	// BlockClient rejects interactions authored by the bot itself.
	BlockClient bool
	// BlockBots rejects interactions authored by other bots.
	BlockBots bool
	// SkipBuiltInPostInhibitors runs permission checks after the post phase
	// inhibitors instead of before. Owner and channel checks always run first.
	SkipBuiltInPostInhibitors bool

	// IgnorePermissions applies to commands without their own rule.
	IgnorePermissions IgnoreFunc
	// IgnoreCooldown applies to commands without their own rule.
	IgnoreCooldown IgnoreFunc
	// DefaultCooldown applies to commands without their own cooldown.
	DefaultCooldown time.Duration

	// ExecTimeout bounds a single execution. When it expires the lock key is
	// released and the invocation reported as an error; the command itself
	// only sees its context cancelled. Zero means no limit.
	ExecTimeout time.Duration
	Middlewares []Middleware
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Handler is the registry of commands and the dispatcher of interactions.
type Handler struct {
	*module.Handler[Command]

	opts      HandlerOptions
	tracer    trace.Tracer
	cooldowns *cooldowns

	mu    sync.RWMutex
	names map[string]Command
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Module.Name == "" {
		opts.Module.Name = "command"
	}
	if opts.Module.Client == nil && opts.Client != nil {
		opts.Module.Client = opts.Client
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	h := &Handler{
		Handler:   module.NewHandler[Command](opts.Module),
		opts:      opts,
		tracer:    opts.Tracer,
		cooldowns: newCooldowns(),
		names:     make(map[string]Command),
	}
	h.SetHooks(module.Hooks[Command]{Register: h.index, Deregister: h.unindex})
	return h
}

// Inhibitors returns the inhibitor registry consulted by the handler.
func (h *Handler) Inhibitors() *inhibitor.Handler[*Context] { return h.opts.Inhibitors }

func (h *Handler) index(c Command) error {
	names := append([]string{c.Name()}, c.Aliases()...)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range names {
		if other, ok := h.names[n]; ok {
			return fmt.Errorf("%w: %q of command %q is taken by %q", module.ErrAliasConflict, n, c.ID(), other.ID())
		}
	}
	for _, n := range names {
		h.names[n] = c
	}
	return nil
}

func (h *Handler) unindex(c Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for n, other := range h.names {
		if other == c {
			delete(h.names, n)
		}
	}
}

// Lookup finds a command by name or alias.
func (h *Handler) Lookup(name string) (Command, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.names[normalizeName(name)]
	return c, ok
}

// Definitions returns the slash command schemas of the top level commands,
// sorted by name.
func (h *Handler) Definitions() []*discordgo.ApplicationCommand {
	var out []*discordgo.ApplicationCommand
	for _, c := range h.Modules() {
		if strings.Contains(c.Name(), " ") {
			continue
		}
		out = append(out, c.Definition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolve finds the command for data, preferring the most qualified name.
// It also returns the qualified name.
func (h *Handler) resolve(data discordgo.ApplicationCommandInteractionData) (Command, string) {
	base := normalizeName(data.Name)
	group, sub := invokedPath(data)

	var candidates []string
	switch {
	case group != "" && sub != "":
		candidates = append(candidates, base+" "+group+" "+sub, base+" "+group)
	case sub != "":
		candidates = append(candidates, base+" "+sub)
	}
	candidates = append(candidates, base)

	for _, n := range candidates {
		if c, ok := h.Lookup(n); ok {
			return c, candidates[0]
		}
	}
	return nil, candidates[0]
}

// Handle dispatches an application command interaction. Other interaction
// types are declined without notifications. The returned error is non-nil
// only for failures nobody listens to on EventError.
func (h *Handler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (Outcome, error) {
	if ic == nil || ic.Interaction == nil {
		return Declined, nil
	}
	data, ok := ic.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok {
		return Declined, nil
	}

	cmd, name := h.resolve(data)
	if cmd == nil {
		h.Logger().Debug().Str("command", name).Msg("command not found")
		h.Bus().Emit(CommandNotFoundEvent{Interaction: ic, Name: name})
		return Declined, nil
	}

	c := newContext(ic, data, h.opts.Client)
	c.Command = cmd
	c.Name = name

	ctx, span := h.tracer.Start(ctx, "command "+name, trace.WithAttributes(
		attribute.String("command.id", cmd.ID()),
		attribute.String("discord.guild_id", c.GuildID),
		attribute.String("discord.channel_id", c.ChannelID),
		attribute.String("discord.user_id", c.AuthorID()),
	))
	defer span.End()

	outcome, err := h.dispatch(ctx, c, cmd)
	span.SetAttributes(attribute.String("command.outcome", outcome.String()))
	return outcome, err
}

func (h *Handler) dispatch(ctx context.Context, c *Context, cmd Command) (Outcome, error) {
	reason, err := h.testAll(ctx, c, cmd)
	if err != nil {
		return h.fail(ctx, c, cmd, err, Failed)
	}
	if reason != "" {
		h.blockMessage(c, reason)
		return Declined, nil
	}

	reason, err = h.test(ctx, inhibitor.PhasePre, c, cmd)
	if err != nil {
		return h.fail(ctx, c, cmd, err, Failed)
	}
	if reason != "" {
		h.blockMessage(c, reason)
		return Declined, nil
	}

	blocked, err := h.testPost(ctx, c, cmd)
	if err != nil {
		return h.fail(ctx, c, cmd, err, Failed)
	}
	if blocked || h.onCooldown(c, cmd) {
		return Declined, nil
	}

	c.Options = normalizeOptions(c.Data, cmd.Definition())
	return h.run(ctx, c, cmd)
}

func (h *Handler) test(ctx context.Context, phase inhibitor.Phase, c *Context, cmd Command) (string, error) {
	if h.opts.Inhibitors == nil {
		return "", nil
	}
	return h.opts.Inhibitors.Test(ctx, phase, c, cmd)
}

func (h *Handler) testAll(ctx context.Context, c *Context, cmd Command) (string, error) {
	switch {
	case c.Author == nil:
		return ReasonAuthorNotFound, nil
	case h.opts.BlockClient && c.Client != nil && c.Author.ID == c.Client.SelfID():
		return ReasonClient, nil
	case h.opts.BlockBots && c.Author.Bot:
		return ReasonBot, nil
	}
	return h.test(ctx, inhibitor.PhaseAll, c, cmd)
}

// testPost runs the post phase and reports whether the invocation was
// blocked. Blocks are emitted here.
func (h *Handler) testPost(ctx context.Context, c *Context, cmd Command) (bool, error) {
	if reason := builtInPost(c, cmd); reason != "" {
		h.blockCommand(c, cmd, reason)
		return true, nil
	}

	if !h.opts.SkipBuiltInPostInhibitors {
		if blocked, err := h.testPermissions(ctx, c, cmd); err != nil || blocked {
			return blocked, err
		}
	}
	reason, err := h.test(ctx, inhibitor.PhasePost, c, cmd)
	if err != nil {
		return false, err
	}
	if reason != "" {
		h.blockCommand(c, cmd, reason)
		return true, nil
	}
	if h.opts.SkipBuiltInPostInhibitors {
		return h.testPermissions(ctx, c, cmd)
	}
	return false, nil
}

func builtInPost(c *Context, cmd Command) string {
	cfg := cmd.Config()
	if cfg.OwnerOnly && (c.Client == nil || !c.Client.IsOwner(c.AuthorID())) {
		return ReasonOwner
	}
	switch {
	case cfg.Channel == ChannelGuild && !c.InGuild():
		return ReasonGuild
	case cfg.Channel == ChannelDM && c.InGuild():
		return ReasonDM
	}
	return ""
}

func (h *Handler) testPermissions(ctx context.Context, c *Context, cmd Command) (bool, error) {
	cfg := cmd.Config()

	if !cfg.ClientPermissions.IsZero() {
		var selfID string
		if c.Client != nil {
			selfID = c.Client.SelfID()
		}
		missing, err := checkPermissions(ctx, c, cfg.ClientPermissions, selfID)
		if err != nil {
			return false, fmt.Errorf("client permissions of %q: %w", cmd.ID(), err)
		}
		if missing != nil {
			h.missingPermissions(c, cmd, PermissionsClient, missing)
			return true, nil
		}
	}

	if !cfg.UserPermissions.IsZero() {
		ignore := cfg.IgnorePermissions
		if ignore == nil {
			ignore = h.opts.IgnorePermissions
		}
		if ignore != nil && ignore(c) {
			return false, nil
		}
		missing, err := checkPermissions(ctx, c, cfg.UserPermissions, c.AuthorID())
		if err != nil {
			return false, fmt.Errorf("user permissions of %q: %w", cmd.ID(), err)
		}
		if missing != nil {
			h.missingPermissions(c, cmd, PermissionsUser, missing)
			return true, nil
		}
	}
	return false, nil
}

func (h *Handler) onCooldown(c *Context, cmd Command) bool {
	cfg := cmd.Config()
	window := cfg.Cooldown
	if window == 0 {
		window = h.opts.DefaultCooldown
	}
	if window <= 0 {
		return false
	}
	ignore := cfg.IgnoreCooldown
	if ignore == nil {
		ignore = h.opts.IgnoreCooldown
	}
	if ignore != nil && ignore(c) {
		return false
	}

	remaining := h.cooldowns.take(cmd.ID(), c.AuthorID(), window, cfg.Ratelimit)
	if remaining <= 0 {
		return false
	}
	h.Logger().Debug().Str("command", cmd.ID()).Str("user", c.AuthorID()).Dur("remaining", remaining).Msg("command on cooldown")
	h.Bus().Emit(CooldownEvent{Context: c, Command: cmd, Remaining: remaining})
	return true
}

// run takes the lock, executes the command and releases the lock on every
// path.
func (h *Handler) run(ctx context.Context, c *Context, cmd Command) (Outcome, error) {
	if lock := cmd.Config().Lock; lock != nil {
		key, err := lock(ctx, c, c.Options)
		if err != nil {
			return h.fail(ctx, c, cmd, fmt.Errorf("lock key of %q: %w", cmd.ID(), err), Failed)
		}
		if key != "" {
			locks := cmd.Locks()
			if locks == nil {
				return h.fail(ctx, c, cmd, fmt.Errorf("command %q has a lock strategy but no lock set", cmd.ID()), Failed)
			}
			if !locks.acquire(key) {
				h.Logger().Debug().Str("command", cmd.ID()).Str("key", key).Msg("command locked")
				h.Bus().Emit(CommandLockedEvent{Context: c, Command: cmd, Key: key})
				return Handled, nil
			}
			defer locks.release(key)
		}
	}

	h.Bus().Emit(CommandStartedEvent{Context: c, Command: cmd, Options: c.Options})
	start := time.Now()
	result, err := h.execute(ctx, c, cmd)
	if err != nil {
		return h.fail(ctx, c, cmd, fmt.Errorf("command %q: %w", cmd.ID(), err), Declined)
	}
	h.Bus().Emit(CommandFinishedEvent{
		Context:  c,
		Command:  cmd,
		Options:  c.Options,
		Result:   result,
		Duration: time.Since(start),
	})
	return Handled, nil
}

func (h *Handler) execute(ctx context.Context, c *Context, cmd Command) (any, error) {
	exec := Chain(recovered(cmd), h.opts.Middlewares...)
	if h.opts.ExecTimeout <= 0 {
		return exec(ctx, c)
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.ExecTimeout)
	defer cancel()

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := exec(ctx, c)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("gave up after %s: %w", h.opts.ExecTimeout, ctx.Err())
	}
}

func recovered(cmd Command) ExecFunc {
	return func(ctx context.Context, c *Context) (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return cmd.Exec(ctx, c)
	}
}

func (h *Handler) blockMessage(c *Context, reason string) {
	h.Logger().Debug().Str("command", c.Name).Str("user", c.AuthorID()).Str("reason", reason).Msg("message blocked")
	h.Bus().Emit(MessageBlockedEvent{Context: c, Reason: reason})
}

func (h *Handler) blockCommand(c *Context, cmd Command, reason string) {
	h.Logger().Debug().Str("command", cmd.ID()).Str("user", c.AuthorID()).Str("reason", reason).Msg("command blocked")
	h.Bus().Emit(CommandBlockedEvent{Context: c, Command: cmd, Reason: reason})
}

func (h *Handler) missingPermissions(c *Context, cmd Command, kind string, missing []string) {
	h.Logger().Debug().Str("command", cmd.ID()).Str("kind", kind).Strs("missing", missing).Msg("missing permissions")
	h.Bus().Emit(MissingPermissionsEvent{Context: c, Command: cmd, Kind: kind, Missing: missing})
}

// fail routes err to the error listeners, or returns it when there are none.
func (h *Handler) fail(ctx context.Context, c *Context, cmd Command, err error, outcome Outcome) (Outcome, error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	h.Logger().Warn().Err(err).Str("command", cmd.ID()).Str("outcome", outcome.String()).Msg("dispatch failed")
	if h.Bus().Count(EventError) == 0 {
		return outcome, err
	}
	h.Bus().Emit(ErrorEvent{Err: err, Context: c, Command: cmd})
	return outcome, nil
}
