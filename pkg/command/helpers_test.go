package command

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/module"
)

type fakeClient struct {
	self    string
	owners  []string
	perms   map[string]int64
	permErr error
}

func (f *fakeClient) SelfID() string { return f.self }

func (f *fakeClient) IsOwner(id string) bool { return slices.Contains(f.owners, id) }

func (f *fakeClient) Permissions(_ context.Context, userID, _ string) (int64, error) {
	if f.permErr != nil {
		return 0, f.permErr
	}
	return f.perms[userID], nil
}

var lifecycle = []string{
	EventCommandNotFound,
	EventMessageBlocked,
	EventCommandBlocked,
	EventCommandLocked,
	EventCommandStarted,
	EventCommandFinished,
	EventMissingPermissions,
	EventCooldown,
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) add(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventName()
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

// last returns the most recent event named name.
func (r *recorder) last(t *testing.T, name string) events.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventName() == name {
			return r.events[i]
		}
	}
	t.Fatalf("no %s event in %v", name, r.events)
	return nil
}

func newTestHandler(t *testing.T, opts HandlerOptions, cmds ...Command) (*Handler, *recorder) {
	t.Helper()
	if opts.Module.Bus == nil {
		opts.Module.Bus = events.NewBus()
	}
	if opts.Client == nil {
		opts.Client = &fakeClient{self: "bot", owners: []string{"owner"}}
	}
	rec := &recorder{}
	for _, name := range lifecycle {
		opts.Module.Bus.On(name, rec.add)
	}

	h := NewHandler(opts)
	for _, c := range cmds {
		if _, err := h.Load(c); err != nil {
			t.Fatalf("Load %s: %v", c.Name(), err)
		}
	}
	return h, rec
}

type interaction struct {
	name    string
	guildID string
	user    *discordgo.User
	options []*discordgo.ApplicationCommandInteractionDataOption
}

func (i interaction) build() *discordgo.InteractionCreate {
	ic := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   i.guildID,
		ChannelID: "channel",
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    i.name,
			Options: i.options,
		},
	}}
	if i.guildID != "" {
		ic.Member = &discordgo.Member{User: i.user}
	} else {
		ic.User = i.user
	}
	return ic
}

// invoke builds a guild interaction of name by userID.
func invoke(name, userID string) *discordgo.InteractionCreate {
	return interaction{name: name, guildID: "guild", user: &discordgo.User{ID: userID}}.build()
}

func reply(text string) ExecFunc {
	return func(context.Context, *Context) (any, error) { return text, nil }
}

var _ module.Module = (*Func)(nil)
