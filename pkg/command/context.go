package command

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Client is what the handler needs from the Discord side.
type Client interface {
	// SelfID is the user id of the bot.
	SelfID() string
	IsOwner(userID string) bool
	// Permissions resolves the effective permissions of userID in channelID.
	Permissions(ctx context.Context, userID, channelID string) (int64, error)
}

// Context is built once per interaction and passed through every stage of
// the dispatch. It is never shared between invocations.
type Context struct {
	Interaction *discordgo.InteractionCreate
	Data        discordgo.ApplicationCommandInteractionData

	// Author is nil when the interaction carries no user.
	Author    *discordgo.User
	Member    *discordgo.Member
	GuildID   string
	ChannelID string

	Client Client
	// Command is the resolved target.
	Command Command
	// Name is the qualified name the interaction was invoked with.
	Name string
	// Options is filled once the invocation passed every check.
	Options Options
}

// InGuild reports whether the interaction happened in a guild channel.
func (c *Context) InGuild() bool { return c.GuildID != "" }

// AuthorID is the id of the invoking user, or "" when unknown.
func (c *Context) AuthorID() string {
	if c.Author == nil {
		return ""
	}
	return c.Author.ID
}

func newContext(ic *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, client Client) *Context {
	c := &Context{
		Interaction: ic,
		Data:        data,
		Member:      ic.Member,
		GuildID:     ic.GuildID,
		ChannelID:   ic.ChannelID,
		Client:      client,
	}
	switch {
	case ic.Member != nil && ic.Member.User != nil:
		c.Author = ic.Member.User
	case ic.User != nil:
		c.Author = ic.User
	}
	return c
}
