package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/loader"
)

// Kind names understood by the loader.
const (
	KindPing     = "ping"
	KindReply    = "reply"
	KindReload   = "reload"
	KindCategory = "category"
	KindHistory  = "history"
)

func init() {
	Register(loader.DefaultKinds)
}

// Register adds the built-in command kinds to kinds.
func Register(kinds *loader.Kinds) {
	kinds.Register(KindPing, newPing)
	kinds.Register(KindReply, newReply)
	kinds.Register(KindReload, newReload)
	kinds.Register(KindCategory, newCategory)
	kinds.Register(KindHistory, newHistory)
}

type storeProvider interface {
	Store() *storage.Storage
}

type sessionProvider interface {
	Session() *discordgo.Session
}

func storeOf(c *command.Context) (*storage.Storage, error) {
	if p, ok := c.Client.(storeProvider); ok && p.Store() != nil {
		return p.Store(), nil
	}
	return nil, fmt.Errorf("command %q: no storage available", c.Name)
}

func embed(title, description string) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: description,
			Color:       EmbedColor,
		}},
	}
}

func ephemeralEmbed(title, description string) *discordgo.InteractionResponseData {
	data := embed(title, description)
	data.Flags = discordgo.MessageFlagsEphemeral
	return data
}
