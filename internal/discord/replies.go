package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/events"
	"github.com/rs/zerolog"
)

// Discord drops interaction responses that arrive later than this.
const respondTimeout = 3 * time.Second

// Responder sends the initial response to an interaction.
type Responder func(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error

// SessionResponder answers through the session's REST client.
func SessionResponder(s *discordgo.Session) Responder {
	return func(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
		return s.InteractionRespond(i, resp, discordgo.WithContext(ctx))
	}
}

// RegisterReplies answers interactions from the dispatch events: command
// results publicly, refusals and failures ephemerally.
func RegisterReplies(bus *events.Bus, respond Responder, logger zerolog.Logger) {
	send := func(c *command.Context, data *discordgo.InteractionResponseData) {
		if c == nil || c.Interaction == nil || data == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
		defer cancel()
		err := respond(ctx, c.Interaction.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		})
		if err != nil {
			logger.Warn().Err(err).Str("command", c.Name).Msg("failed to respond")
		}
	}

	events.Subscribe(bus, func(e command.CommandFinishedEvent) {
		send(e.Context, ResponseData(e.Result))
	})
	events.Subscribe(bus, func(e command.CommandBlockedEvent) {
		send(e.Context, ephemeral(blockedText(e.Reason)))
	})
	events.Subscribe(bus, func(e command.MessageBlockedEvent) {
		send(e.Context, ephemeral(blockedText(e.Reason)))
	})
	events.Subscribe(bus, func(e command.CommandLockedEvent) {
		send(e.Context, ephemeral("This command is already running here. Try again when it finishes."))
	})
	events.Subscribe(bus, func(e command.MissingPermissionsEvent) {
		send(e.Context, ephemeral(missingText(e.Kind, e.Missing)))
	})
	events.Subscribe(bus, func(e command.CooldownEvent) {
		send(e.Context, ephemeral(fmt.Sprintf("Slow down! Try again in %s.", roundUp(e.Remaining))))
	})
	events.Subscribe(bus, func(e command.ErrorEvent) {
		logger.Error().Err(e.Err).Msg("command failed")
		send(e.Context, ephemeral("Something went wrong while running this command."))
	})
}

// ResponseData turns a command result into a reply. Nil results send
// nothing.
func ResponseData(result any) *discordgo.InteractionResponseData {
	switch v := result.(type) {
	case nil:
		return nil
	case *discordgo.InteractionResponseData:
		return v
	case *discordgo.MessageEmbed:
		return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{v}}
	case string:
		if v == "" {
			return nil
		}
		return &discordgo.InteractionResponseData{Content: v}
	case fmt.Stringer:
		return &discordgo.InteractionResponseData{Content: v.String()}
	default:
		return &discordgo.InteractionResponseData{Content: fmt.Sprint(v)}
	}
}

func ephemeral(text string) *discordgo.InteractionResponseData {
	if text == "" {
		return nil
	}
	return &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral}
}

// blockedText returns "" for reasons that do not deserve an answer.
func blockedText(reason string) string {
	switch reason {
	case command.ReasonAuthorNotFound, command.ReasonClient, command.ReasonBot:
		return ""
	case command.ReasonOwner:
		return "Only the bot owners can use this command."
	case command.ReasonGuild:
		return "This command only works in a server."
	case command.ReasonDM:
		return "This command only works in direct messages."
	case "blacklist":
		return "This bot is not available in this server."
	case "disabled":
		return "This command category is disabled in this server."
	default:
		return "You can't use this command right now."
	}
}

func missingText(kind string, missing []string) string {
	list := strings.Join(missing, ", ")
	if kind == command.PermissionsClient {
		if list == "" {
			return "I'm not allowed to run this command here."
		}
		return "I need these permissions here: " + list + "."
	}
	if list == "" {
		return "You're not allowed to use this command."
	}
	return "You need these permissions: " + list + "."
}

func roundUp(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second) + time.Second
}
