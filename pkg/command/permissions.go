package command

import (
	"context"
	"fmt"
	"math/bits"
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionFunc computes missing permissions. A nil result means nothing is
// missing; any non-nil result, even empty, blocks.
type PermissionFunc func(ctx context.Context, c *Context) ([]string, error)

// Permissions is a permission requirement: a static bitmask checked against
// the channel permissions of the actor in guilds, or a function.
type Permissions struct {
	Bits int64
	Func PermissionFunc
}

// Require returns a static requirement for the given permission bits.
func Require(perms ...int64) Permissions {
	var p Permissions
	for _, b := range perms {
		p.Bits |= b
	}
	return p
}

// RequireFunc returns a computed requirement.
func RequireFunc(fn PermissionFunc) Permissions {
	return Permissions{Func: fn}
}

func (p Permissions) IsZero() bool { return p.Bits == 0 && p.Func == nil }

// Kinds of permission checks reported in MissingPermissionsEvent.
const (
	PermissionsClient = "client"
	PermissionsUser   = "user"
)

// IgnoreFunc matches invocations that bypass a check.
type IgnoreFunc func(c *Context) bool

// IgnoreUsers matches the given user ids.
func IgnoreUsers(ids ...string) IgnoreFunc {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return IgnoreSet(set)
}

// IgnoreSet matches the user ids in set. The set is read, not copied.
func IgnoreSet(set map[string]struct{}) IgnoreFunc {
	return func(c *Context) bool {
		_, ok := set[c.AuthorID()]
		return ok
	}
}

// PermissionNames maps permission bits to their display names.
var PermissionNames = map[int64]string{
	discordgo.PermissionCreateInstantInvite:              "Create Instant Invite",
	discordgo.PermissionKickMembers:                      "Kick Members",
	discordgo.PermissionBanMembers:                       "Ban Members",
	discordgo.PermissionAdministrator:                    "Administrator",
	discordgo.PermissionManageChannels:                   "Manage Channels",
	discordgo.PermissionManageGuild:                      "Manage Server",
	discordgo.PermissionAddReactions:                     "Add Reactions",
	discordgo.PermissionViewAuditLogs:                    "View Audit Logs",
	discordgo.PermissionViewChannel:                      "View Channel",
	discordgo.PermissionSendMessages:                     "Send Messages",
	discordgo.PermissionSendTTSMessages:                  "Send TTS Messages",
	discordgo.PermissionManageMessages:                   "Manage Messages",
	discordgo.PermissionEmbedLinks:                       "Embed Links",
	discordgo.PermissionAttachFiles:                      "Attach Files",
	discordgo.PermissionReadMessageHistory:               "Read Message History",
	discordgo.PermissionMentionEveryone:                  "Mention Everyone",
	discordgo.PermissionUseExternalEmojis:                "Use External Emojis",
	discordgo.PermissionUseApplicationCommands:           "Use Application Commands",
	discordgo.PermissionManageThreads:                    "Manage Threads",
	discordgo.PermissionCreatePublicThreads:              "Create Public Threads",
	discordgo.PermissionCreatePrivateThreads:             "Create Private Threads",
	discordgo.PermissionUseExternalStickers:              "Use External Stickers",
	discordgo.PermissionSendMessagesInThreads:            "Send Messages in Threads",
	discordgo.PermissionSendVoiceMessages:                "Send Voice Messages",
	discordgo.PermissionSendPolls:                        "Send Polls",
	discordgo.PermissionUseExternalApps:                  "Use External Apps",
	discordgo.PermissionVoicePrioritySpeaker:             "Priority Speaker",
	discordgo.PermissionVoiceStreamVideo:                 "Stream Video",
	discordgo.PermissionVoiceConnect:                     "Connect to Voice Channel",
	discordgo.PermissionVoiceSpeak:                       "Speak",
	discordgo.PermissionVoiceMuteMembers:                 "Mute Members",
	discordgo.PermissionVoiceDeafenMembers:               "Deafen Members",
	discordgo.PermissionVoiceMoveMembers:                 "Move Members",
	discordgo.PermissionVoiceUseVAD:                      "Use Voice Activity Detection",
	discordgo.PermissionVoiceRequestToSpeak:              "Request to Speak",
	discordgo.PermissionUseEmbeddedActivities:            "Use Embedded Activities",
	discordgo.PermissionUseSoundboard:                    "Use Soundboard",
	discordgo.PermissionUseExternalSounds:                "Use External Sounds",
	discordgo.PermissionChangeNickname:                   "Change Nickname",
	discordgo.PermissionManageNicknames:                  "Manage Nicknames",
	discordgo.PermissionManageRoles:                      "Manage Roles",
	discordgo.PermissionManageWebhooks:                   "Manage Webhooks",
	discordgo.PermissionManageGuildExpressions:           "Manage Expressions",
	discordgo.PermissionManageEvents:                     "Manage Events",
	discordgo.PermissionViewCreatorMonetizationAnalytics: "View Creator Monetization Analytics",
	discordgo.PermissionCreateGuildExpressions:           "Create Expressions",
	discordgo.PermissionCreateEvents:                     "Create Events",
	discordgo.PermissionViewGuildInsights:                "View Guild Insights",
	discordgo.PermissionModerateMembers:                  "Moderate Members",
}

// PermissionBits is the reverse of PermissionNames.
var PermissionBits = func() map[string]int64 {
	out := make(map[string]int64, len(PermissionNames))
	for bit, name := range PermissionNames {
		out[name] = bit
	}
	return out
}()

// PermissionName returns the display name of a single permission bit.
func PermissionName(bit int64) string {
	if name, ok := PermissionNames[bit]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", bit)
}

// MissingPermissions lists the names of the bits of required not in have,
// lowest bit first. Administrator grants everything.
func MissingPermissions(required, have int64) []string {
	if have&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	lacking := uint64(required &^ have)
	var out []string
	for lacking != 0 {
		bit := int64(1) << bits.TrailingZeros64(lacking)
		out = append(out, PermissionName(bit))
		lacking &^= uint64(bit)
	}
	return out
}

// checkPermissions returns the missing permissions of actorID against p, or
// nil when the requirement is met.
func checkPermissions(ctx context.Context, c *Context, p Permissions, actorID string) ([]string, error) {
	if p.Func != nil {
		missing, err := p.Func(ctx, c)
		if err != nil {
			return nil, err
		}
		if missing != nil {
			return slices.Clone(missing), nil
		}
		return nil, nil
	}
	if p.Bits == 0 || !c.InGuild() || c.Client == nil {
		return nil, nil
	}
	have, err := c.Client.Permissions(ctx, actorID, c.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions of %s in %s: %w", actorID, c.ChannelID, err)
	}
	return MissingPermissions(p.Bits, have), nil
}
