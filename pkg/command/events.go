package command

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Event names.
const (
	EventCommandNotFound    = "commandNotFound"
	EventMessageBlocked     = "messageBlocked"
	EventCommandBlocked     = "commandBlocked"
	EventCommandLocked      = "commandLocked"
	EventCommandStarted     = "commandStarted"
	EventCommandFinished    = "commandFinished"
	EventMissingPermissions = "missingPermissions"
	EventCooldown           = "cooldown"
	EventError              = "error"
)

// Reasons reported by the built-in checks.
const (
	ReasonAuthorNotFound = "authorNotFound"
	ReasonClient         = "client"
	ReasonBot            = "bot"
	ReasonOwner          = "owner"
	ReasonGuild          = "guild"
	ReasonDM             = "dm"
)

type CommandNotFoundEvent struct {
	Interaction *discordgo.InteractionCreate
	Name        string
}

// MessageBlockedEvent reports a block in the all or pre phase.
type MessageBlockedEvent struct {
	Context *Context
	Reason  string
}

// CommandBlockedEvent reports a block in the post phase.
type CommandBlockedEvent struct {
	Context *Context
	Command Command
	Reason  string
}

type CommandLockedEvent struct {
	Context *Context
	Command Command
	Key     string
}

type CommandStartedEvent struct {
	Context *Context
	Command Command
	Options Options
}

type CommandFinishedEvent struct {
	Context  *Context
	Command  Command
	Options  Options
	Result   any
	Duration time.Duration
}

// MissingPermissionsEvent reports a failed permission check. Kind is
// PermissionsClient or PermissionsUser.
type MissingPermissionsEvent struct {
	Context *Context
	Command Command
	Kind    string
	Missing []string
}

type CooldownEvent struct {
	Context   *Context
	Command   Command
	Remaining time.Duration
}

// ErrorEvent carries a dispatch failure. Command is nil when the failure
// happened before a command was resolved.
type ErrorEvent struct {
	Err     error
	Context *Context
	Command Command
}

func (CommandNotFoundEvent) EventName() string    { return EventCommandNotFound }
func (MessageBlockedEvent) EventName() string     { return EventMessageBlocked }
func (CommandBlockedEvent) EventName() string     { return EventCommandBlocked }
func (CommandLockedEvent) EventName() string      { return EventCommandLocked }
func (CommandStartedEvent) EventName() string     { return EventCommandStarted }
func (CommandFinishedEvent) EventName() string    { return EventCommandFinished }
func (MissingPermissionsEvent) EventName() string { return EventMissingPermissions }
func (CooldownEvent) EventName() string           { return EventCooldown }
func (ErrorEvent) EventName() string              { return EventError }
