// Package commands provides the built-in command kinds. Each kind is built
// from a module manifest; the fields shared by every kind are described by
// Spec.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/loader"
)

const EmbedColor = 0xb01e66

// Spec is the manifest schema common to all command kinds.
//
//	kind: ping
//	id: ping
//	category: util
//	description: Check bot latency
//	cooldown: 5s
//	ratelimit: 2
type Spec struct {
	ID          string   `yaml:"id" toml:"id" json:"id"`
	Category    string   `yaml:"category" toml:"category" json:"category"`
	Name        string   `yaml:"name" toml:"name" json:"name"`
	Aliases     []string `yaml:"aliases" toml:"aliases" json:"aliases"`
	Description string   `yaml:"description" toml:"description" json:"description"`

	OwnerOnly bool   `yaml:"owner_only" toml:"owner_only" json:"owner_only"`
	Channel   string `yaml:"channel" toml:"channel" json:"channel"`

	// Permission names as listed in command.PermissionNames.
	ClientPermissions []string `yaml:"client_permissions" toml:"client_permissions" json:"client_permissions"`
	UserPermissions   []string `yaml:"user_permissions" toml:"user_permissions" json:"user_permissions"`
	// IgnorePermissions lists user ids that skip the user permission check.
	IgnorePermissions []string `yaml:"ignore_permissions" toml:"ignore_permissions" json:"ignore_permissions"`

	// Lock is "", "guild", "channel" or "user".
	Lock      string `yaml:"lock" toml:"lock" json:"lock"`
	Cooldown  string `yaml:"cooldown" toml:"cooldown" json:"cooldown"`
	Ratelimit int    `yaml:"ratelimit" toml:"ratelimit" json:"ratelimit"`
	// IgnoreCooldown lists user ids exempt from the cooldown.
	IgnoreCooldown []string `yaml:"ignore_cooldown" toml:"ignore_cooldown" json:"ignore_cooldown"`

	Options []OptionSpec `yaml:"options" toml:"options" json:"options"`
}

type OptionSpec struct {
	Name        string       `yaml:"name" toml:"name" json:"name"`
	Description string       `yaml:"description" toml:"description" json:"description"`
	Type        string       `yaml:"type" toml:"type" json:"type"`
	Required    bool         `yaml:"required" toml:"required" json:"required"`
	Choices     []string     `yaml:"choices" toml:"choices" json:"choices"`
	Options     []OptionSpec `yaml:"options" toml:"options" json:"options"`
}

var optionTypes = map[string]discordgo.ApplicationCommandOptionType{
	"subcommand":       discordgo.ApplicationCommandOptionSubCommand,
	"subcommand_group": discordgo.ApplicationCommandOptionSubCommandGroup,
	"string":           discordgo.ApplicationCommandOptionString,
	"integer":          discordgo.ApplicationCommandOptionInteger,
	"boolean":          discordgo.ApplicationCommandOptionBoolean,
	"user":             discordgo.ApplicationCommandOptionUser,
	"channel":          discordgo.ApplicationCommandOptionChannel,
	"role":             discordgo.ApplicationCommandOptionRole,
	"mentionable":      discordgo.ApplicationCommandOptionMentionable,
	"number":           discordgo.ApplicationCommandOptionNumber,
	"attachment":       discordgo.ApplicationCommandOptionAttachment,
}

// DecodeSpec reads the common fields of a command manifest. The command
// name falls back to the manifest id.
func DecodeSpec(m *loader.Manifest) (Spec, error) {
	var s Spec
	if err := m.Decode(&s); err != nil {
		return s, err
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if strings.TrimSpace(s.Name) == "" {
		return s, fmt.Errorf("%s: command has no name or id", m.Path)
	}
	return s, nil
}

// Config converts the manifest fields into a command configuration. The
// given options are used when the manifest declares none.
func (s Spec) Config(defaults ...OptionSpec) (command.Config, error) {
	cfg := command.Config{
		Name:        s.Name,
		Aliases:     s.Aliases,
		Category:    s.Category,
		Description: s.Description,
		OwnerOnly:   s.OwnerOnly,
		Ratelimit:   s.Ratelimit,
	}

	switch ch := command.Channel(strings.ToLower(s.Channel)); ch {
	case command.ChannelAny, command.ChannelGuild, command.ChannelDM:
		cfg.Channel = ch
	default:
		return cfg, fmt.Errorf("command %q: unknown channel %q", s.Name, s.Channel)
	}

	var err error
	if cfg.ClientPermissions, err = permissions(s.ClientPermissions); err != nil {
		return cfg, fmt.Errorf("command %q: client permissions: %w", s.Name, err)
	}
	if cfg.UserPermissions, err = permissions(s.UserPermissions); err != nil {
		return cfg, fmt.Errorf("command %q: user permissions: %w", s.Name, err)
	}
	if len(s.IgnorePermissions) > 0 {
		cfg.IgnorePermissions = command.IgnoreUsers(s.IgnorePermissions...)
	}
	if len(s.IgnoreCooldown) > 0 {
		cfg.IgnoreCooldown = command.IgnoreUsers(s.IgnoreCooldown...)
	}

	if cfg.Lock, err = command.LockByName(s.Lock); err != nil {
		return cfg, fmt.Errorf("command %q: %w", s.Name, err)
	}
	if s.Cooldown != "" {
		if cfg.Cooldown, err = time.ParseDuration(s.Cooldown); err != nil {
			return cfg, fmt.Errorf("command %q: cooldown: %w", s.Name, err)
		}
	}

	opts := s.Options
	if len(opts) == 0 {
		opts = defaults
	}
	name := strings.ToLower(strings.TrimSpace(s.Name))
	if len(opts) > 0 && !strings.Contains(name, " ") {
		built, err := buildOptions(opts)
		if err != nil {
			return cfg, fmt.Errorf("command %q: %w", s.Name, err)
		}
		desc := s.Description
		if desc == "" {
			desc = "No description"
		}
		cfg.Definition = &discordgo.ApplicationCommand{
			Name:        name,
			Description: desc,
			Type:        discordgo.ChatApplicationCommand,
			Options:     built,
		}
	}
	return cfg, nil
}

func permissions(names []string) (command.Permissions, error) {
	var bits int64
	for _, name := range names {
		bit, ok := command.PermissionBits[name]
		if !ok {
			return command.Permissions{}, fmt.Errorf("unknown permission %q", name)
		}
		bits |= bit
	}
	if bits == 0 {
		return command.Permissions{}, nil
	}
	return command.Require(bits), nil
}

func buildOptions(specs []OptionSpec) ([]*discordgo.ApplicationCommandOption, error) {
	out := make([]*discordgo.ApplicationCommandOption, 0, len(specs))
	for _, o := range specs {
		typ, ok := optionTypes[strings.ToLower(o.Type)]
		if !ok {
			return nil, fmt.Errorf("option %q: unknown type %q", o.Name, o.Type)
		}
		desc := o.Description
		if desc == "" {
			desc = o.Name
		}
		opt := &discordgo.ApplicationCommandOption{
			Type:        typ,
			Name:        strings.ToLower(o.Name),
			Description: desc,
			Required:    o.Required,
		}
		for _, ch := range o.Choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: ch, Value: ch})
		}
		if len(o.Options) > 0 {
			sub, err := buildOptions(o.Options)
			if err != nil {
				return nil, err
			}
			opt.Options = sub
		}
		out = append(out, opt)
	}
	return out, nil
}
