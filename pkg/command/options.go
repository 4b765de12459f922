package command

import (
	"github.com/bwmarrin/discordgo"
)

// Keys under which the invoked subcommand path is stored in Options.
const (
	OptionSubcommand      = "subcommand"
	OptionSubcommandGroup = "subcommandGroup"
)

// Options is the flat option map of an invocation. Declared options the user
// left out are present: false for booleans, nil for everything else.
type Options map[string]any

// Has reports whether name holds a non-nil value. A declared boolean the
// user left out holds false and so counts; use Bool to read it.
func (o Options) Has(name string) bool {
	v, ok := o[name]
	return ok && v != nil
}

func (o Options) String(name string) string {
	s, _ := o[name].(string)
	return s
}

func (o Options) Int(name string) int64 {
	switch v := o[name].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

func (o Options) Float(name string) float64 {
	switch v := o[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func (o Options) Bool(name string) bool {
	b, _ := o[name].(bool)
	return b
}

func (o Options) User(name string) *discordgo.User {
	u, _ := o[name].(*discordgo.User)
	return u
}

func (o Options) Role(name string) *discordgo.Role {
	r, _ := o[name].(*discordgo.Role)
	return r
}

func (o Options) Channel(name string) *discordgo.Channel {
	c, _ := o[name].(*discordgo.Channel)
	return c
}

func (o Options) Attachment(name string) *discordgo.MessageAttachment {
	a, _ := o[name].(*discordgo.MessageAttachment)
	return a
}

func (o Options) Subcommand() string      { return o.String(OptionSubcommand) }
func (o Options) SubcommandGroup() string { return o.String(OptionSubcommandGroup) }

// invokedPath returns the subcommand group and subcommand names of data.
func invokedPath(data discordgo.ApplicationCommandInteractionData) (group, sub string) {
	opts := data.Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup {
		group = opts[0].Name
		opts = opts[0].Options
	}
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		sub = opts[0].Name
	}
	return group, sub
}

// normalizeOptions flattens the raw options of data, hoists the subcommand
// path and fills in options declared by def that were not supplied.
func normalizeOptions(data discordgo.ApplicationCommandInteractionData, def *discordgo.ApplicationCommand) Options {
	out := make(Options)
	opts := data.Options
	var group, sub string

	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup {
		group = opts[0].Name
		out[OptionSubcommandGroup] = group
		opts = opts[0].Options
	}
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		sub = opts[0].Name
		out[OptionSubcommand] = sub
		opts = opts[0].Options
	}

	for _, o := range opts {
		out[o.Name] = optionValue(o, data.Resolved)
	}

	for _, d := range declaredOptions(def, group, sub) {
		if _, ok := out[d.Name]; ok {
			continue
		}
		if d.Type == discordgo.ApplicationCommandOptionBoolean {
			out[d.Name] = false
		} else {
			out[d.Name] = nil
		}
	}
	return out
}

func optionValue(o *discordgo.ApplicationCommandInteractionDataOption, r *discordgo.ApplicationCommandInteractionDataResolved) any {
	id, _ := o.Value.(string)
	switch o.Type {
	case discordgo.ApplicationCommandOptionInteger:
		if f, ok := o.Value.(float64); ok {
			return int64(f)
		}
	case discordgo.ApplicationCommandOptionUser:
		if r != nil {
			if u, ok := r.Users[id]; ok {
				return u
			}
		}
	case discordgo.ApplicationCommandOptionChannel:
		if r != nil {
			if ch, ok := r.Channels[id]; ok {
				return ch
			}
		}
	case discordgo.ApplicationCommandOptionRole:
		if r != nil {
			if role, ok := r.Roles[id]; ok {
				return role
			}
		}
	case discordgo.ApplicationCommandOptionMentionable:
		if r != nil {
			if u, ok := r.Users[id]; ok {
				return u
			}
			if role, ok := r.Roles[id]; ok {
				return role
			}
		}
	case discordgo.ApplicationCommandOptionAttachment:
		if r != nil {
			if a, ok := r.Attachments[id]; ok {
				return a
			}
		}
	}
	return o.Value
}

// declaredOptions returns the leaf options def declares for the invoked
// path. A definition that does not describe the path contributes its top
// level options.
func declaredOptions(def *discordgo.ApplicationCommand, group, sub string) []*discordgo.ApplicationCommandOption {
	if def == nil {
		return nil
	}
	opts := def.Options
	if group != "" {
		if o := findOption(opts, group, discordgo.ApplicationCommandOptionSubCommandGroup); o != nil {
			opts = o.Options
		}
	}
	if sub != "" {
		if o := findOption(opts, sub, discordgo.ApplicationCommandOptionSubCommand); o != nil {
			opts = o.Options
		}
	}

	out := make([]*discordgo.ApplicationCommandOption, 0, len(opts))
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Type == discordgo.ApplicationCommandOptionSubCommand || o.Type == discordgo.ApplicationCommandOptionSubCommandGroup {
			continue
		}
		out = append(out, o)
	}
	return out
}

func findOption(opts []*discordgo.ApplicationCommandOption, name string, typ discordgo.ApplicationCommandOptionType) *discordgo.ApplicationCommandOption {
	for _, o := range opts {
		if o != nil && o.Type == typ && o.Name == name {
			return o
		}
	}
	return nil
}
