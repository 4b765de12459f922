package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/loader"
	"github.com/keshon/modkit/pkg/module"
)

const (
	stateEnable  = "enable"
	stateDisable = "disable"
	stateStatus  = "status"
)

// categoryCommand turns command categories on and off per guild. The
// disabledCategory inhibitor enforces the stored state.
type categoryCommand struct {
	*command.Base
	exempt []string
}

func newCategory(m *loader.Manifest) (any, error) {
	s, err := DecodeSpec(m)
	if err != nil {
		return nil, err
	}
	var extra struct {
		Exempt []string `yaml:"exempt" toml:"exempt" json:"exempt"`
	}
	if err := m.Decode(&extra); err != nil {
		return nil, err
	}
	if s.Channel == "" {
		s.Channel = string(command.ChannelGuild)
	}
	if s.Description == "" {
		s.Description = "Enable or disable a category of commands"
	}
	cfg, err := s.Config(
		OptionSpec{Name: "state", Type: "string", Required: true, Description: "Enable, disable or show", Choices: []string{stateEnable, stateDisable, stateStatus}},
		OptionSpec{Name: "category", Type: "string", Description: "Category to toggle"},
	)
	if err != nil {
		return nil, err
	}
	return &categoryCommand{Base: command.NewBase(cfg), exempt: extra.Exempt}, nil
}

func (cc *categoryCommand) Exec(_ context.Context, c *command.Context) (any, error) {
	store, err := storeOf(c)
	if err != nil {
		return nil, err
	}

	state := strings.ToLower(c.Options.String("state"))
	if state == stateStatus {
		disabled, err := store.DisabledCategories(c.GuildID)
		if err != nil {
			return nil, err
		}
		if len(disabled) == 0 {
			return ephemeralEmbed("Categories", "Every category is enabled."), nil
		}
		return ephemeralEmbed("Categories", "Disabled: `"+strings.Join(disabled, "`, `")+"`"), nil
	}

	name := strings.TrimSpace(c.Options.String("category"))
	if name == "" {
		return ephemeralEmbed("Categories", "Name the category to "+state+"."), nil
	}
	if finder, ok := cc.Handler().(interface {
		FindCategory(string) (*module.Category, bool)
	}); ok {
		cat, found := finder.FindCategory(name)
		if !found {
			return ephemeralEmbed("Categories", fmt.Sprintf("There is no `%s` category.", name)), nil
		}
		name = cat.ID()
	}

	switch state {
	case stateDisable:
		if slices.ContainsFunc(cc.exempt, func(e string) bool { return strings.EqualFold(e, name) }) {
			return ephemeralEmbed("Categories", fmt.Sprintf("The `%s` category can't be disabled.", name)), nil
		}
		if err := store.DisableCategory(c.GuildID, name); err != nil {
			return nil, err
		}
		return ephemeralEmbed("Categories", fmt.Sprintf("Disabled `%s`.", name)), nil
	case stateEnable:
		if err := store.EnableCategory(c.GuildID, name); err != nil {
			return nil, err
		}
		return ephemeralEmbed("Categories", fmt.Sprintf("Enabled `%s`.", name)), nil
	default:
		return ephemeralEmbed("Categories", fmt.Sprintf("Unknown state `%s`.", state)), nil
	}
}
