package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/loader"
	"github.com/keshon/modkit/pkg/util"
)

const defaultHistoryLimit = 10

type historyCommand struct {
	*command.Base
}

func newHistory(m *loader.Manifest) (any, error) {
	s, err := DecodeSpec(m)
	if err != nil {
		return nil, err
	}
	if s.Channel == "" {
		s.Channel = string(command.ChannelGuild)
	}
	if s.Description == "" {
		s.Description = "Show recently used commands"
	}
	cfg, err := s.Config(OptionSpec{Name: "limit", Type: "integer", Description: "How many entries to show"})
	if err != nil {
		return nil, err
	}
	return &historyCommand{Base: command.NewBase(cfg)}, nil
}

func (h *historyCommand) Exec(_ context.Context, c *command.Context) (any, error) {
	store, err := storeOf(c)
	if err != nil {
		return nil, err
	}
	records, err := store.FetchCommandHistory(c.GuildID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return ephemeralEmbed("Command history", "No commands recorded yet."), nil
	}

	limit := int(c.Options.Int("limit"))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}

	var b strings.Builder
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Fprintf(&b, "`%s` <@%s> /%s", util.FormatDate(r.Datetime, "YYYY-MM-DD hh:mm"), r.UserID, r.Command)
		if r.Param != "" {
			fmt.Fprintf(&b, " %s", r.Param)
		}
		b.WriteByte('\n')
	}
	return ephemeralEmbed("Command history", b.String()), nil
}
