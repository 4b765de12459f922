package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/loader"
)

// replyCommand answers with a fixed text. "{user}" expands to a mention of
// the invoking user.
type replyCommand struct {
	*command.Base
	text      string
	ephemeral bool
}

func newReply(m *loader.Manifest) (any, error) {
	s, err := DecodeSpec(m)
	if err != nil {
		return nil, err
	}
	var extra struct {
		Text      string `yaml:"text" toml:"text" json:"text"`
		Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral" json:"ephemeral"`
	}
	if err := m.Decode(&extra); err != nil {
		return nil, err
	}
	if strings.TrimSpace(extra.Text) == "" {
		return nil, fmt.Errorf("%s: reply command needs a text", m.Path)
	}
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	return &replyCommand{Base: command.NewBase(cfg), text: extra.Text, ephemeral: extra.Ephemeral}, nil
}

func (r *replyCommand) Exec(_ context.Context, c *command.Context) (any, error) {
	text := r.text
	if c.Author != nil {
		text = strings.ReplaceAll(text, "{user}", c.Author.Mention())
	}
	if r.ephemeral {
		return ephemeralEmbed("", text), nil
	}
	return text, nil
}
