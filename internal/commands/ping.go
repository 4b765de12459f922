package commands

import (
	"context"
	"fmt"

	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/loader"
)

type pingCommand struct {
	*command.Base
}

func newPing(m *loader.Manifest) (any, error) {
	s, err := DecodeSpec(m)
	if err != nil {
		return nil, err
	}
	if s.Description == "" {
		s.Description = "Check bot latency"
	}
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	return &pingCommand{Base: command.NewBase(cfg)}, nil
}

func (p *pingCommand) Exec(_ context.Context, c *command.Context) (any, error) {
	if sp, ok := c.Client.(sessionProvider); ok && sp.Session() != nil {
		latency := sp.Session().HeartbeatLatency().Milliseconds()
		return ephemeralEmbed("Pong!", fmt.Sprintf("Latency: %dms", latency)), nil
	}
	return ephemeralEmbed("Pong!", ""), nil
}
