package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/loader"
	"github.com/keshon/modkit/pkg/module"
)

// reloadCommand re-reads one command, or every command, from its source
// file. It is always owner only.
type reloadCommand struct {
	*command.Base
}

func newReload(m *loader.Manifest) (any, error) {
	s, err := DecodeSpec(m)
	if err != nil {
		return nil, err
	}
	s.OwnerOnly = true
	if s.Description == "" {
		s.Description = "Reload commands from disk"
	}
	cfg, err := s.Config(OptionSpec{Name: "command", Type: "string", Description: "Command to reload, all when empty"})
	if err != nil {
		return nil, err
	}
	return &reloadCommand{Base: command.NewBase(cfg)}, nil
}

func (r *reloadCommand) Exec(_ context.Context, c *command.Context) (any, error) {
	owner := r.Handler()
	if owner == nil {
		return nil, fmt.Errorf("reload: command is not registered")
	}

	if id := c.Options.String("command"); id != "" {
		err := owner.ReloadModule(id)
		switch {
		case errors.Is(err, module.ErrModuleNotFound), errors.Is(err, module.ErrNotReloadable):
			return ephemeralEmbed("Reload", fmt.Sprintf("Can't reload `%s`: %v", id, err)), nil
		case err != nil:
			return nil, err
		}
		return ephemeralEmbed("Reload", fmt.Sprintf("Reloaded `%s`.", id)), nil
	}

	all, ok := owner.(interface{ ReloadAll() error })
	if !ok {
		return nil, fmt.Errorf("reload: registry cannot reload everything")
	}
	if err := all.ReloadAll(); err != nil {
		return nil, err
	}
	return ephemeralEmbed("Reload", "Reloaded all commands."), nil
}
