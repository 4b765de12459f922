// Package app assembles the module registries from configuration: the file
// loader, the inhibitor chain and the command handler, with the built-in
// kinds registered.
package app

import (
	"context"
	"fmt"

	"github.com/keshon/modkit/internal/commands"
	"github.com/keshon/modkit/internal/config"
	"github.com/keshon/modkit/internal/inhibitors"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/inhibitor"
	"github.com/keshon/modkit/pkg/jobmgr"
	"github.com/keshon/modkit/pkg/loader"
	"github.com/keshon/modkit/pkg/module"
	"github.com/keshon/modkit/pkg/watch"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

type Options struct {
	Client      command.Client
	Bus         *events.Bus
	Middlewares []command.Middleware
	// Fs defaults to the OS filesystem.
	Fs     afero.Fs
	Logger zerolog.Logger
}

type Registries struct {
	Inhibitors *inhibitor.Handler[*command.Context]
	Commands   *command.Handler

	cfg    *config.Config
	filter module.Filter
	logger zerolog.Logger
}

// Build creates empty registries wired to each other. The configured guild
// blacklist is registered as an inhibitor straight away.
func Build(cfg *config.Config, opts Options) (*Registries, error) {
	filter, err := loader.Glob(cfg.ModulePatterns...)
	if err != nil {
		return nil, err
	}

	kinds := loader.NewKinds()
	commands.Register(kinds)
	inhibitors.Register(kinds)
	files := loader.New(loader.Options{Fs: opts.Fs, Kinds: kinds, Logger: opts.Logger})

	moduleOpts := module.Options{
		Loader:         files,
		Client:         opts.Client,
		Bus:            opts.Bus,
		AutoCategorize: cfg.AutoCategorize,
		Logger:         opts.Logger,
	}

	inhibitorOpts := moduleOpts
	inhibitorOpts.Name = "inhibitor"
	inh := inhibitor.NewHandler[*command.Context](inhibitorOpts)
	if len(cfg.GuildBlacklist) > 0 {
		if _, err := inh.Load(inhibitors.NewBlacklist("guildBlacklist", 100, cfg.GuildBlacklist, nil)); err != nil {
			return nil, err
		}
	}

	handlerOpts := command.HandlerOptions{
		Module:                    moduleOpts,
		Client:                    opts.Client,
		Inhibitors:                inh,
		BlockClient:               cfg.BlockClient,
		BlockBots:                 cfg.BlockBots,
		SkipBuiltInPostInhibitors: cfg.SkipBuiltInPost,
		DefaultCooldown:           cfg.DefaultCooldown,
		ExecTimeout:               cfg.ExecTimeout,
		Middlewares:               opts.Middlewares,
	}
	if len(cfg.IgnorePermissions) > 0 {
		handlerOpts.IgnorePermissions = command.IgnoreUsers(cfg.IgnorePermissions...)
	}
	if len(cfg.IgnoreCooldown) > 0 {
		handlerOpts.IgnoreCooldown = command.IgnoreUsers(cfg.IgnoreCooldown...)
	}
	cmds := command.NewHandler(handlerOpts)

	return &Registries{
		Inhibitors: inh,
		Commands:   cmds,
		cfg:        cfg,
		filter:     filter,
		logger:     opts.Logger,
	}, nil
}

// Load reads the inhibitor directory, then the command directory.
func (r *Registries) Load(ctx context.Context) error {
	if err := r.Inhibitors.LoadAll(ctx, r.cfg.InhibitorsDir, r.filter); err != nil {
		return fmt.Errorf("load inhibitors: %w", err)
	}
	if err := r.Commands.LoadAll(ctx, r.cfg.CommandsDir, r.filter); err != nil {
		return fmt.Errorf("load commands: %w", err)
	}
	r.logger.Info().
		Int("inhibitors", r.Inhibitors.Len()).
		Int("commands", r.Commands.Len()).
		Msg("modules loaded")
	return nil
}

// Watch starts one hot-reload job per module directory.
func (r *Registries) Watch(ctx context.Context, jobs *jobmgr.Manager) error {
	targets := []struct {
		dir    string
		target watch.Target
	}{
		{r.cfg.InhibitorsDir, r.Inhibitors},
		{r.cfg.CommandsDir, r.Commands},
	}
	for _, t := range targets {
		w, err := watch.New(watch.Config{
			Dir:      t.dir,
			Patterns: r.cfg.ModulePatterns,
			Target:   t.target,
			Logger:   r.logger,
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", t.dir, err)
		}
		if err := jobs.Start(ctx, "watch:"+t.dir, w.Run); err != nil {
			return err
		}
	}
	return nil
}
