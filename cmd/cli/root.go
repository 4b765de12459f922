package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/keshon/modkit/internal/app"
	"github.com/keshon/modkit/internal/config"
	"github.com/keshon/modkit/internal/docs"
	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/util"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newRootCommand builds the offline maintenance CLI. Settings come from the
// same environment as the bot; the Discord token is not needed.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "modkit",
		Short:         "Offline tools for the modkit bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := afero.NewOsFs()
	root.AddCommand(newValidateCommand(fs), newDocsCommand(fs), newHistoryCommand())
	return root
}

func newValidateCommand(fs afero.Fs) *cobra.Command {
	var commandsDir, inhibitorsDir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load every module file and list what would be registered",
		Long: `Load the inhibitor and command directories exactly as the bot does at
startup, without connecting to Discord. Any file that fails to load makes
the command fail.

Examples:
  modkit validate
  modkit validate --commands ./modules/commands`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.ParseOffline()
			if err != nil {
				return err
			}
			if commandsDir != "" {
				cfg.CommandsDir = commandsDir
			}
			if inhibitorsDir != "" {
				cfg.InhibitorsDir = inhibitorsDir
			}
			return runValidate(cmd, cfg, fs)
		},
	}
	cmd.Flags().StringVar(&commandsDir, "commands", "", "command directory (default: $COMMANDS_DIR)")
	cmd.Flags().StringVar(&inhibitorsDir, "inhibitors", "", "inhibitor directory (default: $INHIBITORS_DIR)")
	return cmd
}

func runValidate(cmd *cobra.Command, cfg *config.Config, fs afero.Fs) error {
	reg, err := loadRegistries(cmd, cfg, fs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Inhibitors (%d)\n", reg.Inhibitors.Len())
	for _, inh := range reg.Inhibitors.Modules() {
		s := inh.Settings()
		fmt.Fprintf(out, "  %-20s phase=%s priority=%d reason=%s\n", inh.ID(), s.Phase, s.Priority, s.Reason)
	}

	fmt.Fprintf(out, "Commands (%d)\n", reg.Commands.Len())
	for _, cat := range reg.Commands.Categories() {
		fmt.Fprintf(out, "  [%s]\n", cat.ID())
		for _, m := range cat.Modules() {
			c, ok := m.(command.Command)
			if !ok {
				continue
			}
			printCommand(out, c)
		}
	}
	return nil
}

func printCommand(out io.Writer, c command.Command) {
	line := "    /" + c.Name()
	if aliases := c.Aliases(); len(aliases) > 0 {
		line += " (" + strings.Join(aliases, ", ") + ")"
	}
	if c.Config().OwnerOnly {
		line += " owner-only"
	}
	fmt.Fprintln(out, line)
}

func newDocsCommand(fs afero.Fs) *cobra.Command {
	var tmplPath, outPath string
	var weights map[string]int

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Write a Markdown command reference",
		Long: `Render the loaded commands into a README. The template receives the
rendered sections as {{.CommandSections}}; without a template file a plain
"# Commands" page is written.

Examples:
  modkit docs
  modkit docs --weight util=0 --weight admin=9`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.ParseOffline()
			if err != nil {
				return err
			}
			reg, err := loadRegistries(cmd, cfg, fs)
			if err != nil {
				return err
			}
			if err := docs.UpdateReadme(fs, tmplPath, outPath, reg.Commands, weights); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated with %d commands\n", outPath, reg.Commands.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&tmplPath, "template", "README.md.tmpl", "template file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "README.md", "output file")
	cmd.Flags().StringToIntVar(&weights, "weight", nil, "category sort weight, lower first")
	return cmd
}

func loadRegistries(cmd *cobra.Command, cfg *config.Config, fs afero.Fs) (*app.Registries, error) {
	reg, err := app.Build(cfg, app.Options{Fs: fs, Logger: zerolog.Nop()})
	if err != nil {
		return nil, err
	}
	if err := reg.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return reg, nil
}

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <guild-id>",
		Short: "Print the recorded command history of a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ParseOffline()
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.StoragePath)
			if err != nil {
				return err
			}
			defer store.Close()
			return printHistory(cmd.OutOrStdout(), store, args[0], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to print")
	return cmd
}

func printHistory(out io.Writer, store *storage.Storage, guildID string, limit int) error {
	records, err := store.FetchCommandHistory(guildID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No history for guild %s.\n", guildID)
		return nil
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s  %-20s /%s %s\n",
			util.FormatDate(r.Datetime, "YYYY-MM-DD hh:mm:ss"), r.Username+" ("+r.UserID+")", r.Command, r.Param)
	}
	return nil
}
