package main

import (
	"fmt"

	"github.com/samvad-hq/vancodes/internal/app"
	"github.com/samvad-hq/vancodes/internal/config"
	"github.com/samvad-hq/vancodes/internal/logger"
	"github.com/spf13/cobra"
)

// cli holds state shared by every subcommand for one invocation.
type cli struct {
	flagOutput string

	cfg *config.Config
	log logger.Logger
	mgr *app.Manager
}

// newRootCmd builds the command tree. Callers must call the returned cli's
// close once execution finishes.
func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:           "vancodes",
		Short:         "Manage NGP VAN codes (tags and source codes)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.setup()
		},
	}
	root.PersistentFlags().StringVarP(&c.flagOutput, "output", "o", "", "output format: table, json, yaml or csv (default from OUTPUT_FORMAT)")

	root.AddCommand(
		c.listCmd(),
		c.getCmd(),
		c.typesCmd(),
		c.entitiesCmd(),
		c.createCmd(),
		c.updateCmd(),
		c.deleteCmd(),
		c.applyCmd(),
		c.historyCmd(),
	)
	return root, c
}

func (c *cli) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.flagOutput != "" {
		cfg.OutputFormat = c.flagOutput
	}
	if !validOutput(cfg.OutputFormat) {
		return fmt.Errorf("unsupported output format %q", cfg.OutputFormat)
	}
	c.cfg = cfg

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.log = log
	log.DebugObj("vancodes starting", "config", cfg.Redacted())
	return nil
}

// manager builds the VAN-backed manager on first use, so commands that never
// talk to VAN (help, completion, history) run without credentials.
func (c *cli) manager(cmd *cobra.Command) (*app.Manager, error) {
	if c.mgr != nil {
		return c.mgr, nil
	}
	mgr, err := app.NewManager(cmd.Context(), c.cfg, c.log)
	if err != nil {
		return nil, fmt.Errorf("init manager: %w", err)
	}
	c.mgr = mgr
	return mgr, nil
}

func (c *cli) close() error {
	defer logger.Close()
	if c.mgr == nil {
		return nil
	}
	err := c.mgr.Close()
	c.mgr = nil
	return err
}
