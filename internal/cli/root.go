// Package cli wires configuration, logging and the batch components into
// the sweeper command tree.
package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/polzovatel/outlook-sweeper/internal/config"
	"github.com/polzovatel/outlook-sweeper/internal/logging"
)

type app struct {
	cfgFile   string
	loader    *config.Loader
	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
}

func NewRootCommand() *cobra.Command {
	a := &app{loader: config.NewLoader(), logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "sweeper",
		Short:         "Bulk Outlook mailbox maintenance through GoLogin profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loader.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger, a.logCloser = logging.New(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./sweeper.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = a.loader.Viper().BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(newRunCommand(a), newProvisionCommand(a), newMigrateCommand(a))
	return root
}

// ExecuteContext runs the command tree with ctx, typically one cancelled on
// SIGINT.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
