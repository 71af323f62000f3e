package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/gologin"
	"github.com/polzovatel/outlook-sweeper/internal/provision"
	"github.com/polzovatel/outlook-sweeper/internal/roster"
)

func newProvisionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a GoLogin profile for every new mailbox",
		Long: `Reads Email,Pass rows (emails/emails_to_profiles.csv unless --input is
given), creates a profile with a random fingerprint for each and appends
Email,Pass,Profile_id to the ledger and, when configured, the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.provision(cmd.Context())
		},
	}
	cmd.Flags().String("input", "", "CSV with Email and Pass columns")
	_ = a.loader.Viper().BindPFlag("paths.new_accounts", cmd.Flags().Lookup("input"))
	return cmd
}

func (a *app) provision(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	rows, err := roster.ReadNewAccounts(cfg.Paths.NewAccounts)
	if err != nil {
		return fmt.Errorf("read new accounts: %w", err)
	}
	if len(rows) == 0 {
		a.logger.Warn().Str("input", cfg.Paths.NewAccounts).Msg("no new accounts")
		return nil
	}

	gl, err := gologin.NewClient(gologin.Config{
		Token:   cfg.GoLogin.Token,
		APIURL:  cfg.GoLogin.APIURL,
		Timeout: cfg.GoLogin.Timeout,
	}, a.logger)
	if err != nil {
		return err
	}

	var store provision.AccountWriter
	if url := cfg.Database.URL(); url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		pg, err := accounts.NewPostgresStore(ctx, pool, nil, a.logger)
		if err != nil {
			return err
		}
		store = pg
	}

	p := provision.New(gl, store, roster.NewLedger(cfg.Paths.Ledger), cfg.Run.Seed, a.logger)
	res := p.Run(ctx, rows)
	a.logger.Info().Int("created", res.Created).Int("failed", res.Failed).Str("ledger", cfg.Paths.Ledger).Msg("provisioning finished")
	if res.Created == 0 && res.Failed > 0 {
		return fmt.Errorf("no profile created (%d failed)", res.Failed)
	}
	return nil
}
