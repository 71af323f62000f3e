package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/browser"
	"github.com/polzovatel/outlook-sweeper/internal/gologin"
	"github.com/polzovatel/outlook-sweeper/internal/outlook"
	"github.com/polzovatel/outlook-sweeper/internal/processor"
	"github.com/polzovatel/outlook-sweeper/internal/roster"
	"github.com/polzovatel/outlook-sweeper/internal/runlog"
	"github.com/polzovatel/outlook-sweeper/internal/session"
	"github.com/polzovatel/outlook-sweeper/internal/snapshot"
)

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flow over every mailbox in the target list",
		Long: `Reads the Email column of the target list (emails/emails_to_<flow>.csv
unless --input is given), resolves each mailbox to its GoLogin profile and
runs the flow with same-profile and borrowed-profile retries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatch(cmd.Context())
		},
	}
	v := a.loader.Viper()
	flags := cmd.Flags()
	flags.String("flow", "", "junk, unjunk, delete or archive")
	flags.String("input", "", "target CSV with an Email column")
	flags.Int("concurrency", 0, "accounts processed in parallel")
	flags.Int("max-alternates", 0, "borrowed profiles tried after the own profile failed twice")
	_ = v.BindPFlag("run.flow", flags.Lookup("flow"))
	_ = v.BindPFlag("run.input", flags.Lookup("input"))
	_ = v.BindPFlag("run.concurrency", flags.Lookup("concurrency"))
	_ = v.BindPFlag("run.max_alternates", flags.Lookup("max-alternates"))
	return cmd
}

func (a *app) runBatch(ctx context.Context) error {
	cfg := a.cfg
	log := a.logger

	input := cfg.InputFile()
	emails, err := roster.ReadTargets(input)
	if err != nil {
		return fmt.Errorf("read targets: %w", err)
	}
	if len(emails) == 0 {
		log.Warn().Str("input", input).Msg("no target emails")
		return nil
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	shuffler := accounts.NewShuffler(cfg.Run.Seed)
	store, closeStore, err := a.openStore(ctx, shuffler)
	if err != nil {
		return err
	}
	defer closeStore()

	gl, err := gologin.NewClient(gologin.Config{
		Token:         cfg.GoLogin.Token,
		APIURL:        cfg.GoLogin.APIURL,
		LocalURL:      cfg.GoLogin.LocalURL,
		Timeout:       cfg.GoLogin.Timeout,
		StartInterval: cfg.GoLogin.StartInterval,
	}, log)
	if err != nil {
		return err
	}

	launcher, err := browser.NewLauncher(ctx, browser.Options{
		NavTimeout:     cfg.Browser.NavTimeout,
		ActionTimeout:  cfg.Browser.ActionTimeout,
		ConnectTimeout: cfg.Browser.ConnectTimeout,
		TypingDelay:    cfg.Browser.TypingDelay,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			log.Warn().Err(err).Msg("stop playwright")
		}
	}()

	runner := outlook.NewRunner(outlook.Config{
		URL:             cfg.Outlook.URL,
		TargetDomains:   cfg.Outlook.TargetDomains,
		LoginAttempts:   cfg.Outlook.LoginAttempts,
		LoginRetryDelay: cfg.Outlook.LoginRetryDelay,
		MaxScrolls:      cfg.Outlook.MaxScrolls,
		ArchiveRounds:   cfg.Outlook.ArchiveRounds,
	}, outlook.NewPacer(cfg.Outlook.JitterMin, cfg.Outlook.JitterMax, nil), roster.NewSenderReport(cfg.Paths.Reports), log)

	opener := session.NewProfileOpener(gl, launcher, runner, snapshot.NewRecorder(cfg.Paths.Screenshots), log)

	results, err := runlog.OpenSink(cfg.Paths.Results)
	if err != nil {
		return err
	}
	defer results.Close()
	failed, err := runlog.OpenSink(cfg.Paths.Failures)
	if err != nil {
		return err
	}
	defer failed.Close()
	failures := runlog.NewFailureLog(failed)

	ctrl := processor.NewController(processor.ControllerConfig{
		Flow:          cfg.Flow(),
		MaxAlternates: orDisabled(cfg.Run.MaxAlternates),
		RetryDelay:    orDisabled(cfg.Run.RetryDelay),
	}, store, opener, runlog.NewOutcomeLog(results), failures, log)

	dispatcher := processor.NewDispatcher(processor.DispatcherConfig{Concurrency: cfg.Run.Concurrency}, store, ctrl, failures, log)

	log.Info().Str("flow", cfg.Flow().String()).Str("input", input).Int("emails", len(emails)).Msg("starting batch")
	stats := dispatcher.RunBatch(ctx, emails)

	ev := log.Info().Str("run", stats.RunID).Str("results", cfg.Paths.Results)
	for kind, n := range stats.ByKind {
		ev = ev.Int(kind.String(), n)
	}
	ev.Msg("outcomes")

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore returns the Postgres store when a database is configured and
// falls back to the profiles ledger otherwise.
func (a *app) openStore(ctx context.Context, shuffler accounts.Shuffler) (accounts.Store, func(), error) {
	if url := a.cfg.Database.URL(); url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		store, err := accounts.NewPostgresStore(ctx, pool, shuffler, a.logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}

	path := a.cfg.Paths.Ledger
	accts, err := roster.NewLedger(path).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger: %w", err)
	}
	a.logger.Info().Str("ledger", path).Int("accounts", len(accts)).Msg("no database configured, using profiles ledger")
	return accounts.NewMemoryStore(accts, shuffler), func() {}, nil
}

// orDisabled maps a configured zero to the controller's "disabled" value,
// since the controller itself reads zero as "use the default".
func orDisabled[T int | ~int64](v T) T {
	if v == 0 {
		return -1
	}
	return v
}
