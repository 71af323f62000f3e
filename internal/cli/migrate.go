package cli

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the profiles table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := a.cfg.Database.URL()
			if url == "" {
				return errors.New("no database configured (set DB_HOST and DB_NAME or database.dsn)")
			}
			db, err := sql.Open("pgx", url)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := accounts.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			a.logger.Info().Msg("migrations applied")
			return nil
		},
	}
}
