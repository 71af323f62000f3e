package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
)

// DBPool is the subset of *pgxpool.Pool the store needs, so tests can swap
// in pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlFindByEmail = `SELECT id, email, password, profile_id, activate FROM profiles
		 WHERE email = $1`

	sqlSampleCandidates = `SELECT DISTINCT ON (profile_id) id, email, password, profile_id, activate FROM profiles
		 WHERE profile_id IS NOT NULL AND profile_id <> '' AND NOT (profile_id = ANY($1))
		 ORDER BY profile_id, id`

	sqlUpsert = `INSERT INTO profiles (email, password, profile_id, activate)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET
		     password = EXCLUDED.password,
		     profile_id = EXCLUDED.profile_id
		 RETURNING id`
)

// PostgresStore reads and writes the profiles table.
type PostgresStore struct {
	db       DBPool
	shuffler Shuffler
	log      zerolog.Logger
}

// NewPostgresStore checks the connection and returns a store. A nil shuffler
// gets a clock-seeded one.
func NewPostgresStore(ctx context.Context, db DBPool, shuffler Shuffler, logger zerolog.Logger) (*PostgresStore, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if shuffler == nil {
		shuffler = NewShuffler(0)
	}
	return &PostgresStore{
		db:       db,
		shuffler: shuffler,
		log:      logger.With().Str("comp", "store").Logger(),
	}, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	acct, err := scanAccount(s.db.QueryRow(ctx, sqlFindByEmail, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("db error: %w", err)
	}
	return acct, nil
}

func (s *PostgresStore) SampleRandom(ctx context.Context, excluding []string, limit int) ([]Account, error) {
	if limit <= 0 {
		return nil, nil
	}
	if excluding == nil {
		excluding = []string{}
	}
	rows, err := s.db.Query(ctx, sqlSampleCandidates, excluding)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var candidates []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		candidates = append(candidates, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	picked := pickDistinct(candidates, excluding, limit, s.shuffler)
	s.log.Debug().
		Int("candidates", len(candidates)).
		Int("picked", len(picked)).
		Msg("sampled alternate profiles")
	return picked, nil
}

// Create inserts the account or, when the email already exists, replaces its
// password and profile id. The stored row id is written back.
func (s *PostgresStore) Create(ctx context.Context, acct *Account) error {
	profile := pgtype.Text{String: acct.ProfileID, Valid: acct.ProfileID != ""}
	active := pgtype.Bool{}
	if acct.Active != nil {
		active = pgtype.Bool{Bool: *acct.Active, Valid: true}
	}
	if err := s.db.QueryRow(ctx, sqlUpsert, acct.Email, acct.Password, profile, active).Scan(&acct.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct    Account
		profile pgtype.Text
		active  pgtype.Bool
	)
	if err := row.Scan(&acct.ID, &acct.Email, &acct.Password, &profile, &active); err != nil {
		return Account{}, err
	}
	if profile.Valid {
		acct.ProfileID = profile.String
	}
	if active.Valid {
		v := active.Bool
		acct.Active = &v
	}
	return acct, nil
}
