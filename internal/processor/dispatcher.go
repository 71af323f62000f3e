package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
)

const DefaultConcurrency = 3

// AccountProcessor runs one account to a terminal outcome.
type AccountProcessor interface {
	ProcessAccount(ctx context.Context, acct accounts.Account) Outcome
}

type DispatcherConfig struct {
	Concurrency int
}

// Stats summarises a batch.
type Stats struct {
	RunID   string
	Total   int
	Skipped int
	Crashed int
	ByKind  map[Kind]int
}

func (s Stats) Processed() int {
	n := 0
	for _, v := range s.ByKind {
		n += v
	}
	return n
}

type Dispatcher struct {
	cfg      DispatcherConfig
	finder   accounts.Finder
	proc     AccountProcessor
	failures FailureLog
	logger   zerolog.Logger
	now      func() time.Time
}

func NewDispatcher(cfg DispatcherConfig, finder accounts.Finder, proc AccountProcessor, failures FailureLog, logger zerolog.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Dispatcher{
		cfg:      cfg,
		finder:   finder,
		proc:     proc,
		failures: failures,
		logger:   logger.With().Str("comp", "dispatcher").Logger(),
		now:      time.Now,
	}
}

// RunBatch resolves every email, then processes the found accounts on a
// bounded pool. Once ctx is cancelled no further account is started; those
// already running finish.
func (d *Dispatcher) RunBatch(ctx context.Context, emails []string) Stats {
	stats := Stats{RunID: uuid.NewString(), ByKind: make(map[Kind]int)}
	log := d.logger.With().Str("run", stats.RunID).Logger()

	work := make([]accounts.Account, 0, len(emails))
	for _, raw := range emails {
		email := strings.TrimSpace(raw)
		if email == "" {
			continue
		}
		stats.Total++
		if ctx.Err() != nil {
			stats.Skipped++
			continue
		}

		acct, err := d.finder.FindByEmail(ctx, email)
		switch {
		case errors.Is(err, accounts.ErrNotFound):
			log.Warn().Str("email", email).Msg("email not found in store")
			stats.Skipped++
		case err != nil:
			log.Error().Err(err).Str("email", email).Msg("account lookup failed")
			d.recordCrash(email, fmt.Errorf("lookup: %w", err), log)
			stats.Skipped++
		default:
			work = append(work, acct)
		}
	}

	log.Info().Int("accounts", len(work)).Int("skipped", stats.Skipped).Int("workers", d.cfg.Concurrency).Msg("batch started")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)
	for i, acct := range work {
		if ctx.Err() != nil {
			log.Warn().Int("not_started", len(work)-i).Msg("batch cancelled")
			mu.Lock()
			stats.Skipped += len(work) - i
			mu.Unlock()
			break
		}
		g.Go(func() error {
			mu.Lock()
			if ctx.Err() != nil {
				stats.Skipped++
				mu.Unlock()
				return nil
			}
			mu.Unlock()

			out, crashed := d.runOne(context.WithoutCancel(ctx), acct, log)
			mu.Lock()
			defer mu.Unlock()
			if crashed {
				stats.Crashed++
			} else {
				stats.ByKind[out.Kind]++
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("total", stats.Total).
		Int("processed", stats.Processed()).
		Int("skipped", stats.Skipped).
		Int("crashed", stats.Crashed).
		Int("failed", stats.ByKind[KindError]).
		Msg("batch finished")
	return stats
}

func (d *Dispatcher) runOne(ctx context.Context, acct accounts.Account, log zerolog.Logger) (out Outcome, crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			log.Error().Str("email", acct.Email).Str("stack", string(debug.Stack())).Msgf("account processing panicked: %v", r)
			d.recordCrash(acct.Email, fmt.Errorf("panic: %v", r), log)
		}
	}()
	out = d.proc.ProcessAccount(ctx, acct)
	log.Info().Str("email", acct.Email).Str("outcome", out.Keyword()).Msg("finished processing")
	return out, false
}

func (d *Dispatcher) recordCrash(email string, cause error, log zerolog.Logger) {
	if d.failures == nil {
		return
	}
	if err := d.failures.Crashed(d.now(), email, cause); err != nil {
		log.Error().Err(err).Str("email", email).Msg("write batch failure entry")
	}
}
