// Package processor decides how an account is retried and with which
// browser identity, and runs batches of accounts through that policy.
package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/outlook"
	"github.com/polzovatel/outlook-sweeper/internal/session"
)

const (
	DefaultMaxAlternates = 2
	DefaultRetryDelay    = 5 * time.Second
)

type ControllerConfig struct {
	Flow outlook.Flow
	// MaxAlternates caps borrowed identities tried after the account's own
	// profile failed twice. Zero means the default; negative disables.
	MaxAlternates int
	// RetryDelay separates consecutive attempts. Zero means the default;
	// negative disables.
	RetryDelay time.Duration
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	switch {
	case c.MaxAlternates == 0:
		c.MaxAlternates = DefaultMaxAlternates
	case c.MaxAlternates < 0:
		c.MaxAlternates = 0
	}
	switch {
	case c.RetryDelay == 0:
		c.RetryDelay = DefaultRetryDelay
	case c.RetryDelay < 0:
		c.RetryDelay = 0
	}
	return c
}

type Option func(*Controller)

// WithClock overrides the time source used for failure lines.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleep overrides how the controller waits between attempts.
func WithSleep(sleep func(context.Context, time.Duration)) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// Controller runs one account through the escalation policy: own profile,
// own profile again, then borrowed profiles, then give up.
type Controller struct {
	cfg      ControllerConfig
	store    accounts.Sampler
	opener   session.Opener
	outcomes OutcomeLog
	failures FailureLog
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration)
}

func NewController(cfg ControllerConfig, store accounts.Sampler, opener session.Opener, outcomes OutcomeLog, failures FailureLog, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg.withDefaults(),
		store:    store,
		opener:   opener,
		outcomes: outcomes,
		failures: failures,
		logger:   logger.With().Str("comp", "controller").Str("flow", cfg.Flow.String()).Logger(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessAccount never fails: every error ends up in the returned Outcome,
// the results file and, on exhaustion, the failure log.
func (c *Controller) ProcessAccount(ctx context.Context, acct accounts.Account) Outcome {
	log := c.logger.With().Str("email", acct.Email).Logger()
	creds := acct.Credentials()
	out := Outcome{Email: acct.Email, Token: acct.ProfileID}

	log.Info().Str("profile", acct.ProfileID).Msg("processing account")

	out.Attempt = 1
	err := c.attempt(ctx, acct.ProfileID, creds, out.Attempt, log)
	if err == nil {
		out.Kind = KindSuccess
		return c.finish(out, log)
	}
	log.Warn().Err(err).Int("attempt", out.Attempt).Str("profile", acct.ProfileID).Msg("initial attempt failed, retrying with same profile")

	c.pause(ctx)
	out.Attempt = 2
	if err = c.attempt(ctx, acct.ProfileID, creds, out.Attempt, log); err == nil {
		out.Kind = KindSuccessAfterRetry
		return c.finish(out, log)
	}
	log.Error().Err(err).Int("attempt", out.Attempt).Str("profile", acct.ProfileID).Msg("both attempts with own profile failed")

	for i, alt := range c.alternates(ctx, acct, log) {
		c.pause(ctx)
		out.Attempt++
		out.Token = alt.ProfileID
		log.Warn().Int("attempt", out.Attempt).Str("profile", alt.ProfileID).Msg("retrying with borrowed profile")

		if err = c.attempt(ctx, alt.ProfileID, creds, out.Attempt, log); err == nil {
			out.Kind = KindSuccessAlternate
			out.Alternate = i + 1
			return c.finish(out, log)
		}
		log.Error().Err(err).Int("attempt", out.Attempt).Str("profile", alt.ProfileID).Msg("borrowed profile failed")
	}

	out.Kind = KindError
	return c.finish(out, log)
}

// attempt opens a fresh session, runs the flow and closes the session on
// every path. A panic anywhere inside counts as a failed attempt.
func (c *Controller) attempt(ctx context.Context, token string, creds accounts.Credentials, n int, log zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("attempt %d panicked: %v", n, r)
			log.Error().Str("stack", string(debug.Stack())).Int("attempt", n).Msgf("recovered panic: %v", r)
		}
	}()

	if token == "" {
		return &session.SessionError{Token: token, Err: session.ErrNoProfile}
	}

	sess, err := c.opener.Open(ctx, token)
	if err != nil {
		var sessErr *session.SessionError
		if !errors.As(err, &sessErr) {
			err = &session.SessionError{Token: token, Err: err}
		}
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Err(cerr).Int("attempt", n).Str("profile", token).Msg("session teardown failed")
		}
	}()

	if err := sess.RunFlow(ctx, c.cfg.Flow, creds); err != nil {
		var flowErr *session.FlowError
		if !errors.As(err, &flowErr) {
			err = &session.FlowError{Flow: c.cfg.Flow, Err: err}
		}
		return err
	}
	return nil
}

// alternates draws up to MaxAlternates distinct borrowed profiles. A store
// error means no alternates.
func (c *Controller) alternates(ctx context.Context, acct accounts.Account, log zerolog.Logger) []accounts.Account {
	if c.cfg.MaxAlternates <= 0 || c.store == nil {
		return nil
	}
	var excluding []string
	if acct.HasProfile() {
		excluding = []string{acct.ProfileID}
	}
	drawn, err := c.store.SampleRandom(ctx, excluding, c.cfg.MaxAlternates)
	if err != nil {
		log.Error().Err(err).Msg("sampling borrowed profiles failed")
		return nil
	}

	seen := map[string]struct{}{acct.ProfileID: {}}
	alts := make([]accounts.Account, 0, len(drawn))
	for _, a := range drawn {
		if !a.HasProfile() {
			continue
		}
		if _, dup := seen[a.ProfileID]; dup {
			continue
		}
		seen[a.ProfileID] = struct{}{}
		alts = append(alts, a)
		if len(alts) == c.cfg.MaxAlternates {
			break
		}
	}
	if len(alts) == 0 {
		log.Warn().Msg("no random profiles available for retry")
	}
	return alts
}

func (c *Controller) finish(out Outcome, log zerolog.Logger) Outcome {
	ev := log.Info()
	if !out.Succeeded() {
		ev = log.Error()
	}
	ev.Str("outcome", out.Keyword()).Int("attempt", out.Attempt).Str("profile", out.Token).Msg("account finished")

	if c.outcomes != nil {
		if err := c.outcomes.Append(out.Email, out.Keyword()); err != nil {
			log.Error().Err(err).Msg("write outcome record")
		}
	}
	if !out.Succeeded() && c.failures != nil {
		if err := c.failures.Exhausted(c.now(), out.Email); err != nil {
			log.Error().Err(err).Msg("write failure entry")
		}
	}
	return out
}

func (c *Controller) pause(ctx context.Context) {
	if c.cfg.RetryDelay > 0 {
		c.sleep(ctx, c.cfg.RetryDelay)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
