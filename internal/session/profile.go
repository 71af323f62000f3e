package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/browser"
	"github.com/polzovatel/outlook-sweeper/internal/outlook"
	"github.com/polzovatel/outlook-sweeper/internal/snapshot"
)

const teardownTimeout = 15 * time.Second

// ProfileStarter runs GoLogin profiles.
type ProfileStarter interface {
	StartProfile(ctx context.Context, profileID string) (string, error)
	StopProfile(ctx context.Context, profileID string) error
}

// Attacher turns a DevTools endpoint into a page controller.
type Attacher interface {
	Attach(ctx context.Context, endpoint string) (browser.Controller, error)
}

// FlowRunner signs in and runs a flow on a page.
type FlowRunner interface {
	Run(ctx context.Context, ctrl browser.Controller, flow outlook.Flow, creds accounts.Credentials) error
}

// ProfileOpener opens sessions backed by GoLogin profiles.
type ProfileOpener struct {
	starter  ProfileStarter
	attacher Attacher
	runner   FlowRunner
	snaps    *snapshot.Recorder
	logger   zerolog.Logger
}

// NewProfileOpener wires the pieces of a session. snaps may be nil, in
// which case failed flows leave no screenshot.
func NewProfileOpener(starter ProfileStarter, attacher Attacher, runner FlowRunner, snaps *snapshot.Recorder, logger zerolog.Logger) *ProfileOpener {
	return &ProfileOpener{
		starter:  starter,
		attacher: attacher,
		runner:   runner,
		snaps:    snaps,
		logger:   logger.With().Str("comp", "session").Logger(),
	}
}

func (o *ProfileOpener) Open(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return nil, &SessionError{Token: token, Err: ErrNoProfile}
	}

	ws, err := o.starter.StartProfile(ctx, token)
	if err != nil {
		return nil, &SessionError{Token: token, Err: err}
	}

	ctrl, err := o.attacher.Attach(ctx, ws)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if stopErr := o.starter.StopProfile(stopCtx, token); stopErr != nil {
			o.logger.Warn().Err(stopErr).Str("profile", token).Msg("stop profile after failed attach")
		}
		return nil, &SessionError{Token: token, Err: fmt.Errorf("attach: %w", err)}
	}

	return &profileSession{
		token:  token,
		ctrl:   ctrl,
		opener: o,
		logger: o.logger.With().Str("profile", token).Logger(),
	}, nil
}

type profileSession struct {
	token  string
	ctrl   browser.Controller
	opener *ProfileOpener
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *profileSession) RunFlow(ctx context.Context, flow outlook.Flow, creds accounts.Credentials) error {
	err := s.opener.runner.Run(ctx, s.ctrl, flow, creds)
	if err == nil {
		return nil
	}
	if s.opener.snaps != nil {
		summary, snapErr := s.opener.snaps.Capture(context.WithoutCancel(ctx), s.ctrl, creds.Email+"_"+flow.String())
		ev := s.logger.Warn().Str("email", creds.Email).Str("url", summary.URL).Str("title", summary.Title).
			Str("text", summary.Excerpt()).Str("screenshot", summary.Screenshot)
		if snapErr != nil {
			ev = ev.AnErr("snapshot_err", snapErr)
		}
		ev.Msg("flow failed, page captured")
	}
	return &FlowError{Flow: flow, Err: err}
}

// Close releases the page, then stops the profile. Only the first call does
// any work.
func (s *profileSession) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		var errs []error
		if err := s.ctrl.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		if err := s.opener.starter.StopProfile(ctx, s.token); err != nil {
			errs = append(errs, fmt.Errorf("stop profile: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
