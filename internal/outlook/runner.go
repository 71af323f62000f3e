// Package outlook drives Outlook web through a browser.Controller: sign-in
// and the mailbox flows run after it.
package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/browser"
)

const (
	DefaultURL = "https://outlook.live.com/owa/?lang=en-us"

	defaultLoginAttempts   = 3
	defaultLoginRetryDelay = 5 * time.Second
	defaultMaxScrolls      = 5
	defaultArchiveRounds   = 20
	archiveKeyPresses      = 30
)

// SenderLog stores the senders rescued from the Junk folder of account.
// It returns where they were written.
type SenderLog interface {
	WriteSenders(account string, senders []string) (string, error)
}

type Config struct {
	URL             string
	TargetDomains   []string
	LoginAttempts   int
	LoginRetryDelay time.Duration
	// MaxScrolls bounds how often the Junk list is scrolled looking for
	// more matching senders.
	MaxScrolls int
	// ArchiveRounds bounds the manual archive passes after Ctrl+A, E.
	ArchiveRounds int
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if len(c.TargetDomains) == 0 {
		c.TargetDomains = []string{"franco"}
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = defaultLoginAttempts
	}
	if c.LoginRetryDelay <= 0 {
		c.LoginRetryDelay = defaultLoginRetryDelay
	}
	if c.MaxScrolls < 0 {
		c.MaxScrolls = 0
	} else if c.MaxScrolls == 0 {
		c.MaxScrolls = defaultMaxScrolls
	}
	if c.ArchiveRounds <= 0 {
		c.ArchiveRounds = defaultArchiveRounds
	}
	return c
}

// Runner signs in and runs one flow on an attached page.
type Runner struct {
	cfg     Config
	pacer   *Pacer
	senders SenderLog
	logger  zerolog.Logger
}

func NewRunner(cfg Config, pacer *Pacer, senders SenderLog, logger zerolog.Logger) *Runner {
	if pacer == nil {
		pacer = NewPacer(500*time.Millisecond, 2*time.Second, nil)
	}
	return &Runner{
		cfg:     cfg.withDefaults(),
		pacer:   pacer,
		senders: senders,
		logger:  logger.With().Str("comp", "outlook").Logger(),
	}
}

func (r *Runner) Run(ctx context.Context, ctrl browser.Controller, flow Flow, creds accounts.Credentials) error {
	log := r.logger.With().Str("email", creds.Email).Str("flow", flow.String()).Logger()

	if err := r.login(ctx, ctrl, creds, log); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	switch flow {
	case FlowJunk:
		return r.junk(ctx, ctrl, log)
	case FlowUnjunk:
		return r.unjunk(ctx, ctrl, creds.Email, log)
	case FlowDelete:
		return r.deleteAll(ctx, ctrl, log)
	case FlowArchive:
		return r.archiveByDomain(ctx, ctrl, log)
	default:
		return fmt.Errorf("unknown flow %q", flow)
	}
}
