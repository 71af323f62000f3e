package outlook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/browser"
)

func (r *Runner) login(ctx context.Context, ctrl browser.Controller, creds accounts.Credentials, log zerolog.Logger) error {
	backoff := retry.WithMaxRetries(uint64(r.cfg.LoginAttempts-1), retry.NewConstant(r.cfg.LoginRetryDelay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		log.Info().Int("login_attempt", attempt).Msg("login attempt")
		if err := r.loginOnce(ctx, ctrl, creds, log); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn().Err(err).Int("login_attempt", attempt).Msg("login attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("attempts", attempt).Msg("all login attempts failed")
		return err
	}
	log.Info().Msg("logged in, inbox loaded")
	return nil
}

func (r *Runner) loginOnce(ctx context.Context, ctrl browser.Controller, creds accounts.Credentials, log zerolog.Logger) error {
	if err := ctrl.Navigate(ctx, r.cfg.URL); err != nil {
		return fmt.Errorf("open outlook: %w", err)
	}
	if err := ctrl.WaitForLoad(ctx, 40*time.Second); err != nil {
		log.Warn().Err(err).Msg("page took too long to load completely")
	}
	if err := ctrl.WaitFor(ctx, selBody, 40*time.Second); err != nil {
		return fmt.Errorf("page body did not appear: %w", err)
	}

	if err := ctrl.Click(ctx, selAcceptCookies, 5*time.Second); err != nil {
		log.Debug().Msg("cookie banner not shown")
	} else {
		log.Info().Msg("accepted cookies")
	}

	sel, err := ctrl.ClickFirst(ctx, signInSelectors, 5*time.Second)
	if err != nil {
		return fmt.Errorf("sign in button: %w", err)
	}
	log.Debug().Str("selector", sel).Msg("clicked sign in")

	if err := ctrl.WaitForLoad(ctx, 30*time.Second); err != nil {
		log.Warn().Err(err).Msg("sign-in page load timeout")
	}
	r.pacer.Wait(ctx, 7*time.Second)

	if err := typeFirst(ctx, ctrl, emailInputSelectors, creds.Email, 10*time.Second); err != nil {
		return fmt.Errorf("email input: %w", err)
	}
	log.Info().Msg("entered email")

	if _, err := ctrl.ClickFirst(ctx, nextSelectors, 10*time.Second); err != nil {
		return fmt.Errorf("next button: %w", err)
	}

	r.pacer.Wait(ctx, 7*time.Second)
	if err := ctrl.Type(ctx, selPassword, creds.Password, 40*time.Second); err != nil {
		return fmt.Errorf("password input: %w", err)
	}
	log.Info().Msg("entered password")
	if err := ctrl.Click(ctx, selSubmit, 40*time.Second); err != nil {
		return fmt.Errorf("sign in submit: %w", err)
	}
	r.pacer.Wait(ctx, 15*time.Second)

	if err := ctrl.Click(ctx, selProofUp, 5*time.Second); err != nil {
		log.Debug().Msg("no proof-up confirmation")
	} else {
		log.Info().Msg("confirmed proof-up redirect")
		r.pacer.Jitter(ctx)
		r.pacer.Wait(ctx, 7*time.Second)
		r.skipSetup(ctx, ctrl, log)
	}

	// "Stay signed in?"
	r.pacer.Wait(ctx, 7*time.Second)
	if err := ctrl.Click(ctx, selSubmit, 40*time.Second); err != nil {
		return fmt.Errorf("stay signed in: %w", err)
	}

	// Account pickers and interstitials take an Enter each.
	r.pacer.Wait(ctx, 10*time.Second)
	r.press(ctx, ctrl, "Enter", log)
	r.pacer.Wait(ctx, 10*time.Second)
	r.press(ctx, ctrl, "Enter", log)
	r.pacer.Wait(ctx, 5*time.Second)
	r.skipSetup(ctx, ctrl, log)
	r.pacer.Wait(ctx, 10*time.Second)
	r.press(ctx, ctrl, "Enter", log)
	if r.skipSetup(ctx, ctrl, log) {
		r.pacer.Wait(ctx, 10*time.Second)
		r.press(ctx, ctrl, "Enter", log)
	}

	if err := ctrl.WaitForLoad(ctx, 30*time.Second); err != nil {
		return fmt.Errorf("inbox load: %w", err)
	}
	if err := ctrl.WaitFor(ctx, selMain, 30*time.Second); err != nil {
		return fmt.Errorf("inbox main region: %w", err)
	}
	return nil
}

func (r *Runner) skipSetup(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) bool {
	if err := ctrl.Click(ctx, selSkipSetup, 10*time.Second); err != nil {
		log.Debug().Msg("no skip setup button")
		return false
	}
	log.Info().Msg("clicked skip setup")
	r.pacer.Jitter(ctx)
	return true
}

func (r *Runner) press(ctx context.Context, ctrl browser.Controller, key string, log zerolog.Logger) {
	if err := ctrl.Press(ctx, key); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("key press failed")
	}
}

func typeFirst(ctx context.Context, ctrl browser.Controller, selectors []string, text string, timeout time.Duration) error {
	var errs []error
	for _, sel := range selectors {
		err := ctrl.Type(ctx, sel, text, timeout)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
