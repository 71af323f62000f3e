// Package gologin talks to GoLogin: the REST API for creating profiles and
// the local desktop API for starting and stopping them.
package gologin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL   = "https://api.gologin.com/browser"
	DefaultLocalURL = "http://127.0.0.1:36912"

	defaultTimeout          = 60 * time.Second
	defaultStartInterval    = 2 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBaseDelay   = 500 * time.Millisecond
	defaultDebuggerAttempts = 3
	defaultDebuggerDelay    = 2 * time.Second
	maxErrorBody            = 500
)

// ErrDebuggerUnavailable means a profile started but its DevTools endpoint
// never answered.
var ErrDebuggerUnavailable = errors.New("devtools debugger is not responding")

// APIError is a non-2xx reply from either API.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gologin %s %d: %s", e.Op, e.Status, e.Body)
}

type Config struct {
	Token    string
	APIURL   string
	LocalURL string
	Timeout  time.Duration
	// StartInterval is the minimum spacing between profile starts.
	StartInterval    time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	DebuggerAttempts int
	DebuggerDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.LocalURL == "" {
		c.LocalURL = DefaultLocalURL
	}
	c.LocalURL = strings.TrimRight(c.LocalURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.StartInterval < 0 {
		c.StartInterval = 0
	} else if c.StartInterval == 0 {
		c.StartInterval = defaultStartInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.DebuggerAttempts <= 0 {
		c.DebuggerAttempts = defaultDebuggerAttempts
	}
	if c.DebuggerDelay <= 0 {
		c.DebuggerDelay = defaultDebuggerDelay
	}
	return c
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("missing GoLogin token")
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.StartInterval > 0 {
		limit = rate.Every(cfg.StartInterval)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("comp", "gologin").Logger(),
	}, nil
}

// CreateProfile registers a new browser profile and returns its id.
func (c *Client) CreateProfile(ctx context.Context, p Profile) (string, error) {
	var out createResponse
	if err := c.call(ctx, "create-profile", c.cfg.APIURL, p, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("gologin create-profile: empty profile id")
	}
	c.logger.Info().Str("profile", out.ID).Str("name", p.Name).Msg("profile created")
	return out.ID, nil
}

// StartProfile launches a profile in the local GoLogin app, waits for its
// DevTools endpoint to answer and returns the websocket URL.
func (c *Client) StartProfile(ctx context.Context, profileID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("gologin start-profile: %w", err)
	}

	c.logger.Info().Str("profile", profileID).Msg("starting profile")
	var out startResponse
	err := c.call(ctx, "start-profile", c.cfg.LocalURL+"/browser/start-profile",
		startRequest{ProfileID: profileID, Sync: true}, &out)
	if err != nil {
		return "", err
	}
	if out.WSURL == "" {
		return "", fmt.Errorf("gologin start-profile: no websocket url (status %q)", out.Status)
	}
	c.logger.Info().Str("profile", profileID).Str("ws", out.WSURL).Msg("profile started")

	if err := c.VerifyDebugger(ctx, out.WSURL); err != nil {
		if stopErr := c.StopProfile(context.WithoutCancel(ctx), profileID); stopErr != nil {
			c.logger.Warn().Err(stopErr).Str("profile", profileID).Msg("stop after failed start")
		}
		return "", err
	}
	return out.WSURL, nil
}

func (c *Client) StopProfile(ctx context.Context, profileID string) error {
	err := c.call(ctx, "stop-profile", c.cfg.LocalURL+"/browser/stop-profile",
		stopRequest{ProfileID: profileID}, nil)
	if err != nil {
		return err
	}
	c.logger.Info().Str("profile", profileID).Msg("profile stopped")
	return nil
}

// VerifyDebugger polls /json/version on the host behind wsURL.
func (c *Client) VerifyDebugger(ctx context.Context, wsURL string) error {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("gologin: bad websocket url %q", wsURL)
	}
	probe := "http://" + u.Host + "/json/version"

	backoff := retry.WithMaxRetries(uint64(c.cfg.DebuggerAttempts-1), retry.NewConstant(c.cfg.DebuggerDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Debug().Err(err).Str("probe", probe).Msg("debugger probe failed")
		return fmt.Errorf("%w: %s", ErrDebuggerUnavailable, probe)
	}
	return nil
}

// call POSTs body as JSON and decodes the reply into out, retrying network
// errors, 429 and 5xx with exponential backoff.
func (c *Client) call(ctx context.Context, op, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", op, err)
	}

	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxRetries), retry.NewExponential(c.cfg.RetryBaseDelay))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.logger.Info().Str("op", op).Int("attempt", attempt).Msg("retrying gologin call")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		c.logger.Debug().Str("op", op).Str("url", endpoint).Int("payload_size", len(payload)).Msg("gologin request")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("gologin %s: %w", op, err))
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return retry.RetryableError(fmt.Errorf("gologin %s: read response: %w", op, err))
		}

		c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Int("response_size", len(data)).Msg("gologin response")

		if resp.StatusCode >= 400 {
			msg := string(data)
			if len(msg) > maxErrorBody {
				msg = msg[:maxErrorBody] + "..."
			}
			apiErr := &APIError{Op: op, Status: resp.StatusCode, Body: msg}
			c.logger.Error().Str("op", op).Int("status", resp.StatusCode).Str("raw_response", msg).Int("attempt", attempt).Msg("gologin api error")
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("gologin %s: parse response: %w", op, err)
		}
		return nil
	})
}
