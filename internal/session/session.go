// Package session opens a browser identity, drives one mailbox flow in it
// and tears it down again.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/outlook"
)

// ErrNoProfile is the cause of a SessionError for an empty identity token.
var ErrNoProfile = errors.New("account has no browser profile")

// Opener starts a browser session under an identity token.
type Opener interface {
	Open(ctx context.Context, token string) (Session, error)
}

// Session is one started browser identity. Close is idempotent and must be
// called on every path once Open succeeded.
type Session interface {
	RunFlow(ctx context.Context, flow outlook.Flow, creds accounts.Credentials) error
	Close() error
}

// SessionError means the identity could not be started or attached.
type SessionError struct {
	Token string
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %q: %v", e.Token, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// FlowError means the session came up but the mailbox flow failed.
type FlowError struct {
	Flow outlook.Flow
	Err  error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("flow %s: %v", e.Flow, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }
