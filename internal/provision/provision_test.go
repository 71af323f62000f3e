package provision

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/gologin"
)

type creatorStub struct {
	ids   map[string]string
	errs  map[string]error
	names []string
}

func (c *creatorStub) CreateProfile(_ context.Context, p gologin.Profile) (string, error) {
	c.names = append(c.names, p.Name)
	if err := c.errs[p.Name]; err != nil {
		return "", err
	}
	return c.ids[p.Name], nil
}

type ledgerStub struct {
	rows []accounts.Account
	err  error
}

func (l *ledgerStub) Append(acct accounts.Account) error {
	if l.err != nil {
		return l.err
	}
	l.rows = append(l.rows, acct)
	return nil
}

func TestFingerprintUsesKnownOptions(t *testing.T) {
	p := New(&creatorStub{}, nil, &ledgerStub{}, 42, zerolog.Nop())

	for i := 0; i < 20; i++ {
		fp := p.Fingerprint("alice@x.com")
		assert.Equal(t, "alice", fp.Name)
		assert.Equal(t, "chrome", fp.BrowserType)
		assert.Contains(t, osOptions, fp.OS)
		assert.Contains(t, platformOptions, fp.Navigator.Platform)
		assert.Contains(t, userAgents, fp.Navigator.UserAgent)
		assert.Contains(t, countries, fp.GeoProxy.Country)
		assert.True(t, slices.Contains(screens, fp.Screen))
		assert.GreaterOrEqual(t, fp.Navigator.HardwareConcurrency, 2)
		assert.LessOrEqual(t, fp.Navigator.HardwareConcurrency, 8)
		assert.Equal(t, "gologin", fp.Proxy.Mode)
		assert.Equal(t, "noise", fp.Canvas.Mode)
	}
}

func TestFingerprintIsSeedable(t *testing.T) {
	a := New(&creatorStub{}, nil, &ledgerStub{}, 7, zerolog.Nop())
	b := New(&creatorStub{}, nil, &ledgerStub{}, 7, zerolog.Nop())
	assert.Equal(t, a.Fingerprint("x@y.z"), b.Fingerprint("x@y.z"))
}

func TestRunRecordsCreatedProfiles(t *testing.T) {
	creator := &creatorStub{
		ids:  map[string]string{"a": "6650f0c0a1", "b": "bad id!", "c": "77aa"},
		errs: map[string]error{"d": errors.New("gologin create-profile 401")},
	}
	ledger := &ledgerStub{}
	store := accounts.NewMemoryStore(nil, nil)
	p := New(creator, store, ledger, 1, zerolog.Nop())

	res := p.Run(context.Background(), []accounts.Credentials{
		{Email: "a@x.com", Password: "pa"},
		{Email: "b@x.com", Password: "pb"},
		{Email: "c@x.com", Password: "pc"},
		{Email: "d@x.com", Password: "pd"},
	})

	assert.Equal(t, Result{Created: 2, Failed: 2}, res)
	assert.Equal(t, []string{"a", "b", "c", "d"}, creator.names)
	require.Len(t, ledger.rows, 2)
	assert.Equal(t, accounts.Account{Email: "a@x.com", Password: "pa", ProfileID: "6650f0c0a1"}, ledger.rows[0])

	acct, err := store.FindByEmail(context.Background(), "c@x.com")
	require.NoError(t, err)
	assert.Equal(t, "77aa", acct.ProfileID)
	_, err = store.FindByEmail(context.Background(), "b@x.com")
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestProvisionOneRejectsInvalidID(t *testing.T) {
	p := New(&creatorStub{ids: map[string]string{"a": "../etc"}}, nil, &ledgerStub{}, 1, zerolog.Nop())

	_, err := p.ProvisionOne(context.Background(), accounts.Credentials{Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrInvalidProfileID)
}

func TestProvisionOneLedgerFailure(t *testing.T) {
	p := New(&creatorStub{ids: map[string]string{"a": "abc"}}, nil, &ledgerStub{err: errors.New("disk full")}, 1, zerolog.Nop())

	_, err := p.ProvisionOne(context.Background(), accounts.Credentials{Email: "a@x.com"})
	assert.ErrorContains(t, err, "disk full")
}

func TestRunStopsOnCancel(t *testing.T) {
	creator := &creatorStub{ids: map[string]string{"a": "abc"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(creator, nil, &ledgerStub{}, 1, zerolog.Nop()).Run(ctx, []accounts.Credentials{{Email: "a@x.com"}})
	assert.Zero(t, res.Created)
	assert.Empty(t, creator.names)
}
