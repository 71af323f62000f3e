// Package provision creates a GoLogin profile with a random fingerprint for
// each new mailbox and records the assignment.
package provision

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/gologin"
)

var (
	osOptions       = []string{"win", "mac", "lin"}
	platformOptions = []string{"Win32", "MacIntel", "Linux x86_64"}
	vendorOptions   = []string{"Google Inc.", "Apple Computer, Inc."}
	countries       = []string{"US", "GB", "CA", "AU", "NZ"}
	screens         = []gologin.Screen{
		{Width: 1366, Height: 768},
		{Width: 1440, Height: 900},
		{Width: 1536, Height: 864},
		{Width: 1920, Height: 1080},
		{Width: 2560, Height: 1440},
	}
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	}
	deviceMemory = []int{4, 8, 16}

	validProfileID = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ErrInvalidProfileID is returned when GoLogin hands back an id that is not
// plain alphanumeric.
var ErrInvalidProfileID = errors.New("invalid profile id")

type ProfileCreator interface {
	CreateProfile(ctx context.Context, p gologin.Profile) (string, error)
}

type AccountWriter interface {
	Create(ctx context.Context, acct *accounts.Account) error
}

type LedgerWriter interface {
	Append(acct accounts.Account) error
}

// Result counts what a Run did.
type Result struct {
	Created int
	Failed  int
}

type Provisioner struct {
	creator ProfileCreator
	store   AccountWriter
	ledger  LedgerWriter
	logger  zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a provisioner. store may be nil when no database is
// configured; the ledger is always written. A zero seed picks one from the
// clock.
func New(creator ProfileCreator, store AccountWriter, ledger LedgerWriter, seed uint64, logger zerolog.Logger) *Provisioner {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Provisioner{
		creator: creator,
		store:   store,
		ledger:  ledger,
		logger:  logger.With().Str("comp", "provision").Logger(),
		rng:     rand.New(rand.NewPCG(seed, seed>>3)),
	}
}

// Fingerprint builds a randomised profile named after the mailbox's local
// part.
func (p *Provisioner) Fingerprint(email string) gologin.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	name, _, _ := strings.Cut(email, "@")
	screen := pick(p.rng, screens)
	return gologin.Profile{
		Name:        name,
		BrowserType: "chrome",
		OS:          pick(p.rng, osOptions),
		Navigator: gologin.Navigator{
			Language:            "en-US",
			Platform:            pick(p.rng, platformOptions),
			Vendor:              pick(p.rng, vendorOptions),
			UserAgent:           pick(p.rng, userAgents),
			Resolution:          fmt.Sprintf("%dx%d", screen.Width, screen.Height),
			HardwareConcurrency: 2 + p.rng.IntN(7),
			DeviceMemory:        pick(p.rng, deviceMemory),
		},
		Screen:   screen,
		GeoProxy: gologin.GeoProxy{Country: pick(p.rng, countries)},
		Proxy:    gologin.Proxy{Mode: "gologin"},
		Timezone: gologin.Toggle{Enabled: true},
		WebRTC:   gologin.Mode{Mode: "alerted"},
		Canvas:   gologin.Mode{Mode: "noise"},
		WebGL:    gologin.Mode{Mode: "noise"},
	}
}

// ProvisionOne creates a profile for creds and records it in the ledger and
// the store.
func (p *Provisioner) ProvisionOne(ctx context.Context, creds accounts.Credentials) (accounts.Account, error) {
	id, err := p.creator.CreateProfile(ctx, p.Fingerprint(creds.Email))
	if err != nil {
		return accounts.Account{}, fmt.Errorf("create profile: %w", err)
	}
	if !validProfileID.MatchString(id) {
		return accounts.Account{}, fmt.Errorf("%w: %q", ErrInvalidProfileID, id)
	}

	acct := accounts.Account{Email: creds.Email, Password: creds.Password, ProfileID: id}
	if err := p.ledger.Append(acct); err != nil {
		return acct, fmt.Errorf("append ledger: %w", err)
	}
	if p.store != nil {
		if err := p.store.Create(ctx, &acct); err != nil {
			return acct, fmt.Errorf("store account: %w", err)
		}
	}
	return acct, nil
}

// Run provisions every row. A failed row is logged and skipped.
func (p *Provisioner) Run(ctx context.Context, rows []accounts.Credentials) Result {
	var res Result
	for _, creds := range rows {
		if ctx.Err() != nil {
			p.logger.Warn().Int("remaining", len(rows)-res.Created-res.Failed).Msg("provisioning cancelled")
			break
		}
		acct, err := p.ProvisionOne(ctx, creds)
		if err != nil {
			res.Failed++
			p.logger.Error().Err(err).Str("email", creds.Email).Msg("failed to create profile")
			continue
		}
		res.Created++
		p.logger.Info().Str("email", acct.Email).Str("profile", acct.ProfileID).Msg("created profile")
	}
	return res
}

func pick[T any](rng *rand.Rand, options []T) T {
	return options[rng.IntN(len(options))]
}
