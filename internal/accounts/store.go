package accounts

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrNotFound is returned when no account matches the requested email.
var ErrNotFound = errors.New("account not found")

// Finder resolves an email to its stored account.
type Finder interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// Sampler draws accounts whose profiles can be borrowed for a retry.
type Sampler interface {
	// SampleRandom returns up to limit accounts with distinct, non-empty
	// profile ids, none of which is in excluding.
	SampleRandom(ctx context.Context, excluding []string, limit int) ([]Account, error)
}

// Store is the identity store consumed by the batch runner.
type Store interface {
	Finder
	Sampler
}

// Shuffler is the random source used for sampling. *rand.Rand satisfies it,
// but it is not safe for concurrent use; wrap it with NewShuffler.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type lockedShuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewShuffler returns a goroutine-safe Shuffler. A zero seed picks one from
// the clock.
func NewShuffler(seed uint64) Shuffler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &lockedShuffler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *lockedShuffler) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(n, swap)
}

// pickDistinct keeps one candidate per profile id, drops empty and excluded
// ids, shuffles what is left and truncates it to limit.
func pickDistinct(candidates []Account, excluding []string, limit int, shuffler Shuffler) []Account {
	if limit <= 0 {
		return nil
	}
	skip := make(map[string]struct{}, len(excluding))
	for _, id := range excluding {
		skip[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Account, 0, len(candidates))
	for _, acct := range candidates {
		if !acct.HasProfile() {
			continue
		}
		if _, ok := skip[acct.ProfileID]; ok {
			continue
		}
		if _, ok := seen[acct.ProfileID]; ok {
			continue
		}
		seen[acct.ProfileID] = struct{}{}
		out = append(out, acct)
	}
	if shuffler != nil {
		shuffler.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
