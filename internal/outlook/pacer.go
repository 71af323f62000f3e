package outlook

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer spaces out UI actions. Outlook reacts badly to input that arrives
// faster than a person could produce it.
type Pacer struct {
	min, max time.Duration
	sleep    func(context.Context, time.Duration)

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacer returns a pacer whose Jitter pauses for a random duration in
// [min, max]. A nil sleep uses a context-aware timer.
func NewPacer(min, max time.Duration, sleep func(context.Context, time.Duration)) *Pacer {
	if max < min {
		max = min
	}
	if sleep == nil {
		sleep = sleepCtx
	}
	seed := uint64(time.Now().UnixNano())
	return &Pacer{
		min:   min,
		max:   max,
		sleep: sleep,
		rng:   rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// Wait pauses for exactly d.
func (p *Pacer) Wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	p.sleep(ctx, d)
}

func (p *Pacer) Jitter(ctx context.Context) {
	d := p.min
	if span := p.max - p.min; span > 0 {
		p.mu.Lock()
		d += time.Duration(p.rng.Int64N(int64(span) + 1))
		p.mu.Unlock()
	}
	p.Wait(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
