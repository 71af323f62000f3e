package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
	"github.com/polzovatel/outlook-sweeper/internal/runlog"
)

type procFunc func(ctx context.Context, acct accounts.Account) Outcome

func (f procFunc) ProcessAccount(ctx context.Context, acct accounts.Account) Outcome {
	return f(ctx, acct)
}

type finderStub map[string]error

func (f finderStub) FindByEmail(_ context.Context, email string) (accounts.Account, error) {
	if err, ok := f[email]; ok {
		return accounts.Account{}, err
	}
	return accounts.Account{Email: email, ProfileID: "P-" + email}, nil
}

func newTestDispatcher(concurrency int, finder accounts.Finder, proc AccountProcessor, l *logs, out *syncBuffer) *Dispatcher {
	d := NewDispatcher(DispatcherConfig{Concurrency: concurrency}, finder, proc, l.failed, zerolog.New(out))
	d.now = fixedClock
	return d
}

func seedStore() *accounts.MemoryStore {
	return accounts.NewMemoryStore([]accounts.Account{
		{Email: "a@x.com", Password: "pa", ProfileID: "P1"},
		{Email: "b@x.com", Password: "pb", ProfileID: "P2"},
		{Email: "d@x.com", Password: "pd", ProfileID: "P4"},
		{Email: "g@x.com", Password: "pg", ProfileID: "P7"},
		{Email: "h@x.com", Password: "ph", ProfileID: "P9"},
	}, keepOrder{})
}

// Scenarios A to D end to end through the real controller.
func TestRunBatch_Scenarios(t *testing.T) {
	store := seedStore()
	sampler := &samplerStub{accts: []accounts.Account{{ProfileID: "P7"}, {ProfileID: "P9"}}}
	opener := newFakeOpener(map[string][]step{
		"P1": {{flowErr: errLogin}},
		"P2": {{flowErr: errLogin}, {flowErr: errLogin}},
		"P4": {{flowErr: errLogin}, {flowErr: errLogin}},
		"P7": {{flowErr: errLogin}, {flowErr: errLogin}},
		"P9": {{}, {flowErr: errLogin}},
	})
	l := newLogs()
	out := &syncBuffer{}
	ctrl := NewController(ControllerConfig{}, sampler, opener, l.outcomes, l.failed, zerolog.New(out),
		WithClock(fixedClock), WithSleep(func(context.Context, time.Duration) {}))
	d := newTestDispatcher(1, store, ctrl, l, out)

	stats := d.RunBatch(context.Background(), []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"})

	assert.Equal(t, []string{
		"a@x.com,success_after_retry",
		"b@x.com,success_random_profile_2",
		"d@x.com,error",
	}, l.results.Lines())
	require.Len(t, l.failures.Lines(), 1)
	assert.Contains(t, l.failures.Lines()[0], "d@x.com")

	logged := out.String()
	assert.Contains(t, logged, `"level":"warn"`)
	assert.Contains(t, logged, `"email":"c@x.com"`)
	assert.Contains(t, logged, "email not found in store")

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 3, stats.Processed())
	assert.Equal(t, 1, stats.ByKind[KindError])
	assert.NotEmpty(t, stats.RunID)
	assert.Contains(t, logged, `"run":"`+stats.RunID+`"`)
}

func TestRunBatch_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	proc := procFunc(func(_ context.Context, acct accounts.Account) Outcome {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return Outcome{Email: acct.Email, Kind: KindSuccess}
	})
	emails := []string{"1@x.com", "2@x.com", "3@x.com", "4@x.com", "5@x.com", "6@x.com", "7@x.com"}
	d := newTestDispatcher(2, finderStub{}, proc, newLogs(), &syncBuffer{})

	stats := d.RunBatch(context.Background(), emails)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, len(emails), stats.ByKind[KindSuccess])
}

func TestRunBatch_PanicBecomesBatchFailureLine(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	proc := procFunc(func(_ context.Context, acct accounts.Account) Outcome {
		mu.Lock()
		seen = append(seen, acct.Email)
		mu.Unlock()
		if acct.Email == "boom@x.com" {
			panic("controller bug")
		}
		return Outcome{Email: acct.Email, Kind: KindSuccess}
	})
	l := newLogs()
	d := newTestDispatcher(3, finderStub{}, proc, l, &syncBuffer{})

	stats := d.RunBatch(context.Background(), []string{"ok1@x.com", "boom@x.com", "ok2@x.com"})

	sort.Strings(seen)
	assert.Equal(t, []string{"boom@x.com", "ok1@x.com", "ok2@x.com"}, seen)
	assert.Equal(t, []string{"[2025-01-02 03:04:05] Failed: boom@x.com: panic: controller bug"}, l.failures.Lines())
	assert.Equal(t, 1, stats.Crashed)
	assert.Equal(t, 2, stats.ByKind[KindSuccess])
}

func TestRunBatch_LookupErrorIsRecordedAndSkipped(t *testing.T) {
	var calls atomic.Int32
	proc := procFunc(func(_ context.Context, acct accounts.Account) Outcome {
		calls.Add(1)
		return Outcome{Email: acct.Email, Kind: KindSuccess}
	})
	finder := finderStub{
		"broken@x.com":  errors.New("db error: timeout"),
		"missing@x.com": accounts.ErrNotFound,
	}
	l := newLogs()
	d := newTestDispatcher(2, finder, proc, l, &syncBuffer{})

	stats := d.RunBatch(context.Background(), []string{"broken@x.com", "missing@x.com", " ", "fine@x.com"})

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Skipped)
	require.Len(t, l.failures.Lines(), 1)
	assert.True(t, strings.HasPrefix(l.failures.Lines()[0], "[2025-01-02 03:04:05] Failed: broken@x.com: lookup: db error: timeout"))
}

func TestRunBatch_CancelStopsNewWorkButFinishesInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started []string
	var inflightErr error
	proc := procFunc(func(pctx context.Context, acct accounts.Account) Outcome {
		started = append(started, acct.Email)
		cancel()
		inflightErr = pctx.Err()
		return Outcome{Email: acct.Email, Kind: KindSuccess}
	})
	d := newTestDispatcher(1, finderStub{}, proc, newLogs(), &syncBuffer{})

	stats := d.RunBatch(ctx, []string{"1@x.com", "2@x.com", "3@x.com"})

	assert.Equal(t, []string{"1@x.com"}, started)
	assert.NoError(t, inflightErr)
	assert.Equal(t, 1, stats.ByKind[KindSuccess])
	assert.Equal(t, 2, stats.Skipped)
}

func TestRunBatch_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc := procFunc(func(context.Context, accounts.Account) Outcome {
		t.Fatal("no account should start")
		return Outcome{}
	})
	d := newTestDispatcher(2, finderStub{}, proc, newLogs(), &syncBuffer{})

	stats := d.RunBatch(ctx, []string{"1@x.com", "2@x.com"})
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Processed())
}

func TestRunBatch_LogsAccumulateAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	resultsPath := filepath.Join(dir, "results.csv")

	run := func() {
		sink, err := runlog.OpenSink(resultsPath)
		require.NoError(t, err)
		defer sink.Close()
		failSink, err := runlog.OpenSink(filepath.Join(dir, "failed_accounts.log"))
		require.NoError(t, err)
		defer failSink.Close()

		outcomes := runlog.NewOutcomeLog(sink)
		failures := runlog.NewFailureLog(failSink)
		ctrl := NewController(ControllerConfig{}, &samplerStub{}, newFakeOpener(nil), outcomes, failures, zerolog.Nop())
		d := NewDispatcher(DispatcherConfig{Concurrency: 2}, finderStub{}, ctrl, failures, zerolog.Nop())
		d.RunBatch(context.Background(), []string{"a@x.com"})
	}
	run()
	run()

	data, err := os.ReadFile(resultsPath)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com,success\na@x.com,success\n", string(data))
}
