package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"librarian/internal/census/differ"
	"librarian/internal/census/domain"
	"librarian/internal/census/notary"
	"librarian/internal/census/pulse"
	"librarian/internal/census/validate"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

// scriptedSource replays a fixed sequence of capture outcomes.
type scriptedSource struct {
	outcomes []func() (domain.Snapshot, error)
	calls    int
}

func (s *scriptedSource) Capture(context.Context) (domain.Snapshot, error) {
	if s.calls >= len(s.outcomes) {
		return domain.Snapshot{}, errors.New("script exhausted")
	}
	snap, err := s.outcomes[s.calls]()
	s.calls++
	return snap, err
}

func ok(snap domain.Snapshot) func() (domain.Snapshot, error) {
	return func() (domain.Snapshot, error) { return snap, nil }
}

// memStore is an in-memory Store with the same CAS contract as the sqlite
// implementation.
type memStore struct {
	state   domain.CommittedState
	commits int
	failAt  int   // commit index (1-based) to fail with conflictErr
	lastErr error // error to return at failAt
}

func newMemStore() *memStore {
	return &memStore{state: domain.CommittedState{Registry: domain.NewRegistry()}}
}

func (m *memStore) Load() (domain.CommittedState, error) {
	return domain.CommittedState{
		Registry: m.state.Registry.Clone(),
		Pulses:   append([]pulse.Pulse(nil), m.state.Pulses...),
	}, nil
}

func (m *memStore) Commit(reg *domain.Registry, p pulse.Pulse) error {
	m.commits++
	if m.failAt == m.commits {
		return m.lastErr
	}
	if reg.Version != m.state.Registry.Version+1 {
		return domain.ErrVersionConflict
	}
	m.state.Registry = reg.Clone()
	m.state.Pulses = append(m.state.Pulses, p)
	return nil
}

func (m *memStore) Close() error { return nil }

func goodSnapshot(runID string, count int) domain.Snapshot {
	games := make([]domain.RawGame, count)
	for i := range games {
		games[i] = domain.RawGame{
			NaturalKey: fmt.Sprintf("%d", 900+i),
			Attributes: domain.Attributes{
				Name:   fmt.Sprintf("Game %d", i),
				Prizes: []domain.PrizeTier{{Value: 1000, Remaining: 1}},
			},
		}
	}
	return domain.Snapshot{RunID: runID, ObservedAt: t0, Games: games, PayloadSize: 512_000}
}

func newTestRunner(source domain.SnapshotSource, store domain.Store, maxAttempts int) *Runner {
	r := NewRunner(source, store,
		validate.New(40, 3.0, 5),
		notary.New(3, 0.25),
		RetryPolicy{MaxAttempts: maxAttempts, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond},
		200,
		WithClock(func() time.Time { return t0 }),
	)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRunOnce_CommitsFirstAttempt(t *testing.T) {
	store := newMemStore()
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){ok(goodSnapshot("run_1", 45))}}
	r := newTestRunner(source, store, 3)
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Equal(t, "run_1", result.RunID)
	require.Equal(t, 1, result.Attempts)
	require.Equal(t, int64(1), result.Version)
	require.Equal(t, int64(45_000), result.Checksum)
	require.Equal(t, 45, result.GameCount)
	require.Equal(t, 45, result.ActiveCount)
	require.Len(t, result.Fingerprint, 16)
	require.Len(t, result.Delta.Added, 45)

	require.Equal(t, int64(1), store.state.Registry.Version)
	require.Len(t, store.state.Pulses, 1)
}

func TestRunOnce_RetriesAcquisitionFailure(t *testing.T) {
	store := newMemStore()
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){
		func() (domain.Snapshot, error) { return domain.Snapshot{}, errors.New("net: connection refused") },
		ok(goodSnapshot("run_1", 45)),
	}}
	r := newTestRunner(source, store, 3)
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Equal(t, 2, result.Attempts)
}

func TestRunOnce_ExhaustsAttempts(t *testing.T) {
	store := newMemStore()
	fail := func() (domain.Snapshot, error) { return domain.Snapshot{}, errors.New("boom") }
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){fail, fail, fail}}
	r := newTestRunner(source, store, 3)
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.Error(t, err)
	require.False(t, result.Committed)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, string(domain.ReasonAcquisitionFailure), result.Reason)
	require.Zero(t, store.commits, "nothing reaches the store")
}

func TestRunOnce_BelowThresholdIsRetried(t *testing.T) {
	store := newMemStore()
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){
		ok(goodSnapshot("run_1a", 12)), // render glitch
		ok(goodSnapshot("run_1b", 45)),
	}}
	r := newTestRunner(source, store, 3)
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Equal(t, 2, result.Attempts)
	require.Equal(t, "run_1b", result.RunID)
}

func TestRunOnce_AnomalyRetriedExactlyOnce(t *testing.T) {
	store := newMemStore()

	// Seed a tight baseline around 58 games so 200 is anomalous.
	reg := domain.NewRegistry()
	n := notary.New(3, 0.25)
	for i := 1; i <= 10; i++ {
		next, p, err := n.Reconcile(goodSnapshot(fmt.Sprintf("seed_%d", i), 58+i%3), reg, t0)
		require.NoError(t, err)
		require.NoError(t, store.Commit(next, p))
		reg = next
	}

	anomalous := ok(goodSnapshot("run_x", 200))
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){anomalous, anomalous, anomalous, anomalous}}
	r := newTestRunner(source, store, 5)
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, result.Attempts, "one re-observation, then terminal")
	require.Equal(t, string(domain.ReasonStatisticalAnomaly), result.Reason)
	require.Contains(t, result.Detail, "anomaly reproduced")
}

func TestRunOnce_IntegrityViolationIsTerminal(t *testing.T) {
	store := newMemStore()

	// Commit a wealthy registry, then observe a halved one.
	n := notary.New(3, 0.25)
	rich := goodSnapshot("seed", 45)
	for i := range rich.Games {
		rich.Games[i].Attributes.Prizes = []domain.PrizeTier{{Value: 1_000_000 / 45, Remaining: 1}}
	}
	next, p, err := n.Reconcile(rich, domain.NewRegistry(), t0)
	require.NoError(t, err)
	require.NoError(t, store.Commit(next, p))

	poor := goodSnapshot("run_2", 45)
	for i := range poor.Games {
		poor.Games[i].Attributes.Prizes = []domain.PrizeTier{{Value: 500_000 / 45, Remaining: 1}}
	}
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){ok(poor), ok(poor)}}
	r := newTestRunner(source, store, 5)
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, result.Attempts, "integrity violations are never retried")
	require.Equal(t, string(domain.ReasonIntegrityViolation), result.Reason)
	require.Equal(t, int64(1), store.state.Registry.Version, "committed head untouched")
}

func TestRunOnce_VersionConflictIsTerminal(t *testing.T) {
	store := newMemStore()
	store.failAt = 1
	store.lastErr = domain.ErrVersionConflict

	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){
		ok(goodSnapshot("run_1", 45)), ok(goodSnapshot("run_1", 45)),
	}}
	r := newTestRunner(source, store, 3)
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrVersionConflict)
	require.Equal(t, 1, result.Attempts)
	require.Equal(t, "VersionConflict", result.Reason)
}

func TestRunOnce_ContextCancelDuringBackoff(t *testing.T) {
	store := newMemStore()
	fail := func() (domain.Snapshot, error) { return domain.Snapshot{}, errors.New("boom") }
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){fail, fail, fail}}

	r := newTestRunner(source, store, 3)
	defer r.Close()
	r.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	_, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, source.calls, "cancellation stops further attempts")
}

func TestRunOnce_PublishesEvents(t *testing.T) {
	store := newMemStore()
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){ok(goodSnapshot("run_1", 45))}}
	r := newTestRunner(source, store, 3)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := r.Events(ctx)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	first := <-events
	require.Equal(t, "attempt", string(first.Type))
	second := <-events
	require.Equal(t, "commit", string(second.Type))
	require.True(t, second.Payload.Committed)
}

type recordingVault struct {
	calls int
	reg   *domain.Registry
	err   error
}

func (v *recordingVault) PublishRun(_ context.Context, reg *domain.Registry, _ domain.Snapshot, _ differ.Delta) error {
	v.calls++
	v.reg = reg
	return v.err
}

func TestRunOnce_VaultPublishedAfterCommit(t *testing.T) {
	store := newMemStore()
	vault := &recordingVault{}
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){ok(goodSnapshot("run_1", 45))}}

	r := NewRunner(source, store,
		validate.New(40, 3.0, 5), notary.New(3, 0.25),
		RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond},
		200, WithVault(vault), WithClock(func() time.Time { return t0 }))
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, vault.calls)
	require.Equal(t, result.Version, vault.reg.Version)
}

func TestRunOnce_VaultFailureDoesNotFailRun(t *testing.T) {
	store := newMemStore()
	vault := &recordingVault{err: errors.New("r2 unreachable")}
	source := &scriptedSource{outcomes: []func() (domain.Snapshot, error){ok(goodSnapshot("run_1", 45))}}

	r := NewRunner(source, store,
		validate.New(40, 3.0, 5), notary.New(3, 0.25),
		RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond},
		200, WithVault(vault), WithClock(func() time.Time { return t0 }))
	defer r.Close()

	result, err := r.RunOnce(context.Background())
	require.NoError(t, err, "publication is best-effort")
	require.True(t, result.Committed)
}
