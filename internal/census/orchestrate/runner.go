// Package orchestrate drives one census run end to end: acquire a snapshot,
// validate it against the pulse baseline, reconcile it through the notary,
// and commit the accepted generation. Transient failures are retried with
// exponential backoff; integrity violations never are.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"librarian/internal/census/differ"
	"librarian/internal/census/domain"
	"librarian/internal/census/notary"
	"librarian/internal/census/pulse"
	"librarian/internal/census/validate"
	"librarian/internal/log"
	"librarian/internal/pubsub"
)

// Publisher receives the committed generation for external publication
// (vault mirror, evidence upload). Failures are logged, never fatal: the
// commit already happened.
type Publisher interface {
	PublishRun(ctx context.Context, reg *domain.Registry, snap domain.Snapshot, delta differ.Delta) error
}

// RetryPolicy bounds the attempt loop.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// RunResult summarizes one census run for callers and event subscribers.
type RunResult struct {
	RunID       string       `json:"run_id"`
	Committed   bool         `json:"committed"`
	Attempts    int          `json:"attempts"`
	Version     int64        `json:"version,omitempty"`
	Checksum    int64        `json:"checksum,omitempty"`
	GameCount   int          `json:"game_count,omitempty"`
	ActiveCount int          `json:"active_count,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	Delta       differ.Delta `json:"delta"`
	Reason      string       `json:"reason,omitempty"`
	Detail      string       `json:"detail,omitempty"`
}

// Runner wires the census pipeline together.
type Runner struct {
	source    domain.SnapshotSource
	store     domain.Store
	validator *validate.Validator
	notary    *notary.Notary
	retry     RetryPolicy
	capacity  int
	vault     Publisher
	broker    *pubsub.Broker[RunResult]
	tracer    trace.Tracer
	now       func() time.Time

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithVault attaches a post-commit publisher.
func WithVault(p Publisher) Option {
	return func(r *Runner) { r.vault = p }
}

// WithTracer attaches a tracer for per-run spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner builds a runner over the given pipeline stages. pulseCapacity
// bounds the baseline history loaded from the store.
func NewRunner(source domain.SnapshotSource, store domain.Store, v *validate.Validator, n *notary.Notary, retry RetryPolicy, pulseCapacity int, opts ...Option) *Runner {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffBase <= 0 {
		retry.BackoffBase = 30 * time.Second
	}
	if retry.BackoffMax <= 0 {
		retry.BackoffMax = 10 * time.Minute
	}

	r := &Runner{
		source:    source,
		store:     store,
		validator: v,
		notary:    n,
		retry:     retry,
		capacity:  pulseCapacity,
		broker:    pubsub.NewBroker[RunResult](),
		tracer:    noop.NewTracerProvider().Tracer("runner"),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events subscribes to run progress. One AttemptEvent fires per attempt,
// then a terminal CommitEvent or RejectEvent.
func (r *Runner) Events(ctx context.Context) <-chan pubsub.Event[RunResult] {
	return r.broker.Subscribe(ctx)
}

// Close releases the runner's event broker.
func (r *Runner) Close() {
	r.broker.Close()
}

// RunOnce executes a single census run. The returned RunResult is populated
// in both the committed and rejected cases; the error mirrors the terminal
// rejection so callers can exit non-zero.
func (r *Runner) RunOnce(ctx context.Context) (RunResult, error) {
	ctx, span := r.tracer.Start(ctx, "census.run")
	defer span.End()

	var result RunResult
	var lastErr error
	anomalyRetried := false

	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		result, lastErr = r.attempt(ctx, attempt)
		result.Attempts = attempt
		r.broker.Publish(pubsub.AttemptEvent, result)

		if lastErr == nil {
			span.SetAttributes(
				attribute.String("run.id", result.RunID),
				attribute.Int64("registry.version", result.Version),
				attribute.Int("run.attempts", attempt),
			)
			r.broker.Publish(pubsub.CommitEvent, result)
			return result, nil
		}

		retryable, note := r.classify(lastErr, &anomalyRetried)
		log.Warn(log.CatCensus, "attempt failed",
			"attempt", attempt, "max", r.retry.MaxAttempts,
			"retryable", retryable, "error", lastErr.Error())
		if !retryable || attempt == r.retry.MaxAttempts {
			if note != "" {
				result.Detail = fmt.Sprintf("%s (%s)", result.Detail, note)
			}
			break
		}

		if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	span.SetStatus(codes.Error, lastErr.Error())
	r.broker.Publish(pubsub.RejectEvent, result)
	return result, lastErr
}

// attempt runs the pipeline once against freshly loaded committed state, so
// a retry after a concurrent commit reconciles against the new head.
func (r *Runner) attempt(ctx context.Context, attempt int) (RunResult, error) {
	state, err := r.store.Load()
	if err != nil {
		return RunResult{}, fmt.Errorf("load committed state: %w", err)
	}
	history := pulse.NewHistory(r.capacity, state.Pulses...)

	snap, err := r.source.Capture(ctx)
	if err != nil {
		rej := domain.Reject(domain.ReasonAcquisitionFailure, "capture: %v", err)
		return RunResult{Reason: string(rej.Reason), Detail: rej.Detail}, rej
	}
	result := RunResult{RunID: snap.RunID, GameCount: snap.Count()}
	log.Info(log.CatCensus, "snapshot acquired",
		"run_id", snap.RunID, "games", snap.Count(), "bytes", snap.PayloadSize, "attempt", attempt)

	if err := r.validator.Check(snap, history); err != nil {
		return rejected(result, err), err
	}

	next, p, err := r.notary.Reconcile(snap, state.Registry, r.now())
	if err != nil {
		return rejected(result, err), err
	}

	if err := r.store.Commit(next, p); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			result.Reason = "VersionConflict"
			result.Detail = err.Error()
			return result, err
		}
		return result, fmt.Errorf("commit registry v%d: %w", next.Version, err)
	}

	delta := differ.Compute(state.Registry, next)
	result.Committed = true
	result.Version = next.Version
	result.Checksum = next.Checksum
	result.ActiveCount = next.ActiveCount()
	result.Fingerprint = differ.Fingerprint(next)
	result.Delta = delta
	log.Info(log.CatCensus, "generation committed",
		"run_id", snap.RunID, "version", next.Version,
		"checksum", next.Checksum, "delta", delta.Summary())

	if r.vault != nil {
		if err := r.vault.PublishRun(ctx, next, snap, delta); err != nil {
			log.ErrorErr(log.CatVault, "post-commit publication failed", err, "run_id", snap.RunID)
		}
	}
	return result, nil
}

func rejected(result RunResult, err error) RunResult {
	if rej, ok := domain.AsRejection(err); ok {
		result.Reason = string(rej.Reason)
		result.Detail = rej.Detail
	} else {
		result.Detail = err.Error()
	}
	return result
}

// classify decides whether a failed attempt may be retried. Acquisition
// failures and threshold misses are presumed transient. A statistical
// anomaly earns exactly one re-observation; if the anomaly reproduces it is
// real. Integrity violations and version conflicts are terminal.
func (r *Runner) classify(err error, anomalyRetried *bool) (retryable bool, note string) {
	if errors.Is(err, domain.ErrVersionConflict) {
		return false, "concurrent commit won"
	}
	rej, ok := domain.AsRejection(err)
	if !ok {
		return false, ""
	}
	switch rej.Reason {
	case domain.ReasonAcquisitionFailure, domain.ReasonBelowSafetyThreshold:
		return true, ""
	case domain.ReasonStatisticalAnomaly:
		if *anomalyRetried {
			return false, "anomaly reproduced on re-observation"
		}
		*anomalyRetried = true
		return true, ""
	default:
		return false, ""
	}
}

// backoff returns base*2^(attempt-1) plus up to 25% jitter, capped.
func (r *Runner) backoff(attempt int) time.Duration {
	d := r.retry.BackoffBase << (attempt - 1)
	if d > r.retry.BackoffMax || d <= 0 {
		d = r.retry.BackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	if d+jitter > r.retry.BackoffMax {
		return r.retry.BackoffMax
	}
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
