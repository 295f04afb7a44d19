// Package refresh drives periodic refresh cycles. A cycle fans out to every
// registered provider task concurrently, isolates their failures, and
// publishes each success to its cache slot as soon as it is available.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/logging"
	"github.com/ipranges/internal/telemetry"
)

var log = logging.Logger("refresh")

// ErrAlreadyStarted is returned by Start when the loop is already running
var ErrAlreadyStarted = errors.New("refresh loop already started")

// Orchestrator runs refresh cycles over a fixed set of tasks
type Orchestrator struct {
	tasks   []Task
	policy  Policy
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	sem     *semaphore.Weighted // nil means unbounded fan-out

	last atomic.Pointer[Report]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithAdapterTimeout bounds every adapter call
func WithAdapterTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.policy.AdapterTimeout = d
	}
}

// WithSkipUnchanged keeps the published snapshot when a fetched payload
// has the same fingerprint.
func WithSkipUnchanged(skip bool) Option {
	return func(o *Orchestrator) {
		o.policy.SkipUnchanged = skip
	}
}

// WithMetrics records cycle and outcome metrics
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithMaxConcurrency caps how many adapters fetch at the same time. Zero or
// a negative n leaves the fan-out unbounded.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = semaphore.NewWeighted(int64(n))
		} else {
			o.sem = nil
		}
	}
}

// New creates an orchestrator. Defaults: 60s adapter timeout, unchanged
// payloads skipped.
func New(tasks []Task, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tasks: tasks,
		policy: Policy{
			AdapterTimeout: 60 * time.Second,
			SkipUnchanged:  true,
		},
		tracer: otel.Tracer("ipranges/refresh"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Names returns the provider names of the orchestrated tasks
func (o *Orchestrator) Names() []domain.ProviderName {
	names := make([]domain.ProviderName, len(o.tasks))
	for i, t := range o.tasks {
		names[i] = t.Name()
	}
	return names
}

// LastReport returns the most recently completed cycle's report
func (o *Orchestrator) LastReport() (Report, bool) {
	r := o.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// RunCycle refreshes every provider concurrently and waits for all of them.
// A failing, panicking or slow provider never affects another provider's
// outcome.
func (o *Orchestrator) RunCycle(ctx context.Context) Report {
	return o.run(ctx, o.tasks)
}

// RunProviders runs a cycle restricted to the named providers
func (o *Orchestrator) RunProviders(ctx context.Context, names ...domain.ProviderName) (Report, error) {
	want := make(map[domain.ProviderName]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var selected []Task
	for _, t := range o.tasks {
		if want[t.Name()] {
			selected = append(selected, t)
			delete(want, t.Name())
		}
	}
	for n := range want {
		return Report{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, n)
	}
	return o.run(ctx, selected), nil
}

func (o *Orchestrator) run(ctx context.Context, tasks []Task) Report {
	executionID := uuid.New()
	ctx = domain.WithExecutionID(ctx, executionID)
	ctx, span := o.tracer.Start(ctx, "refresh.cycle",
		trace.WithAttributes(attribute.String("execution_id", executionID.String())))
	defer span.End()

	report := Report{
		ExecutionID: executionID,
		Started:     time.Now(),
		Outcomes:    make(map[domain.ProviderName]Outcome, len(tasks)),
	}
	log.Debugw("refresh cycle started", "execution_id", executionID, "providers", len(tasks))

	var mu sync.Mutex
	var wg conc.WaitGroup
	for _, task := range tasks {
		wg.Go(func() {
			if o.sem != nil {
				if err := o.sem.Acquire(ctx, 1); err != nil {
					out := Outcome{Provider: task.Name(), Status: StatusFailed, Err: fmt.Errorf("refresh cancelled: %w", err)}
					o.record(executionID, out)
					mu.Lock()
					report.Outcomes[out.Provider] = out
					mu.Unlock()
					return
				}
				defer o.sem.Release(1)
			}

			tctx, tspan := o.tracer.Start(ctx, "refresh.provider",
				trace.WithAttributes(attribute.String("provider", task.Name().String())))
			out := task.Run(tctx, o.policy)
			tspan.SetAttributes(attribute.String("status", string(out.Status)))
			if out.Err != nil {
				tspan.RecordError(out.Err)
			}
			tspan.End()

			o.record(executionID, out)
			mu.Lock()
			report.Outcomes[out.Provider] = out
			mu.Unlock()
		})
	}
	wg.Wait()

	report.Finished = time.Now()
	o.metrics.ObserveCycle(report.Duration())
	o.last.Store(&report)

	log.Infow("refresh cycle completed",
		"execution_id", executionID,
		"duration", report.Duration(),
		"published", report.Count(StatusPublished),
		"unchanged", report.Count(StatusUnchanged),
		"failed", report.Count(StatusFailed),
		"skipped", report.Count(StatusSkipped))
	return report
}

func (o *Orchestrator) record(executionID uuid.UUID, out Outcome) {
	o.metrics.ObserveRefresh(out.Provider.String(), string(out.Status), out.Duration, out.Succeeded(), time.Now())

	switch out.Status {
	case StatusPublished:
		log.Infow("cache updated",
			"execution_id", executionID,
			"provider", out.Provider,
			"fingerprint", out.Fingerprint,
			"duration", out.Duration)
	case StatusUnchanged:
		log.Debugw("upstream unchanged",
			"execution_id", executionID,
			"provider", out.Provider,
			"fingerprint", out.Fingerprint)
	case StatusSkipped:
		log.Warnw("refresh skipped",
			"execution_id", executionID,
			"provider", out.Provider,
			"reason", out.Err)
	case StatusFailed:
		log.Errorw("refresh failed",
			"execution_id", executionID,
			"provider", out.Provider,
			"duration", out.Duration,
			"err", out.Err)
	}
}

// Start runs one cycle synchronously, then keeps refreshing every period in
// the background until ctx is cancelled or Stop is called. Cycles of the
// background loop never overlap.
func (o *Orchestrator) Start(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("refresh period must be positive, got %s", period)
	}

	o.mu.Lock()
	if o.done != nil {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.mu.Unlock()

	o.RunCycle(loopCtx)
	go o.loop(loopCtx, period, done)

	log.Infow("refresh loop started", "period", period, "providers", len(o.tasks))
	return nil
}

func (o *Orchestrator) loop(ctx context.Context, period time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infow("refresh loop stopped")
			return
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// Stop cancels the background loop and waits for it to exit. Stop is a
// no-op when the loop is not running.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
