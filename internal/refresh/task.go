package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/domain"
)

var (
	// ErrInFlight marks a provider whose previous fetch has not returned yet
	ErrInFlight = errors.New("previous fetch still in flight")
	// ErrNoData is reported when an adapter returns neither data nor error
	ErrNoData = errors.New("adapter returned no data")
	// ErrTimeout is reported when an adapter overruns its deadline
	ErrTimeout = errors.New("adapter timed out")
)

// Task is one provider's refresh step with the provider's data type erased.
// The orchestrator only ever deals in Tasks.
type Task interface {
	Name() domain.ProviderName
	Run(ctx context.Context, p Policy) Outcome
}

// Policy carries the per-cycle settings applied to every task
type Policy struct {
	AdapterTimeout time.Duration
	SkipUnchanged  bool
}

// Bind pairs an adapter with the slot its results are published to
func Bind[T any](adapter domain.Adapter[T], slot *cache.Slot[T]) Task {
	return &binding[T]{adapter: adapter, slot: slot}
}

type binding[T any] struct {
	adapter domain.Adapter[T]
	slot    *cache.Slot[T]

	// inflight is set while an adapter call is running, including calls
	// abandoned after a timeout.
	inflight atomic.Bool
}

type result[T any] struct {
	fetched domain.Fetched[T]
	err     error
}

func (b *binding[T]) Name() domain.ProviderName {
	return b.adapter.Name()
}

func (b *binding[T]) Run(ctx context.Context, p Policy) Outcome {
	out := Outcome{Provider: b.Name()}
	if !b.inflight.CompareAndSwap(false, true) {
		out.Status = StatusSkipped
		out.Err = ErrInFlight
		return out
	}

	start := time.Now()
	callCtx := ctx
	if p.AdapterTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.AdapterTimeout)
		defer cancel()
	}

	done := make(chan result[T], 1)
	go func() {
		done <- b.call(callCtx)
	}()

	var res result[T]
	select {
	case res = <-done:
	case <-callCtx.Done():
		// The call keeps running; whoever receives its result clears the
		// in-flight flag and drops the data.
		go func() {
			late := <-done
			b.inflight.Store(false)
			log.Debugw("discarded late adapter result",
				"provider", b.Name(),
				"execution_id", domain.ExecutionID(ctx),
				"err", late.err)
		}()
		out.Duration = time.Since(start)
		out.Status = StatusFailed
		if ctx.Err() != nil {
			out.Err = fmt.Errorf("refresh cancelled: %w", ctx.Err())
		} else {
			out.Err = fmt.Errorf("%w after %s", ErrTimeout, p.AdapterTimeout)
		}
		b.slot.RecordFailure(out.Err, time.Now())
		return out
	}
	defer b.inflight.Store(false)

	out.Duration = time.Since(start)
	if res.err == nil && res.fetched.Data == nil {
		res.err = ErrNoData
	}
	if res.err != nil {
		out.Status = StatusFailed
		out.Err = res.err
		b.slot.RecordFailure(res.err, time.Now())
		return out
	}

	out.Fingerprint = res.fetched.Fingerprint
	snap := cache.NewSnapshot(res.fetched.Data, res.fetched.Fingerprint, domain.ExecutionID(ctx))
	if p.SkipUnchanged {
		changed, err := b.slot.PublishIfChanged(snap)
		if err != nil {
			out.Status, out.Err = StatusFailed, err
			return out
		}
		if !changed {
			out.Status = StatusUnchanged
			return out
		}
	} else if err := b.slot.Publish(snap); err != nil {
		out.Status, out.Err = StatusFailed, err
		return out
	}
	out.Status = StatusPublished
	return out
}

// call runs the adapter, converting a panic into an error
func (b *binding[T]) call(ctx context.Context) result[T] {
	var res result[T]
	var pc panics.Catcher
	pc.Try(func() {
		res.fetched, res.err = b.adapter.FetchAndParse(ctx)
	})
	if rec := pc.Recovered(); rec != nil {
		return result[T]{err: fmt.Errorf("adapter panicked: %w", rec.AsError())}
	}
	return res
}
