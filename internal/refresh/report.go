package refresh

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/ipranges/internal/domain"
)

// Status is the outcome of one provider within a cycle
type Status string

const (
	StatusPublished Status = "published"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome describes what happened to one provider in a cycle
type Outcome struct {
	Provider    domain.ProviderName
	Status      Status
	Err         error
	Duration    time.Duration
	Fingerprint string
}

// Succeeded reports whether the provider's slot holds this cycle's data
func (o Outcome) Succeeded() bool {
	return o.Status == StatusPublished || o.Status == StatusUnchanged
}

// Report summarizes one refresh cycle
type Report struct {
	ExecutionID uuid.UUID
	Started     time.Time
	Finished    time.Time
	Outcomes    map[domain.ProviderName]Outcome
}

// Duration returns the cycle's wall time
func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Count returns how many providers ended with status s
func (r Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Sorted returns the outcomes ordered by provider name
func (r Report) Sorted() []Outcome {
	out := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Err aggregates the failures of the cycle, or returns nil when every
// provider succeeded or was skipped.
func (r Report) Err() error {
	var errs *multierror.Error
	for _, o := range r.Sorted() {
		if o.Status == StatusFailed {
			errs = multierror.Append(errs, &ProviderError{Provider: o.Provider, Err: o.Err})
		}
	}
	return errs.ErrorOrNil()
}

// ProviderError ties a cycle failure to its provider
type ProviderError struct {
	Provider domain.ProviderName
	Err      error
}

func (e *ProviderError) Error() string {
	return string(e.Provider) + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
