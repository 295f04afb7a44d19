// Package domain contains interfaces that define contracts for the application.
package domain

import (
	"context"

	"github.com/google/uuid"
)

// Fetched is the result of one successful adapter call. Data is nil when the
// adapter could not produce a dataset; Fingerprint identifies the raw
// upstream payload the data was decoded from.
type Fetched[T any] struct {
	Data        *T
	Fingerprint string
}

// Adapter fetches one provider's upstream publication and decodes it into
// the provider's typed model. Implementations must be safe to call
// concurrently with other adapters and must not panic on malformed input.
type Adapter[T any] interface {
	// Name returns the provider's cache key
	Name() ProviderName

	// FetchAndParse performs network I/O and decoding for a single cycle
	FetchAndParse(ctx context.Context) (Fetched[T], error)
}

type executionIDKey struct{}

// WithExecutionID attaches a refresh cycle's execution ID to ctx.
func WithExecutionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, executionIDKey{}, id)
}

// ExecutionID returns the refresh cycle's execution ID carried by ctx, or
// uuid.Nil when there is none.
func ExecutionID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(executionIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
