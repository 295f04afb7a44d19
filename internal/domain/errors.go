// Package domain contains custom error types for the application.
package domain

import (
	"errors"
	"fmt"
)

// Base errors
var (
	ErrNetwork             = errors.New("network error")
	ErrParse               = errors.New("parse error")
	ErrNotYetAvailable     = errors.New("data not yet available")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrInvalidInput        = errors.New("invalid input")
)

// ErrorKind classifies a FetchError.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError represents a failure to fetch or decode a provider's upstream
// publication.
type FetchError struct {
	Provider  ProviderName
	Operation string
	Kind      ErrorKind
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error [provider=%s, operation=%s, kind=%s]: %v",
		e.Provider, e.Operation, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a FetchError against ErrNetwork or ErrParse by
// its kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrParse:
		return e.Kind == KindParse
	}
	return false
}

// NewNetworkError creates a FetchError of kind KindNetwork
func NewNetworkError(provider ProviderName, operation string, err error) *FetchError {
	return &FetchError{
		Provider:  provider,
		Operation: operation,
		Kind:      KindNetwork,
		Err:       err,
	}
}

// NewParseError creates a FetchError of kind KindParse
func NewParseError(provider ProviderName, operation string, err error) *FetchError {
	return &FetchError{
		Provider:  provider,
		Operation: operation,
		Kind:      KindParse,
		Err:       err,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
