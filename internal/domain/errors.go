package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderMisconfigured marks a transaction provider that cannot run at all
	// (missing endpoint or credentials). Analyses fail instead of degrading.
	ErrProviderMisconfigured = errors.New("transaction provider misconfigured")

	// ErrDrainerNotFound is returned when no registry entry exists for an address.
	ErrDrainerNotFound = errors.New("drainer not found in registry")
)

// ValidationError reports malformed input rejected before any core logic runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ProviderError reports a transaction fetch failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// LookupError reports a single registry check that could not be completed.
// Callers use it to tell "unknown" apart from "clean".
type LookupError struct {
	Address string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("registry lookup for %s: %v", e.Address, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// AggregationError indicates an upstream invariant violation seen by the aggregator.
type AggregationError struct {
	Reason string
}

func (e *AggregationError) Error() string {
	return "aggregation invariant violated: " + e.Reason
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsLookup reports whether err is or wraps a LookupError.
func IsLookup(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}
