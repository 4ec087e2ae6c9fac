package resource

import "errors"

// Sentinel errors forming the closed taxonomy. Callers use
// errors.Is against these; StoreError carries the structured reason.
var (
	ErrNotFound              = errors.New("resource not found")
	ErrValidation            = errors.New("validation error")
	ErrCycleRejected         = errors.New("cycle rejected")
	ErrInvariantViolation    = errors.New("invariant violation")
	ErrContentHashMismatch   = errors.New("content hash mismatch")
	ErrDeltaApplyFailure     = errors.New("delta apply failure")
	ErrConcurrentVersionBump = errors.New("concurrent version bump")
	ErrProviderTimeout       = errors.New("provider timeout")
	ErrProviderRateLimit     = errors.New("provider rate limited")
)

// Kind names one of the sentinel errors for structured inspection without
// requiring callers to errors.Is against every variant individually.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindValidation            Kind = "validation"
	KindCycleRejected         Kind = "cycle_rejected"
	KindInvariantViolation    Kind = "invariant_violation"
	KindContentHashMismatch   Kind = "content_hash_mismatch"
	KindDeltaApplyFailure     Kind = "delta_apply_failure"
	KindConcurrentVersionBump Kind = "concurrent_version_bump"
	KindProviderTimeout       Kind = "provider_timeout"
	KindProviderRateLimit     Kind = "provider_rate_limit"
)

// StoreError is a structured error with an enum kind and a single-line
// reason.
type StoreError struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *StoreError) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Reason
}

func (e *StoreError) Unwrap() error {
	return e.cause
}

// NewError builds a StoreError wrapping the matching sentinel so
// errors.Is(err, resource.ErrNotFound) keeps working.
func NewError(kind Kind, reason string) *StoreError {
	return &StoreError{Kind: kind, Reason: reason, cause: sentinelFor(kind)}
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindCycleRejected:
		return ErrCycleRejected
	case KindInvariantViolation:
		return ErrInvariantViolation
	case KindContentHashMismatch:
		return ErrContentHashMismatch
	case KindDeltaApplyFailure:
		return ErrDeltaApplyFailure
	case KindConcurrentVersionBump:
		return ErrConcurrentVersionBump
	case KindProviderTimeout:
		return ErrProviderTimeout
	case KindProviderRateLimit:
		return ErrProviderRateLimit
	default:
		return errors.New(string(kind))
	}
}
