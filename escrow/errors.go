package escrow

import "github.com/pkg/errors"

var (
	// ErrNotFound signals a query against an unknown escrow id.
	// Reported to the caller, never retried.
	ErrNotFound = errors.New("escrow record not found")

	// ErrInvalidState signals a verification request against a record
	// that is not in the deposited status. A usage error, not a
	// retryable condition.
	ErrInvalidState = errors.New("escrow not in a verifiable state")

	// ErrInvalidTransition marks a chain event incompatible with the
	// record's current status, including duplicates and events for
	// terminal records. Logged as a no-op, never surfaced as an
	// application error.
	ErrInvalidTransition = errors.New("event incompatible with escrow status")

	// ErrMissingBaseline marks a record whose baseline degraded to
	// zero because the oracle was down at initialization. Transfer
	// verification is not trusted until an administrative baseline
	// correction.
	ErrMissingBaseline = errors.New("baseline snapshot missing")
)
