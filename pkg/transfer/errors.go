package transfer

import "errors"

// Fatal startup conditions. Per-object copy failures are never fatal;
// they accumulate in the RunSummary failure list instead.
var (
	// ErrListingFailure means the source prefix could not be enumerated.
	ErrListingFailure = errors.New("source listing failed")

	// ErrDestinationUnreachable means the destination bucket could not be
	// validated before any object was processed.
	ErrDestinationUnreachable = errors.New("destination unreachable")
)
