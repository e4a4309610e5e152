package types

import "errors"

// Error taxonomy for the pipeline. Propagation policy:
//   - ErrInvalidInput and ErrItemNotFound abort the pipeline before a decision
//     is produced (client faults).
//   - ErrStrategyFailure never leaves the pipeline; it is converted to a
//     FailureIntent and recovered by the outbound membrane.
//   - ErrPersistence is returned alongside a valid Decision as a warning; the
//     caller remains the source of truth for what was decided.
//   - ErrEventPublish is logged and swallowed by the generator.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrItemNotFound        = errors.New("item not found")
	ErrStrategyFailure     = errors.New("strategy failure")
	ErrPersistence         = errors.New("persistence failure")
	ErrReservationConflict = errors.New("reservation conflict")
	ErrEventPublish        = errors.New("event publish failure")
)
