package types

import "context"

// Strategy is the pluggable decision-making unit. Implementations must be
// pure with respect to the context (no mutation) and must respect ctx
// deadlines. A returned error is converted by the pipeline into a
// FailureIntent; it is never surfaced raw to the caller.
type Strategy interface {
	Decide(ctx context.Context, nc *NegotiationContext) (Intent, error)
	Name() string
}

// ItemStore is the storage collaborator. Concurrency control for the accept
// path (no double-reserve on the same item+session) is the store's job, via a
// unique constraint, not the pipeline's.
type ItemStore interface {
	// GetItem returns the record for the item or ErrItemNotFound.
	GetItem(ctx context.Context, itemID string) (ItemRecord, error)

	// SessionRounds loads prior negotiation state for a session. A missing
	// session yields a zero SessionState, not an error.
	SessionRounds(ctx context.Context, sessionID string) (SessionState, error)

	// WriteNegotiationLog appends one audit-trail row.
	WriteNegotiationLog(ctx context.Context, entry NegotiationLogEntry) error

	// Reserve creates a pending-payment reservation and returns its code.
	// Returns ErrReservationConflict if the item+session is already reserved.
	Reserve(ctx context.Context, itemID, sessionID string) (string, error)

	// ApplyOutcome persists a negotiation outcome atomically: the log row
	// plus, when reserve is true, the reservation. Either both land or
	// neither does.
	ApplyOutcome(ctx context.Context, entry NegotiationLogEntry, reserve bool) (reservationCode string, err error)
}

// Bus is the event bus collaborator. Publish failures are transient by
// contract; callers treat delivery as best-effort.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}
