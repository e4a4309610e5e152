// Package types provides the shared data model for the negotiation metabolism
// pipeline. This package exists to break import cycles between the membrane,
// aggregator, strategy, connector and generator packages. Types here are
// foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"time"
)

// Signal is the untrusted inbound negotiation request. It is created once per
// incoming request and must be treated as immutable after inbound
// sanitization; the membrane returns a sanitized copy rather than mutating
// the original.
type Signal struct {
	RequestID  string            `json:"request_id"`
	ItemID     string            `json:"item_id"`
	BidAmount  float64           `json:"bid_amount"`
	Currency   string            `json:"currency_code"`
	AgentDID   string            `json:"agent_did"`
	SessionID  string            `json:"session_id,omitempty"`
	Reputation float64           `json:"reputation_score,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ItemRecord is read-only reference data for a negotiable item. FloorPrice is
// internal and must never appear verbatim in any outbound human-readable
// field; that invariant is enforced by the outbound membrane.
type ItemRecord struct {
	ItemID     string  `json:"item_id"`
	Name       string  `json:"name"`
	BasePrice  float64 `json:"base_price"`
	FloorPrice float64 `json:"floor_price"`
	MinMargin  float64 `json:"min_acceptable_margin"`
}

// SessionState is the optional prior-negotiation state loaded by the
// aggregator: how many rounds have run and which counter prices were already
// proposed.
type SessionState struct {
	Rounds      int
	PriorOffers []float64
}

// NegotiationContext is the aggregated working set handed to a Strategy.
// Built once per request and owned exclusively by that invocation; nothing in
// the pipeline shares it across goroutines.
type NegotiationContext struct {
	Signal  Signal
	Item    ItemRecord
	Session SessionState
}

// Action tags the Intent variant. The set is closed; the outbound membrane's
// enforcement switch is total over it and fails safe on anything else.
type Action string

const (
	ActionAccept     Action = "accept"
	ActionCounter    Action = "counter"
	ActionReject     Action = "reject"
	ActionUIRequired Action = "ui_required"
	ActionFailure    Action = "failure"
)

// Intent is a Strategy's candidate decision, pre-enforcement. Only the fields
// relevant to the tagged Action are populated.
type Intent struct {
	Action Action `json:"action"`

	// Accept / Counter
	Price   float64 `json:"price,omitempty"`
	Message string  `json:"message,omitempty"`

	// Reject
	ReasonCode string `json:"reason_code,omitempty"`

	// UIRequired
	TemplateID  string            `json:"template_id,omitempty"`
	ContextData map[string]string `json:"context_data,omitempty"`

	// Failure
	Err string `json:"error,omitempty"`

	// Metadata carries override bookkeeping (original action/price, override
	// reason) written by the outbound membrane.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FailureIntent wraps a strategy failure so it always travels through the
// outbound membrane's recovery path instead of propagating as an error.
func FailureIntent(err error) Intent {
	msg := "unknown strategy failure"
	if err != nil {
		msg = err.Error()
	}
	return Intent{Action: ActionFailure, Err: msg}
}

// CarriesPrice reports whether this intent variant discloses a price.
func (i Intent) CarriesPrice() bool {
	return i.Action == ActionAccept || i.Action == ActionCounter
}

// String renders a compact form for logs. Proposed prices are disclosed
// values; floor prices never travel through Intent, so this is safe to log.
func (i Intent) String() string {
	switch i.Action {
	case ActionAccept, ActionCounter:
		return fmt.Sprintf("%s@%.2f", i.Action, i.Price)
	case ActionReject:
		return fmt.Sprintf("reject(%s)", i.ReasonCode)
	case ActionUIRequired:
		return fmt.Sprintf("ui_required(%s)", i.TemplateID)
	case ActionFailure:
		return "failure"
	default:
		return string(i.Action)
	}
}

// Decision is the outbound shape produced to the gateway collaborator.
// Exactly one status-specific field group is populated.
type Decision struct {
	Status string `json:"status"` // accepted | countered | rejected | ui_required

	// accepted
	FinalPrice      float64 `json:"final_price,omitempty"`
	ReservationCode string  `json:"reservation_code,omitempty"`

	// countered
	ProposedPrice float64 `json:"proposed_price,omitempty"`
	Message       string  `json:"message,omitempty"`

	// rejected
	ReasonCode string `json:"reason_code,omitempty"`

	// ui_required
	Template string            `json:"template,omitempty"`
	Context  map[string]string `json:"context,omitempty"`

	SessionToken string `json:"session_token"`
	ValidUntil   int64  `json:"valid_until_timestamp"`
}

// Decision status values.
const (
	StatusAccepted   = "accepted"
	StatusCountered  = "countered"
	StatusRejected   = "rejected"
	StatusUIRequired = "ui_required"
)

// AuditEvent is an append-only, fire-and-forget record published after
// pipeline completion. Delivery is best-effort and never retried.
type AuditEvent struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NegotiationLogEntry is one row of the persisted negotiation audit trail.
type NegotiationLogEntry struct {
	SessionID      string
	RequestID      string
	ItemID         string
	AgentDID       string
	Action         Action
	Price          float64
	Round          int
	Reputation     float64
	OverrideReason string
	CreatedAt      time.Time
}
