// Package connector applies an enforced intent to the outside world: it
// persists the negotiation outcome and shapes the outbound decision. A
// persistence failure degrades the audit trail, never the decision — the
// caller is the source of truth for what was decided.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aura/internal/types"
)

// Reason codes surfaced on outbound decisions.
const (
	ReasonNegotiationOngoing = "NEGOTIATION_ONGOING"
	ReasonOfferTooLow        = "OFFER_TOO_LOW"
)

// decisionValidity is how long a decision (and its session token) stays
// actionable for the calling agent.
const decisionValidity = 600 * time.Second

// Connector maps intents to decisions and persists outcomes.
type Connector struct {
	store  types.ItemStore
	logger *zap.Logger
}

// New returns a connector over the given store.
func New(store types.ItemStore, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{store: store, logger: logger}
}

// Apply persists the outcome and returns the outbound decision. The decision
// is always valid; when persistence fails the error wraps
// types.ErrPersistence and is meant to be logged as a warning by the caller,
// not to abort the request. Persistence is one transaction, so cancellation
// mid-apply leaves no partial state.
func (c *Connector) Apply(ctx context.Context, intent types.Intent, nc *types.NegotiationContext) (types.Decision, error) {
	dec := types.Decision{
		SessionToken: sessionToken(nc.Signal.RequestID),
		ValidUntil:   time.Now().Add(decisionValidity).Unix(),
	}

	switch intent.Action {
	case types.ActionAccept:
		dec.Status = types.StatusAccepted
		dec.FinalPrice = intent.Price

	case types.ActionCounter:
		dec.Status = types.StatusCountered
		dec.ProposedPrice = intent.Price
		dec.Message = intent.Message
		dec.ReasonCode = ReasonNegotiationOngoing

	case types.ActionReject:
		dec.Status = types.StatusRejected
		dec.ReasonCode = intent.ReasonCode
		if dec.ReasonCode == "" {
			dec.ReasonCode = ReasonOfferTooLow
		}

	case types.ActionUIRequired:
		dec.Status = types.StatusUIRequired
		dec.Template = intent.TemplateID
		dec.Context = intent.ContextData

	default:
		// The outbound membrane recovers failures before they reach the
		// connector; an unknown action here is a programming error. Shape it
		// as a rejection rather than crash the request.
		c.logger.Error("connector received unexpected action",
			zap.String("action", string(intent.Action)))
		dec.Status = types.StatusRejected
		dec.ReasonCode = "INTERNAL_ERROR"
	}

	entry := types.NegotiationLogEntry{
		SessionID:      sessionID(nc),
		RequestID:      nc.Signal.RequestID,
		ItemID:         nc.Item.ItemID,
		AgentDID:       nc.Signal.AgentDID,
		Action:         intent.Action,
		Price:          intent.Price,
		Round:          nc.Session.Rounds + 1,
		Reputation:     nc.Signal.Reputation,
		OverrideReason: intent.Metadata["override_reason"],
	}

	code, err := c.store.ApplyOutcome(ctx, entry, intent.Action == types.ActionAccept)
	if err != nil {
		c.logger.Warn("outcome persistence failed, decision still returned",
			zap.String("request_id", nc.Signal.RequestID),
			zap.Error(err))
		return dec, fmt.Errorf("apply %s: %w", intent.Action, err)
	}
	if intent.Action == types.ActionAccept {
		dec.ReservationCode = code
	}
	return dec, nil
}

func sessionToken(requestID string) string {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return "sess_" + requestID
}

// sessionID prefers the explicit session; otherwise the agent+item pair
// identifies the conversation.
func sessionID(nc *types.NegotiationContext) string {
	if nc.Signal.SessionID != "" {
		return nc.Signal.SessionID
	}
	return nc.Signal.AgentDID + "/" + nc.Item.ItemID
}
