// Package strategy provides the pluggable decision engines: a deterministic
// rule baseline and a Gemini-backed engine. Both produce the same Intent
// shape; neither is trusted with safety enforcement — that belongs to the
// outbound membrane.
package strategy

import (
	"context"
	"fmt"
	"math"

	"aura/internal/types"
)

// Thresholds for the rule engine, relative to the hidden floor price.
const (
	// counterWindow: bids at or above floor*counterWindow get a counter
	// instead of a rejection.
	counterWindow = 0.8

	// counterMarkup: the counter proposes floor*counterMarkup.
	counterMarkup = 1.05
)

// DefaultUITriggerPrice routes bids above this value to human confirmation
// when no configured value is supplied.
const DefaultUITriggerPrice = 1000.0

// TemplateHighValueConfirm is the UI template for high-value confirmations.
const TemplateHighValueConfirm = "high_value_confirm"

// RuleEngine is the deterministic baseline strategy. It is a pure function
// of bid vs. floor/base price; the outbound guard must be able to fully
// override anything it produces.
type RuleEngine struct {
	// UITriggerPrice is the high-value threshold; bids above it defer to a
	// human-in-the-loop UI.
	UITriggerPrice float64
}

// NewRuleEngine returns a rule engine with the given UI trigger, or the
// default when trigger is not positive.
func NewRuleEngine(trigger float64) *RuleEngine {
	if trigger <= 0 {
		trigger = DefaultUITriggerPrice
	}
	return &RuleEngine{UITriggerPrice: trigger}
}

// Name implements types.Strategy.
func (e *RuleEngine) Name() string { return "rules" }

// Decide implements types.Strategy.
func (e *RuleEngine) Decide(_ context.Context, nc *types.NegotiationContext) (types.Intent, error) {
	bid := nc.Signal.BidAmount
	floor := nc.Item.FloorPrice

	// The aggregator guarantees the item exists; this is belt-and-braces for
	// direct callers in tests and tools.
	if nc.Item.ItemID == "" {
		return types.Intent{
			Action:     types.ActionReject,
			ReasonCode: "ITEM_NOT_FOUND",
		}, nil
	}

	if bid > e.UITriggerPrice {
		return types.Intent{
			Action:      types.ActionUIRequired,
			TemplateID:  TemplateHighValueConfirm,
			ContextData: uiContextData(nc),
		}, nil
	}

	switch {
	case bid >= floor:
		return types.Intent{
			Action:  types.ActionAccept,
			Price:   bid,
			Message: "Offer accepted.",
		}, nil

	case bid >= floor*counterWindow:
		price := round2(floor * counterMarkup)
		return types.Intent{
			Action:  types.ActionCounter,
			Price:   price,
			Message: fmt.Sprintf("I can't go that low, but I could accept $%.2f.", price),
		}, nil

	default:
		return types.Intent{
			Action:     types.ActionReject,
			ReasonCode: "OFFER_TOO_LOW",
		}, nil
	}
}

// uiContextData is what the human-in-the-loop template needs to render a
// confirmation, whichever engine asked for it.
func uiContextData(nc *types.NegotiationContext) map[string]string {
	return map[string]string{
		"item_id":    nc.Item.ItemID,
		"bid_amount": fmt.Sprintf("%.2f", nc.Signal.BidAmount),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
