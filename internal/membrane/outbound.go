package membrane

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"aura/internal/types"
)

// Override reasons recorded on the audit trail when the outbound guard
// rewrites an intent.
const (
	ReasonFailureRecovery     = "FAILURE_RECOVERY"
	ReasonFloorPriceViolation = "FLOOR_PRICE_VIOLATION"
	ReasonDataLeakPrevented   = "DATA_LEAK_PREVENTED"
)

// safeCounterMarkup is applied to the floor price when the guard substitutes
// its own counter-offer.
const safeCounterMarkup = 1.05

const redactedMessage = "Your offer does not meet our minimum requirements."

// OutboundGuard is the safety-critical chokepoint between the strategy and
// the connector. Every strategy output passes through EnforceOutbound; the
// floor-price and leak invariants live here and nowhere else, so adding a
// new strategy can never bypass them.
type OutboundGuard struct {
	logger *zap.Logger
}

// NewOutboundGuard returns the guard.
func NewOutboundGuard(logger *zap.Logger) *OutboundGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboundGuard{logger: logger}
}

// EnforceOutbound validates the candidate intent against the context and
// returns the intent allowed to leave the pipeline. Rules apply in fixed
// order:
//  1. failure intents (or the legacy "error" tag) are overridden to a safe
//     counter at floor*1.05
//  2. accept/counter below the floor price is overridden the same way
//  3. human-readable fields leaking the floor value or the word "floor" are
//     redacted
//  4. everything else passes through unchanged
//
// The switch is total over the closed Action set; anything unrecognized is
// treated as a failure and recovered.
func (g *OutboundGuard) EnforceOutbound(intent types.Intent, nc *types.NegotiationContext) types.Intent {
	floor := nc.Item.FloorPrice

	switch intent.Action {
	case types.ActionFailure, types.Action("error"):
		return g.overrideWithSafeCounter(intent, floor, ReasonFailureRecovery)

	case types.ActionAccept, types.ActionCounter:
		if intent.Price < floor {
			return g.overrideWithSafeCounter(intent, floor, ReasonFloorPriceViolation)
		}
		return g.redactLeaks(intent, floor)

	case types.ActionReject, types.ActionUIRequired:
		return g.redactLeaks(intent, floor)

	default:
		return g.overrideWithSafeCounter(intent, floor, ReasonFailureRecovery)
	}
}

// overrideWithSafeCounter discards the candidate and substitutes the guard's
// own final-offer counter. The original proposal is preserved in metadata and
// logged as the audit trail of the override.
func (g *OutboundGuard) overrideWithSafeCounter(original types.Intent, floor float64, reason string) types.Intent {
	price := round2(floor * safeCounterMarkup)

	g.logger.Warn("outbound intent overridden",
		zap.String("rule", reason),
		zap.String("original_action", string(original.Action)),
		zap.Float64("original_price", original.Price),
		zap.Float64("enforced_price", price))

	return types.Intent{
		Action:  types.ActionCounter,
		Price:   price,
		Message: fmt.Sprintf("I've reached my final limit for this item. My best offer is $%.2f.", price),
		Metadata: map[string]string{
			"override_reason": reason,
			"original_action": string(original.Action),
			"original_price":  strconv.FormatFloat(original.Price, 'f', 2, 64),
		},
	}
}

// redactLeaks scrubs human-readable fields that would disclose the hidden
// floor. The literal floor number is only a leak when it differs from the
// price the intent already discloses.
func (g *OutboundGuard) redactLeaks(intent types.Intent, floor float64) types.Intent {
	leaky := func(text string) bool {
		if strings.Contains(strings.ToLower(text), "floor") {
			return true
		}
		if floor != intent.Price && containsNumberToken(text, floor) {
			return true
		}
		return false
	}

	out := intent
	if leaky(intent.Message) {
		g.logger.Warn("outbound message redacted",
			zap.String("rule", ReasonDataLeakPrevented),
			zap.String("action", string(intent.Action)))
		out.Message = redactedMessage
		out.Metadata = cloneWith(out.Metadata, "override_reason", ReasonDataLeakPrevented)
	}

	if intent.Action == types.ActionUIRequired && len(intent.ContextData) > 0 {
		var redacted map[string]string
		for k, v := range intent.ContextData {
			if !leaky(v) {
				continue
			}
			g.logger.Warn("outbound context field redacted",
				zap.String("rule", ReasonDataLeakPrevented),
				zap.String("field", k))
			if redacted == nil {
				redacted = cloneMap(intent.ContextData)
			}
			redacted[k] = redactedMessage
		}
		if redacted != nil {
			out.ContextData = redacted
			out.Metadata = cloneWith(out.Metadata, "override_reason", ReasonDataLeakPrevented)
		}
	}
	return out
}

// containsNumberToken reports whether text contains v rendered as a bare
// number ("50") or with two decimals ("50.00"), delimited so that "52.50"
// does not count as containing "50".
func containsNumberToken(text string, v float64) bool {
	for _, token := range []string{
		strconv.FormatFloat(v, 'f', -1, 64),
		strconv.FormatFloat(v, 'f', 2, 64),
	} {
		if tokenAppears(text, token) {
			return true
		}
	}
	return false
}

func tokenAppears(text, token string) bool {
	for idx := 0; ; {
		i := strings.Index(text[idx:], token)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(token)
		beforeOK := start == 0 || !isNumericChar(text[start-1])
		afterOK := end == len(text) || !isDigit(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

// isNumericChar treats '.' as numeric on the left boundary so the "50" in
// "52.50" is not a match, while the trailing '.' in "is 50." still is.
func isNumericChar(c byte) bool {
	return isDigit(c) || c == '.'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneWith(m map[string]string, k, v string) map[string]string {
	out := cloneMap(m)
	out[k] = v
	return out
}
