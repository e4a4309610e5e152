package membrane

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aura/internal/types"
)

func testContext(floor float64) *types.NegotiationContext {
	return &types.NegotiationContext{
		Signal: types.Signal{RequestID: "req-1", BidAmount: 45},
		Item: types.ItemRecord{
			ItemID:     "widget-001",
			Name:       "Demo Widget",
			BasePrice:  100,
			FloorPrice: floor,
		},
	}
}

func TestEnforceOutbound_FailureRecovery(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	out := g.EnforceOutbound(types.FailureIntent(errors.New("model exploded")), nc)

	assert.Equal(t, types.ActionCounter, out.Action)
	assert.InDelta(t, 52.5, out.Price, 1e-9)
	assert.Equal(t, ReasonFailureRecovery, out.Metadata["override_reason"])
	assert.NotContains(t, out.Message, "model exploded")
}

func TestEnforceOutbound_LegacyErrorTagRecovered(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	out := g.EnforceOutbound(types.Intent{Action: types.Action("error")}, nc)
	assert.Equal(t, types.ActionCounter, out.Action)
	assert.Equal(t, ReasonFailureRecovery, out.Metadata["override_reason"])
}

func TestEnforceOutbound_FloorViolationOverridesAccept(t *testing.T) {
	// A strategy hallucinating an accept below floor must be overridden even
	// though it explicitly said "accept".
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	out := g.EnforceOutbound(types.Intent{Action: types.ActionAccept, Price: 30}, nc)

	assert.Equal(t, types.ActionCounter, out.Action)
	assert.InDelta(t, 52.5, out.Price, 1e-9)
	assert.Equal(t, ReasonFloorPriceViolation, out.Metadata["override_reason"])
	assert.Equal(t, "accept", out.Metadata["original_action"])
	assert.Equal(t, "30.00", out.Metadata["original_price"])
}

func TestEnforceOutbound_CounterBelowFloorOverridden(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	out := g.EnforceOutbound(types.Intent{Action: types.ActionCounter, Price: 49.99, Message: "deal?"}, nc)
	assert.Equal(t, ReasonFloorPriceViolation, out.Metadata["override_reason"])
	assert.InDelta(t, 52.5, out.Price, 1e-9)
}

func TestEnforceOutbound_ValidCounterPassesThrough(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	in := types.Intent{
		Action:  types.ActionCounter,
		Price:   52.5,
		Message: "I can't go that low, but I could accept $52.50.",
	}
	out := g.EnforceOutbound(in, nc)
	assert.Equal(t, in, out)
}

func TestEnforceOutbound_RedactsFloorWord(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	out := g.EnforceOutbound(types.Intent{
		Action:  types.ActionCounter,
		Price:   55,
		Message: "our floor price won't allow that",
	}, nc)

	assert.Equal(t, types.ActionCounter, out.Action)
	assert.Equal(t, 55.0, out.Price)
	assert.NotContains(t, out.Message, "floor")
	assert.Equal(t, ReasonDataLeakPrevented, out.Metadata["override_reason"])
}

func TestEnforceOutbound_RedactsLiteralFloorValue(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	t.Run("bare number leaks", func(t *testing.T) {
		out := g.EnforceOutbound(types.Intent{
			Action:  types.ActionCounter,
			Price:   55,
			Message: "anything under 50 is impossible for me",
		}, nc)
		assert.Equal(t, redactedMessage, out.Message)
	})

	t.Run("two-decimal rendering leaks", func(t *testing.T) {
		out := g.EnforceOutbound(types.Intent{
			Action:  types.ActionCounter,
			Price:   55,
			Message: "my cost basis is 50.00 exactly",
		}, nc)
		assert.Equal(t, redactedMessage, out.Message)
	})

	t.Run("floor value inside another number is not a leak", func(t *testing.T) {
		out := g.EnforceOutbound(types.Intent{
			Action:  types.ActionCounter,
			Price:   52.5,
			Message: "I could accept $52.50 today",
		}, nc)
		assert.Equal(t, "I could accept $52.50 today", out.Message)
	})

	t.Run("disclosing the price itself is allowed when it equals floor", func(t *testing.T) {
		// A counter AT floor discloses floor as the proposed price; the
		// number no longer differs from the disclosed price.
		out := g.EnforceOutbound(types.Intent{
			Action:  types.ActionCounter,
			Price:   50,
			Message: "final: $50.00",
		}, nc)
		assert.Equal(t, "final: $50.00", out.Message)
	})
}

func TestEnforceOutbound_RedactsUIContextData(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	out := g.EnforceOutbound(types.Intent{
		Action:      types.ActionUIRequired,
		TemplateID:  "high_value_confirm",
		ContextData: map[string]string{"hint": "floor is 50", "bid_amount": "1500.00"},
	}, nc)

	assert.Equal(t, redactedMessage, out.ContextData["hint"])
	assert.Equal(t, "1500.00", out.ContextData["bid_amount"])
}

func TestEnforceOutbound_RejectPassesThrough(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	in := types.Intent{Action: types.ActionReject, ReasonCode: "OFFER_TOO_LOW"}
	assert.Equal(t, in, g.EnforceOutbound(in, nc))
}

func TestEnforceOutbound_UnknownActionFailsSafe(t *testing.T) {
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(50)

	out := g.EnforceOutbound(types.Intent{Action: types.Action("negotiate_harder")}, nc)
	require.Equal(t, types.ActionCounter, out.Action)
	assert.Equal(t, ReasonFailureRecovery, out.Metadata["override_reason"])
}

func TestEnforceOutbound_PriceAlwaysAtOrAboveFloor(t *testing.T) {
	// Property: whatever the candidate, an intent carrying a price never
	// leaves the guard below floor.
	g := NewOutboundGuard(zap.NewNop())
	nc := testContext(80)

	candidates := []types.Intent{
		{Action: types.ActionAccept, Price: 1},
		{Action: types.ActionAccept, Price: 80},
		{Action: types.ActionCounter, Price: 0},
		{Action: types.ActionCounter, Price: 79.99},
		{Action: types.ActionCounter, Price: 200},
		types.FailureIntent(nil),
		{Action: types.Action("gibberish")},
	}
	for _, c := range candidates {
		out := g.EnforceOutbound(c, nc)
		if out.CarriesPrice() {
			assert.GreaterOrEqual(t, out.Price, nc.Item.FloorPrice,
				"candidate %s left the guard below floor", c)
		}
	}
}
