package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/internal/types"
)

func TestParseModelIntent(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		intent, err := parseModelIntent(`{"action":"accept","price":62.5,"message":"deal"}`)
		require.NoError(t, err)
		assert.Equal(t, types.ActionAccept, intent.Action)
		assert.Equal(t, 62.5, intent.Price)
		assert.Equal(t, "deal", intent.Message)
	})

	t.Run("counter with mixed case action", func(t *testing.T) {
		intent, err := parseModelIntent(`{"action":" Counter ","price":58,"message":"close"}`)
		require.NoError(t, err)
		assert.Equal(t, types.ActionCounter, intent.Action)
	})

	t.Run("reject", func(t *testing.T) {
		intent, err := parseModelIntent(`{"action":"reject","message":"too low"}`)
		require.NoError(t, err)
		assert.Equal(t, types.ActionReject, intent.Action)
		assert.Equal(t, "OFFER_TOO_LOW", intent.ReasonCode)
	})

	t.Run("ui_required keeps the model message", func(t *testing.T) {
		intent, err := parseModelIntent(`{"action":"ui_required","message":"needs a human"}`)
		require.NoError(t, err)
		assert.Equal(t, types.ActionUIRequired, intent.Action)
		assert.Equal(t, TemplateHighValueConfirm, intent.TemplateID)
		assert.Equal(t, "needs a human", intent.Message)
	})

	t.Run("empty response is a strategy failure", func(t *testing.T) {
		_, err := parseModelIntent("  ")
		assert.ErrorIs(t, err, types.ErrStrategyFailure)
	})

	t.Run("malformed json is a strategy failure", func(t *testing.T) {
		_, err := parseModelIntent(`I think we should accept!`)
		assert.ErrorIs(t, err, types.ErrStrategyFailure)
	})

	t.Run("unknown action is a strategy failure", func(t *testing.T) {
		_, err := parseModelIntent(`{"action":"escalate","price":10}`)
		assert.ErrorIs(t, err, types.ErrStrategyFailure)
	})

	t.Run("non-positive price on accept is a strategy failure", func(t *testing.T) {
		_, err := parseModelIntent(`{"action":"accept","price":0}`)
		assert.ErrorIs(t, err, types.ErrStrategyFailure)
	})
}

func TestNewGeminiEngine_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiEngine(t.Context(), "", "gemini-2.0-flash", nil)
	assert.Error(t, err)
}

func TestUIContextData(t *testing.T) {
	nc := &types.NegotiationContext{
		Signal: types.Signal{BidAmount: 1500},
		Item:   types.ItemRecord{ItemID: "widget-001"},
	}
	ctx := uiContextData(nc)
	assert.Equal(t, "widget-001", ctx["item_id"])
	assert.Equal(t, "1500.00", ctx["bid_amount"])
}

func TestBuildEconomicPrompt(t *testing.T) {
	nc := &types.NegotiationContext{
		Signal:  types.Signal{BidAmount: 45, Currency: "USD", Reputation: 0.9},
		Item:    types.ItemRecord{Name: "Demo Widget", BasePrice: 100, FloorPrice: 50},
		Session: types.SessionState{Rounds: 1, PriorOffers: []float64{60}},
	}
	prompt := buildEconomicPrompt(nc)
	assert.Contains(t, prompt, "Buyer bid: 45.00")
	assert.Contains(t, prompt, "Negotiation round: 2")
	assert.Contains(t, prompt, "never disclose")
}
