package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"aura/internal/types"
)

const geminiSystemPrompt = `You are a pricing negotiator for a marketplace item.
You receive the economic context of one negotiation round and must answer with
a single JSON object, nothing else:

  {"action": "accept" | "counter" | "reject" | "ui_required",
   "price": <number>,
   "message": "<short human-readable message to the buyer>"}

Never mention internal pricing data in the message. Prefer countering over
rejecting when the bid is close to acceptable.`

// GeminiEngine is the model-backed strategy. Its output is untrusted: the
// pipeline only takes the economic flavor of the decision from it (price,
// wording), never safety-critical comparisons. Every failure mode — API
// error, timeout, malformed output — surfaces as an error wrapped with
// types.ErrStrategyFailure, which the pipeline converts to a FailureIntent.
type GeminiEngine struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiEngine constructs the engine. The per-call deadline is supplied by
// the caller's context, not configured here.
func NewGeminiEngine(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini strategy: api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini strategy: create client: %w", err)
	}
	return &GeminiEngine{client: client, model: model, logger: logger}, nil
}

// Name implements types.Strategy.
func (e *GeminiEngine) Name() string { return "gemini" }

// Decide implements types.Strategy.
func (e *GeminiEngine) Decide(ctx context.Context, nc *types.NegotiationContext) (types.Intent, error) {
	prompt := buildEconomicPrompt(nc)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
		SystemInstruction: genai.NewContentFromText(geminiSystemPrompt, genai.RoleUser),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, cfg)
	if err != nil {
		e.logger.Error("gemini call failed", zap.Error(err))
		return types.Intent{}, fmt.Errorf("gemini call: %w (%w)", err, types.ErrStrategyFailure)
	}

	intent, err := parseModelIntent(resp.Text())
	if err != nil {
		e.logger.Error("gemini returned malformed intent", zap.Error(err))
		return types.Intent{}, err
	}
	if intent.Action == types.ActionUIRequired {
		// The model only names the escalation; the template context comes
		// from the negotiation itself.
		intent.ContextData = uiContextData(nc)
	}
	return intent, nil
}

// buildEconomicPrompt serializes the negotiation context for the model. The
// floor price is internal input to the reasoning; the outbound membrane
// guarantees it cannot leak through whatever the model answers.
func buildEconomicPrompt(nc *types.NegotiationContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item: %s\n", nc.Item.Name)
	fmt.Fprintf(&b, "List price: %.2f %s\n", nc.Item.BasePrice, nc.Signal.Currency)
	fmt.Fprintf(&b, "Minimum acceptable price (internal, never disclose): %.2f\n", nc.Item.FloorPrice)
	fmt.Fprintf(&b, "Buyer bid: %.2f\n", nc.Signal.BidAmount)
	fmt.Fprintf(&b, "Buyer reputation score: %.2f\n", nc.Signal.Reputation)
	fmt.Fprintf(&b, "Negotiation round: %d\n", nc.Session.Rounds+1)
	if len(nc.Session.PriorOffers) > 0 {
		fmt.Fprintf(&b, "Our prior counter-offers: %v\n", nc.Session.PriorOffers)
	}
	return b.String()
}

// modelIntent is the JSON shape the model is asked to produce.
type modelIntent struct {
	Action  string  `json:"action"`
	Price   float64 `json:"price"`
	Message string  `json:"message"`
}

// parseModelIntent validates the raw model output. Anything outside the
// closed action set is a strategy failure, not a pass-through.
func parseModelIntent(raw string) (types.Intent, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.Intent{}, fmt.Errorf("empty model response: %w", types.ErrStrategyFailure)
	}

	var mi modelIntent
	if err := json.Unmarshal([]byte(raw), &mi); err != nil {
		return types.Intent{}, fmt.Errorf("decode model response: %w (%w)", err, types.ErrStrategyFailure)
	}

	action := types.Action(strings.ToLower(strings.TrimSpace(mi.Action)))
	switch action {
	case types.ActionAccept, types.ActionCounter:
		if mi.Price <= 0 {
			return types.Intent{}, fmt.Errorf("model %s with non-positive price %v: %w", action, mi.Price, types.ErrStrategyFailure)
		}
		return types.Intent{Action: action, Price: mi.Price, Message: mi.Message}, nil
	case types.ActionReject:
		return types.Intent{Action: action, ReasonCode: "OFFER_TOO_LOW", Message: mi.Message}, nil
	case types.ActionUIRequired:
		return types.Intent{Action: action, TemplateID: TemplateHighValueConfirm, Message: mi.Message}, nil
	default:
		return types.Intent{}, fmt.Errorf("model returned unknown action %q: %w", mi.Action, types.ErrStrategyFailure)
	}
}
