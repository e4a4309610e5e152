package membrane

import (
	"fmt"

	"go.uber.org/zap"

	"aura/internal/types"
)

// Sentinel values substituted for flagged fields. They never match the
// blocklist themselves, which is what makes sanitization idempotent.
const (
	SentinelItemID = "INVALID_ID_POTENTIAL_INJECTION"
	SentinelString = "REDACTED"
)

// InboundGuard validates and sanitizes raw signals before they reach the
// aggregator. Validation failures (non-positive bid) abort the pipeline;
// injection hits do not — flagged fields are replaced with sentinels and the
// request continues, keeping the pipeline available while defusing the
// directive.
type InboundGuard struct {
	detector Detector
	logger   *zap.Logger
}

// NewInboundGuard wires the guard with a detector. A nil detector falls back
// to the default blocklist.
func NewInboundGuard(detector Detector, logger *zap.Logger) *InboundGuard {
	if detector == nil {
		detector = NewBlocklistDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboundGuard{detector: detector, logger: logger}
}

// ValidateInbound returns a sanitized copy of the signal, or
// types.ErrInvalidInput for signals that must not reach reasoning at all.
// The input signal is never mutated.
func (g *InboundGuard) ValidateInbound(sig types.Signal) (types.Signal, error) {
	if sig.BidAmount <= 0 {
		g.logger.Warn("inbound rejected: non-positive bid",
			zap.String("request_id", sig.RequestID),
			zap.Float64("bid_amount", sig.BidAmount))
		return sig, fmt.Errorf("bid_amount must be positive: %w", types.ErrInvalidInput)
	}

	out := sig
	out.ItemID = g.sanitizeField("item_id", sig.ItemID, SentinelItemID)
	out.AgentDID = g.sanitizeField("agent_did", sig.AgentDID, SentinelString)
	out.Currency = g.sanitizeField("currency_code", sig.Currency, SentinelString)
	out.SessionID = g.sanitizeField("session_id", sig.SessionID, SentinelString)

	if len(sig.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(sig.Metadata))
		for k, v := range sig.Metadata {
			// Keys are attacker-controlled text too; a flagged key cannot be
			// replaced with a sentinel without colliding, so the pair is
			// dropped outright.
			if pattern, flagged := g.detector.Scan(k); flagged {
				g.logger.Warn("inbound metadata key dropped",
					zap.String("field", "metadata"),
					zap.String("pattern", pattern))
				continue
			}
			out.Metadata[k] = g.sanitizeField("metadata."+k, v, SentinelString)
		}
	}
	return out, nil
}

// sanitizeField logs the field name and matched pattern, never the payload
// itself, to keep injected directives out of the logs.
func (g *InboundGuard) sanitizeField(name, value, sentinel string) string {
	pattern, flagged := g.detector.Scan(value)
	if !flagged {
		return value
	}
	g.logger.Warn("inbound field sanitized",
		zap.String("field", name),
		zap.String("pattern", pattern))
	return sentinel
}
