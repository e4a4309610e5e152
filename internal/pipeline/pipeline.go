// Package pipeline composes the metabolism stages in their fixed order:
//
//	Signal → inbound membrane → aggregator → strategy → outbound membrane
//	       → connector → generator
//
// Data flows strictly forward; no stage calls backward. Only client faults
// (invalid input, unknown item) abort the flow — every internal failure is
// absorbed into a safe decision or a best-effort log, so a syntactically
// valid signal against an existing item always receives a decision.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"aura/internal/aggregator"
	"aura/internal/config"
	"aura/internal/connector"
	"aura/internal/generator"
	"aura/internal/membrane"
	"aura/internal/types"
)

// Pipeline runs one metabolic cycle per Execute call. Safe for concurrent
// use: each invocation owns its context and shares no mutable state.
type Pipeline struct {
	inbound  *membrane.InboundGuard
	agg      *aggregator.Aggregator
	strat    types.Strategy
	outbound *membrane.OutboundGuard
	conn     *connector.Connector
	emitter  *generator.Emitter
	timeouts config.Timeouts
	logger   *zap.Logger
}

// New wires the five stages.
func New(
	inbound *membrane.InboundGuard,
	agg *aggregator.Aggregator,
	strat types.Strategy,
	outbound *membrane.OutboundGuard,
	conn *connector.Connector,
	emitter *generator.Emitter,
	timeouts config.Timeouts,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		inbound:  inbound,
		agg:      agg,
		strat:    strat,
		outbound: outbound,
		conn:     conn,
		emitter:  emitter,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Execute runs the full cycle for one signal.
//
// Returned errors fall into two classes:
//   - types.ErrInvalidInput / types.ErrItemNotFound: no decision was produced.
//   - types.ErrPersistence / types.ErrReservationConflict: the decision IS
//     valid and returned alongside the error; treat it as a warning.
func (p *Pipeline) Execute(ctx context.Context, sig types.Signal) (types.Decision, error) {
	log := p.logger.With(zap.String("request_id", sig.RequestID))

	sanitized, err := p.inbound.ValidateInbound(sig)
	if err != nil {
		return types.Decision{}, err
	}

	nc, err := p.agg.Aggregate(ctx, sanitized)
	if err != nil {
		return types.Decision{}, err
	}

	intent := p.decide(ctx, nc, log)

	enforced := p.outbound.EnforceOutbound(intent, nc)
	log.Debug("intent enforced",
		zap.Stringer("candidate", intent),
		zap.Stringer("enforced", enforced))

	applyCtx, cancel := context.WithTimeout(ctx, p.timeouts.Apply)
	dec, applyErr := p.conn.Apply(applyCtx, enforced, nc)
	cancel()

	p.emitter.Pulse(dec, nc, enforced.Metadata["override_reason"])

	if applyErr != nil {
		// Decision stands; the persistence failure is the caller's warning
		// channel, not a request failure.
		return dec, fmt.Errorf("decision %s persisted with errors: %w", dec.Status, applyErr)
	}
	return dec, nil
}

// decide runs the strategy under its stage budget and clamps every failure
// mode to a FailureIntent. The raw error never leaves the pipeline.
func (p *Pipeline) decide(ctx context.Context, nc *types.NegotiationContext, log *zap.Logger) types.Intent {
	sctx, cancel := context.WithTimeout(ctx, p.timeouts.Strategy)
	defer cancel()

	intent, err := p.strat.Decide(sctx, nc)
	if err != nil {
		log.Warn("strategy failed, entering recovery",
			zap.String("strategy", p.strat.Name()),
			zap.Error(err))
		return types.FailureIntent(err)
	}
	if errors.Is(sctx.Err(), context.DeadlineExceeded) {
		log.Warn("strategy deadline exceeded, entering recovery",
			zap.String("strategy", p.strat.Name()))
		return types.FailureIntent(sctx.Err())
	}
	return intent
}
