// Package generator emits audit events after each pipeline completion.
// Publication is fire-and-forget by design: the negotiation result must reach
// the calling agent even when the audit bus is down, so the emitter is a
// bounded channel with a drop-on-full policy and a single background worker —
// decision-path latency never depends on bus health.
package generator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"aura/internal/types"
)

// Topics emitted by the generator.
const (
	TopicNegotiationPrefix = "aura.negotiation."
	TopicHeartbeat         = "aura.hive.heartbeat"
)

// negotiationEvent is the payload published per decision.
type negotiationEvent struct {
	SessionToken string  `json:"session_token"`
	Status       string  `json:"status"`
	Price        float64 `json:"price,omitempty"`
	ItemID       string  `json:"item_id"`
	AgentDID     string  `json:"agent_did"`
	RequestID    string  `json:"request_id"`
	Override     string  `json:"override_reason,omitempty"`
	Timestamp    int64   `json:"timestamp"`
}

// heartbeatEvent is the liveness payload.
type heartbeatEvent struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

// Emitter publishes audit events without ever blocking its callers.
type Emitter struct {
	bus     types.Bus
	ch      chan types.AuditEvent
	timeout time.Duration
	logger  *zap.Logger

	// mu orders Emit against Close so no send can race the channel close.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewEmitter starts the background worker. buffer bounds the in-flight
// queue; publishTimeout bounds each delivery attempt.
func NewEmitter(bus types.Bus, buffer int, publishTimeout time.Duration, logger *zap.Logger) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	if publishTimeout <= 0 {
		publishTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Emitter{
		bus:     bus,
		ch:      make(chan types.AuditEvent, buffer),
		timeout: publishTimeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.ch {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := e.bus.Publish(ctx, ev.Topic, ev.Payload)
		cancel()
		if err != nil {
			// Best effort only: log and move on, no retry.
			e.logger.Warn("audit event publish failed",
				zap.String("topic", ev.Topic),
				zap.Error(err))
		}
	}
}

// Emit enqueues one event. A full buffer or a closed emitter drops the event
// with a warning instead of blocking or panicking.
func (e *Emitter) Emit(ev types.AuditEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("audit event dropped, emitter closed",
			zap.String("topic", ev.Topic))
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.logger.Warn("audit event dropped, buffer full",
			zap.String("topic", ev.Topic))
	}
}

// Pulse builds and enqueues the audit events for one completed negotiation:
// the per-decision event plus a service heartbeat.
func (e *Emitter) Pulse(dec types.Decision, nc *types.NegotiationContext, overrideReason string) {
	now := time.Now().UTC()

	price := dec.FinalPrice
	if dec.Status == types.StatusCountered {
		price = dec.ProposedPrice
	}

	payload, err := json.Marshal(negotiationEvent{
		SessionToken: dec.SessionToken,
		Status:       dec.Status,
		Price:        price,
		ItemID:       nc.Item.ItemID,
		AgentDID:     nc.Signal.AgentDID,
		RequestID:    nc.Signal.RequestID,
		Override:     overrideReason,
		Timestamp:    now.Unix(),
	})
	if err == nil {
		e.Emit(types.AuditEvent{
			Topic:     TopicNegotiationPrefix + dec.Status,
			Payload:   payload,
			Timestamp: now,
		})
	}

	hb, err := json.Marshal(heartbeatEvent{
		Status:    "active",
		Service:   "aurad",
		Timestamp: now.Unix(),
	})
	if err == nil {
		e.Emit(types.AuditEvent{Topic: TopicHeartbeat, Payload: hb, Timestamp: now})
	}
}

// Close stops accepting events and waits for the worker to drain the queue.
// Safe to call more than once and concurrently with Emit.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.ch)
	})
	<-e.done
}
