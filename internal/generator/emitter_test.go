package generator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"aura/internal/types"
)

type recordingBus struct {
	mu     sync.Mutex
	events []types.AuditEvent
	err    error
	block  chan struct{}
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, types.AuditEvent{Topic: topic, Payload: payload})
	return nil
}

func (b *recordingBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Topic
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEmitter_PulsePublishesDecisionAndHeartbeat(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := &recordingBus{}
	e := NewEmitter(bus, 8, time.Second, zap.NewNop())

	nc := &types.NegotiationContext{
		Signal: types.Signal{RequestID: "req-1", AgentDID: "did:aura:b"},
		Item:   types.ItemRecord{ItemID: "widget-001"},
	}
	dec := types.Decision{Status: types.StatusCountered, ProposedPrice: 52.5, SessionToken: "sess_req-1"}
	e.Pulse(dec, nc, "FLOOR_PRICE_VIOLATION")

	waitFor(t, func() bool { return len(bus.topics()) == 2 })
	e.Close()

	topics := bus.topics()
	assert.Contains(t, topics, TopicNegotiationPrefix+types.StatusCountered)
	assert.Contains(t, topics, TopicHeartbeat)

	var ev negotiationEvent
	require.NoError(t, json.Unmarshal(bus.events[0].Payload, &ev))
	assert.Equal(t, 52.5, ev.Price)
	assert.Equal(t, "FLOOR_PRICE_VIOLATION", ev.Override)
}

func TestEmitter_PublishFailureIsSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := &recordingBus{err: errors.New("broker unreachable")}
	e := NewEmitter(bus, 8, 50*time.Millisecond, zap.NewNop())

	assert.NotPanics(t, func() {
		e.Emit(types.AuditEvent{Topic: "aura.test", Payload: []byte(`{}`)})
		e.Close()
	})
}

func TestEmitter_DropsWhenBufferFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	block := make(chan struct{})
	bus := &recordingBus{block: block}
	e := NewEmitter(bus, 1, 5*time.Second, zap.NewNop())

	// First event occupies the worker, second fills the buffer, the rest
	// must drop without blocking this goroutine.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			e.Emit(types.AuditEvent{Topic: "aura.test", Payload: []byte(`{}`)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	close(block)
	e.Close()
	assert.LessOrEqual(t, len(bus.topics()), 2)
}

func TestEmitter_EmitAfterCloseIsSafe(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := &recordingBus{}
	e := NewEmitter(bus, 8, time.Second, zap.NewNop())
	e.Close()

	assert.NotPanics(t, func() {
		e.Emit(types.AuditEvent{Topic: "aura.test", Payload: []byte(`{}`)})
		e.Close()
	})
	assert.Empty(t, bus.topics())
}

func TestEmitter_ConcurrentEmitAndClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewEmitter(&recordingBus{}, 4, time.Second, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.Emit(types.AuditEvent{Topic: "aura.test", Payload: []byte(`{}`)})
			}
		}()
	}
	e.Close()
	wg.Wait()
}

func TestNopBus(t *testing.T) {
	b := NewNopBus(zap.NewNop())
	assert.NoError(t, b.Publish(context.Background(), "aura.test", nil))
}
