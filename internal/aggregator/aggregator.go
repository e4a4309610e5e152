// Package aggregator assembles the working set a strategy decides on: the
// sanitized signal, the item record and any prior session state. Pure data
// assembly; it never talks to the strategy or the guards.
package aggregator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"aura/internal/types"
)

// Aggregator builds NegotiationContexts from sanitized signals.
type Aggregator struct {
	store  types.ItemStore
	group  singleflight.Group
	logger *zap.Logger
}

// New returns an aggregator over the given store.
func New(store types.ItemStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger}
}

// Aggregate fetches the item record and prior session state for the signal.
// A missing item propagates types.ErrItemNotFound to the caller; it is a
// client fault, not something to absorb. Session state is best-effort: a
// failed lookup degrades to a fresh session with a warning.
func (a *Aggregator) Aggregate(ctx context.Context, sig types.Signal) (*types.NegotiationContext, error) {
	item, err := a.getItem(ctx, sig.ItemID)
	if err != nil {
		return nil, err
	}

	session, err := a.store.SessionRounds(ctx, sig.SessionID)
	if err != nil {
		a.logger.Warn("session state unavailable, continuing with fresh session",
			zap.String("session_id", sig.SessionID),
			zap.Error(err))
		session = types.SessionState{}
	}

	return &types.NegotiationContext{
		Signal:  sig,
		Item:    item,
		Session: session,
	}, nil
}

// getItem collapses concurrent fetches of the same item id into one store
// read. Item records are read-only within an invocation, so sharing the
// fetched value across simultaneous requests is safe.
func (a *Aggregator) getItem(ctx context.Context, itemID string) (types.ItemRecord, error) {
	v, err, _ := a.group.Do(itemID, func() (any, error) {
		// The collapsed fetch serves every request waiting on this key, so it
		// must not die with whichever caller happened to start it.
		return a.store.GetItem(context.WithoutCancel(ctx), itemID)
	})
	if err != nil {
		return types.ItemRecord{}, fmt.Errorf("aggregate %q: %w", itemID, err)
	}
	return v.(types.ItemRecord), nil
}
