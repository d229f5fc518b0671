package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/feedmux/feedgate/internal/book"
	"github.com/feedmux/feedgate/internal/detect"
	"github.com/feedmux/feedgate/internal/model"
)

// pollLoop is the background polling engine for one key. It is the only
// goroutine that fetches this key from upstream, so its change-detection
// state needs no locking.
type pollLoop struct {
	m       *Manager
	key     model.Key
	cadence time.Duration
	ttl     time.Duration
	backoff int
	done    chan struct{}

	// Last delivered values, seeded from the registry so a replaced loop
	// does not re-deliver the previous snapshot.
	prevTick      *model.TickSnapshot
	prevBook      *model.OrderBookSnapshot
	prevPositions *model.PositionSnapshot
}

// run polls until ctx is cancelled. Failures never terminate the loop: a
// failed cycle is logged and the next one waits backoff×cadence, resetting
// to the normal cadence after the next success. The loop observes
// cancellation within one cycle, and every upstream call carries the
// cadence as a soft deadline.
func (l *pollLoop) run(ctx context.Context) {
	l.seed()

	logger := l.m.logger.With("key", l.key.String())
	logger.Debug("polling loop started", "cadence", l.cadence)

	promoted := false
	wait := time.Duration(0) // First poll is immediate.

	for {
		if wait > 0 {
			select {
			case <-ctx.Done():
				logger.Debug("polling loop stopped")
				return
			case <-time.After(wait):
			}
		}
		if ctx.Err() != nil {
			logger.Debug("polling loop stopped")
			return
		}

		polled, err := l.pollOnce(ctx)
		if polled {
			l.m.countCycle(err != nil)
		}

		switch {
		case err == nil:
			// A cycle skipped for an inactive tenant is not a success:
			// promotion waits for a poll that actually reached upstream.
			if polled && !promoted {
				l.m.markPolling(l.key, l.done)
				promoted = true
			}
			wait = l.cadence

		case ctx.Err() != nil:
			logger.Debug("polling loop stopped")
			return

		default:
			wait = l.cadence * time.Duration(l.backoff)
			logger.Warn("poll failed, backing off",
				"error", err,
				"next_poll", wait,
			)
		}
	}
}

// seed loads the last accepted update so change detection continues across
// loop replacements for the same key.
func (l *pollLoop) seed() {
	u, ok := l.m.GetSnapshot(l.key)
	if !ok {
		return
	}
	l.prevTick = u.Tick
	l.prevBook = u.OrderBook
	l.prevPositions = u.Positions
}

// pollOnce runs a single fetch → detect → broadcast cycle. polled reports
// whether upstream was actually reached; an inactive tenant skips the cycle
// entirely. A panic in reconstruction or detection counts as a failed
// cycle, never a dead loop.
func (l *pollLoop) pollOnce(ctx context.Context) (polled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panic: %v", r)
		}
	}()

	// A suspended or deprovisioned tenant stops receiving data on the next
	// cycle; the loop stays alive so reactivation resumes delivery.
	if t, ok := l.m.tenants.GetTenant(l.key.Tenant); !ok || !t.Active() {
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, l.cadence)
	defer cancel()

	polled = true
	switch l.key.Kind {
	case model.KindTick:
		err = l.pollTick(callCtx)
	case model.KindOrderBook:
		err = l.pollOrderBook(callCtx)
	case model.KindPosition:
		err = l.pollPositions(callCtx)
	default:
		err = fmt.Errorf("unknown resource kind %q", l.key.Kind)
	}
	return polled, err
}

func (l *pollLoop) pollTick(ctx context.Context) error {
	v, err := l.m.cache.GetOrFetch(ctx, l.key, l.ttl, func(ctx context.Context) (any, error) {
		return l.m.adapter.FetchTick(ctx, l.key.Selector)
	})
	if err != nil {
		return err
	}
	raw, ok := v.(model.TickRaw)
	if !ok {
		return fmt.Errorf("unexpected cache value %T for tick key", v)
	}

	if !detect.TickChanged(l.prevTick, raw) {
		return nil
	}

	snap := model.TickSnapshot{
		Tenant: l.key.Tenant,
		Symbol: raw.Symbol,
		Bid:    raw.Bid,
		Ask:    raw.Ask,
		Last:   raw.Last,
		Volume: raw.Volume,
		Spread: raw.Ask - raw.Bid,
		TimeMS: raw.TimeMS,
	}
	l.prevTick = &snap

	l.publish(model.Update{Key: l.key, Tick: &snap, TimeMS: snap.TimeMS})
	return nil
}

func (l *pollLoop) pollOrderBook(ctx context.Context) error {
	v, err := l.m.cache.GetOrFetch(ctx, l.key, l.ttl, func(ctx context.Context) (any, error) {
		return l.m.adapter.FetchOrderBook(ctx, l.key.Selector)
	})
	if err != nil {
		return err
	}
	raw, ok := v.(model.OrderBookRaw)
	if !ok {
		return fmt.Errorf("unexpected cache value %T for orderbook key", v)
	}

	snap := book.Reconstruct(l.key.Tenant, raw)
	if !detect.BookChanged(l.prevBook, &snap) {
		return nil
	}
	l.prevBook = &snap

	l.publish(model.Update{Key: l.key, OrderBook: &snap, TimeMS: snap.TimeMS})
	return nil
}

func (l *pollLoop) pollPositions(ctx context.Context) error {
	v, err := l.m.cache.GetOrFetch(ctx, l.key, l.ttl, func(ctx context.Context) (any, error) {
		return l.m.adapter.FetchPositions(ctx, l.key.Selector)
	})
	if err != nil {
		return err
	}
	raw, ok := v.([]model.PositionRaw)
	if !ok {
		return fmt.Errorf("unexpected cache value %T for position key", v)
	}

	if !detect.PositionsChanged(l.prevPositions, raw) {
		return nil
	}

	positions := make([]model.PositionRaw, len(raw))
	copy(positions, raw)

	snap := model.PositionSnapshot{
		Tenant:    l.key.Tenant,
		Account:   l.key.Selector,
		Positions: positions,
		TimeMS:    time.Now().UnixMilli(),
	}
	l.prevPositions = &snap

	l.publish(model.Update{Key: l.key, Positions: &snap, TimeMS: snap.TimeMS})
	return nil
}

// publish records the update as the key's latest and fans it out. Broadcast
// happens once per key per change, regardless of listener count.
func (l *pollLoop) publish(u model.Update) {
	l.m.storeUpdate(l.key, u)
	l.m.bcast.Publish(l.key, u)
}
