package detect

import "github.com/feedmux/feedgate/internal/model"

// TickChanged reports whether a polled tick should be delivered. Only a
// strictly increasing venue timestamp is accepted; a tick at or before the
// last delivered timestamp is dropped even if its fields differ, which guards
// against out-of-order upstream delivery and keeps each key's stream
// monotonic.
func TickChanged(prev *model.TickSnapshot, cur model.TickRaw) bool {
	if prev == nil {
		return true
	}
	return cur.TimeMS > prev.TimeMS
}

// BookChanged reports whether a reconstructed book differs from the last
// delivered one. Only real ladder differences propagate: a newer timestamp
// with identical levels is a heartbeat and is not broadcast.
func BookChanged(prev, cur *model.OrderBookSnapshot) bool {
	if prev == nil {
		return cur != nil
	}
	if cur == nil {
		return false
	}
	return !laddersEqual(prev.Bids, cur.Bids) || !laddersEqual(prev.Asks, cur.Asks)
}

func laddersEqual(a, b []model.BookLevel) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Price != b[i].Price || a[i].Volume != b[i].Volume || a[i].OrderCount != b[i].OrderCount {
			return false
		}
	}
	return true
}

// PositionsChanged reports whether an account's position list differs from
// the last delivered one: a ticket appeared or disappeared, or any mutable
// field of an existing ticket moved.
func PositionsChanged(prev *model.PositionSnapshot, cur []model.PositionRaw) bool {
	if prev == nil {
		return true
	}
	if len(prev.Positions) != len(cur) {
		return true
	}

	byTicket := make(map[int64]model.PositionRaw, len(prev.Positions))
	for _, p := range prev.Positions {
		byTicket[p.Ticket] = p
	}

	for _, c := range cur {
		p, ok := byTicket[c.Ticket]
		if !ok {
			return true
		}
		if p.CurrentPrice != c.CurrentPrice ||
			p.Profit != c.Profit ||
			p.Swap != c.Swap ||
			p.StopLoss != c.StopLoss ||
			p.TakeProfit != c.TakeProfit {
			return true
		}
	}

	return false
}
