package book

import (
	"sort"

	"github.com/feedmux/feedgate/internal/model"
)

// Reconstruct builds a sorted order-book snapshot from raw unordered depth
// entries. Entries are partitioned by type (reset markers are discarded),
// bids sorted descending by price and asks ascending, with stable ordering so
// equal-price entries keep their upstream order. Best prices are the top of
// each ladder, or 0 for an empty side; spread is derived only when both sides
// are present.
func Reconstruct(tenant string, raw model.OrderBookRaw) model.OrderBookSnapshot {
	bids := make([]model.BookLevel, 0, len(raw.Entries))
	asks := make([]model.BookLevel, 0, len(raw.Entries))

	for _, e := range raw.Entries {
		level := model.BookLevel{
			Price:      e.Price,
			Volume:     e.Volume,
			OrderCount: e.OrderCount,
		}
		switch e.Type {
		case model.EntryBuy:
			bids = append(bids, level)
		case model.EntrySell:
			asks = append(asks, level)
		default:
			// Reset markers and unknown types are dropped.
		}
	}

	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	snap := model.OrderBookSnapshot{
		Tenant: tenant,
		Symbol: raw.Symbol,
		Bids:   bids,
		Asks:   asks,
		TimeMS: raw.TimeMS,
	}

	if len(bids) > 0 {
		snap.BestBid = bids[0].Price
	}
	if len(asks) > 0 {
		snap.BestAsk = asks[0].Price
	}
	if snap.BestBid != 0 && snap.BestAsk != 0 {
		snap.Spread = snap.BestAsk - snap.BestBid
	}

	return snap
}
