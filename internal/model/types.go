package model

import "fmt"

// -----------------------------------------------------------------------------
// Tenants
// -----------------------------------------------------------------------------

// TenantStatus describes whether a tenant may receive data.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is an isolated logical customer. Every subscription, cache entry,
// and delivered snapshot carries exactly one tenant identifier.
type Tenant struct {
	ID     string       `json:"id"`     // Opaque identifier (primary key)
	Name   string       `json:"name"`   // Display name
	Status TenantStatus `json:"status"` // active or suspended
}

// Active reports whether the tenant may subscribe and receive data.
func (t Tenant) Active() bool {
	return t.Status == TenantActive
}

// -----------------------------------------------------------------------------
// Subscription keys
// -----------------------------------------------------------------------------

// ResourceKind classifies what a subscription key refers to.
type ResourceKind string

const (
	KindTick      ResourceKind = "tick"
	KindOrderBook ResourceKind = "orderbook"
	KindPosition  ResourceKind = "position"
)

// Key uniquely identifies one polling loop: a tenant, a resource kind, and a
// resource selector (symbol for tick/orderbook, account login for position).
// Keys are comparable and safe to use as map keys.
type Key struct {
	Tenant   string       `json:"tenant"`
	Kind     ResourceKind `json:"kind"`
	Selector string       `json:"selector"`
}

// TickKey builds a tick key for a tenant and symbol.
func TickKey(tenant, symbol string) Key {
	return Key{Tenant: tenant, Kind: KindTick, Selector: symbol}
}

// OrderBookKey builds an order-book key for a tenant and symbol.
func OrderBookKey(tenant, symbol string) Key {
	return Key{Tenant: tenant, Kind: KindOrderBook, Selector: symbol}
}

// PositionKey builds a position key for a tenant and account login.
func PositionKey(tenant, account string) Key {
	return Key{Tenant: tenant, Kind: KindPosition, Selector: account}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Tenant, k.Kind, k.Selector)
}

// Valid reports whether all three components are set.
func (k Key) Valid() bool {
	if k.Tenant == "" || k.Selector == "" {
		return false
	}
	switch k.Kind {
	case KindTick, KindOrderBook, KindPosition:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Raw upstream values
// -----------------------------------------------------------------------------

// TickRaw is a quote as fetched from the venue, before change detection.
type TickRaw struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume int64   `json:"volume"`
	TimeMS int64   `json:"time_ms"` // Venue timestamp (ms since epoch)
}

// EntryType classifies a raw depth entry.
type EntryType int

const (
	EntryReset EntryType = 0 // Reset marker, discarded during reconstruction
	EntrySell  EntryType = 1 // Sell side (ask)
	EntryBuy   EntryType = 2 // Buy side (bid)
)

// DepthEntry is one unordered order-book entry as delivered by the venue.
type DepthEntry struct {
	Type       EntryType `json:"type"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	OrderCount int       `json:"order_count"`
}

// OrderBookRaw is the unordered depth for one symbol.
type OrderBookRaw struct {
	Symbol  string       `json:"symbol"`
	Entries []DepthEntry `json:"entries"`
	TimeMS  int64        `json:"time_ms"`
}

// PositionRaw is one open position as fetched from the venue.
type PositionRaw struct {
	Ticket       int64   `json:"ticket"` // Venue-assigned position id
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"` // "buy" or "sell"
	Volume       float64 `json:"volume"`
	OpenPrice    float64 `json:"open_price"`
	CurrentPrice float64 `json:"current_price"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	Profit       float64 `json:"profit"`
	Swap         float64 `json:"swap"`
	OpenTimeMS   int64   `json:"open_time_ms"`
	UpdateTimeMS int64   `json:"update_time_ms"`
}

// -----------------------------------------------------------------------------
// Canonical snapshots
// -----------------------------------------------------------------------------

// TickSnapshot is the latest accepted quote for a (tenant, symbol) key.
// Immutable value; a new one replaces the previous wholesale.
type TickSnapshot struct {
	Tenant string  `json:"tenant"`
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume int64   `json:"volume"`
	Spread float64 `json:"spread"` // ask - bid, derived
	TimeMS int64   `json:"time_ms"`
}

// BookLevel is one price level of a sorted ladder.
type BookLevel struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	OrderCount int     `json:"order_count"`
}

// OrderBookSnapshot holds both sorted ladders plus derived best prices.
// Bids are sorted descending by price, asks ascending.
type OrderBookSnapshot struct {
	Tenant  string      `json:"tenant"`
	Symbol  string      `json:"symbol"`
	Bids    []BookLevel `json:"bids"`
	Asks    []BookLevel `json:"asks"`
	BestBid float64     `json:"best_bid"` // 0 when no bids
	BestAsk float64     `json:"best_ask"` // 0 when no asks
	Spread  float64     `json:"spread"`   // 0 unless both sides present
	TimeMS  int64       `json:"time_ms"`
}

// PositionSnapshot is the full open-position list for one account.
type PositionSnapshot struct {
	Tenant    string        `json:"tenant"`
	Account   string        `json:"account"`
	Positions []PositionRaw `json:"positions"` // Never nil once observed
	TimeMS    int64         `json:"time_ms"`
}

// Update is one accepted change delivered to listeners. Exactly one of the
// snapshot fields is set, matching Key.Kind.
type Update struct {
	Key       Key                `json:"key"`
	Tick      *TickSnapshot      `json:"tick,omitempty"`
	OrderBook *OrderBookSnapshot `json:"orderbook,omitempty"`
	Positions *PositionSnapshot  `json:"positions,omitempty"`
	TimeMS    int64              `json:"time_ms"` // Timestamp of the accepted value
}
