package upstream

import (
	"context"
	"fmt"
	"net/url"

	"github.com/feedmux/feedgate/internal/model"
)

// Venue gateway endpoints. Symbols and accounts are path components and are
// escaped; the gateway namespaces all market data under /md.
const (
	pathTick      = "/md/ticks/%s"
	pathDepth     = "/md/depth/%s"
	pathPositions = "/md/accounts/%s/positions"
	pathStatus    = "/md/status"
)

// tickWire is the venue's tick payload.
type tickWire struct {
	Tick model.TickRaw `json:"tick"`
}

// depthWire is the venue's depth payload. Entries arrive unordered.
type depthWire struct {
	Symbol  string             `json:"symbol"`
	TimeMS  int64              `json:"time_ms"`
	Entries []model.DepthEntry `json:"entries"`
}

// positionsWire is the venue's position enumeration payload.
type positionsWire struct {
	Account   string              `json:"account"`
	Positions []model.PositionRaw `json:"positions"`
}

// StatusInfo describes venue availability, used as a startup probe.
type StatusInfo struct {
	Connected     bool   `json:"connected"`
	TradingActive bool   `json:"trading_active"`
	Server        string `json:"server"`
}

// FetchTick returns the current quote for symbol.
func (c *Client) FetchTick(ctx context.Context, symbol string) (model.TickRaw, error) {
	var wire tickWire
	path := fmt.Sprintf(pathTick, url.PathEscape(symbol))
	if err := c.get(ctx, path, nil, &wire); err != nil {
		return model.TickRaw{}, fmt.Errorf("fetch tick %s: %w", symbol, err)
	}
	if wire.Tick.Symbol == "" {
		wire.Tick.Symbol = symbol
	}
	return wire.Tick, nil
}

// FetchOrderBook returns the raw unordered depth for symbol.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBookRaw, error) {
	var wire depthWire
	path := fmt.Sprintf(pathDepth, url.PathEscape(symbol))
	if err := c.get(ctx, path, nil, &wire); err != nil {
		return model.OrderBookRaw{}, fmt.Errorf("fetch depth %s: %w", symbol, err)
	}

	raw := model.OrderBookRaw{
		Symbol:  wire.Symbol,
		TimeMS:  wire.TimeMS,
		Entries: wire.Entries,
	}
	if raw.Symbol == "" {
		raw.Symbol = symbol
	}
	return raw, nil
}

// FetchPositions enumerates the open positions for an account login.
// A successful call with no positions returns an empty, non-nil slice so
// callers can tell "none open" apart from "never observed".
func (c *Client) FetchPositions(ctx context.Context, account string) ([]model.PositionRaw, error) {
	var wire positionsWire
	path := fmt.Sprintf(pathPositions, url.PathEscape(account))
	if err := c.get(ctx, path, nil, &wire); err != nil {
		return nil, fmt.Errorf("fetch positions %s: %w", account, err)
	}
	if wire.Positions == nil {
		wire.Positions = []model.PositionRaw{}
	}
	return wire.Positions, nil
}

// GetStatus probes venue availability.
func (c *Client) GetStatus(ctx context.Context) (StatusInfo, error) {
	var status StatusInfo
	if err := c.get(ctx, pathStatus, nil, &status); err != nil {
		return StatusInfo{}, fmt.Errorf("fetch status: %w", err)
	}
	return status, nil
}
