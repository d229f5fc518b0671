// Package upstream provides the adapter to the trading venue. The venue
// exposes only pull-style access: ticks, depth, and positions are fetched on
// demand over its REST gateway, never pushed. The Adapter interface is what
// the polling loops consume; a future venue connection with true push support
// can satisfy the same interface.
package upstream
