// Package server exposes the gateway over HTTP: a REST surface for
// snapshot reads, tenant administration, and stats, plus a WebSocket
// endpoint through which downstream clients manage subscriptions and
// receive accepted updates.
//
// Each WebSocket connection is bound to one tenant and owns its
// subscriptions; closing the connection releases them. A slow socket
// drops its own updates and never stalls other connections.
package server
