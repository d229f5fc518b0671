// Package broadcast fans accepted snapshots out to every listener registered
// for a key. Each listener drains its own buffered queue, so a slow or
// panicking listener only loses its own deliveries and never blocks the rest.
package broadcast
