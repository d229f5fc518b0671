// Package subscription is the concurrency coordinator of the feed core. The
// Manager owns the set of active subscriptions and runs one polling loop per
// distinct key (tenant, kind, selector), not per listener: concurrent
// subscribers to the same key share a reference-counted loop. Each loop
// pulls from the upstream adapter on its kind's cadence, deduplicates
// fetches through the snapshot cache, filters unchanged values through the
// change detector, and hands accepted updates to the broadcaster.
package subscription
