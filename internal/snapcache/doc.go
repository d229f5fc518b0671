// Package snapcache provides a short-TTL cache keyed by subscription key,
// deduplicating concurrent fetches: at most one upstream call is in flight
// per key, and concurrent callers share its result.
package snapcache
