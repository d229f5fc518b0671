// Package model defines the shared domain types: tenants, subscription keys,
// raw upstream values, and the canonical snapshots distributed downstream.
package model
