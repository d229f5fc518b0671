// Package tenant holds the registry of tenants (managers). The registry is a
// pure lookup table: provisioning happens elsewhere, the core only reads
// identity and status through it.
package tenant
