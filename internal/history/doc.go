// Package history records accepted updates to Postgres. It is write-only
// archival of what the core distributed, fed through a growable queue so a
// slow database never back-pressures a polling loop. Downstream delivery is
// unaffected by the recorder; disable it in config to run fully in-memory.
package history
