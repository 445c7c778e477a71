// Package gateway runs one instrument link end to end.
//
// Ownership boundary:
// - owns the serial source lifecycle (open, poll, reopen with backoff)
// - owns the single goroutine that drives the ingest core
// - owns sink construction and shutdown
// - publishes read-only status snapshots for the status server
package gateway
