// Package ingest owns the instrument stream core.
//
// Ownership boundary:
// - frame classification (JSON passthrough vs delimited text)
//
// - bounded frame and line accumulation
//
// - field extraction from text lines
//
// - the single in-progress measurement record and its completion policy
//
// Data flow:
// - ByteSource -> classifier -> {frame buffer | line buffer -> extractor -> record} -> policy -> Sink
//
// The Ingestor is not safe for concurrent use. One goroutine owns it and
// drives it through Poll, Write, and Tick; other goroutines read copies via
// Snapshot and Stats only through that owner.
//
// Ingest never returns errors for malformed input. Every discard is reported
// through the Observer hook and the stream resyncs on the next start byte or
// terminator.
package ingest
