// Package status holds the latest engine [models.StatusSnapshot] and fans it out to observers.
//
// The [Publisher] is written by the supervisor's event loop and read by the HTTP server, the
// WebSocket push, and the CLI. Snapshots are replaced whole and copied on the way in and out, so a
// reader never sees a torn tuple.
//
// Broadcasts use select with default: a subscriber whose buffer is full misses that snapshot but
// can always catch up through [Publisher.Current].
package status
