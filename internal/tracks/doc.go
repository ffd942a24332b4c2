// Package tracks adapts now-playing sources into [models.SourceEvent] values.
//
// Sources report at whatever rate they like. The [Debouncer] coalesces bursts within a quiet window
// and forwards only the newest event, so a flurry of seek or buffering reports costs one
// reconciliation.
//
// Two sources exist: the browser content script posts JSON to the HTTP server, and [MPDSource]
// follows an MPD server through its idle "player" subsystem.
package tracks
