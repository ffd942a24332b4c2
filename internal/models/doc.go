// Package models defines the value types shared by the presence bridge.
//
// The package contains three groups of types:
//
// 1. Presence values exchanged with the Presence Sink
//   - [PresenceSnapshot] : Immutable rich presence payload
//   - [Action] : Button attached to a presence
//
// 2. Input from the Track Source
//   - [TrackEvent] : Now-playing report (title, artist, position, duration, playback flag)
//
// 3. Engine state exposed to observers
//   - [ConnectionState] : Supervisor state machine position
//   - [StatusSnapshot] : Consistent tuple published on every transition
//   - [SinkIdentity] : Account reported by the sink once it is ready
//
// Error values describing transport and sink failures live in errors.go and are classified by
// [internal/reconnect] into backoff buckets.
package models
