// Package repositories implements SQLite persistence for preferences and presence history.
//
// Key Implementations:
//   - [SettingsRepository] : key/value preferences, including the auto-reconnect toggle read before every retry
//   - [HistoryRepository] : presences confirmed by the sink, newest first
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
