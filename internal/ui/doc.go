// Package ui implements the live monitor TUI using bubbletea's Elm architecture.
//
// The monitor has two views:
//  1. [StatusView] : connection state, sink identity, the presence on display and retry progress
//  2. [HistoryView] : presences the sink confirmed, newest first
//
// The [Model] subscribes to the engine's websocket status stream through a [Client] and re-renders on every
// snapshot. A one-second tick keeps elapsed time and retry countdowns moving between snapshots.
// When the stream drops the model redials with a fixed delay.
//
// Keys: r reconnect, d disconnect, h history, esc back, q quit.
package ui
