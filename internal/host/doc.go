// Package host implements a dry-run native host.
//
// It speaks the same framed protocol as the Discord bridge on stdio but keeps the activity in memory
// instead of forwarding it. `ytrpc host` runs it so the daemon can be exercised end to end without a
// Discord client.
package host
