// Package supervisor owns the connection to the native host and the presence it displays.
//
// A [Supervisor] is a single-goroutine state machine. Transport messages, transport exit, track
// updates, manual commands, retry timers, the rate-limit flush, and the periodic health check all
// arrive as [Event] values on one channel and are applied in order by one transition function.
//
//	Disconnected ──Connect──▶ ConnectingHost ──NATIVE_HOST_STARTED──▶ HostConnected
//	     ▲                                                             │      ▲
//	     │ transport exit                          RPC_STATUS connected │      │ sink failure
//	     │                                                             ▼      │
//	     └──────────────────────── any ◀──────────────────────────── PresenceReady
//
//	HostConnected / PresenceReady ──NATIVE_HOST_ERROR──▶ Fault (until manual reconnect)
//
// The host process handle, the retry timer, and the flush timer are touched only from the loop,
// so none of them need locking. Observers read state through the [status.Publisher].
package supervisor
