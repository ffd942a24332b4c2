// Package server exposes the presence engine over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Endpoints
//
// [APIHandler] registers the JSON control surface:
//
//	GET  /api/status      current status snapshot
//	POST /api/track       submit a source event (track or no-track)
//	POST /api/connect     start connecting if idle
//	POST /api/reconnect   manual reconnect, clears fault and manual-disconnect
//	POST /api/disconnect  manual disconnect
//	GET  /api/history     confirmed presences, newest first
//
// [StatusStream] pushes every published status snapshot to websocket clients on /ws.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
