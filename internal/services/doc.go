// Package services contains HTTP clients for a running ytrpc engine.
//
// [APIService] performs raw requests against the engine's HTTP surface.
// [EngineClient] builds typed calls on top of it: status, commands, history, track submission
// and the websocket status stream.
//
// Non-2xx responses surface as [*APIError], which wraps [shared.ErrServiceUnavailable] for 503s
// and [shared.ErrInvalidInput] for 400s so callers can use [errors.Is].
package services
