// Package protocol implements the wire contract between the bridge and the Presence Sink host.
//
// # Framing
//
// Every message is a 4-byte little-endian length prefix followed by that many bytes of UTF-8 JSON.
// This is the same convention browsers use for native messaging, so the host process written for
// the browser extension can be driven unchanged.
//
// [Encode] produces one frame. [Decoder] consumes an append-only byte stream and yields zero or
// more complete messages per chunk, keeping any trailing partial frame for the next call. A frame
// whose payload is not valid JSON yields a [models.FramingError] for that message only; the stream
// continues with the next frame. A header announcing more than [MaxMessageSize] bytes is fatal
// because the stream can no longer be resynchronized.
//
// # Messages
//
// Outbound (bridge → host): SET_ACTIVITY, CLEAR_ACTIVITY, RECONNECT_RPC.
//
// Inbound (host → bridge): NATIVE_HOST_STARTED, RPC_STATUS_UPDATE, RPC_ERROR, ACTIVITY_STATUS,
// NATIVE_HOST_ERROR, DEBUG_LOG.
//
// All of them share the flat [Message] envelope; unused fields are omitted on the wire.
package protocol
