// Package connection implements the connection controller shared by the
// audio uplink and the instruction downlink.
//
// The controller:
//   - Owns at most one live transport and one pending reconnect timer
//   - Runs the Disconnected -> Connecting -> Connected state machine and
//     notifies status observers on every transition
//   - Recovers from unintentional closes with exponential backoff
//     (capped delay, fixed attempt ceiling)
//   - Suppresses recovery after an intentional Disconnect
//
// Two transports are provided: a WebSocket uplink for binary audio frames
// plus JSON control frames, and an SSE downlink for server-push events with
// Last-Event-ID resume.
package connection
