// Package session is the embedder-facing surface of the streaming client.
//
// A Session owns two connection controllers (a WebSocket uplink carrying
// binary audio chunks plus JSON control messages, and an SSE downlink
// carrying server-push instructions and keepalives) together with the
// jitter sender, heartbeat watchdog, instruction coalescer and ping ticker
// that keep the pair healthy. Embedders construct a Session explicitly and
// pass it where it is needed; there is no shared module-level instance.
package session
