// Package audio implements the jitter sender for the audio uplink.
//
// Producers push chunks at whatever rate capture produces them; the sender
// absorbs the jitter in a bounded ring and emits exactly one chunk per tick
// at a fixed cadence. When the ring is full the oldest chunk is dropped
// first: for realtime audio, freshness beats completeness, and worst-case
// buffered latency stays bounded at capacity times the tick interval.
package audio
