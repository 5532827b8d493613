package session

import (
	"encoding/json"
	"time"
)

// controlMessage is the JSON control-plane envelope on the uplink.
type controlMessage struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// audioMeta is the periodic hint describing the binary frames in flight.
type audioMeta struct {
	MimeType string `json:"mimeType"`
	Bytes    int    `json:"bytes"`
}

func pingMessage(now time.Time) []byte {
	data, _ := json.Marshal(controlMessage{
		Type:      "ping",
		Timestamp: now.UnixMilli(),
	})
	return data
}

func audioMetaMessage(mimeType string, bytes int, now time.Time) []byte {
	meta, _ := json.Marshal(audioMeta{MimeType: mimeType, Bytes: bytes})
	data, _ := json.Marshal(controlMessage{
		Type:      "audio_meta",
		Timestamp: now.UnixMilli(),
		Data:      meta,
	})
	return data
}
