package push

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// payload is the wire format shared by every ingress:
//
//	{"notification": {"title": "...", "options": {...}}}
//
// A payload without "notification" is valid and carries nothing to show.
type payload struct {
	Notification *Notification `json:"notification"`
}

// DecodePayload parses a push payload into a notification, which is nil
// when the payload carries none.
func DecodePayload(data []byte) (*Notification, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode push payload: %w", err)
	}
	if n := p.Notification; n != nil && bytes.Equal(bytes.TrimSpace(n.Options), []byte("null")) {
		n.Options = nil
	}
	return p.Notification, nil
}

// EncodePayload is the inverse of DecodePayload.
func EncodePayload(n *Notification) ([]byte, error) {
	return json.Marshal(payload{Notification: n})
}
