package relay

import "encoding/json"

// Event types carried in the websocket envelope.
const (
	EventJoin        = "join:conversation"
	EventJoined      = "conversation:joined"
	EventSend        = "message:send"
	EventReceived    = "message:received"
	EventError       = "message:error"
	EventRead        = "message:read"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Envelope is the wire format for every relay event, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func marshalEvent(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(struct {
		Type    string      `json:"type"`
		Payload interface{} `json:"payload,omitempty"`
	}{Type: eventType, Payload: payload})
}
