package models

import "encoding/json"

// Event names carried on the signaling connection
const (
	EventConnected   = "connected"
	EventJoin        = "join"
	EventUserJoined  = "user-joined"
	EventSignal      = "signal"
	EventChatMessage = "chat-message"
)

// Frame is one message on the wire: an event name and its payload
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Connected is the first frame the relay sends on a new connection
type Connected struct {
	ConnectionID string `json:"connectionId"`
}

// SignalRequest is a signal sent by a client to the rest of its room.
// Data is opaque to the relay.
type SignalRequest struct {
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

// SignalForward is a signal as delivered to the other members of a room
type SignalForward struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// ChatRequest is a chat line sent by a client
type ChatRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// ChatForward is a chat line as delivered to the other members of a room.
// SenderID is filled in by the relay.
type ChatForward struct {
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}
