package gateway

import "encoding/json"

// Op codes for gateway payloads.
const (
	OpDispatch     = 0
	OpHeartbeat    = 1
	OpIdentify     = 2
	OpSubscribe    = 3
	OpUnsubscribe  = 4
	OpHello        = 10
	OpHeartbeatAck = 11
)

// Event names for DISPATCH payloads.
const (
	EventReady              = "READY"
	EventMessageCreate      = "MESSAGE_CREATE"
	EventConversationCreate = "CONVERSATION_CREATE"
	EventReadStateUpdate    = "READ_STATE_UPDATE"
	EventTypingStart        = "TYPING_START"
)

// Payload is the envelope for all gateway messages.
type Payload struct {
	Op       int             `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Event    *string         `json:"t,omitempty"`
}

// IdentifyData is sent by the client in an Op 2 IDENTIFY.
type IdentifyData struct {
	Token string `json:"token"`
}

// SubscribeData is sent by the client in an Op 3 SUBSCRIBE or Op 4
// UNSUBSCRIBE. The subscription lives exactly as long as the thread view
// that opened it; there is no timeout-based expiry.
type SubscribeData struct {
	ConversationID int64 `json:"conversation_id,string"`
}

// HelloData is sent by the server after WebSocket connect.
type HelloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// ReadyData is sent by the server after successful IDENTIFY.
type ReadyData struct {
	SessionID   string `json:"session_id"`
	UserID      int64  `json:"user_id,string"`
	TotalUnread int    `json:"total_unread"`
}

// Event is a dispatch event ready to broadcast.
type Event struct {
	Name string
	Data any
}

// TypingStartData is the payload for TYPING_START events.
type TypingStartData struct {
	ConversationID int64 `json:"conversation_id,string"`
	UserID         int64 `json:"user_id,string"`
	Timestamp      int64 `json:"timestamp"`
}

// ReadStateUpdateData is the payload for READ_STATE_UPDATE events, sent to
// the reader's own connection so other open views can clear their badges.
type ReadStateUpdateData struct {
	ConversationID int64 `json:"conversation_id,string"`
	TotalUnread    int   `json:"total_unread"`
}
