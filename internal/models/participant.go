package models

import "time"

// Participant is a user's membership record in a conversation, carrying
// their read watermark. LastReadAt == nil means the participant has read
// nothing yet; it only ever advances, never regresses.
type Participant struct {
	ConversationID int64      `json:"conversation_id,string"`
	UserID         int64      `json:"user_id,string"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}
