package models

import (
	"strconv"
	"time"
)

// Conversation is the private channel between exactly two users.
// At most one conversation exists per unordered user pair; the pair key
// enforces that at the storage layer.
type Conversation struct {
	ID           int64         `json:"id,string"`
	CreatedAt    time.Time     `json:"created_at"`
	Participants []Participant `json:"participants,omitempty"`
}

// PairKey returns the canonical key for an unordered user pair.
func PairKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return strconv.FormatInt(userA, 10) + ":" + strconv.FormatInt(userB, 10)
}

// ConversationSummary is one row of the conversation directory:
// the other participant, the newest message, and the viewer's unread count.
type ConversationSummary struct {
	ConversationID int64              `json:"conversation_id,string"`
	CreatedAt      time.Time          `json:"created_at"`
	OtherUserID    int64              `json:"other_user_id,string"`
	OtherProfile   Profile            `json:"other_profile"`
	LastMessage    *MessageWithSender `json:"last_message,omitempty"`
	UnreadCount    int                `json:"unread_count"`
}
