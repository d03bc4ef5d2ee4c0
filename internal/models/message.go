package models

import "time"

// Attachment kinds. Anything that is not an image is a plain file.
const (
	AttachmentKindImage = "image"
	AttachmentKindFile  = "file"
)

// Attachment is the reference a message carries to an uploaded blob.
type Attachment struct {
	URL         string `json:"url"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
}

// Message is immutable once created. Ordering key is (CreatedAt, ID);
// snowflake IDs break ties for messages created in the same millisecond.
type Message struct {
	ID             int64       `json:"id,string"`
	ConversationID int64       `json:"conversation_id,string"`
	SenderID       int64       `json:"sender_id,string"`
	Content        string      `json:"content"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Before reports whether m sorts strictly before other in a thread.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

type MessageWithSender struct {
	Message
	SenderUsername    string  `json:"sender_username"`
	SenderDisplayName string  `json:"sender_display_name"`
	SenderAvatarURL   *string `json:"sender_avatar_url,omitempty"`
}
