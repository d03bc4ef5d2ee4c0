package models

import "time"

// Profile is the display metadata the platform's user directory holds
// for a user. Courier reads it, never writes it.
type Profile struct {
	UserID      int64     `json:"user_id,string"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
