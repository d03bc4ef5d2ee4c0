package database

import (
	"context"

	"github.com/victorivanov/courier/internal/models"
)

type ConversationRepository interface {
	// Resolve returns the conversation for the unordered pair {userA, userB},
	// creating it (with both participant rows) if none exists. The returned
	// bool reports whether a new conversation was created. newID is only used
	// on the create path.
	Resolve(ctx context.Context, userA, userB, newID int64) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, id int64) (*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ListSummaries(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.MessageWithSender, error)
	// ListByConversation returns up to limit messages older than the before
	// cursor (all if before is nil), ascending by (created_at, id).
	ListByConversation(ctx context.Context, conversationID int64, before *int64, limit int) ([]models.MessageWithSender, error)
}

type ParticipantRepository interface {
	// MarkRead advances the watermark to the server clock. Idempotent and
	// monotonic: it never moves the watermark backwards.
	MarkRead(ctx context.Context, conversationID, userID int64) error
	Get(ctx context.Context, conversationID, userID int64) (*models.Participant, error)
	// UnreadCount counts messages from the other participant newer than the
	// watermark, reading watermark and messages in one statement so both see
	// the same snapshot.
	UnreadCount(ctx context.Context, conversationID, userID int64) (int, error)
	TotalUnread(ctx context.Context, userID int64) (int, error)
}

type DirectoryRepository interface {
	GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error)
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
}
