package service

import (
	"context"

	"github.com/victorivanov/courier/internal/database"
	"github.com/victorivanov/courier/internal/gateway"
)

// ReadStateService owns the per-participant read watermark. The watermark
// has exactly one mutator (Ack); unread counts are always derived from it,
// never stored or incremented anywhere.
type ReadStateService struct {
	participants  database.ParticipantRepository
	conversations database.ConversationRepository
	gateway       gateway.Dispatcher
}

// NewReadStateService creates a ReadStateService.
func NewReadStateService(
	participants database.ParticipantRepository,
	conversations database.ConversationRepository,
	gw gateway.Dispatcher,
) *ReadStateService {
	return &ReadStateService{
		participants:  participants,
		conversations: conversations,
		gateway:       gw,
	}
}

// Ack marks a conversation read for the user. Idempotent; repeated calls
// and calls racing an inbound message never move the watermark backwards.
func (s *ReadStateService) Ack(ctx context.Context, conversationID, userID int64) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return Internal("INTERNAL", "internal server error")
	}
	if !ok {
		return NotFound("NOT_FOUND", "conversation not found")
	}

	if err := s.participants.MarkRead(ctx, conversationID, userID); err != nil {
		return Internal("INTERNAL", "internal server error")
	}

	// Let the user's other open views clear their badges.
	total, err := s.participants.TotalUnread(ctx, userID)
	if err == nil {
		s.gateway.DispatchToUser(userID, gateway.EventReadStateUpdate, gateway.ReadStateUpdateData{
			ConversationID: conversationID,
			TotalUnread:    total,
		})
	}
	return nil
}

// Unread returns the unread count for one conversation.
func (s *ReadStateService) Unread(ctx context.Context, conversationID, userID int64) (int, error) {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return 0, Internal("INTERNAL", "internal server error")
	}
	if !ok {
		return 0, NotFound("NOT_FOUND", "conversation not found")
	}

	count, err := s.participants.UnreadCount(ctx, conversationID, userID)
	if err != nil {
		return 0, Internal("INTERNAL", "internal server error")
	}
	return count, nil
}

// TotalUnread returns the badge count across all the user's conversations.
func (s *ReadStateService) TotalUnread(ctx context.Context, userID int64) (int, error) {
	total, err := s.participants.TotalUnread(ctx, userID)
	if err != nil {
		return 0, Internal("INTERNAL", "internal server error")
	}
	return total, nil
}
