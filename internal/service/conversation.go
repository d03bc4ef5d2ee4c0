package service

import (
	"context"
	"strconv"

	"github.com/victorivanov/courier/internal/database"
	"github.com/victorivanov/courier/internal/gateway"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/profile"
	"github.com/victorivanov/courier/internal/snowflake"
)

// ConversationService owns find-or-create semantics for conversations and
// the conversation directory.
type ConversationService struct {
	conversations database.ConversationRepository
	profiles      profile.Lookup
	sf            *snowflake.Generator
	gateway       gateway.Dispatcher
}

// NewConversationService creates a ConversationService.
func NewConversationService(
	conversations database.ConversationRepository,
	profiles profile.Lookup,
	sf *snowflake.Generator,
	gw gateway.Dispatcher,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		profiles:      profiles,
		sf:            sf,
		gateway:       gw,
	}
}

// Resolve returns the single conversation between the caller and the
// recipient, creating it exactly once. Repeated and concurrent calls, in
// either argument order, converge on the same conversation.
func (s *ConversationService) Resolve(ctx context.Context, userID int64, recipientIDStr string) (*models.Conversation, error) {
	recipientID, err := strconv.ParseInt(recipientIDStr, 10, 64)
	if err != nil || recipientID == 0 {
		return nil, BadRequest("INVALID_RECIPIENT", "invalid recipient_id")
	}

	if recipientID == userID {
		return nil, BadRequest("INVALID_RECIPIENT", "cannot start a conversation with yourself")
	}

	known, err := s.profiles.GetProfiles(ctx, []int64{recipientID})
	if err != nil {
		return nil, Retryable("RESOLVE_FAILED", "could not verify recipient, try again")
	}
	if _, ok := known[recipientID]; !ok {
		return nil, NotFound("NOT_FOUND", "recipient not found")
	}

	newID := s.sf.Generate().Int64()
	conv, created, err := s.conversations.Resolve(ctx, userID, recipientID, newID)
	if err != nil {
		return nil, Internal("INTERNAL", "internal server error")
	}

	if created {
		s.gateway.DispatchToUser(userID, gateway.EventConversationCreate, conv)
		s.gateway.DispatchToUser(recipientID, gateway.EventConversationCreate, conv)
	}

	return conv, nil
}

// List returns the caller's conversation directory, newest activity first,
// with the other participant's profile filled in. Unknown profiles degrade
// to placeholders instead of failing the listing.
func (s *ConversationService) List(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	summaries, err := s.conversations.ListSummaries(ctx, userID)
	if err != nil {
		return nil, Internal("INTERNAL", "internal server error")
	}
	if summaries == nil {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]int64, 0, len(summaries))
	for _, sum := range summaries {
		ids = append(ids, sum.OtherUserID)
	}
	profiles, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		profiles = map[int64]models.Profile{}
	}

	for i := range summaries {
		if p, ok := profiles[summaries[i].OtherUserID]; ok {
			summaries[i].OtherProfile = p
		} else {
			summaries[i].OtherProfile = profile.Placeholder(summaries[i].OtherUserID)
		}
	}
	return summaries, nil
}
