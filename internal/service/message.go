package service

import (
	"context"
	"strings"
	"time"

	"github.com/victorivanov/courier/internal/database"
	"github.com/victorivanov/courier/internal/gateway"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/snowflake"
)

const maxContentLength = 4000

// MessageService handles message creation and thread reads.
type MessageService struct {
	messages      database.MessageRepository
	conversations database.ConversationRepository
	participants  database.ParticipantRepository
	sf            *snowflake.Generator
	gateway       gateway.Dispatcher
}

// NewMessageService creates a MessageService.
func NewMessageService(
	messages database.MessageRepository,
	conversations database.ConversationRepository,
	participants database.ParticipantRepository,
	sf *snowflake.Generator,
	gw gateway.Dispatcher,
) *MessageService {
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		participants:  participants,
		sf:            sf,
		gateway:       gw,
	}
}

// Send appends a message to a conversation. Either trimmed content or an
// attachment must be present; validation happens before any write. The new
// message is dispatched to every participant's connection so directory
// badges and open thread views update without a refresh.
func (s *MessageService) Send(ctx context.Context, conversationID, userID int64, content string, attachment *models.Attachment) (*models.MessageWithSender, error) {
	content = strings.TrimSpace(content)
	if content == "" && attachment == nil {
		return nil, BadRequest("EMPTY_MESSAGE", "message needs text or an attachment")
	}
	if len(content) > maxContentLength {
		return nil, BadRequest("INVALID_CONTENT", "message content too long")
	}

	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             s.sf.Generate().Int64(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		Attachment:     attachment,
		CreatedAt:      time.Now(),
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, Retryable("SEND_FAILED", "could not store message, try again")
	}

	full, err := s.messages.GetByID(ctx, msg.ID)
	if err != nil || full == nil {
		return nil, Internal("INTERNAL", "internal server error")
	}

	for _, p := range conv.Participants {
		s.gateway.DispatchToUser(p.UserID, gateway.EventMessageCreate, full)
	}

	return full, nil
}

// List returns a page of messages, oldest first, with cursor-based
// pagination. List is pure: it does not move the read watermark.
func (s *MessageService) List(ctx context.Context, conversationID, userID int64, before *int64, limit int) ([]models.MessageWithSender, error) {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, before, limit)
	if err != nil {
		return nil, Internal("INTERNAL", "internal server error")
	}
	if messages == nil {
		messages = []models.MessageWithSender{}
	}
	return messages, nil
}

// OpenThread is the thread-open operation: the initial page plus the
// viewing-implies-read policy. Listing and marking read stay separate
// primitives; this composes them so callers cannot forget the ack.
func (s *MessageService) OpenThread(ctx context.Context, conversationID, userID int64, limit int) ([]models.MessageWithSender, error) {
	messages, err := s.List(ctx, conversationID, userID, nil, limit)
	if err != nil {
		return nil, err
	}

	if err := s.participants.MarkRead(ctx, conversationID, userID); err != nil {
		return nil, Internal("INTERNAL", "internal server error")
	}
	return messages, nil
}

// Typing notifies subscribers of the conversation that the user is typing.
func (s *MessageService) Typing(ctx context.Context, conversationID, userID int64) error {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	s.gateway.DispatchToSubscribers(conversationID, userID, gateway.EventTypingStart, gateway.TypingStartData{
		ConversationID: conversationID,
		UserID:         userID,
		Timestamp:      time.Now().Unix(),
	})
	return nil
}

// requireParticipant loads the conversation and verifies membership.
func (s *MessageService) requireParticipant(ctx context.Context, conversationID, userID int64) (*models.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, Internal("INTERNAL", "internal server error")
	}
	if conv == nil {
		return nil, NotFound("NOT_FOUND", "conversation not found")
	}
	for _, p := range conv.Participants {
		if p.UserID == userID {
			return conv, nil
		}
	}
	return nil, Forbidden("FORBIDDEN", "you are not a participant of this conversation")
}
