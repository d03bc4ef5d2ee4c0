package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/victorivanov/courier/internal/gateway"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/service"
)

func newMessageHandler(
	messages *mockMessageRepo,
	conversations *mockConversationRepo,
	participants *mockParticipantRepo,
	gw gateway.Dispatcher,
) *MessageHandler {
	svc := service.NewMessageService(messages, conversations, participants, testSnowflake(), gw)
	return NewMessageHandler(svc)
}

// memberConversations returns a repo whose GetByID yields the canonical
// two-party conversation.
func memberConversations() *mockConversationRepo {
	return &mockConversationRepo{
		GetByIDFn: func(_ context.Context, id int64) (*models.Conversation, error) {
			if id != testConvID {
				return nil, nil
			}
			return testConversation(), nil
		},
	}
}

func storedMessage(id int64) *models.MessageWithSender {
	return &models.MessageWithSender{
		Message: models.Message{
			ID:             id,
			ConversationID: testConvID,
			SenderID:       testUserID,
			Content:        "hello",
			CreatedAt:      time.Now(),
		},
		SenderUsername:    "alice",
		SenderDisplayName: "Alice",
	}
}

// ---------------------------------------------------------------------------
// Send tests
// ---------------------------------------------------------------------------

func TestSendMessage_Success(t *testing.T) {
	gw := &mockGateway{}
	var createdID int64
	messages := &mockMessageRepo{
		CreateFn: func(_ context.Context, msg *models.Message) error {
			createdID = msg.ID
			if msg.Content != "hello" {
				t.Errorf("stored content = %q, want %q", msg.Content, "hello")
			}
			return nil
		},
		GetByIDFn: func(_ context.Context, id int64) (*models.MessageWithSender, error) {
			return storedMessage(id), nil
		},
	}

	h := newMessageHandler(messages, memberConversations(), &mockParticipantRepo{}, gw)

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/messages",
		strings.NewReader(`{"content":"hello"}`))
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.Send(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if createdID == 0 {
		t.Fatal("Create was not called")
	}

	// Both participants get MESSAGE_CREATE on their user connection so the
	// directory badge updates even without a thread subscription.
	events := gw.byEvent(gateway.EventMessageCreate)
	if len(events) != 2 {
		t.Fatalf("dispatched %d MESSAGE_CREATE events, want 2", len(events))
	}
	targets := map[int64]bool{events[0].UserID: true, events[1].UserID: true}
	if !targets[testUserID] || !targets[testOtherID] {
		t.Errorf("events went to %v, want both participants", targets)
	}
}

func TestSendMessage_TrimsWhitespace(t *testing.T) {
	var stored string
	messages := &mockMessageRepo{
		CreateFn: func(_ context.Context, msg *models.Message) error {
			stored = msg.Content
			return nil
		},
		GetByIDFn: func(_ context.Context, id int64) (*models.MessageWithSender, error) {
			return storedMessage(id), nil
		},
	}

	h := newMessageHandler(messages, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/messages",
		strings.NewReader(`{"content":"  hey there  "}`))
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.Send(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if stored != "hey there" {
		t.Errorf("stored content = %q, want trimmed %q", stored, "hey there")
	}
}

func TestSendMessage_WhitespaceOnlyRejected(t *testing.T) {
	h := newMessageHandler(&mockMessageRepo{}, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/messages",
		strings.NewReader(`{"content":"   "}`))
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	_ = h.Send(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessage_AttachmentOnlyAllowed(t *testing.T) {
	messages := &mockMessageRepo{
		CreateFn: func(_ context.Context, msg *models.Message) error {
			if msg.Attachment == nil {
				t.Error("attachment not stored")
			}
			return nil
		},
		GetByIDFn: func(_ context.Context, id int64) (*models.MessageWithSender, error) {
			m := storedMessage(id)
			m.Content = ""
			m.Attachment = &models.Attachment{URL: "https://blobs.example/x", Kind: "image", DisplayName: "x.png"}
			return m, nil
		},
	}

	h := newMessageHandler(messages, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	body := `{"content":"","attachment":{"url":"https://blobs.example/x","kind":"image","display_name":"x.png"}}`
	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/messages", strings.NewReader(body))
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.Send(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessage_NotParticipant(t *testing.T) {
	h := newMessageHandler(&mockMessageRepo{}, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/messages",
		strings.NewReader(`{"content":"hello"}`))
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, 999) // not in the conversation

	_ = h.Send(c)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessage_ConversationNotFound(t *testing.T) {
	h := newMessageHandler(&mockMessageRepo{}, &mockConversationRepo{}, &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/9999/messages",
		strings.NewReader(`{"content":"hello"}`))
	c.SetParamNames("id")
	c.SetParamValues("9999")
	setAuthUser(c, testUserID)

	_ = h.Send(c)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessage_StoreFailureIsRetryable(t *testing.T) {
	messages := &mockMessageRepo{
		CreateFn: func(context.Context, *models.Message) error {
			return errors.New("connection reset")
		},
	}

	h := newMessageHandler(messages, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/messages",
		strings.NewReader(`{"content":"hello"}`))
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	_ = h.Send(c)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessage_InvalidConversationID(t *testing.T) {
	h := newMessageHandler(&mockMessageRepo{}, &mockConversationRepo{}, &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/abc/messages",
		strings.NewReader(`{"content":"hello"}`))
	c.SetParamNames("id")
	c.SetParamValues("abc")
	setAuthUser(c, testUserID)

	_ = h.Send(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// List tests
// ---------------------------------------------------------------------------

func TestListMessages_DoesNotMarkRead(t *testing.T) {
	markReadCalled := false
	participants := &mockParticipantRepo{
		MarkReadFn: func(context.Context, int64, int64) error {
			markReadCalled = true
			return nil
		},
	}
	messages := &mockMessageRepo{
		ListByConversationFn: func(_ context.Context, _ int64, _ *int64, _ int) ([]models.MessageWithSender, error) {
			return []models.MessageWithSender{*storedMessage(1)}, nil
		},
	}

	h := newMessageHandler(messages, memberConversations(), participants, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/messages", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if markReadCalled {
		t.Error("List moved the read watermark; listing must stay pure")
	}
}

func TestListMessages_CursorPassedThrough(t *testing.T) {
	var gotBefore *int64
	var gotLimit int
	messages := &mockMessageRepo{
		ListByConversationFn: func(_ context.Context, _ int64, before *int64, limit int) ([]models.MessageWithSender, error) {
			gotBefore = before
			gotLimit = limit
			return nil, nil
		},
	}

	h := newMessageHandler(messages, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/messages?before=12345&limit=10", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotBefore == nil || *gotBefore != 12345 {
		t.Errorf("before = %v, want 12345", gotBefore)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
}

func TestListMessages_InvalidCursor(t *testing.T) {
	h := newMessageHandler(&mockMessageRepo{}, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/messages?before=abc", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	_ = h.List(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListMessages_OversizeLimitClamped(t *testing.T) {
	var gotLimit int
	messages := &mockMessageRepo{
		ListByConversationFn: func(_ context.Context, _ int64, _ *int64, limit int) ([]models.MessageWithSender, error) {
			gotLimit = limit
			return nil, nil
		},
	}

	h := newMessageHandler(messages, memberConversations(), &mockParticipantRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/messages?limit=5000", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotLimit != 50 {
		t.Errorf("limit = %d, want clamped default 50", gotLimit)
	}
}

// ---------------------------------------------------------------------------
// OpenThread tests
// ---------------------------------------------------------------------------

func TestOpenThread_MarksRead(t *testing.T) {
	var markedConv, markedUser int64
	participants := &mockParticipantRepo{
		MarkReadFn: func(_ context.Context, conversationID, userID int64) error {
			markedConv = conversationID
			markedUser = userID
			return nil
		},
	}
	messages := &mockMessageRepo{
		ListByConversationFn: func(_ context.Context, _ int64, _ *int64, _ int) ([]models.MessageWithSender, error) {
			return []models.MessageWithSender{*storedMessage(1)}, nil
		},
	}

	h := newMessageHandler(messages, memberConversations(), participants, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/thread", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.OpenThread(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if markedConv != testConvID || markedUser != testUserID {
		t.Errorf("MarkRead(%d, %d), want (%d, %d)", markedConv, markedUser, testConvID, testUserID)
	}

	var result []models.MessageWithSender
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
}

func TestOpenThread_NotParticipantDoesNotMarkRead(t *testing.T) {
	markReadCalled := false
	participants := &mockParticipantRepo{
		MarkReadFn: func(context.Context, int64, int64) error {
			markReadCalled = true
			return nil
		},
	}

	h := newMessageHandler(&mockMessageRepo{}, memberConversations(), participants, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/thread", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, 999)

	_ = h.OpenThread(c)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if markReadCalled {
		t.Error("MarkRead called for a non-participant")
	}
}

// ---------------------------------------------------------------------------
// Typing tests
// ---------------------------------------------------------------------------

func TestTyping_DispatchesToSubscribersExceptSender(t *testing.T) {
	gw := &mockGateway{}
	h := newMessageHandler(&mockMessageRepo{}, memberConversations(), &mockParticipantRepo{}, gw)

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/typing", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.Typing(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	events := gw.byEvent(gateway.EventTypingStart)
	if len(events) != 1 {
		t.Fatalf("dispatched %d TYPING_START events, want 1", len(events))
	}
	if events[0].ConversationID != testConvID {
		t.Errorf("ConversationID = %d, want %d", events[0].ConversationID, testConvID)
	}
	if events[0].ExceptUserID != testUserID {
		t.Errorf("ExceptUserID = %d, want the typing user %d", events[0].ExceptUserID, testUserID)
	}
}

func TestTyping_NotParticipant(t *testing.T) {
	gw := &mockGateway{}
	h := newMessageHandler(&mockMessageRepo{}, memberConversations(), &mockParticipantRepo{}, gw)

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations/2000/typing", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, 999)

	_ = h.Typing(c)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(gw.byEvent(gateway.EventTypingStart)) != 0 {
		t.Error("TYPING_START dispatched for a non-participant")
	}
}
