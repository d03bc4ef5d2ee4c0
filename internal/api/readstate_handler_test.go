package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/victorivanov/courier/internal/gateway"
	"github.com/victorivanov/courier/internal/service"
)

func newReadStateHandler(
	participants *mockParticipantRepo,
	conversations *mockConversationRepo,
	gw gateway.Dispatcher,
) *ReadStateHandler {
	svc := service.NewReadStateService(participants, conversations, gw)
	return NewReadStateHandler(svc)
}

func participantOf(conversationID, userID int64) *mockConversationRepo {
	return &mockConversationRepo{
		IsParticipantFn: func(_ context.Context, cID, uID int64) (bool, error) {
			return cID == conversationID && uID == userID, nil
		},
	}
}

// ---------------------------------------------------------------------------
// Ack tests
// ---------------------------------------------------------------------------

func TestAck_Success(t *testing.T) {
	gw := &mockGateway{}
	var markedConv, markedUser int64
	participants := &mockParticipantRepo{
		MarkReadFn: func(_ context.Context, conversationID, userID int64) error {
			markedConv = conversationID
			markedUser = userID
			return nil
		},
		TotalUnreadFn: func(context.Context, int64) (int, error) { return 4, nil },
	}

	h := newReadStateHandler(participants, participantOf(testConvID, testUserID), gw)

	c, rec := newTestContext(http.MethodPut, "/api/v1/conversations/2000/ack", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.Ack(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if markedConv != testConvID || markedUser != testUserID {
		t.Errorf("MarkRead(%d, %d), want (%d, %d)", markedConv, markedUser, testConvID, testUserID)
	}

	// The reader's own connection learns the new badge total.
	events := gw.byEvent(gateway.EventReadStateUpdate)
	if len(events) != 1 {
		t.Fatalf("dispatched %d READ_STATE_UPDATE events, want 1", len(events))
	}
	if events[0].UserID != testUserID {
		t.Errorf("event went to user %d, want %d", events[0].UserID, testUserID)
	}
	data, ok := events[0].Data.(gateway.ReadStateUpdateData)
	if !ok {
		t.Fatalf("event data type = %T, want ReadStateUpdateData", events[0].Data)
	}
	if data.TotalUnread != 4 {
		t.Errorf("TotalUnread = %d, want 4", data.TotalUnread)
	}
}

func TestAck_Idempotent(t *testing.T) {
	calls := 0
	participants := &mockParticipantRepo{
		MarkReadFn: func(context.Context, int64, int64) error {
			calls++
			return nil
		},
	}

	h := newReadStateHandler(participants, participantOf(testConvID, testUserID), &mockGateway{})

	for i := 0; i < 3; i++ {
		c, rec := newTestContext(http.MethodPut, "/api/v1/conversations/2000/ack", nil)
		c.SetParamNames("id")
		c.SetParamValues("2000")
		setAuthUser(c, testUserID)

		if err := h.Ack(c); err != nil {
			t.Fatalf("Ack %d: %v", i, err)
		}
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Ack %d: expected 204, got %d", i, rec.Code)
		}
	}
	if calls != 3 {
		t.Errorf("MarkRead called %d times, want 3", calls)
	}
}

func TestAck_NotParticipant(t *testing.T) {
	h := newReadStateHandler(&mockParticipantRepo{}, &mockConversationRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPut, "/api/v1/conversations/2000/ack", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	_ = h.Ack(c)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAck_InvalidID(t *testing.T) {
	h := newReadStateHandler(&mockParticipantRepo{}, &mockConversationRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodPut, "/api/v1/conversations/abc/ack", nil)
	c.SetParamNames("id")
	c.SetParamValues("abc")
	setAuthUser(c, testUserID)

	_ = h.Ack(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Unread tests
// ---------------------------------------------------------------------------

func TestUnread_ReturnsCount(t *testing.T) {
	participants := &mockParticipantRepo{
		UnreadCountFn: func(context.Context, int64, int64) (int, error) { return 7, nil },
	}

	h := newReadStateHandler(participants, participantOf(testConvID, testUserID), &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/unread", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	if err := h.Unread(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["unread_count"] != 7 {
		t.Errorf("unread_count = %d, want 7", result["unread_count"])
	}
}

func TestUnread_NotParticipant(t *testing.T) {
	h := newReadStateHandler(&mockParticipantRepo{}, &mockConversationRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/2000/unread", nil)
	c.SetParamNames("id")
	c.SetParamValues("2000")
	setAuthUser(c, testUserID)

	_ = h.Unread(c)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTotalUnread_ReturnsBadgeCount(t *testing.T) {
	participants := &mockParticipantRepo{
		TotalUnreadFn: func(_ context.Context, userID int64) (int, error) {
			if userID != testUserID {
				t.Errorf("TotalUnread called for user %d, want %d", userID, testUserID)
			}
			return 12, nil
		},
	}

	h := newReadStateHandler(participants, &mockConversationRepo{}, &mockGateway{})

	c, rec := newTestContext(http.MethodGet, "/api/v1/users/@me/unread", nil)
	setAuthUser(c, testUserID)

	if err := h.TotalUnread(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["total_unread"] != 12 {
		t.Errorf("total_unread = %d, want 12", result["total_unread"])
	}
}
