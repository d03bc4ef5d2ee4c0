package api

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/snowflake"
)

const (
	testUserID  int64 = 100
	testOtherID int64 = 200
	testConvID  int64 = 2000
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestContext(method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewRequestValidator()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func setAuthUser(c echo.Context, userID int64) {
	c.Set("user_id", userID)
}

func testSnowflake() *snowflake.Generator {
	sf, _ := snowflake.NewGenerator(1)
	return sf
}

// testConversation builds the canonical two-party conversation used across
// handler tests.
func testConversation() *models.Conversation {
	return &models.Conversation{
		ID: testConvID,
		Participants: []models.Participant{
			{ConversationID: testConvID, UserID: testUserID},
			{ConversationID: testConvID, UserID: testOtherID},
		},
	}
}

// ---------------------------------------------------------------------------
// Mock gateway dispatcher
// ---------------------------------------------------------------------------

type dispatchedEvent struct {
	UserID         int64
	ConversationID int64
	ExceptUserID   int64
	Event          string
	Data           any
}

type mockGateway struct {
	mu     sync.Mutex
	events []dispatchedEvent
}

func (m *mockGateway) DispatchToUser(userID int64, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, dispatchedEvent{UserID: userID, Event: event, Data: data})
}

func (m *mockGateway) DispatchToSubscribers(conversationID, exceptUserID int64, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, dispatchedEvent{
		ConversationID: conversationID,
		ExceptUserID:   exceptUserID,
		Event:          event,
		Data:           data,
	})
}

func (m *mockGateway) byEvent(name string) []dispatchedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dispatchedEvent
	for _, e := range m.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Mock repositories
// ---------------------------------------------------------------------------

// mockConversationRepo implements database.ConversationRepository.
type mockConversationRepo struct {
	ResolveFn       func(ctx context.Context, userA, userB, newID int64) (*models.Conversation, bool, error)
	GetByIDFn       func(ctx context.Context, id int64) (*models.Conversation, error)
	IsParticipantFn func(ctx context.Context, conversationID, userID int64) (bool, error)
	ListSummariesFn func(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
}

func (m *mockConversationRepo) Resolve(ctx context.Context, userA, userB, newID int64) (*models.Conversation, bool, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, userA, userB, newID)
	}
	return nil, false, nil
}

func (m *mockConversationRepo) GetByID(ctx context.Context, id int64) (*models.Conversation, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	if m.IsParticipantFn != nil {
		return m.IsParticipantFn(ctx, conversationID, userID)
	}
	return false, nil
}

func (m *mockConversationRepo) ListSummaries(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	if m.ListSummariesFn != nil {
		return m.ListSummariesFn(ctx, userID)
	}
	return nil, nil
}

// mockMessageRepo implements database.MessageRepository.
type mockMessageRepo struct {
	CreateFn             func(ctx context.Context, msg *models.Message) error
	GetByIDFn            func(ctx context.Context, id int64) (*models.MessageWithSender, error)
	ListByConversationFn func(ctx context.Context, conversationID int64, before *int64, limit int) ([]models.MessageWithSender, error)
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, msg)
	}
	return nil
}

func (m *mockMessageRepo) GetByID(ctx context.Context, id int64) (*models.MessageWithSender, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockMessageRepo) ListByConversation(ctx context.Context, conversationID int64, before *int64, limit int) ([]models.MessageWithSender, error) {
	if m.ListByConversationFn != nil {
		return m.ListByConversationFn(ctx, conversationID, before, limit)
	}
	return nil, nil
}

// mockParticipantRepo implements database.ParticipantRepository.
type mockParticipantRepo struct {
	MarkReadFn    func(ctx context.Context, conversationID, userID int64) error
	GetFn         func(ctx context.Context, conversationID, userID int64) (*models.Participant, error)
	UnreadCountFn func(ctx context.Context, conversationID, userID int64) (int, error)
	TotalUnreadFn func(ctx context.Context, userID int64) (int, error)
}

func (m *mockParticipantRepo) MarkRead(ctx context.Context, conversationID, userID int64) error {
	if m.MarkReadFn != nil {
		return m.MarkReadFn(ctx, conversationID, userID)
	}
	return nil
}

func (m *mockParticipantRepo) Get(ctx context.Context, conversationID, userID int64) (*models.Participant, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, conversationID, userID)
	}
	return nil, nil
}

func (m *mockParticipantRepo) UnreadCount(ctx context.Context, conversationID, userID int64) (int, error) {
	if m.UnreadCountFn != nil {
		return m.UnreadCountFn(ctx, conversationID, userID)
	}
	return 0, nil
}

func (m *mockParticipantRepo) TotalUnread(ctx context.Context, userID int64) (int, error) {
	if m.TotalUnreadFn != nil {
		return m.TotalUnreadFn(ctx, userID)
	}
	return 0, nil
}

// mockProfileLookup implements profile.Lookup.
type mockProfileLookup struct {
	GetProfilesFn func(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error)
}

func (m *mockProfileLookup) GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error) {
	if m.GetProfilesFn != nil {
		return m.GetProfilesFn(ctx, userIDs)
	}
	return map[int64]models.Profile{}, nil
}

// knownProfiles returns a lookup that resolves exactly the given profiles.
func knownProfiles(profiles ...models.Profile) *mockProfileLookup {
	byID := make(map[int64]models.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = p
	}
	return &mockProfileLookup{
		GetProfilesFn: func(_ context.Context, userIDs []int64) (map[int64]models.Profile, error) {
			out := make(map[int64]models.Profile)
			for _, id := range userIDs {
				if p, ok := byID[id]; ok {
					out[id] = p
				}
			}
			return out, nil
		},
	}
}

// mockFileStorage implements service.FileStorage.
type mockFileStorage struct {
	UploadFn func(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetURLFn func(key string) string
	DeleteFn func(ctx context.Context, key string) error
}

func (m *mockFileStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.UploadFn != nil {
		return m.UploadFn(ctx, key, reader, size, contentType)
	}
	return nil
}

func (m *mockFileStorage) GetURL(key string) string {
	if m.GetURLFn != nil {
		return m.GetURLFn(key)
	}
	return "https://blobs.example/" + key
}

func (m *mockFileStorage) Delete(ctx context.Context, key string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, key)
	}
	return nil
}
