package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/database"
)

// Manager manages all active WebSocket connections and event routing.
//
// A subscription is scoped to one conversation and lives exactly as long as
// the thread view that opened it. There is no replay: events dispatched
// before a subscription was established are visible only through the
// initial fetch.
type Manager struct {
	mu            sync.RWMutex
	connections   map[int64]*Connection     // userID → connection
	subscriptions map[int64]map[int64]bool  // conversationID → set of userIDs

	tokens        *auth.TokenService
	conversations database.ConversationRepository
	participants  database.ParticipantRepository
}

// NewManager creates a new gateway Manager.
func NewManager(
	tokens *auth.TokenService,
	conversations database.ConversationRepository,
	participants database.ParticipantRepository,
) *Manager {
	return &Manager{
		connections:   make(map[int64]*Connection),
		subscriptions: make(map[int64]map[int64]bool),
		tokens:        tokens,
		conversations: conversations,
		participants:  participants,
	}
}

// register adds a connection to the manager.
func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Disconnect existing connection for this user.
	if old, ok := m.connections[c.UserID]; ok {
		old.Close()
	}
	m.connections[c.UserID] = c
}

// unregister removes a connection from the manager and drops its
// subscriptions. A late event for a dropped subscription is a no-op.
func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.connections[c.UserID]; ok && existing == c {
		delete(m.connections, c.UserID)

		for conversationID, members := range m.subscriptions {
			delete(members, c.UserID)
			if len(members) == 0 {
				delete(m.subscriptions, conversationID)
			}
		}
	}
}

// subscribe adds a user to a conversation's event subscription.
func (m *Manager) subscribe(userID, conversationID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscriptions[conversationID] == nil {
		m.subscriptions[conversationID] = make(map[int64]bool)
	}
	m.subscriptions[conversationID][userID] = true
}

// unsubscribe removes a user from a conversation's event subscription.
func (m *Manager) unsubscribe(userID, conversationID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if members, ok := m.subscriptions[conversationID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(m.subscriptions, conversationID)
		}
	}
}

// IsSubscribed reports whether a user currently holds a thread subscription.
func (m *Manager) IsSubscribed(userID, conversationID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subscriptions[conversationID][userID]
}

// DispatchToUser sends a dispatch event to a specific connected user.
// Disconnected users miss the event; delivery is best-effort.
func (m *Manager) DispatchToUser(userID int64, event string, data any) {
	m.mu.RLock()
	c, ok := m.connections[userID]
	m.mu.RUnlock()

	if ok {
		c.SendEvent(event, data)
	}
}

// DispatchToSubscribers sends a dispatch event to every user subscribed to
// the conversation, except exceptUserID (pass 0 to except no one).
func (m *Manager) DispatchToSubscribers(conversationID, exceptUserID int64, event string, data any) {
	m.mu.RLock()
	members := m.subscriptions[conversationID]
	conns := make([]*Connection, 0, len(members))
	for userID := range members {
		if userID == exceptUserID {
			continue
		}
		if c, ok := m.connections[userID]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.SendEvent(event, data)
	}
}

// handleIdentify processes an IDENTIFY payload from a client.
func (m *Manager) handleIdentify(c *Connection, data json.RawMessage) {
	var identify IdentifyData
	if err := json.Unmarshal(data, &identify); err != nil {
		slog.Error("invalid identify data", "error", err)
		c.Close()
		return
	}

	claims, err := m.tokens.ValidateAccessToken(identify.Token)
	if err != nil {
		slog.Warn("invalid token in identify", "error", err)
		c.Close()
		return
	}

	c.UserID = claims.UserID
	c.SessionID = uuid.NewString()

	m.register(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The READY payload carries the unread badge so the client can render
	// the directory before any REST round trip.
	totalUnread := 0
	if m.participants != nil {
		n, err := m.participants.TotalUnread(ctx, c.UserID)
		if err != nil {
			slog.Error("failed to get total unread", "userID", c.UserID, "error", err)
		} else {
			totalUnread = n
		}
	}

	c.SendEvent(EventReady, ReadyData{
		SessionID:   c.SessionID,
		UserID:      c.UserID,
		TotalUnread: totalUnread,
	})
}

// handleSubscribe processes a SUBSCRIBE payload: the client opened a thread
// view. Only participants of the conversation may subscribe.
func (m *Manager) handleSubscribe(c *Connection, data json.RawMessage) {
	if c.UserID == 0 {
		return // not identified yet
	}

	var sub SubscribeData
	if err := json.Unmarshal(data, &sub); err != nil {
		slog.Error("invalid subscribe data", "userID", c.UserID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := m.conversations.IsParticipant(ctx, sub.ConversationID, c.UserID)
	if err != nil {
		slog.Error("subscribe participant check failed", "userID", c.UserID, "error", err)
		return
	}
	if !ok {
		slog.Warn("subscribe rejected", "userID", c.UserID, "conversationID", sub.ConversationID)
		return
	}

	m.subscribe(c.UserID, sub.ConversationID)
}

// handleUnsubscribe processes an UNSUBSCRIBE payload: the thread view closed.
func (m *Manager) handleUnsubscribe(c *Connection, data json.RawMessage) {
	if c.UserID == 0 {
		return
	}

	var sub SubscribeData
	if err := json.Unmarshal(data, &sub); err != nil {
		slog.Error("invalid unsubscribe data", "userID", c.UserID, "error", err)
		return
	}

	m.unsubscribe(c.UserID, sub.ConversationID)
}
