package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// heartbeatInterval is advertised in HELLO; clients beat at this rate.
	heartbeatInterval = 30 * time.Second
	// heartbeatGrace is the slack past one interval before a silent peer
	// is considered gone.
	heartbeatGrace = 15 * time.Second

	writeWait      = 5 * time.Second
	sendBufferSize = 256

	// Inbound frames are tiny: IDENTIFY carries a JWT, SUBSCRIBE an id.
	// Anything bigger is a broken or hostile client.
	maxPayloadBytes = 8 << 10
)

// Connection is one user's websocket session. Identity is established by
// the IDENTIFY op after connect, not at upgrade time, so UserID is zero
// until then and every op handler must tolerate that.
type Connection struct {
	UserID    int64
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	manager   *Manager
	sequence  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}

	lastHeartbeat atomic.Int64 // unix millis of the last client heartbeat
}

func newConnection(conn *websocket.Conn, manager *Manager) *Connection {
	c := &Connection{
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		manager: manager,
		done:    make(chan struct{}),
	}
	c.lastHeartbeat.Store(time.Now().UnixMilli())
	return c
}

// NextSequence returns the next dispatch sequence number for this session.
func (c *Connection) NextSequence() int64 {
	return c.sequence.Add(1)
}

// SendPayload queues a payload for the write pump. Delivery is best-effort:
// a client too slow to drain its buffer loses events rather than stalling
// dispatch for everyone else; it recovers by re-fetching.
func (c *Connection) SendPayload(p Payload) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("gateway payload marshal failed", "userID", c.UserID, "error", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		slog.Warn("send buffer full, dropping payload", "userID", c.UserID, "op", p.Op)
	}
}

// SendEvent queues a DISPATCH with the event name and a session-scoped
// sequence number.
func (c *Connection) SendEvent(name string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("gateway event marshal failed", "event", name, "error", err)
		return
	}
	seq := c.NextSequence()
	c.SendPayload(Payload{
		Op:       OpDispatch,
		Data:     raw,
		Sequence: &seq,
		Event:    &name,
	})
}

// Close tears the session down. Safe to call more than once and from any
// goroutine; the pumps exit via done and the closed socket.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Conn.Close()
	})
}

// resetReadDeadline pushes the liveness deadline one heartbeat cycle out.
// There is no websocket-level ping/pong: liveness is the application-level
// heartbeat op, so a client behind a buffering proxy is judged by what
// actually reaches us.
func (c *Connection) resetReadDeadline() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatGrace))
}

// readPump consumes client ops until the socket fails or the client goes
// silent past the heartbeat deadline, then unregisters the session.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxPayloadBytes)
	c.resetReadDeadline()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("gateway read ended", "userID", c.UserID, "error", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump is the sole writer on the socket; everything outbound funnels
// through the Send channel to keep gorilla's single-writer contract.
func (c *Connection) writePump() {
	defer c.Close()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage routes one inbound payload.
func (c *Connection) handleMessage(data []byte) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("gateway payload rejected", "userID", c.UserID, "error", err)
		return
	}

	switch payload.Op {
	case OpHeartbeat:
		c.lastHeartbeat.Store(time.Now().UnixMilli())
		c.resetReadDeadline()
		c.SendPayload(Payload{Op: OpHeartbeatAck})

	case OpIdentify:
		c.manager.handleIdentify(c, payload.Data)

	case OpSubscribe:
		c.manager.handleSubscribe(c, payload.Data)

	case OpUnsubscribe:
		c.manager.handleUnsubscribe(c, payload.Data)

	default:
		slog.Debug("gateway op ignored", "userID", c.UserID, "op", payload.Op)
	}
}
