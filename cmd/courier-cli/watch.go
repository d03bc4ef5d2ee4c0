package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/victorivanov/courier/internal/gateway"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/timeline"
)

// runWatch tails a conversation: it opens the thread over REST (which marks
// it read), subscribes over the gateway, and merges the live event stream
// into the fetched page. Messages that arrive through both paths during the
// open race are printed once.
func runWatch(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "error: conversation ID is required")
		return 1
	}
	conversationID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid conversation ID %q\n", args[0])
		return 1
	}

	token := requireEnv("TOKEN")
	serverURL := envOr("SERVER_URL", "http://localhost:8080")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Profiles come off the wire; there is no database here. Senders the
	// stream has not shown yet render as placeholders.
	dir := newWireDirectory()

	page, err := fetchThread(ctx, serverURL, token, conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening thread: %v\n", err)
		return 1
	}
	for _, m := range page {
		dir.observe(m)
	}

	t := timeline.Open(conversationID, dir, page)
	t.OnAppend(printMessage)
	for _, m := range t.Messages() {
		printMessage(m)
	}
	fmt.Printf("-- watching conversation %d (ctrl-c to stop) --\n", conversationID)

	events := make(chan models.Message, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.Run(ctx, events)
	}()

	code := streamGateway(ctx, serverURL, token, conversationID, dir, events)

	close(events)
	wg.Wait()
	return code
}

// fetchThread loads the initial page via GET /conversations/:id/thread.
func fetchThread(ctx context.Context, serverURL, token string, conversationID int64) ([]models.MessageWithSender, error) {
	url := fmt.Sprintf("%s/api/v1/conversations/%d/thread", serverURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page []models.MessageWithSender
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding thread page: %w", err)
	}
	return page, nil
}

// streamGateway runs the websocket session: hello, identify, subscribe, then
// forwards MESSAGE_CREATE events for the watched conversation into events.
// All writes happen on this goroutine; the reader only feeds incoming.
func streamGateway(ctx context.Context, serverURL, token string, conversationID int64, dir *wireDirectory, events chan<- models.Message) int {
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/gateway"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: gateway dial: %v\n", err)
		return 1
	}
	defer ws.Close()

	incoming := make(chan gateway.Payload, 16)
	readErr := make(chan error, 1)
	go func() {
		defer close(incoming)
		for {
			var p gateway.Payload
			if err := ws.ReadJSON(&p); err != nil {
				readErr <- err
				return
			}
			incoming <- p
		}
	}()

	// HELLO first; its interval drives our heartbeat.
	interval, err := awaitHello(ctx, incoming)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: gateway handshake: %v\n", err)
		return 1
	}

	if err := writePayload(ws, gateway.Payload{
		Op:   gateway.OpIdentify,
		Data: mustRaw(gateway.IdentifyData{Token: token}),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: identify: %v\n", err)
		return 1
	}

	subscribed := false
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0

		case <-heartbeat.C:
			if err := writePayload(ws, gateway.Payload{Op: gateway.OpHeartbeat}); err != nil {
				fmt.Fprintf(os.Stderr, "error: heartbeat: %v\n", err)
				return 1
			}

		case p, ok := <-incoming:
			if !ok {
				select {
				case err := <-readErr:
					if ctx.Err() == nil {
						fmt.Fprintf(os.Stderr, "error: gateway closed: %v\n", err)
						return 1
					}
				default:
				}
				return 0
			}

			switch p.Op {
			case gateway.OpDispatch:
				if p.Event == nil {
					continue
				}
				switch *p.Event {
				case gateway.EventReady:
					// Subscribe once identified; SUBSCRIBE before READY
					// would be dropped as unauthenticated.
					if !subscribed {
						if err := writePayload(ws, gateway.Payload{
							Op:   gateway.OpSubscribe,
							Data: mustRaw(gateway.SubscribeData{ConversationID: conversationID}),
						}); err != nil {
							fmt.Fprintf(os.Stderr, "error: subscribe: %v\n", err)
							return 1
						}
						subscribed = true
					}
				case gateway.EventMessageCreate:
					var m models.MessageWithSender
					if err := json.Unmarshal(p.Data, &m); err != nil {
						fmt.Fprintf(os.Stderr, "warning: bad event payload: %v\n", err)
						continue
					}
					dir.observe(m)
					events <- m.Message
				case gateway.EventTypingStart:
					var typing gateway.TypingStartData
					if err := json.Unmarshal(p.Data, &typing); err == nil {
						fmt.Printf("-- %s is typing --\n", dir.displayName(typing.UserID))
					}
				}
			case gateway.OpHeartbeatAck:
				// Liveness confirmed; nothing to render.
			}
		}
	}
}

// awaitHello reads payloads until HELLO arrives and returns the heartbeat
// interval the server asked for.
func awaitHello(ctx context.Context, incoming <-chan gateway.Payload) (time.Duration, error) {
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline.C:
			return 0, fmt.Errorf("timed out waiting for hello")
		case p, ok := <-incoming:
			if !ok {
				return 0, fmt.Errorf("connection closed before hello")
			}
			if p.Op != gateway.OpHello {
				continue
			}
			var hello gateway.HelloData
			if err := json.Unmarshal(p.Data, &hello); err != nil {
				return 0, fmt.Errorf("decoding hello: %w", err)
			}
			if hello.HeartbeatInterval <= 0 {
				return 0, fmt.Errorf("server sent heartbeat interval %d", hello.HeartbeatInterval)
			}
			return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
		}
	}
}

func writePayload(ws *websocket.Conn, p gateway.Payload) error {
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteJSON(p)
}

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("watch: marshal: " + err.Error())
	}
	return data
}

func printMessage(m models.MessageWithSender) {
	name := m.SenderDisplayName
	if name == "" {
		name = m.SenderUsername
	}
	line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04:05"), name, m.Content)
	if m.Attachment != nil {
		line += fmt.Sprintf(" (%s: %s)", m.Attachment.Kind, m.Attachment.URL)
	}
	fmt.Println(line)
}

// wireDirectory is a profile lookup fed by the messages already seen on the
// wire. The server enriches every message it sends, so in practice only a
// sender with no prior message in this session falls back to a placeholder.
type wireDirectory struct {
	mu   sync.Mutex
	byID map[int64]models.Profile
}

func newWireDirectory() *wireDirectory {
	return &wireDirectory{byID: make(map[int64]models.Profile)}
}

func (d *wireDirectory) observe(m models.MessageWithSender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[m.SenderID] = models.Profile{
		UserID:      m.SenderID,
		Username:    m.SenderUsername,
		DisplayName: m.SenderDisplayName,
		AvatarURL:   m.SenderAvatarURL,
	}
}

func (d *wireDirectory) displayName(userID int64) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.byID[userID]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return "user-" + strconv.FormatInt(userID, 10)
}

func (d *wireDirectory) GetProfiles(_ context.Context, userIDs []int64) (map[int64]models.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int64]models.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := d.byID[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
