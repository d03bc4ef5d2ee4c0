// Package timeline reconciles the two sources a thread view reads from:
// the initially fetched message page and the live event stream. The initial
// fetch and the subscription race at thread-open time, so the same message
// can arrive through both paths; the merge dedupes by message ID and keeps
// the list sorted by (created_at, id) no matter the delivery order.
package timeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/profile"
)

// Thread is the ordered, deduplicated message list backing one open thread
// view. Each view owns its own Thread; two views of the same conversation
// each merge the event stream independently.
type Thread struct {
	mu             sync.Mutex
	conversationID int64
	profiles       profile.Lookup
	byID           map[int64]struct{}
	messages       []models.MessageWithSender
	closed         bool
	onAppend       func(models.MessageWithSender)
}

// Open seeds a Thread with the initially fetched page. The page may arrive
// in any order and may contain duplicates; both are normalized here.
func Open(conversationID int64, profiles profile.Lookup, initial []models.MessageWithSender) *Thread {
	t := &Thread{
		conversationID: conversationID,
		profiles:       profiles,
		byID:           make(map[int64]struct{}, len(initial)),
	}
	for _, m := range initial {
		if _, dup := t.byID[m.ID]; dup {
			continue
		}
		t.byID[m.ID] = struct{}{}
		t.messages = append(t.messages, m)
	}
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].Before(t.messages[j].Message)
	})
	return t
}

// Apply merges one realtime event into the thread. It resolves the sender's
// display metadata before the message becomes visible, drops duplicates of
// messages already fetched, and inserts out-of-order arrivals at the right
// position. Events for other conversations, and events arriving after Close,
// are no-ops. It reports whether the message was appended.
func (t *Thread) Apply(ctx context.Context, msg models.Message) bool {
	if msg.ConversationID != t.conversationID {
		return false
	}

	// Resolve the profile outside the lock; the event only carries the
	// sender ID. An unknown sender or a failed lookup degrades to a
	// placeholder identity rather than losing the message.
	enriched := models.MessageWithSender{Message: msg}
	p := profile.Placeholder(msg.SenderID)
	if t.profiles != nil {
		found, err := t.profiles.GetProfiles(ctx, []int64{msg.SenderID})
		if err != nil {
			slog.Warn("timeline: sender lookup failed", "senderID", msg.SenderID, "error", err)
		} else if fp, ok := found[msg.SenderID]; ok {
			p = fp
		}
	}
	enriched.SenderUsername = p.Username
	enriched.SenderDisplayName = p.DisplayName
	enriched.SenderAvatarURL = p.AvatarURL

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if _, dup := t.byID[msg.ID]; dup {
		t.mu.Unlock()
		return false
	}
	t.byID[msg.ID] = struct{}{}

	// Almost always an append; sort.Search finds the slot for the rare
	// out-of-order arrival (two sends within the same tick).
	i := sort.Search(len(t.messages), func(i int) bool {
		return msg.Before(t.messages[i].Message)
	})
	t.messages = append(t.messages, models.MessageWithSender{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = enriched
	notify := t.onAppend
	t.mu.Unlock()

	// Notify outside the lock; the renderer may call Messages or Len.
	if notify != nil {
		notify(enriched)
	}
	return true
}

// OnAppend registers fn to be called with each message Apply inserts, after
// enrichment. The view's renderer hangs off this; fn must not call back into
// the thread's mutating methods.
func (t *Thread) OnAppend(fn func(models.MessageWithSender)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAppend = fn
}

// Messages returns a copy of the current ordered list, oldest first.
func (t *Thread) Messages() []models.MessageWithSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.MessageWithSender, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages currently in the thread.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// ConversationID returns the conversation this thread is bound to.
func (t *Thread) ConversationID() int64 {
	return t.conversationID
}

// Close detaches the thread from its event stream. Events already in flight
// when the view closes are dropped silently by Apply.
func (t *Thread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Run consumes events from a channel until it closes or ctx is canceled,
// applying each to the thread. Handling one event never blocks on another
// conversation; ordering is only guaranteed within this thread.
func (t *Thread) Run(ctx context.Context, events <-chan models.Message) {
	for {
		select {
		case <-ctx.Done():
			t.Close()
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			t.Apply(ctx, msg)
		}
	}
}
