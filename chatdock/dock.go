// Package chatdock implements the client-side chat dock: the set of
// open and minimized conversation tabs, their message lists,
// pagination cursors, drafts and unread counters, reconciled against
// server pushes and locally initiated sends.
package chatdock

import (
	"context"
	"strings"
	"sync"
	"time"

	"messaging-service/protocol"
)

// DefaultMaxOpenTabs is the open-tab cap when no option overrides it.
// The room tab is reserved separately.
const DefaultMaxOpenTabs = 3

// Dock owns all tab state. Methods are safe for concurrent use, but
// the dock models a single UI surface: state transitions apply in the
// order calls acquire the internal lock.
type Dock struct {
	selfID    int
	transport Transport
	history   HistoryLoader
	peers     PeerDirectory

	maxOpen       int
	onSendFailure SendFailureHandler

	mu        sync.Mutex
	tabs      map[int]*tab
	openOrder []int // open peer tabs, least recently activated first
	room      roomTab
	nextGen   uint64
}

// New constructs a Dock for the given user.
func New(selfID int, transport Transport, history HistoryLoader, peers PeerDirectory, opts ...Option) *Dock {
	d := &Dock{
		selfID:    selfID,
		transport: transport,
		history:   history,
		peers:     peers,
		maxOpen:   DefaultMaxOpenTabs,
		tabs:      make(map[int]*tab),
		room:      roomTab{open: true},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open activates the peer's tab, initializing it on first open. The
// initial history fetch is shared: concurrent opens of the same peer
// wait on one in-flight request instead of issuing their own.
func (d *Dock) Open(ctx context.Context, peerID int) error {
	return d.open(ctx, peerID, 0)
}

// OpenConversation is Open for callers that already know the
// conversation id, letting the initial fetch skip pair resolution.
func (d *Dock) OpenConversation(ctx context.Context, peerID int, conversationID int) error {
	return d.open(ctx, peerID, conversationID)
}

func (d *Dock) open(ctx context.Context, peerID int, conversationID int) error {
	for {
		d.mu.Lock()
		t := d.ensureTabLocked(peerID)
		switch t.state {
		case TabReady:
			d.activateLocked(t)
			d.mu.Unlock()
			return nil
		case TabInitializing:
			done := t.initDone
			d.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			// Re-check: the shared initialization finished or failed.
		default:
			return d.initialize(ctx, t, conversationID)
		}
	}
}

// initialize runs the initial history fetch for an unopened tab. The
// caller holds the lock; it is released around the fetch. A stale
// completion (tab closed meanwhile) is discarded by generation.
func (d *Dock) initialize(ctx context.Context, t *tab, conversationID int) error {
	t.state = TabInitializing
	done := make(chan struct{})
	t.initDone = done
	gen := t.gen
	peerID := t.peerID
	if conversationID == 0 {
		conversationID = t.conversationID
	}
	d.mu.Unlock()

	hist, err := d.history.FetchInitial(ctx, peerID, conversationID)

	d.mu.Lock()
	defer d.mu.Unlock()
	defer close(done)

	cur, ok := d.tabs[peerID]
	if !ok || cur.gen != gen {
		return nil
	}
	cur.initDone = nil
	if err != nil {
		cur.state = TabUnopened
		return err
	}

	cur.state = TabReady
	if cur.conversationID == 0 {
		cur.conversationID = hist.ConversationID
	}
	// Pushes may have arrived while the fetch was in flight; history
	// goes in front and id-duplicates are dropped.
	cur.messages = mergeFront(hist.Messages, cur.messages)
	d.activateLocked(cur)
	return nil
}

// Minimize collapses an open tab; messages and draft are retained and
// the unread counter starts accumulating.
func (d *Dock) Minimize(peerID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tabs[peerID]
	if !ok || !t.open {
		return
	}
	t.open = false
	d.removeFromOpenOrderLocked(peerID)
}

// Close discards all state for the peer: messages, draft, unread
// count, peer-info cache, conversation binding and pagination flags.
// In-flight fetches for the tab become no-ops.
func (d *Dock) Close(peerID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeTabLocked(peerID)
}

// Receive reconciles an inbound private push into tab state.
func (d *Dock) Receive(ctx context.Context, msg protocol.ReceiveMessage) {
	if msg.SenderID == d.selfID {
		// Round-tripped copy of our own send carrying the new
		// conversation id: bind it to the tab we opened as sender,
		// never append it as inbound.
		d.mu.Lock()
		if t, ok := d.tabs[msg.ReceiverID]; ok && t.conversationID == 0 {
			t.conversationID = msg.ConversationID
		}
		d.mu.Unlock()
		return
	}

	peerID := msg.SenderID
	incoming := protocol.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
		Attachments:    []protocol.Attachment{},
		ReadBy:         []protocol.ReadReceipt{},
	}

	d.mu.Lock()
	if t, ok := d.tabs[peerID]; ok {
		if t.conversationID == 0 && msg.ConversationID != 0 {
			t.conversationID = msg.ConversationID
		}
		t.appendMessage(incoming)
		if t.open {
			t.unread = 0
		} else {
			t.unread++
		}
		d.mu.Unlock()
		d.resolvePeer(ctx, peerID)
		return
	}

	// No tab for this peer yet: materialize one, keep the message, and
	// open it subject to the cap.
	t := d.ensureTabLocked(peerID)
	if msg.ConversationID != 0 {
		t.conversationID = msg.ConversationID
	}
	t.appendMessage(incoming)
	d.mu.Unlock()

	d.resolvePeer(ctx, peerID)
	// The initial load merges around the already-kept message; a fetch
	// failure leaves the tab with just the pushed message.
	_ = d.open(ctx, peerID, 0)
}

// ReceiveRoom appends to the shared room list. The room tab never
// auto-opens; minimized, it accumulates unread.
func (d *Dock) ReceiveRoom(msg protocol.RoomMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.room.messages = append(d.room.messages, msg)
	if !d.room.open {
		d.room.unread++
	}
}

// Send emits a message to the peer. Blank bodies are dropped at this
// boundary. The outgoing message is appended optimistically and the
// tab activated before the transport call; a transport failure leaves
// the append in place and invokes the failure handler.
func (d *Dock) Send(ctx context.Context, peerID int, text string) error {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil
	}

	d.mu.Lock()
	t, ok := d.tabs[peerID]
	initialized := ok && t.state == TabReady
	d.mu.Unlock()
	if !initialized {
		// Force-initialize so the conversation id is bound where
		// possible; a failed load does not block the send.
		_ = d.open(ctx, peerID, 0)
	}

	d.mu.Lock()
	t = d.ensureTabLocked(peerID)
	conversationID := t.conversationID
	t.appendMessage(protocol.Message{
		ConversationID: conversationID,
		SenderID:       d.selfID,
		Body:           body,
		CreatedAt:      time.Now(),
		Attachments:    []protocol.Attachment{},
		ReadBy:         []protocol.ReadReceipt{},
	})
	d.activateLocked(t)
	d.mu.Unlock()

	err := d.transport.SendMessage(ctx, protocol.SendMessage{
		ReceiverID:     peerID,
		Body:           body,
		ConversationID: conversationID,
	})
	if err != nil {
		if d.onSendFailure != nil {
			d.onSendFailure(peerID, body, err)
		}
		return err
	}

	d.mu.Lock()
	if cur, ok := d.tabs[peerID]; ok {
		cur.draft = ""
	}
	d.mu.Unlock()
	return nil
}

// LoadOlder pages backward from the oldest loaded message, guarded by
// the per-tab loading and finished flags. One empty page marks the
// tab finished for good.
func (d *Dock) LoadOlder(ctx context.Context, peerID int) error {
	d.mu.Lock()
	t, ok := d.tabs[peerID]
	if !ok || t.state != TabReady || t.loadingOlder || t.finished ||
		t.conversationID == 0 || len(t.messages) == 0 {
		d.mu.Unlock()
		return nil
	}
	t.loadingOlder = true
	gen := t.gen
	conversationID := t.conversationID
	cursor := t.messages[0].CreatedAt
	d.mu.Unlock()

	page, err := d.history.FetchOlder(ctx, conversationID, cursor)

	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.tabs[peerID]
	if !ok || cur.gen != gen {
		return nil
	}
	cur.loadingOlder = false
	if err != nil {
		return err
	}
	if len(page) == 0 {
		cur.finished = true
		return nil
	}
	cur.messages = mergeFront(page, cur.messages)
	return nil
}

// SetDraft stores the tab's draft text.
func (d *Dock) SetDraft(peerID int, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureTabLocked(peerID).draft = text
}

// Draft returns the tab's draft text.
func (d *Dock) Draft(peerID int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tabs[peerID]; ok {
		return t.draft
	}
	return ""
}

// Tab returns a snapshot of the peer's tab.
func (d *Dock) Tab(peerID int) (TabView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tabs[peerID]
	if !ok {
		return TabView{}, false
	}
	return t.view(), true
}

// OpenTabs lists open peer tabs, least recently activated first.
func (d *Dock) OpenTabs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	order := make([]int, len(d.openOrder))
	copy(order, d.openOrder)
	return order
}

// OpenRoom activates the room tab and clears its unread counter.
func (d *Dock) OpenRoom() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.room.open = true
	d.room.unread = 0
}

// MinimizeRoom collapses the room tab.
func (d *Dock) MinimizeRoom() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.room.open = false
}

// CloseRoom clears the shared room message list and unread counter.
// The room tab itself remains reserved.
func (d *Dock) CloseRoom() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.room = roomTab{}
}

// Room returns a snapshot of the room tab.
func (d *Dock) Room() RoomView {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs := make([]protocol.RoomMessage, len(d.room.messages))
	copy(msgs, d.room.messages)
	return RoomView{Open: d.room.open, Unread: d.room.unread, Messages: msgs}
}

func (d *Dock) ensureTabLocked(peerID int) *tab {
	if t, ok := d.tabs[peerID]; ok {
		return t
	}
	d.nextGen++
	t := &tab{peerID: peerID, gen: d.nextGen}
	d.tabs[peerID] = t
	return t
}

// activateLocked marks the tab open and most recently activated,
// clearing unread and enforcing the open-tab cap by closing the least
// recently activated tab.
func (d *Dock) activateLocked(t *tab) {
	t.open = true
	t.unread = 0
	d.removeFromOpenOrderLocked(t.peerID)
	d.openOrder = append(d.openOrder, t.peerID)
	for len(d.openOrder) > d.maxOpen {
		d.closeTabLocked(d.openOrder[0])
	}
}

func (d *Dock) closeTabLocked(peerID int) {
	delete(d.tabs, peerID)
	d.removeFromOpenOrderLocked(peerID)
}

func (d *Dock) removeFromOpenOrderLocked(peerID int) {
	for i, id := range d.openOrder {
		if id == peerID {
			d.openOrder = append(d.openOrder[:i], d.openOrder[i+1:]...)
			return
		}
	}
}

// resolvePeer hydrates the tab's display info, cache-first.
func (d *Dock) resolvePeer(ctx context.Context, peerID int) {
	d.mu.Lock()
	t, ok := d.tabs[peerID]
	if !ok || t.peer != nil {
		d.mu.Unlock()
		return
	}
	gen := t.gen
	d.mu.Unlock()

	info, err := d.peers.PeerInfo(ctx, peerID)
	if err != nil {
		return
	}

	d.mu.Lock()
	if cur, ok := d.tabs[peerID]; ok && cur.gen == gen && cur.peer == nil {
		cur.peer = &info
	}
	d.mu.Unlock()
}
