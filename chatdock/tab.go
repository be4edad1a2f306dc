package chatdock

import "messaging-service/protocol"

// TabState is the lifecycle of one peer tab.
type TabState int

const (
	TabUnopened TabState = iota
	TabInitializing
	TabReady
)

// tab holds all per-peer dock state. Everything here is discarded on
// Close.
type tab struct {
	peerID int
	gen    uint64

	state TabState
	open  bool

	// conversationID is zero until bound by the initial load, a sent
	// ack echo, or an inbound push; once set it never changes for the
	// tab's lifetime.
	conversationID int

	messages []protocol.Message
	draft    string
	unread   int

	peer *PeerInfo

	// In-flight markers. initDone is shared by concurrent opens so a
	// burst of events for one peer issues a single fetch.
	initDone     chan struct{}
	loadingOlder bool
	finished     bool
}

// TabView is a read-only snapshot handed to the UI layer.
type TabView struct {
	PeerID         int
	State          TabState
	Open           bool
	Unread         int
	ConversationID int
	Draft          string
	Peer           *PeerInfo
	Messages       []protocol.Message
	Finished       bool
}

func (t *tab) view() TabView {
	msgs := make([]protocol.Message, len(t.messages))
	copy(msgs, t.messages)
	var peer *PeerInfo
	if t.peer != nil {
		p := *t.peer
		peer = &p
	}
	return TabView{
		PeerID:         t.peerID,
		State:          t.state,
		Open:           t.open,
		Unread:         t.unread,
		ConversationID: t.conversationID,
		Draft:          t.draft,
		Peer:           peer,
		Messages:       msgs,
		Finished:       t.finished,
	}
}

// appendMessage adds a message to the end of the list, dropping exact
// id duplicates. Locally appended optimistic messages carry id zero
// and are never treated as duplicates.
func (t *tab) appendMessage(msg protocol.Message) {
	if msg.ID != 0 {
		for _, existing := range t.messages {
			if existing.ID == msg.ID {
				return
			}
		}
	}
	t.messages = append(t.messages, msg)
}

// mergeFront prepends a history page, keeping only messages whose id
// is not already loaded. Ordering within both slices is preserved.
func mergeFront(page []protocol.Message, existing []protocol.Message) []protocol.Message {
	if len(page) == 0 {
		return existing
	}

	seen := make(map[int]bool, len(existing))
	for _, msg := range existing {
		if msg.ID != 0 {
			seen[msg.ID] = true
		}
	}

	fresh := make([]protocol.Message, 0, len(page)+len(existing))
	for _, msg := range page {
		if msg.ID != 0 && seen[msg.ID] {
			continue
		}
		fresh = append(fresh, msg)
	}
	return append(fresh, existing...)
}

// RoomView is a snapshot of the shared room tab.
type RoomView struct {
	Open     bool
	Unread   int
	Messages []protocol.RoomMessage
}

type roomTab struct {
	open     bool
	unread   int
	messages []protocol.RoomMessage
}
