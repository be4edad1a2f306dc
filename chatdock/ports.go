package chatdock

import (
	"context"
	"time"

	"messaging-service/protocol"
)

// Transport emits outgoing messages to the server.
type Transport interface {
	SendMessage(ctx context.Context, msg protocol.SendMessage) error
}

// InitialHistory is the result of the first history fetch for a tab.
// ConversationID is zero when no conversation exists yet.
type InitialHistory struct {
	ConversationID int
	Messages       []protocol.Message
}

// HistoryLoader pages conversation history. FetchInitial resolves by
// peer when conversationID is zero. FetchOlder returns the page
// strictly older than the cursor; an empty page means the history is
// exhausted.
type HistoryLoader interface {
	FetchInitial(ctx context.Context, peerID int, conversationID int) (InitialHistory, error)
	FetchOlder(ctx context.Context, conversationID int, before time.Time) ([]protocol.Message, error)
}

// PeerInfo is the display info for one peer.
type PeerInfo struct {
	Name              string
	Avatar            string
	AvatarCroppedArea string
}

// PeerDirectory resolves peer display info for dynamically created
// tabs. Results are cached per tab.
type PeerDirectory interface {
	PeerInfo(ctx context.Context, peerID int) (PeerInfo, error)
}

// SendFailureHandler is invoked best-effort when the transport rejects
// a send. The optimistic append is not rolled back.
type SendFailureHandler func(peerID int, body string, err error)

// Option configures a Dock.
type Option func(*Dock)

// WithMaxOpenTabs caps the number of simultaneously open peer tabs.
// The room tab is reserved separately and never counts.
func WithMaxOpenTabs(n int) Option {
	return func(d *Dock) {
		if n > 0 {
			d.maxOpen = n
		}
	}
}

// WithSendFailureHandler installs the fallback invoked on transport
// failures.
func WithSendFailureHandler(fn SendFailureHandler) Option {
	return func(d *Dock) { d.onSendFailure = fn }
}
