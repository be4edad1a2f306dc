package chatdock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/protocol"
)

type stubTransport struct {
	mu   sync.Mutex
	sent []protocol.SendMessage
	err  error
}

func (s *stubTransport) SendMessage(_ context.Context, msg protocol.SendMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *stubTransport) sentMessages() []protocol.SendMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.SendMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

type stubLoader struct {
	mu           sync.Mutex
	initial      map[int]InitialHistory
	older        map[int][][]protocol.Message
	initialCalls int
	olderCalls   int
	initialErr   error

	// block, when set, holds every FetchInitial until closed.
	block chan struct{}
}

func (s *stubLoader) FetchInitial(_ context.Context, peerID int, _ int) (InitialHistory, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialCalls++
	return s.initial[peerID], s.initialErr
}

func (s *stubLoader) FetchOlder(_ context.Context, conversationID int, _ time.Time) ([]protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.olderCalls++
	queue := s.older[conversationID]
	if len(queue) == 0 {
		return nil, nil
	}
	page := queue[0]
	s.older[conversationID] = queue[1:]
	return page, nil
}

func (s *stubLoader) fetchCounts() (initial, older int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialCalls, s.olderCalls
}

type stubPeers struct {
	mu    sync.Mutex
	calls int
}

func (s *stubPeers) PeerInfo(_ context.Context, peerID int) (PeerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return PeerInfo{Name: "peer"}, nil
}

func newTestDock(selfID int, loader *stubLoader, opts ...Option) (*Dock, *stubTransport) {
	transport := &stubTransport{}
	if loader.initial == nil {
		loader.initial = make(map[int]InitialHistory)
	}
	if loader.older == nil {
		loader.older = make(map[int][][]protocol.Message)
	}
	return New(selfID, transport, loader, &stubPeers{}, opts...), transport
}

func TestOpenTabCapEvictsLeastRecentlyActivated(t *testing.T) {
	dock, _ := newTestDock(1, &stubLoader{})
	ctx := context.Background()

	for peer := 2; peer <= 5; peer++ {
		require.NoError(t, dock.Open(ctx, peer))
	}

	assert.Equal(t, []int{3, 4, 5}, dock.OpenTabs())
	_, ok := dock.Tab(2)
	assert.False(t, ok, "evicted tab keeps no state")
}

func TestOpenReactivationRefreshesOrder(t *testing.T) {
	dock, _ := newTestDock(1, &stubLoader{})
	ctx := context.Background()

	require.NoError(t, dock.Open(ctx, 2))
	require.NoError(t, dock.Open(ctx, 3))
	require.NoError(t, dock.Open(ctx, 4))
	require.NoError(t, dock.Open(ctx, 2))
	require.NoError(t, dock.Open(ctx, 5))

	// Peer 3, not the re-activated peer 2, is the eviction victim.
	assert.Equal(t, []int{4, 2, 5}, dock.OpenTabs())
}

func TestConcurrentOpensShareOneFetch(t *testing.T) {
	loader := &stubLoader{block: make(chan struct{})}
	dock, _ := newTestDock(1, loader)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = dock.Open(ctx, 2)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(loader.block)
	wg.Wait()

	initial, _ := loader.fetchCounts()
	assert.Equal(t, 1, initial)
	view, ok := dock.Tab(2)
	require.True(t, ok)
	assert.Equal(t, TabReady, view.State)
}

func TestCloseDiscardsInFlightInitialization(t *testing.T) {
	loader := &stubLoader{block: make(chan struct{})}
	loader.initial = map[int]InitialHistory{2: {ConversationID: 9, Messages: []protocol.Message{{ID: 1}}}}
	dock, _ := newTestDock(1, loader)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dock.Open(context.Background(), 2)
	}()
	time.Sleep(20 * time.Millisecond)

	dock.Close(2)
	close(loader.block)
	<-done

	_, ok := dock.Tab(2)
	assert.False(t, ok, "completion after close must not resurrect the tab")
}

func TestCloseThenReopenStartsFresh(t *testing.T) {
	loader := &stubLoader{initial: map[int]InitialHistory{
		2: {ConversationID: 9, Messages: []protocol.Message{{ID: 1, Body: "old"}}},
	}}
	dock, _ := newTestDock(1, loader)
	ctx := context.Background()

	require.NoError(t, dock.Open(ctx, 2))
	dock.SetDraft(2, "half-typed")
	dock.Close(2)

	require.NoError(t, dock.Open(ctx, 2))
	view, ok := dock.Tab(2)
	require.True(t, ok)
	assert.Empty(t, view.Draft)
	assert.Len(t, view.Messages, 1)

	initial, _ := loader.fetchCounts()
	assert.Equal(t, 2, initial, "reopen issues a fresh initial load")
}

func TestSendAppendsOptimisticallyAndClearsDraft(t *testing.T) {
	loader := &stubLoader{initial: map[int]InitialHistory{2: {ConversationID: 5}}}
	dock, transport := newTestDock(1, loader)
	ctx := context.Background()

	require.NoError(t, dock.Open(ctx, 2))
	dock.SetDraft(2, "hell")
	require.NoError(t, dock.Send(ctx, 2, "  hello  "))

	sent := transport.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.SendMessage{ReceiverID: 2, Body: "hello", ConversationID: 5}, sent[0])

	view, _ := dock.Tab(2)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, 0, view.Messages[0].ID, "optimistic append has no server id yet")
	assert.Equal(t, "hello", view.Messages[0].Body)
	assert.Equal(t, 1, view.Messages[0].SenderID)
	assert.Empty(t, dock.Draft(2))
}

func TestSendFailureKeepsOptimisticAppend(t *testing.T) {
	var failedPeer int
	var failedBody string
	loader := &stubLoader{initial: map[int]InitialHistory{2: {ConversationID: 5}}}
	dock, transport := newTestDock(1, loader, WithSendFailureHandler(func(peerID int, body string, err error) {
		failedPeer = peerID
		failedBody = body
	}))
	transport.err = errors.New("socket closed")

	ctx := context.Background()
	require.NoError(t, dock.Open(ctx, 2))
	dock.SetDraft(2, "hello")
	err := dock.Send(ctx, 2, "hello")
	require.Error(t, err)

	assert.Equal(t, 2, failedPeer)
	assert.Equal(t, "hello", failedBody)

	view, _ := dock.Tab(2)
	assert.Len(t, view.Messages, 1, "no rollback on failure")
	assert.Equal(t, "hello", dock.Draft(2), "draft survives a failed send")
}

func TestSendBlankBodyIsNoop(t *testing.T) {
	dock, transport := newTestDock(1, &stubLoader{})

	require.NoError(t, dock.Send(context.Background(), 2, "   \n\t"))
	assert.Empty(t, transport.sentMessages())
	_, ok := dock.Tab(2)
	assert.False(t, ok)
}

func TestReceiveIntoMinimizedTabAccumulatesUnread(t *testing.T) {
	loader := &stubLoader{initial: map[int]InitialHistory{2: {ConversationID: 5}}}
	dock, _ := newTestDock(1, loader)
	ctx := context.Background()

	require.NoError(t, dock.Open(ctx, 2))
	dock.Minimize(2)

	dock.Receive(ctx, protocol.ReceiveMessage{ID: 10, SenderID: 2, Body: "ping", ConversationID: 5})
	dock.Receive(ctx, protocol.ReceiveMessage{ID: 11, SenderID: 2, Body: "ping?", ConversationID: 5})

	view, ok := dock.Tab(2)
	require.True(t, ok)
	assert.False(t, view.Open)
	assert.Equal(t, 2, view.Unread)
	assert.Len(t, view.Messages, 2)
	assert.NotContains(t, dock.OpenTabs(), 2)
}

func TestReceiveFromUnknownPeerCreatesAndOpensTab(t *testing.T) {
	loader := &stubLoader{initial: map[int]InitialHistory{
		3: {ConversationID: 7, Messages: []protocol.Message{{ID: 50, Body: "earlier"}, {ID: 51, Body: "latest"}}},
	}}
	dock, _ := newTestDock(1, loader)
	ctx := context.Background()

	// The push overlaps with the history page; the merge must not
	// duplicate id 51.
	dock.Receive(ctx, protocol.ReceiveMessage{ID: 51, SenderID: 3, Body: "latest", ConversationID: 7})

	view, ok := dock.Tab(3)
	require.True(t, ok)
	assert.True(t, view.Open)
	assert.Equal(t, TabReady, view.State)
	assert.Equal(t, 7, view.ConversationID)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, 50, view.Messages[0].ID)
	assert.Equal(t, 51, view.Messages[1].ID)
	require.NotNil(t, view.Peer)
	assert.Equal(t, "peer", view.Peer.Name)
}

func TestSelfEchoBindsConversationWithoutAppending(t *testing.T) {
	loader := &stubLoader{initial: map[int]InitialHistory{2: {}}}
	dock, _ := newTestDock(1, loader)
	ctx := context.Background()

	require.NoError(t, dock.Open(ctx, 2))
	require.NoError(t, dock.Send(ctx, 2, "first message"))

	dock.Receive(ctx, protocol.ReceiveMessage{ID: 41, SenderID: 1, ReceiverID: 2, Body: "first message", ConversationID: 9})

	view, _ := dock.Tab(2)
	assert.Equal(t, 9, view.ConversationID)
	assert.Len(t, view.Messages, 1, "echo of own send is never appended")

	// A later stray echo cannot rebind the conversation.
	dock.Receive(ctx, protocol.ReceiveMessage{ID: 42, SenderID: 1, ReceiverID: 2, ConversationID: 10})
	view, _ = dock.Tab(2)
	assert.Equal(t, 9, view.ConversationID)
}

func TestLoadOlderStopsAtEmptyPage(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	loader := &stubLoader{
		initial: map[int]InitialHistory{
			2: {ConversationID: 5, Messages: []protocol.Message{{ID: 2, Body: "newer", CreatedAt: base}}},
		},
		older: map[int][][]protocol.Message{
			5: {{{ID: 1, Body: "oldest", CreatedAt: base.Add(-time.Hour)}}},
		},
	}
	dock, _ := newTestDock(1, loader)
	ctx := context.Background()

	require.NoError(t, dock.Open(ctx, 2))
	require.NoError(t, dock.LoadOlder(ctx, 2))

	view, _ := dock.Tab(2)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, 1, view.Messages[0].ID)
	assert.Equal(t, 2, view.Messages[1].ID)
	assert.False(t, view.Finished)

	// Empty page marks the tab finished; further calls skip the loader.
	require.NoError(t, dock.LoadOlder(ctx, 2))
	view, _ = dock.Tab(2)
	assert.True(t, view.Finished)

	require.NoError(t, dock.LoadOlder(ctx, 2))
	_, older := loader.fetchCounts()
	assert.Equal(t, 2, older)
}

func TestLoadOlderSkipsUnboundConversation(t *testing.T) {
	loader := &stubLoader{initial: map[int]InitialHistory{2: {}}}
	dock, _ := newTestDock(1, loader)
	ctx := context.Background()

	require.NoError(t, dock.Open(ctx, 2))
	require.NoError(t, dock.LoadOlder(ctx, 2))

	_, older := loader.fetchCounts()
	assert.Equal(t, 0, older)
}

func TestRoomTabLifecycle(t *testing.T) {
	dock, _ := newTestDock(1, &stubLoader{})

	dock.ReceiveRoom(protocol.RoomMessage{Body: "hi", SenderName: "alice"})
	assert.Equal(t, 0, dock.Room().Unread, "open room tab accrues no unread")

	dock.MinimizeRoom()
	dock.ReceiveRoom(protocol.RoomMessage{Body: "anyone?", SenderName: "bob"})
	assert.Equal(t, 1, dock.Room().Unread)

	dock.OpenRoom()
	room := dock.Room()
	assert.Equal(t, 0, room.Unread)
	assert.Len(t, room.Messages, 2)

	dock.CloseRoom()
	assert.Empty(t, dock.Room().Messages)

	// The room tab never occupies a peer-tab slot.
	assert.Empty(t, dock.OpenTabs())
}
