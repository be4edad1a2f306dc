package chatdock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"messaging-service/protocol"
)

// HTTPLoader implements HistoryLoader and PeerDirectory over the
// messaging service's REST surface, authenticating with the same
// cookie-borne token the socket handshake uses.
type HTTPLoader struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPLoader constructs an HTTPLoader.
func NewHTTPLoader(baseURL, token string) *HTTPLoader {
	return &HTTPLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchInitial loads the most recent history page, resolving by peer
// when conversationID is zero.
func (l *HTTPLoader) FetchInitial(ctx context.Context, peerID int, conversationID int) (InitialHistory, error) {
	params := url.Values{}
	if conversationID != 0 {
		params.Set("conversation_id", strconv.Itoa(conversationID))
	} else {
		params.Set("peer_id", strconv.Itoa(peerID))
	}

	var payload struct {
		ConversationID *int               `json:"conversationId"`
		Messages       []protocol.Message `json:"messages"`
	}
	if err := l.get(ctx, l.baseURL+"/conversations/detail?"+params.Encode(), &payload); err != nil {
		return InitialHistory{}, err
	}

	hist := InitialHistory{ConversationID: conversationID, Messages: payload.Messages}
	if payload.ConversationID != nil {
		hist.ConversationID = *payload.ConversationID
	}
	return hist, nil
}

// FetchOlder loads the page strictly older than the cursor.
func (l *HTTPLoader) FetchOlder(ctx context.Context, conversationID int, before time.Time) ([]protocol.Message, error) {
	endpoint := fmt.Sprintf("%s/conversations/%d/messages?cursor_at=%s",
		l.baseURL, conversationID, url.QueryEscape(before.Format(time.RFC3339Nano)))

	var payload struct {
		Messages []protocol.Message `json:"messages"`
	}
	if err := l.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Messages, nil
}

// PeerInfo fetches display info for one peer.
func (l *HTTPLoader) PeerInfo(ctx context.Context, peerID int) (PeerInfo, error) {
	var payload struct {
		Name              string `json:"name"`
		Avatar            string `json:"avatar"`
		AvatarCroppedArea string `json:"avatarCroppedArea"`
	}
	if err := l.get(ctx, fmt.Sprintf("%s/users/%d/profile", l.baseURL, peerID), &payload); err != nil {
		return PeerInfo{}, err
	}
	return PeerInfo{
		Name:              payload.Name,
		Avatar:            payload.Avatar,
		AvatarCroppedArea: payload.AvatarCroppedArea,
	}, nil
}

func (l *HTTPLoader) get(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: "token", Value: l.token})

	resp, err := l.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("messaging service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
