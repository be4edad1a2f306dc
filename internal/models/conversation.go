package models

import "time"

// Conversation kinds. Rooms share the transport only; they are never
// stored, so persisted rows are always ConversationPrivate.
const (
	ConversationPrivate = "private"
	ConversationRoom    = "room"
)

// Conversation is a persisted private conversation between exactly two
// participants.
type Conversation struct {
	ID        int       `db:"id" json:"id"`
	Kind      string    `db:"kind" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Participant ties a user to a conversation with the join time.
type Participant struct {
	ConversationID int       `db:"conversation_id" json:"conversationId"`
	UserID         int       `db:"user_id" json:"userId"`
	JoinedAt       time.Time `db:"joined_at" json:"joinedAt"`
}

// ConversationSummary is one row of the conversation list: the
// conversation, the peer, and the latest message for preview.
type ConversationSummary struct {
	ConversationID int      `json:"conversationId"`
	Kind           string   `json:"type"`
	ReceiverID     int      `json:"receiverId,omitempty"`
	ReceiverName   string   `json:"receiverName,omitempty"`
	ReceiverAvatar string   `json:"receiverAvatar,omitempty"`
	LatestMessage  *Message `json:"latestMessage,omitempty"`
}
