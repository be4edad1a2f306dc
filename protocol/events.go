// Package protocol defines the websocket event vocabulary and payload
// shapes shared by the messaging server and client applications.
package protocol

import (
	"encoding/json"
	"time"
)

// Client -> server events.
const (
	EventUserConnect     = "userConnect"
	EventSendMessage     = "sendMessage"
	EventJoinRoom        = "joinRoom"
	EventLeaveRoom       = "leaveRoom"
	EventSendRoomMessage = "sendRoomMessage"
)

// Server -> client events.
const (
	EventReceiveMessage     = "receiveMessage"
	EventMessageSent        = "messageSent"
	EventMessageError       = "messageError"
	EventRoomJoined         = "roomJoined"
	EventRoomLeft           = "roomLeft"
	EventReceiveRoomMessage = "receiveRoomMessage"
)

// RoomGlobal is the single well-known broadcast channel. Room traffic
// is ephemeral and never persisted.
const RoomGlobal = "global"

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID int       `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Attachment is carried for wire compatibility; the messaging core
// never produces non-empty attachment lists.
type Attachment struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// Message is the canonical persisted message as seen on the wire.
type Message struct {
	ID             int           `json:"id"`
	ConversationID int           `json:"conversationId,omitempty"`
	SenderID       int           `json:"senderId"`
	Body           string        `json:"message"`
	CreatedAt      time.Time     `json:"createdAt"`
	Attachments    []Attachment  `json:"attachments"`
	ReadBy         []ReadReceipt `json:"readBy"`
}

// UserConnect announces the connecting user's display name.
type UserConnect struct {
	DisplayName string `json:"displayName"`
}

// SendMessage asks the server to persist and deliver a private
// message. ConversationID is zero when the sender does not yet know
// the conversation; the server resolves or creates it.
type SendMessage struct {
	ReceiverID     int    `json:"receiverId"`
	Body           string `json:"message"`
	ConversationID int    `json:"conversationId,omitempty"`
}

// ReceiveMessage is pushed to the recipient of a private message. The
// sender's own connection receives a copy carrying ReceiverID when the
// send created a brand-new conversation, so the sending tab can bind
// the conversation id.
type ReceiveMessage struct {
	ID             int       `json:"id"`
	SenderID       int       `json:"senderId"`
	Body           string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
	ConversationID int       `json:"conversationId,omitempty"`
	ReceiverID     int       `json:"receiverId,omitempty"`
}

// MessageSent acknowledges a send with the canonical persisted record.
type MessageSent struct {
	Success bool    `json:"success"`
	Data    Message `json:"data"`
}

// MessageError reports a failed or undelivered send to the sender.
type MessageError struct {
	Error      string `json:"error"`
	ReceiverID int    `json:"receiverId,omitempty"`
}

// JoinRoom / LeaveRoom manage broadcast-channel membership.
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type RoomJoined struct {
	RoomID  string `json:"roomId"`
	Success bool   `json:"success"`
}

type RoomLeft struct {
	RoomID  string `json:"roomId"`
	Success bool   `json:"success"`
}

// RoomMessage is a broadcast payload. Outbound copies are stamped with
// the sender's identity; nothing on this path is persisted.
type RoomMessage struct {
	RoomID     string    `json:"roomId"`
	Body       string    `json:"message"`
	SenderID   int       `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}
