package models

import (
	"time"

	"messaging-service/protocol"
)

// Message is a persisted conversation message. Once stored, the
// conversation id, sender, body and created_at never change.
type Message struct {
	ID             int                    `db:"id" json:"id"`
	ConversationID int                    `db:"conversation_id" json:"conversationId"`
	SenderID       int                    `db:"sender_id" json:"senderId"`
	Body           string                 `db:"body" json:"message"`
	CreatedAt      time.Time              `db:"created_at" json:"createdAt"`
	Attachments    []protocol.Attachment  `db:"-" json:"attachments"`
	ReadBy         []protocol.ReadReceipt `db:"-" json:"readBy"`
}

// Wire converts the stored record into its wire representation.
func (m Message) Wire() protocol.Message {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []protocol.Attachment{}
	}
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []protocol.ReadReceipt{}
	}
	return protocol.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
		Attachments:    attachments,
		ReadBy:         readBy,
	}
}
