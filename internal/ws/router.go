package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/registry"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/protocol"
)

// Router drives each inbound send through
// received -> resolved -> persisted -> delivered|undelivered.
// Every failure is converted into a messageError to the originating
// session; nothing escapes the event loop.
type Router struct {
	registry      *registry.Registry
	hub           *Hub
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	emitter       *telemetry.Emitter
}

// NewRouter constructs a Router.
func NewRouter(reg *registry.Registry, hub *Hub, conversations repositories.ConversationRepository, messages repositories.MessageRepository, emitter *telemetry.Emitter) *Router {
	return &Router{
		registry:      reg,
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		emitter:       emitter,
	}
}

// HandleSend routes one private message. The sender identity comes
// from the session mapping, never from the payload.
func (rt *Router) HandleSend(ctx context.Context, sender registry.Session, req protocol.SendMessage) {
	senderID := sender.UserID()
	if senderID == 0 || req.ReceiverID == 0 || req.Body == "" {
		rt.fail(sender, "missing required field", req.ReceiverID)
		observability.IncDelivery("rejected")
		return
	}

	var (
		conv    models.Conversation
		created bool
		err     error
	)
	if req.ConversationID != 0 {
		// Explicit ids mean "continue this conversation"; never
		// fabricate a new one on a miss.
		conv, err = rt.conversations.GetByID(ctx, req.ConversationID)
		if errors.Is(err, repositories.ErrConversationNotFound) {
			rt.fail(sender, "conversation not found", req.ReceiverID)
			observability.IncDelivery("rejected")
			return
		}
	} else {
		conv, created, err = rt.conversations.Resolve(ctx, senderID, req.ReceiverID)
	}
	if err != nil {
		rt.fail(sender, "failed to resolve conversation: "+err.Error(), req.ReceiverID)
		observability.IncDelivery("error")
		return
	}

	msg, err := rt.messages.Append(ctx, conv.ID, senderID, req.Body)
	if err != nil {
		rt.fail(sender, "failed to store message: "+err.Error(), req.ReceiverID)
		observability.IncDelivery("error")
		return
	}
	rt.emitter.Message(ctx, "message_persisted", telemetry.MessageEvent{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       senderID,
		ReceiverID:     req.ReceiverID,
	})

	if created {
		// Echo the new conversation id to the sender's own connection
		// so the sending tab can bind it. ReceiverID marks the frame
		// as a self-binding echo, not fresh inbound.
		rt.push(sender, protocol.ReceiveMessage{
			ID:             msg.ID,
			SenderID:       senderID,
			Body:           msg.Body,
			CreatedAt:      msg.CreatedAt,
			ConversationID: conv.ID,
			ReceiverID:     req.ReceiverID,
		})
	}

	if receiver, online := rt.registry.Lookup(req.ReceiverID); online {
		rt.push(receiver, protocol.ReceiveMessage{
			ID:             msg.ID,
			SenderID:       senderID,
			Body:           msg.Body,
			CreatedAt:      msg.CreatedAt,
			ConversationID: conv.ID,
		})
		observability.IncDelivery("delivered")
		rt.emitter.Message(ctx, "message_delivered", telemetry.MessageEvent{
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			SenderID:       senderID,
			ReceiverID:     req.ReceiverID,
		})
	} else {
		// The message stays persisted; realtime delivery is
		// at-most-once and the sender must not auto-retry.
		rt.fail(sender, "user not online", req.ReceiverID)
		observability.IncDelivery("undelivered")
		rt.emitter.Message(ctx, "message_undelivered", telemetry.MessageEvent{
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			SenderID:       senderID,
			ReceiverID:     req.ReceiverID,
			Detail:         "receiver offline",
		})
	}

	rt.ack(sender, msg)
}

// HandleUserConnect records the display name announced by the client.
func (rt *Router) HandleUserConnect(sender registry.Session, req protocol.UserConnect) {
	if s, ok := sender.(*Session); ok && req.DisplayName != "" {
		s.setDisplayName(req.DisplayName)
	}
}

// HandleJoinRoom adds the sender to a room; idempotent.
func (rt *Router) HandleJoinRoom(sender registry.Session, req protocol.JoinRoom) {
	if req.RoomID == "" {
		rt.fail(sender, "missing room id", 0)
		return
	}
	rt.hub.Join(req.RoomID, sender)
	observability.IncWSEvent("room", "join")
	if err := sender.Send(protocol.EventRoomJoined, protocol.RoomJoined{RoomID: req.RoomID, Success: true}); err != nil {
		log.Printf("room join ack failed: %v", err)
	}
}

// HandleLeaveRoom removes the sender from a room; idempotent.
func (rt *Router) HandleLeaveRoom(sender registry.Session, req protocol.LeaveRoom) {
	if req.RoomID == "" {
		rt.fail(sender, "missing room id", 0)
		return
	}
	rt.hub.Leave(req.RoomID, sender)
	observability.IncWSEvent("room", "leave")
	if err := sender.Send(protocol.EventRoomLeft, protocol.RoomLeft{RoomID: req.RoomID, Success: true}); err != nil {
		log.Printf("room leave ack failed: %v", err)
	}
}

// HandleRoomMessage fans a broadcast payload out to the room, stamped
// with the sender identity. Nothing on this path is persisted.
func (rt *Router) HandleRoomMessage(sender registry.Session, req protocol.RoomMessage) {
	if req.RoomID == "" || req.Body == "" {
		rt.fail(sender, "missing required field", 0)
		return
	}

	out := req
	out.SenderID = sender.UserID()
	out.SenderName = sender.DisplayName()
	out.CreatedAt = time.Now().UTC()
	rt.hub.Broadcast(req.RoomID, sender, protocol.EventReceiveRoomMessage, out)
	observability.IncWSEvent("room", "message")

	if err := sender.Send(protocol.EventMessageSent, protocol.MessageSent{Success: true}); err != nil {
		log.Printf("room message ack failed: %v", err)
	}
}

func (rt *Router) push(s registry.Session, msg protocol.ReceiveMessage) {
	if err := s.Send(protocol.EventReceiveMessage, msg); err != nil {
		log.Printf("push to user %d failed: %v", s.UserID(), err)
	}
}

func (rt *Router) ack(s registry.Session, msg models.Message) {
	if err := s.Send(protocol.EventMessageSent, protocol.MessageSent{Success: true, Data: msg.Wire()}); err != nil {
		log.Printf("send ack to user %d failed: %v", s.UserID(), err)
	}
}

func (rt *Router) fail(s registry.Session, reason string, receiverID int) {
	if err := s.Send(protocol.EventMessageError, protocol.MessageError{Error: reason, ReceiverID: receiverID}); err != nil {
		log.Printf("error event to user %d failed: %v", s.UserID(), err)
	}
}
