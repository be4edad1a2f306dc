// Package telemetry emits message-lifecycle and socket-lifecycle
// events to the configured publisher for downstream audit consumers.
package telemetry

import (
	"context"
	"log"
	"time"
)

// Publisher is the transport used for emitted events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Routing keys per event family.
const (
	RouteMessages = "messaging.messages"
	RouteSockets  = "messaging.sockets"
)

// Envelope wraps every emitted event.
type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	EventName     string `json:"event_name"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	Payload       any    `json:"payload"`
}

// MessageEvent describes a terminal state of a send attempt.
type MessageEvent struct {
	ConversationID int    `json:"conversation_id,omitempty"`
	MessageID      int    `json:"message_id,omitempty"`
	SenderID       int    `json:"sender_id"`
	ReceiverID     int    `json:"receiver_id,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// SocketEvent describes a connection lifecycle change.
type SocketEvent struct {
	ConnID     string `json:"conn_id"`
	UserID     int    `json:"user_id"`
	IP         string `json:"ip,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

// Emitter publishes enveloped events; a nil Emitter is a no-op.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
}

// NewEmitter constructs an Emitter.
func NewEmitter(publisher Publisher, service, environment string) *Emitter {
	return &Emitter{publisher: publisher, service: service, environment: environment}
}

// Message emits a message-lifecycle event.
func (e *Emitter) Message(ctx context.Context, name string, event MessageEvent) {
	e.emit(ctx, RouteMessages, "message_events", name, event)
}

// Socket emits a socket-lifecycle event.
func (e *Emitter) Socket(ctx context.Context, name string, event SocketEvent) {
	e.emit(ctx, RouteSockets, "socket_events", name, event)
}

func (e *Emitter) emit(ctx context.Context, routingKey, eventType, name string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}
	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     eventType,
		EventName:     name,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Payload:       payload,
	}
	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		log.Printf("telemetry publish failed event=%s: %v", name, err)
	}
}
