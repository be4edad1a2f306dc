package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
)

func TestMessageWrapsVersionedEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	var captured Envelope
	publisher.On("Publish", mock.Anything, RouteMessages, mock.MatchedBy(func(v any) bool {
		env, ok := v.(Envelope)
		if ok {
			captured = env
		}
		return ok
	})).Return(nil).Once()

	emitter := NewEmitter(publisher, "messaging-service", "test")
	emitter.Message(context.Background(), "message_delivered", MessageEvent{
		ConversationID: 9,
		MessageID:      41,
		SenderID:       1,
		ReceiverID:     2,
	})

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, captured.SchemaVersion)
	assert.Equal(t, "message_events", captured.EventType)
	assert.Equal(t, "message_delivered", captured.EventName)
	assert.Equal(t, "messaging-service", captured.Service)
	assert.Equal(t, "test", captured.Environment)
	assert.NotEmpty(t, captured.OccurredAt)

	payload, ok := captured.Payload.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, 41, payload.MessageID)
	assert.Equal(t, 2, payload.ReceiverID)
}

func TestSocketUsesSocketRoute(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, RouteSockets, mock.Anything).Return(nil).Once()

	emitter := NewEmitter(publisher, "messaging-service", "test")
	emitter.Socket(context.Background(), "ws_connect", SocketEvent{ConnID: "c1", UserID: 1})

	publisher.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *Emitter
	emitter.Message(context.Background(), "message_persisted", MessageEvent{SenderID: 1})
	emitter.Socket(context.Background(), "ws_disconnect", SocketEvent{UserID: 1})
}
