package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
	"messaging-service/internal/registry"
	"messaging-service/internal/telemetry"
	"messaging-service/protocol"
)

const eventTimeout = 15 * time.Second

// Gateway upgrades websocket connections, decodes the cookie-borne
// identity once at handshake, and pumps inbound events into the router.
type Gateway struct {
	registry *registry.Registry
	hub      *Hub
	router   *Router
	tokens   *auth.TokenVerifier
	emitter  *telemetry.Emitter
}

// NewGateway constructs a Gateway.
func NewGateway(reg *registry.Registry, hub *Hub, router *Router, tokens *auth.TokenVerifier, emitter *telemetry.Emitter) *Gateway {
	return &Gateway{registry: reg, hub: hub, router: router, tokens: tokens, emitter: emitter}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs its read loop. A failed
// identity decode keeps the socket open but unregistered: the user is
// invisible to routing and sends to them report "user not online".
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, identErr := g.identify(c)
	if identErr != nil {
		log.Printf("ws handshake identity decode failed: %v", identErr)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	session := newSession(uuid.NewString(), conn, identity.UserID, identity.DisplayName)
	if session.UserID() != 0 {
		g.registry.Register(session.UserID(), session)
	}

	clientIP := observability.ClientIP(c.Request)
	requestID := observability.RequestID(c.Request)
	observability.IncWSActive("user")
	observability.IncWSEvent("user", "connect")
	g.emitter.Socket(context.Background(), "ws_connect", telemetry.SocketEvent{
		ConnID:    session.connID,
		UserID:    session.UserID(),
		IP:        clientIP,
		RequestID: requestID,
	})

	go session.writePump()
	go g.readLoop(session, clientIP, requestID)
}

func (g *Gateway) identify(c *gin.Context) (auth.Identity, error) {
	token := ""
	if cookie, err := c.Cookie("token"); err == nil {
		token = cookie
	} else if header := c.GetHeader("Authorization"); header != "" {
		token = auth.StripBearer(header)
	}
	return g.tokens.Verify(token)
}

func (g *Gateway) readLoop(session *Session, clientIP, requestID string) {
	var closeReason string
	defer func() {
		g.registry.Unregister(session)
		g.hub.LeaveAll(session)
		session.close()
		observability.DecWSActive("user")
		observability.IncWSEvent("user", "disconnect")
		g.emitter.Socket(context.Background(), "ws_disconnect", telemetry.SocketEvent{
			ConnID:     session.connID,
			UserID:     session.UserID(),
			IP:         clientIP,
			RequestID:  requestID,
			DurationMS: time.Since(session.connectedAt).Milliseconds(),
			Reason:     closeReason,
		})
	}()

	session.conn.SetReadLimit(maxFrameSize)
	_ = session.conn.SetReadDeadline(time.Now().Add(pongWait))
	session.conn.SetPongHandler(func(string) error {
		return session.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := session.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("user", "error")
			}
			return
		}
		g.dispatch(session, frame)
	}
}

// dispatch decodes one inbound envelope and hands it to the router.
// Malformed frames produce a messageError on the same session only.
func (g *Gateway) dispatch(session *Session, frame []byte) {
	var envelope protocol.Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		_ = session.Send(protocol.EventMessageError, protocol.MessageError{Error: "malformed frame"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch envelope.Event {
	case protocol.EventUserConnect:
		var req protocol.UserConnect
		if decode(session, envelope.Data, &req) {
			g.router.HandleUserConnect(session, req)
		}
	case protocol.EventSendMessage:
		var req protocol.SendMessage
		if decode(session, envelope.Data, &req) {
			g.router.HandleSend(ctx, session, req)
		}
	case protocol.EventJoinRoom:
		var req protocol.JoinRoom
		if decode(session, envelope.Data, &req) {
			g.router.HandleJoinRoom(session, req)
		}
	case protocol.EventLeaveRoom:
		var req protocol.LeaveRoom
		if decode(session, envelope.Data, &req) {
			g.router.HandleLeaveRoom(session, req)
		}
	case protocol.EventSendRoomMessage:
		var req protocol.RoomMessage
		if decode(session, envelope.Data, &req) {
			g.router.HandleRoomMessage(session, req)
		}
	default:
		_ = session.Send(protocol.EventMessageError, protocol.MessageError{Error: "unknown event: " + envelope.Event})
	}
}

func decode(session *Session, data json.RawMessage, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		_ = session.Send(protocol.EventMessageError, protocol.MessageError{Error: "malformed payload"})
		return false
	}
	return true
}
