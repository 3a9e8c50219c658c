package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"collab-service/internal/identity"
	"collab-service/internal/models"
	"collab-service/internal/observability"
	"collab-service/internal/repositories"
	"collab-service/internal/session"
	"collab-service/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is the only inbound frame shape the gateway understands.
type clientFrame struct {
	Type string `json:"type"`
}

// Gateway upgrades websocket connections for conversation rooms and bridges
// them onto sync sessions. Each connection gets the conversation snapshot on
// connect and live frames for every event its session merges afterwards.
type Gateway struct {
	hub      *Hub
	tokens   *identity.TokenManager
	groups   repositories.GroupRepository
	managers *ManagerRegistry
	audit    *telemetry.AuditEmitter
	logger   *zap.SugaredLogger
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, tokens *identity.TokenManager, groups repositories.GroupRepository, managers *ManagerRegistry, audit *telemetry.AuditEmitter, logger *zap.SugaredLogger) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{hub: hub, tokens: tokens, groups: groups, managers: managers, audit: audit, logger: logger}
}

// Handle upgrades and registers a websocket connection for one conversation.
func (g *Gateway) Handle(c *gin.Context) {
	groupID := c.Param("group_id")
	if groupID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	ctx, span := otel.Tracer("collab-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := g.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := g.groups.IsMember(c.Request.Context(), groupID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for group"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	g.hub.Add(groupID, conn, info)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.audit.Emit(ctx, "INFO", fmt.Sprintf("ws connect group=%s conn=%s", groupID, info.ConnID), requestID, &userID)

	manager, releaseManager := g.managers.Acquire(userID)
	hooks := session.Hooks{
		OnAppend: func(msg models.MessageWithSender) {
			g.hub.Send(groupID, conn, messageEvent(msg))
		},
		OnDelete: func(messageID string) {
			g.hub.Send(groupID, conn, deletionEvent(messageID))
		},
		Notify: func(n session.Notification) {
			g.hub.Send(groupID, conn, notificationEvent(n))
		},
	}

	sess, releaseSession, err := manager.Open(c.Request.Context(), groupID, hooks)
	if err != nil {
		g.logger.Warnw("session open failed", "group_id", groupID, "user_id", userID, "error", err)
		g.hub.Send(groupID, conn, Event{Type: "error", Error: "failed to load conversation"})
		g.hub.Remove(groupID, conn)
		releaseManager()
		observability.DecWSActive()
		conn.Close()
		return
	}

	g.hub.Send(groupID, conn, snapshotEvent(sess))

	go func() {
		defer func() {
			releaseSession()
			releaseManager()
			g.hub.Remove(groupID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			g.audit.Emit(ctx, "INFO",
				fmt.Sprintf("ws disconnect group=%s conn=%s duration_ms=%d",
					groupID, info.ConnID, time.Since(info.ConnectedAt).Milliseconds()),
				requestID, &userID)
			conn.Close()
		}()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
			g.handleFrame(sess, payload)
		}
	}()
}

func (g *Gateway) handleFrame(sess *session.Session, payload []byte) {
	var frame clientFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return
	}
	if frame.Type == "mark_read" {
		sess.ResetUnread()
	}
}

func (g *Gateway) validateToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid token")
	}
	userID, _, err := g.tokens.Validate(parts[1])
	return userID, err
}
