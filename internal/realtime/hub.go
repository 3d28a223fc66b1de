package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/zachsimson/Lockedin/internal/metrics"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/notify"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Authenticator resolves a bearer token to its user.
type Authenticator func(ctx context.Context, token string) (*models.User, error)

// Hub serves the community chat socket and forwards notification events to
// connected users.
type Hub struct {
	registry *Registry
	db       *gorm.DB
	auth     Authenticator
	logger   *zap.Logger
	upgrader websocket.Upgrader

	sinkMu sync.RWMutex
	sink   notify.Sink
}

func NewHub(db *gorm.DB, auth Authenticator, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		registry: NewRegistry(),
		db:       db,
		auth:     auth,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sink: notify.Nop,
	}
}

// SetSink sets where chat messages are published. With a redis sink every
// instance receives them back through Deliver.
func (h *Hub) SetSink(s notify.Sink) {
	h.sinkMu.Lock()
	h.sink = s
	h.sinkMu.Unlock()
}

func (h *Hub) Registry() *Registry { return h.registry }

// ServeWS upgrades the request. Authentication happens over the socket.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(h, conn)
	metrics.WebsocketConnections.Inc()
	h.logger.Debug("websocket connected", zap.String("client_id", client.ID))

	go client.writePump()
	go client.readPump()
}

func (h *Hub) unregister(c *Client) {
	h.registry.Remove(c)
	c.close()
	metrics.WebsocketConnections.Dec()
	userID, _ := c.identity()
	h.logger.Debug("websocket disconnected", zap.String("client_id", c.ID), zap.Uint("user_id", userID))
}

// Publish lets the hub act as a local notify.Sink.
func (h *Hub) Publish(_ context.Context, ev notify.Event) error {
	h.Deliver(ev)
	return nil
}

// Deliver routes an event to the sockets on this instance.
func (h *Hub) Deliver(ev notify.Event) {
	if ev.Type == notify.EventChatMessage {
		room := ev.Room
		if room == "" {
			room = models.CommunityRoom
		}
		for _, c := range h.registry.RoomClients(room) {
			c.Send("new_message", ev.Data)
		}
		return
	}
	if ev.UserID == 0 {
		return
	}
	for _, c := range h.registry.UserClients(ev.UserID) {
		c.Send("lock_event", gin.H{"event": ev.Type, "data": ev.Data})
	}
}

func (h *Hub) dispatch(c *Client, msg Inbound) {
	switch msg.Type {
	case "authenticate":
		h.onAuthenticate(c, msg.Data)
	case "join_community":
		h.onJoin(c)
	case "send_message":
		h.onSendMessage(c, msg.Data)
	case "typing":
		h.onTyping(c)
	default:
		c.SendError("Unknown event")
	}
}

func (h *Hub) onAuthenticate(c *Client, data json.RawMessage) {
	var req struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(data, &req)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	user, err := h.auth(ctx, req.Token)
	if err != nil || user == nil {
		c.SendError("Authentication failed")
		return
	}

	c.setIdentity(user.ID, user.Username)
	h.registry.Bind(c, user.ID)
	c.Send("authenticated", gin.H{"user_id": user.ID, "username": user.Username})
}

func (h *Hub) onJoin(c *Client) {
	userID, username := c.identity()
	if userID == 0 {
		c.SendError("Not authenticated")
		return
	}
	h.registry.Join(c, models.CommunityRoom)
	h.broadcastExcept(models.CommunityRoom, c, "user_joined", gin.H{"user_id": userID, "username": username})
}

func (h *Hub) onSendMessage(c *Client, data json.RawMessage) {
	userID, _ := c.identity()
	if userID == 0 {
		c.SendError("Not authenticated")
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &req)
	text, err := util.NormalizeChatMessage(req.Message)
	if err != nil {
		c.SendError("Invalid message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// reload so a block applied after authentication takes effect
	var user models.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		c.SendError("Not authenticated")
		return
	}
	if user.IsBlocked {
		c.SendError("You are blocked from sending messages")
		return
	}

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		Message:   text,
		Room:      models.CommunityRoom,
		Timestamp: time.Now().UTC(),
	}
	if err := h.db.WithContext(ctx).Create(&msg).Error; err != nil {
		h.logger.Error("save chat message", zap.Uint("user_id", userID), zap.Error(err))
		c.SendError("Failed to send message")
		return
	}

	ev, err := notify.NewEvent(notify.EventChatMessage, user.ID, msg)
	if err != nil {
		h.logger.Error("encode chat message", zap.Error(err))
		return
	}
	ev.Room = msg.Room

	h.sinkMu.RLock()
	sink := h.sink
	h.sinkMu.RUnlock()
	if err := sink.Publish(ctx, ev); err != nil {
		h.logger.Warn("publish chat message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (h *Hub) onTyping(c *Client) {
	userID, username := c.identity()
	if userID == 0 {
		return
	}
	h.broadcastExcept(models.CommunityRoom, c, "user_typing", gin.H{"user_id": userID, "username": username})
}

func (h *Hub) broadcastExcept(room string, skip *Client, msgType string, data interface{}) {
	for _, c := range h.registry.RoomClients(room) {
		if c == skip {
			continue
		}
		c.Send(msgType, data)
	}
}
