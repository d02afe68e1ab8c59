package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PulseMediaLab/pulse/backend/internal/chat"
	"github.com/PulseMediaLab/pulse/backend/internal/users"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const storeWriteTimeout = 5 * time.Second

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingUserDirectory  = errors.New("user directory dependency required")
	errMissingMessageStore   = errors.New("message store dependency required")
)

// TokenValidator checks a bearer credential and yields the subject user id.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// UserDirectory exposes the store reads and presence-flag writes the hub needs.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (users.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
}

// MessageStore exposes the durable messaging operations the relay depends on.
type MessageStore interface {
	SendMessage(ctx context.Context, senderID, conversationID, content string) (chat.SentMessage, error)
	GetConversation(ctx context.Context, conversationID, userID string) (chat.Conversation, error)
	PartnerIDs(ctx context.Context, userID string) ([]string, error)
}

// HubConfig describes the collaborators of the realtime hub.
type HubConfig struct {
	Validator TokenValidator
	Users     UserDirectory
	Messages  MessageStore
	Logger    *zap.Logger
}

// Hub owns every live realtime connection in this process: it authenticates
// handshakes, tracks presence and room membership, and routes inbound events
// to the relay and broadcast handlers. Presence is process-local and does not
// survive a restart; the durable store keeps the authoritative records.
type Hub struct {
	validator TokenValidator
	users     UserDirectory
	messages  MessageStore
	logger    *zap.Logger

	registry *PresenceRegistry
	rooms    *RoomSet
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub constructs the hub after validating its dependencies.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Validator == nil {
		return nil, errMissingTokenValidator
	}
	if cfg.Users == nil {
		return nil, errMissingUserDirectory
	}
	if cfg.Messages == nil {
		return nil, errMissingMessageStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		validator: cfg.Validator,
		users:     cfg.Users,
		messages:  cfg.Messages,
		logger:    logger,
		registry:  NewPresenceRegistry(),
		rooms:     NewRoomSet(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
	}, nil
}

// Registry exposes the presence registry, primarily for observability.
func (h *Hub) Registry() *PresenceRegistry {
	return h.registry
}

// HandleConnection authenticates and serves one realtime connection
// end-to-end. It blocks until the connection closes. Failed handshakes are
// rejected before any presence state is created.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	userID, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("realtime handshake token rejected", zap.Error(err))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Warn("realtime handshake identity lookup failed",
			zap.String("user_id", userID),
			zap.Error(err))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(user, conn, h.logger)
	h.admit(r.Context(), client)

	go client.writePump()
	client.readPump(func(data []byte) {
		h.dispatch(r.Context(), client, data)
	})

	h.teardown(client)
}

// admit registers the connection's presence, flips the durable online flag,
// joins the personal room and announces the user to conversation partners.
func (h *Hub) admit(ctx context.Context, client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	userID := client.UserID()
	if displaced := h.registry.Register(userID, client); displaced != nil {
		// The older connection stays open but is no longer the push target.
		h.logger.Info("presence entry displaced by reconnect", zap.String("user_id", userID))
	}

	if err := h.users.SetOnline(ctx, userID, true); err != nil {
		h.logger.Error("online flag update failed", zap.String("user_id", userID), zap.Error(err))
	}

	h.rooms.Join(UserRoom(userID), client)
	h.announcePresence(ctx, userID, EventUserOnline)

	h.logger.Info("realtime connection admitted",
		zap.String("user_id", userID),
		zap.Int("online_users", h.registry.OnlineCount()))
}

// teardown runs exactly once per connection regardless of close cause. The
// presence entry is removed only when it still points at this connection, so
// a disconnect racing a reconnect never marks the newer session offline.
func (h *Hub) teardown(client *Client) {
	client.Close()

	h.mu.Lock()
	if _, tracked := h.clients[client]; !tracked {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	userID := client.UserID()
	h.rooms.LeaveAll(client)

	if !h.registry.Remove(userID, client) {
		h.logger.Debug("stale connection closed after reconnect", zap.String("user_id", userID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	if err := h.users.SetOnline(ctx, userID, false); err != nil {
		h.logger.Error("offline flag update failed", zap.String("user_id", userID), zap.Error(err))
	}
	h.announcePresence(ctx, userID, EventUserOffline)

	h.logger.Info("realtime connection closed",
		zap.String("user_id", userID),
		zap.Int("online_users", h.registry.OnlineCount()))
}

// announcePresence fans a presence change out to the personal rooms of every
// conversation partner. Best effort: a store failure only costs the hint.
func (h *Hub) announcePresence(ctx context.Context, userID, event string) {
	partners, err := h.messages.PartnerIDs(ctx, userID)
	if err != nil {
		h.logger.Warn("presence fan-out lookup failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, partnerID := range partners {
		h.rooms.Broadcast(UserRoom(partnerID), OutboundEvent{Event: event, Data: userID}, nil)
	}
}

// Shutdown closes every live connection and waits for their teardown.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	active := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		active = append(active, client)
	}
	h.mu.Unlock()

	for _, client := range active {
		client.Close()
	}
	for _, client := range active {
		select {
		case <-client.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func bearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
