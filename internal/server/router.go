package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PulseMediaLab/pulse/backend/internal/chat"
	"github.com/PulseMediaLab/pulse/backend/internal/realtime"
	"github.com/PulseMediaLab/pulse/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "pulse_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingChatService   = errors.New("chat service dependency required")
	errMissingHub           = errors.New("realtime hub dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager validates the bearer tokens presented on the REST surface.
type TokenManager interface {
	ValidateToken(token string) (string, error)
}

// Dependencies lists the collaborators the HTTP surface is built from.
type Dependencies struct {
	TokenManager TokenManager
	UsersService *users.Service
	ChatService  *chat.Service
	Hub          *realtime.Hub
	Logger       *zap.Logger
}

// NewHTTPHandler assembles the gin router: the realtime upgrade endpoint plus
// the pull-based messaging REST surface that backs it.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.ChatService == nil {
		return nil, errMissingChatService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.TokenManager,
		users:  deps.UsersService,
		chat:   deps.ChatService,
		hub:    deps.Hub,
		logger: logger,
	}

	// The hub performs its own handshake authentication before admitting
	// the transport, so the upgrade endpoint skips the REST middleware.
	router.GET("/ws", func(c *gin.Context) {
		deps.Hub.HandleConnection(c.Writer, c.Request)
	})

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/messages/conversations", handler.handleListConversations)
	protected.POST("/messages/conversations", handler.handleCreateConversation)
	protected.GET("/messages/:conversationId", handler.handleListMessages)
	protected.POST("/messages/:conversationId", handler.handleSendMessage)
	protected.DELETE("/messages/:conversationId/:messageId", handler.handleDeleteMessage)
	protected.PUT("/messages/:conversationId/read", handler.handleMarkConversationRead)
	protected.GET("/notifications", handler.handleListNotifications)
	protected.PUT("/notifications/read", handler.handleMarkNotificationsRead)

	return router, nil
}

type httpHandler struct {
	tokens TokenManager
	users  *users.Service
	chat   *chat.Service
	hub    *realtime.Hub
	logger *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) handleListConversations(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	conversations, err := h.chat.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_fetch_conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

type createConversationPayload struct {
	UserID string `json:"user_id"`
}

func (h *httpHandler) handleCreateConversation(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request createConversationPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	conversation, err := h.chat.CreateConversation(c.Request.Context(), userID, request.UserID)
	if err != nil {
		h.renderChatError(c, err, "failed_to_create_conversation")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conversation})
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conversationID := c.Param("conversationId")

	messages, err := h.chat.ListMessages(c.Request.Context(), conversationID, userID)
	if err != nil {
		h.renderChatError(c, err, "failed_to_fetch_messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessagePayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conversationID := c.Param("conversationId")

	var request sendMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	sent, err := h.chat.SendMessage(c.Request.Context(), userID, conversationID, request.Content)
	if err != nil {
		h.renderChatError(c, err, "failed_to_send_message")
		return
	}

	// Push is best effort; the stored record is the durable outcome either way.
	sender, err := h.users.GetByID(c.Request.Context(), userID)
	if err == nil {
		h.hub.Deliver(sent, users.ProfileOf(sender))
	}

	c.JSON(http.StatusCreated, gin.H{"message": sent.Message})
}

func (h *httpHandler) handleDeleteMessage(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conversationID := c.Param("conversationId")
	messageID := c.Param("messageId")

	if err := h.chat.DeleteMessage(c.Request.Context(), conversationID, messageID, userID); err != nil {
		h.renderChatError(c, err, "failed_to_delete_message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message_deleted"})
}

func (h *httpHandler) handleMarkConversationRead(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conversationID := c.Param("conversationId")

	if err := h.chat.MarkConversationRead(c.Request.Context(), conversationID, userID); err != nil {
		h.renderChatError(c, err, "failed_to_mark_read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "messages_marked_read"})
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	notifications, err := h.chat.ListNotifications(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_fetch_notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *httpHandler) handleMarkNotificationsRead(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	if err := h.chat.MarkNotificationsRead(c.Request.Context(), userID); err != nil {
		h.logger.Error("failed to mark notifications read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_mark_notifications_read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notifications_marked_read"})
}

// renderChatError maps domain errors onto HTTP statuses; anything unexpected
// is logged and reported as a server failure.
func (h *httpHandler) renderChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrContentTooLong),
		errors.Is(err, chat.ErrSelfConversation), errors.Is(err, chat.ErrConversationExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrConversationNotFound), errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, chat.ErrMessageNotFound), errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("chat operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
