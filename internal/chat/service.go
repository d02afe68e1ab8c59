package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PulseMediaLab/pulse/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxMessageLength    = 4000
	messageNotificationContent = "sent you a message"
)

var (
	// ErrEmptyContent indicates a message body that is empty or whitespace only.
	ErrEmptyContent = errors.New("chat: message content is empty")
	// ErrContentTooLong indicates a message body beyond the configured maximum.
	ErrContentTooLong = errors.New("chat: message content exceeds maximum length")
	// ErrConversationNotFound indicates the conversation id has no stored record.
	ErrConversationNotFound = errors.New("chat: conversation not found")
	// ErrNotParticipant indicates the acting user is not one of the two participants.
	ErrNotParticipant = errors.New("chat: user is not a conversation participant")
	// ErrMessageNotFound indicates the message id has no record owned by the acting user.
	ErrMessageNotFound = errors.New("chat: message not found")
	// ErrSelfConversation indicates an attempt to open a conversation with oneself.
	ErrSelfConversation = errors.New("chat: cannot start a conversation with yourself")
	// ErrConversationExists indicates the unordered participant pair already has a conversation.
	ErrConversationExists = errors.New("chat: conversation already exists")

	noOpLogger = zap.NewNop()
)

// IDProvider issues identifiers for newly persisted records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the messaging store service.
type ServiceConfig struct {
	Database         *gorm.DB
	Clock            func() time.Time
	IDProvider       IDProvider
	Logger           *zap.Logger
	MaxMessageLength int
}

// Service owns every durable-store operation of the messaging domain:
// conversations, messages and notifications. It performs no delivery; pushing
// persisted records to live connections is the realtime layer's concern.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	maxLength  int
}

// NewService constructs the messaging store service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("chat: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("chat: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	maxLength := cfg.MaxMessageLength
	if maxLength <= 0 {
		maxLength = defaultMaxMessageLength
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		maxLength:  maxLength,
	}, nil
}

// CreateConversation opens a conversation between the two users. The pair is
// stored in canonical order so the unordered pair stays unique.
func (s *Service) CreateConversation(ctx context.Context, userID, otherUserID string) (Conversation, error) {
	if userID == otherUserID {
		return Conversation{}, ErrSelfConversation
	}

	if _, err := s.loadUser(ctx, otherUserID); err != nil {
		return Conversation{}, err
	}

	userA, userB := canonicalPair(userID, otherUserID)

	var existing Conversation
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", userA, userB).
		Take(&existing).Error
	if err == nil {
		return existing, ErrConversationExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Conversation{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Conversation{}, err
	}
	now := s.clock().UTC()
	conversation := Conversation{
		ID:        id,
		UserAID:   userA,
		UserBID:   userB,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return Conversation{}, err
	}
	return conversation, nil
}

// GetConversation loads a conversation and verifies the acting user belongs to it.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (Conversation, error) {
	var conversation Conversation
	err := s.db.WithContext(ctx).Where("id = ?", conversationID).Take(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if !conversation.Involves(userID) {
		return Conversation{}, ErrNotParticipant
	}
	return conversation, nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	_, err := s.GetConversation(ctx, conversationID, userID)
	if errors.Is(err, ErrNotParticipant) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListConversations returns the user's conversations ordered by recency, each
// with the other participant's profile and the latest message.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	var conversations []Conversation
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		otherID := conversation.OtherParticipant(userID)
		other, err := s.loadUser(ctx, otherID)
		if err != nil && !errors.Is(err, users.ErrUserNotFound) {
			return nil, err
		}

		summary := ConversationSummary{
			ID:        conversation.ID,
			CreatedAt: conversation.CreatedAt,
			UpdatedAt: conversation.UpdatedAt,
			OtherUser: users.ProfileOf(other),
		}

		var last Message
		err = s.db.WithContext(ctx).
			Where("conversation_id = ?", conversation.ID).
			Order("created_at DESC").
			Take(&last).Error
		if err == nil {
			view := s.viewOf(ctx, last)
			summary.LastMessage = &view
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ListMessages returns the conversation's messages in ascending store order.
// Clients display store order, never push arrival order.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string) ([]MessageView, error) {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	var messages []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(messages))
	for _, message := range messages {
		views = append(views, s.viewOf(ctx, message))
	}
	return views, nil
}

// SendMessage validates and persists a message, bumps the parent conversation
// and creates the recipient's notification, all in one transaction. The store
// write is the durability boundary; it must succeed before any push attempt.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID, content string) (SentMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return SentMessage{}, ErrEmptyContent
	}
	if len(trimmed) > s.maxLength {
		return SentMessage{}, ErrContentTooLong
	}

	conversation, err := s.GetConversation(ctx, conversationID, senderID)
	if err != nil {
		return SentMessage{}, err
	}
	recipientID := conversation.OtherParticipant(senderID)

	messageID, err := s.idProvider.NewID()
	if err != nil {
		return SentMessage{}, err
	}
	notificationID, err := s.idProvider.NewID()
	if err != nil {
		return SentMessage{}, err
	}

	now := s.clock().UTC()
	message := Message{
		ID:             messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        trimmed,
		CreatedAt:      now,
	}
	notification := Notification{
		ID:          notificationID,
		RecipientID: recipientID,
		FromUserID:  senderID,
		Type:        NotificationTypeMessage,
		Content:     messageNotificationContent,
		CreatedAt:   now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		if err := tx.Model(&Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", now).Error; err != nil {
			return err
		}
		return tx.Create(&notification).Error
	})
	if txErr != nil {
		s.logger.Error("message persist failed",
			zap.String("conversation_id", conversationID),
			zap.String("sender_id", senderID),
			zap.Error(txErr))
		return SentMessage{}, txErr
	}

	return SentMessage{
		Message:      s.viewOf(ctx, message),
		RecipientID:  recipientID,
		Notification: notification,
	}, nil
}

// MarkConversationRead flips is_read on every message the other participant
// sent. Repeating the call is a no-op.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).
		Model(&Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, userID, false).
		Update("is_read", true).Error
}

// DeleteMessage removes a single message. Only its sender may delete it.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID, userID string) error {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ? AND sender_id = ?", messageID, conversationID, userID).
		Delete(&Message{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// UnreadCount returns how many messages addressed to the user are unread in
// the conversation.
func (s *Service) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, userID, false).
		Count(&count).Error
	return count, err
}

// ListNotifications returns the user's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	var notifications []Notification
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

// MarkNotificationsRead flips is_read on all of the user's notifications.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

// PartnerIDs returns the ids of every user sharing a conversation with the
// given user. The realtime layer fans presence changes out to this set.
func (s *Service) PartnerIDs(ctx context.Context, userID string) ([]string, error) {
	var conversations []Conversation
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	partners := make([]string, 0, len(conversations))
	for _, conversation := range conversations {
		partners = append(partners, conversation.OtherParticipant(userID))
	}
	return partners, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (users.User, error) {
	var user users.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, users.ErrUserNotFound
	}
	if err != nil {
		return users.User{}, err
	}
	return user, nil
}

// viewOf joins the sender profile into the outbound message shape. A missing
// sender row degrades to the bare message rather than failing the read.
func (s *Service) viewOf(ctx context.Context, message Message) MessageView {
	view := MessageView{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		IsRead:         message.IsRead,
		CreatedAt:      message.CreatedAt,
	}
	sender, err := s.loadUser(ctx, message.SenderID)
	if err == nil {
		view.Username = sender.Username
		view.FullName = sender.FullName
		view.ProfilePicture = sender.ProfilePicture
	}
	return view
}
