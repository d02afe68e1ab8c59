package chat

import (
	"time"

	"github.com/PulseMediaLab/pulse/backend/internal/users"
)

// NotificationType enumerates the closed set of notification kinds.
type NotificationType string

const (
	NotificationTypeLike        NotificationType = "like"
	NotificationTypeComment     NotificationType = "comment"
	NotificationTypeFollow      NotificationType = "follow"
	NotificationTypeMention     NotificationType = "mention"
	NotificationTypeLikeComment NotificationType = "like_comment"
	NotificationTypeMessage     NotificationType = "message"
)

// Conversation links exactly two participants. The pair is stored in canonical
// order (UserAID < UserBID) so the unique index enforces at most one
// conversation per unordered pair.
type Conversation struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserAID   string    `gorm:"column:user_a_id;size:190;not null;uniqueIndex:idx_conversations_pair,priority:1;index" json:"user_a_id"`
	UserBID   string    `gorm:"column:user_b_id;size:190;not null;uniqueIndex:idx_conversations_pair,priority:2;index" json:"user_b_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Conversation) TableName() string {
	return "conversations"
}

// Involves reports whether the given user is one of the two participants.
func (c Conversation) Involves(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// OtherParticipant returns the participant that is not the given user.
func (c Conversation) OtherParticipant(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Message is immutable once created except for the is_read flag, which
// transitions false to true in bulk when the non-sender marks the
// conversation read.
type Message struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null"`
	ConversationID string    `gorm:"column:conversation_id;size:190;not null;index:idx_messages_conversation_time,priority:1"`
	SenderID       string    `gorm:"column:sender_id;size:190;not null;index"`
	Content        string    `gorm:"column:content;type:text;not null"`
	IsRead         bool      `gorm:"column:is_read;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_messages_conversation_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "messages"
}

// Notification records an event addressed to a single recipient. Only the
// is_read flag is ever mutated after creation.
type Notification struct {
	ID               string           `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	RecipientID      string           `gorm:"column:recipient_id;size:190;not null;index:idx_notifications_recipient_time,priority:1" json:"recipient_id"`
	FromUserID       string           `gorm:"column:from_user_id;size:190;not null" json:"from_user_id"`
	Type             NotificationType `gorm:"column:type;size:32;not null" json:"type"`
	RelatedPostID    string           `gorm:"column:related_post_id;size:190" json:"related_post_id,omitempty"`
	RelatedCommentID string           `gorm:"column:related_comment_id;size:190" json:"related_comment_id,omitempty"`
	Content          string           `gorm:"column:content;type:text;not null" json:"content"`
	IsRead           bool             `gorm:"column:is_read;not null;default:false" json:"is_read"`
	CreatedAt        time.Time        `gorm:"column:created_at;index:idx_notifications_recipient_time,priority:2" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// MessageView is a persisted message with the sender's profile joined in, the
// shape delivered to clients over both the REST surface and the realtime channel.
type MessageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	ProfilePicture string    `json:"profile_picture"`
}

// ConversationSummary is a conversation with the other participant's profile
// and the latest message, as listed on the messaging screen.
type ConversationSummary struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	OtherUser   users.Profile `json:"other_user"`
	LastMessage *MessageView  `json:"last_message,omitempty"`
}

// SentMessage is the outcome of a successful send: the persisted record plus
// the derived recipient and the notification created alongside it.
type SentMessage struct {
	Message      MessageView
	RecipientID  string
	Notification Notification
}

func canonicalPair(first, second string) (string, string) {
	if first < second {
		return first, second
	}
	return second, first
}
