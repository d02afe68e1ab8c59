package realtime

import (
	"encoding/json"

	"github.com/PulseMediaLab/pulse/backend/internal/users"
)

// Client-to-server event names.
const (
	EventSendMessage      = "send_message"
	EventJoinConversation = "join_conversation"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
)

// Server-to-client event names.
const (
	EventReceiveMessage = "receive_message"
	EventMessageSent    = "message_sent"
	EventNotification   = "notification"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventError          = "error"
)

// Envelope frames every message on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent is a server-to-client event before encoding.
type OutboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// SendMessagePayload carries a send_message request. RecipientID is accepted
// for compatibility with older clients but the recipient is always derived
// from the conversation's participant pair.
type SendMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Content        string `json:"content"`
}

// JoinConversationPayload carries a join_conversation request.
type JoinConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

// TypingPayload carries a typing_start or typing_stop request.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
}

// UserTypingPayload is fanned out to a conversation room while a participant types.
type UserTypingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// NotificationPayload is pushed to a recipient's personal room.
type NotificationPayload struct {
	Type    string        `json:"type"`
	From    users.Profile `json:"from"`
	Content string        `json:"content"`
}

// ErrorPayload reports a failed operation back to the requesting connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

func errorEvent(message string) OutboundEvent {
	return OutboundEvent{Event: EventError, Data: ErrorPayload{Message: message}}
}
