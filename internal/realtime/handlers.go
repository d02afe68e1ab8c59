package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/PulseMediaLab/pulse/backend/internal/chat"
	"github.com/PulseMediaLab/pulse/backend/internal/users"
	"go.uber.org/zap"
)

// User-facing failure messages for the error event.
const (
	msgMalformedEvent       = "Malformed event payload"
	msgUnknownEvent         = "Unknown event"
	msgEmptyContent         = "Message content is required"
	msgContentTooLong       = "Message content is too long"
	msgConversationNotFound = "Conversation not found"
	msgSendFailed           = "Failed to send message"
)

// dispatch decodes one inbound frame and routes it to its handler. Malformed
// payloads are converted into an error event on the offending connection
// rather than terminating the session.
func (h *Hub) dispatch(ctx context.Context, client *Client, data []byte) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		client.Enqueue(errorEvent(msgMalformedEvent))
		return
	}

	switch envelope.Event {
	case EventSendMessage:
		h.handleSendMessage(ctx, client, envelope.Data)
	case EventJoinConversation:
		h.handleJoinConversation(ctx, client, envelope.Data)
	case EventTypingStart:
		h.handleTyping(client, envelope.Data, true)
	case EventTypingStop:
		h.handleTyping(client, envelope.Data, false)
	default:
		client.Enqueue(errorEvent(msgUnknownEvent))
	}
}

// handleSendMessage relays a direct message with persist-then-deliver
// semantics: the store write must succeed before any push is attempted, and
// push failures never undo the write.
func (h *Hub) handleSendMessage(ctx context.Context, client *Client, data []byte) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.Enqueue(errorEvent(msgMalformedEvent))
		return
	}

	sent, err := h.messages.SendMessage(ctx, client.UserID(), payload.ConversationID, payload.Content)
	if err != nil {
		client.Enqueue(errorEvent(sendFailureMessage(err)))
		if !isValidationError(err) {
			h.logger.Error("message relay persist failed",
				zap.String("user_id", client.UserID()),
				zap.String("conversation_id", payload.ConversationID),
				zap.Error(err))
		}
		return
	}

	h.Deliver(sent, client.Profile())
	client.Enqueue(OutboundEvent{Event: EventMessageSent, Data: sent.Message})
}

// Deliver pushes an already-persisted message to the recipient's reachable
// connection and a notification to their personal room. The recipient may
// have disconnected while the store write was in flight; an absent presence
// entry is a skipped push, not a failure.
func (h *Hub) Deliver(sent chat.SentMessage, from users.Profile) {
	if recipient, ok := h.registry.Lookup(sent.RecipientID); ok {
		recipient.Enqueue(OutboundEvent{Event: EventReceiveMessage, Data: sent.Message})
	}

	h.rooms.Broadcast(UserRoom(sent.RecipientID), OutboundEvent{
		Event: EventNotification,
		Data: NotificationPayload{
			Type:    string(chat.NotificationTypeMessage),
			From:    from,
			Content: sent.Notification.Content,
		},
	}, nil)
}

// handleJoinConversation admits the connection to a conversation room after
// verifying the user is one of the two participants.
func (h *Hub) handleJoinConversation(ctx context.Context, client *Client, data []byte) {
	conversationID := parseConversationID(data)
	if conversationID == "" {
		client.Enqueue(errorEvent(msgMalformedEvent))
		return
	}

	if _, err := h.messages.GetConversation(ctx, conversationID, client.UserID()); err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) || errors.Is(err, chat.ErrNotParticipant) {
			client.Enqueue(errorEvent(msgConversationNotFound))
			return
		}
		h.logger.Error("conversation membership check failed",
			zap.String("user_id", client.UserID()),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		client.Enqueue(errorEvent(msgConversationNotFound))
		return
	}

	h.rooms.Join(ConversationRoom(conversationID), client)
}

// handleTyping fans a typing indicator out to the conversation room,
// excluding the typist. Fire and forget: no persistence, no authorization,
// lost events are expected.
func (h *Hub) handleTyping(client *Client, data []byte, start bool) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		client.Enqueue(errorEvent(msgMalformedEvent))
		return
	}

	room := ConversationRoom(payload.ConversationID)
	if start {
		h.rooms.Broadcast(room, OutboundEvent{
			Event: EventUserTyping,
			Data:  UserTypingPayload{UserID: client.UserID(), Username: client.Profile().Username},
		}, client)
		return
	}
	h.rooms.Broadcast(room, OutboundEvent{
		Event: EventUserStopTyping,
		Data:  UserTypingPayload{UserID: client.UserID()},
	}, client)
}

// parseConversationID accepts either a bare JSON string or an object payload.
func parseConversationID(data []byte) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id
	}
	var payload JoinConversationPayload
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload.ConversationID
	}
	return ""
}

func isValidationError(err error) bool {
	return errors.Is(err, chat.ErrEmptyContent) ||
		errors.Is(err, chat.ErrContentTooLong) ||
		errors.Is(err, chat.ErrConversationNotFound) ||
		errors.Is(err, chat.ErrNotParticipant)
}

func sendFailureMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyContent):
		return msgEmptyContent
	case errors.Is(err, chat.ErrContentTooLong):
		return msgContentTooLong
	case errors.Is(err, chat.ErrConversationNotFound), errors.Is(err, chat.ErrNotParticipant):
		return msgConversationNotFound
	default:
		return msgSendFailed
	}
}
