package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PulseMediaLab/pulse/backend/internal/chat"
	"github.com/PulseMediaLab/pulse/backend/internal/users"
)

type fakeTokenValidator struct {
	subjects map[string]string
}

func (f *fakeTokenValidator) ValidateToken(token string) (string, error) {
	subject, ok := f.subjects[token]
	if !ok {
		return "", fmt.Errorf("unknown token %q", token)
	}
	return subject, nil
}

type onlineCall struct {
	userID string
	online bool
}

type fakeUserDirectory struct {
	mu          sync.Mutex
	users       map[string]users.User
	onlineCalls []onlineCall
}

func newFakeUserDirectory(known ...users.User) *fakeUserDirectory {
	directory := &fakeUserDirectory{users: make(map[string]users.User)}
	for _, user := range known {
		directory.users[user.ID] = user
	}
	return directory
}

func (f *fakeUserDirectory) GetByID(_ context.Context, userID string) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserDirectory) SetOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlineCalls = append(f.onlineCalls, onlineCall{userID: userID, online: online})
	return nil
}

func (f *fakeUserDirectory) recordedOnlineCalls() []onlineCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	recorded := make([]onlineCall, len(f.onlineCalls))
	copy(recorded, f.onlineCalls)
	return recorded
}

type sendRecord struct {
	senderID       string
	conversationID string
	content        string
}

// fakeMessageStore answers the hub's store interface from in-memory maps.
// Persisted message ids are sequential so tests can assert that delivered
// payloads carry the stored record.
type fakeMessageStore struct {
	mu            sync.Mutex
	conversations map[string]chat.Conversation
	partners      map[string][]string
	sendErr       error
	sent          []sendRecord
	nextID        int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		conversations: make(map[string]chat.Conversation),
		partners:      make(map[string][]string),
	}
}

func (f *fakeMessageStore) addConversation(id, userA, userB string) {
	f.conversations[id] = chat.Conversation{ID: id, UserAID: userA, UserBID: userB}
}

func (f *fakeMessageStore) SendMessage(_ context.Context, senderID, conversationID, content string) (chat.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return chat.SentMessage{}, f.sendErr
	}
	conversation, ok := f.conversations[conversationID]
	if !ok {
		return chat.SentMessage{}, chat.ErrConversationNotFound
	}
	if !conversation.Involves(senderID) {
		return chat.SentMessage{}, chat.ErrNotParticipant
	}

	f.nextID++
	f.sent = append(f.sent, sendRecord{senderID: senderID, conversationID: conversationID, content: content})

	recipientID := conversation.OtherParticipant(senderID)
	return chat.SentMessage{
		Message: chat.MessageView{
			ID:             fmt.Sprintf("message-%d", f.nextID),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      time.Now().UTC(),
		},
		RecipientID: recipientID,
		Notification: chat.Notification{
			RecipientID: recipientID,
			FromUserID:  senderID,
			Type:        chat.NotificationTypeMessage,
			Content:     "sent you a message",
		},
	}, nil
}

func (f *fakeMessageStore) GetConversation(_ context.Context, conversationID, userID string) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation, ok := f.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if !conversation.Involves(userID) {
		return chat.Conversation{}, chat.ErrNotParticipant
	}
	return conversation, nil
}

func (f *fakeMessageStore) PartnerIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.partners[userID], nil
}

func (f *fakeMessageStore) recordedSends() []sendRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	recorded := make([]sendRecord, len(f.sent))
	copy(recorded, f.sent)
	return recorded
}
