package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PulseMediaLab/pulse/backend/internal/users"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	next int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("id-%04d", s.next), nil
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	databasePath := filepath.Join(t.TempDir(), "chat_test.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&users.User{}, &Conversation{}, &Message{}, &Notification{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	clock := &testClock{current: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Database:         db,
		Clock:            clock.Now,
		IDProvider:       &sequentialIDs{},
		MaxMessageLength: 100,
	})
	if err != nil {
		t.Fatalf("failed to build chat service: %v", err)
	}
	return service
}

func seedUser(t *testing.T, db *gorm.DB, id, username string) {
	t.Helper()
	user := users.User{ID: id, Username: username, FullName: username + " Example"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}

func seedConversation(t *testing.T, service *Service, userID, otherID string) Conversation {
	t.Helper()
	conversation, err := service.CreateConversation(context.Background(), userID, otherID)
	if err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
	return conversation
}

func TestCreateConversationStoresCanonicalPair(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "zoe", "zoe")
	seedUser(t, db, "adam", "adam")

	conversation, err := service.CreateConversation(context.Background(), "zoe", "adam")
	if err != nil {
		t.Fatalf("create conversation failed: %v", err)
	}
	if conversation.UserAID != "adam" || conversation.UserBID != "zoe" {
		t.Fatalf("expected canonical pair ordering, got (%s, %s)", conversation.UserAID, conversation.UserBID)
	}
}

func TestCreateConversationReturnsExistingForReversedPair(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "zoe", "zoe")
	seedUser(t, db, "adam", "adam")

	first := seedConversation(t, service, "adam", "zoe")

	duplicate, err := service.CreateConversation(context.Background(), "zoe", "adam")
	if !errors.Is(err, ErrConversationExists) {
		t.Fatalf("expected ErrConversationExists, got %v", err)
	}
	if duplicate.ID != first.ID {
		t.Fatalf("expected the existing conversation back, got %s", duplicate.ID)
	}

	var count int64
	if err := db.Model(&Conversation{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count conversations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one conversation per unordered pair, got %d", count)
	}
}

func TestCreateConversationRejectsSelf(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")

	if _, err := service.CreateConversation(context.Background(), "adam", "adam"); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}
}

func TestCreateConversationRequiresKnownOtherUser(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")

	if _, err := service.CreateConversation(context.Background(), "adam", "ghost"); !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSendMessagePersistsRecordAndSideEffects(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	conversation := seedConversation(t, service, "adam", "zoe")

	sent, err := service.SendMessage(context.Background(), "adam", conversation.ID, "  hello zoe  ")
	if err != nil {
		t.Fatalf("send message failed: %v", err)
	}

	if sent.Message.Content != "hello zoe" {
		t.Fatalf("expected trimmed content, got %q", sent.Message.Content)
	}
	if sent.RecipientID != "zoe" {
		t.Fatalf("expected recipient derived from pair, got %q", sent.RecipientID)
	}
	if sent.Message.IsRead {
		t.Fatalf("expected new message to start unread")
	}
	if sent.Message.Username != "adam" {
		t.Fatalf("expected sender profile joined into the view, got %q", sent.Message.Username)
	}

	var stored Message
	if err := db.Where("id = ?", sent.Message.ID).Take(&stored).Error; err != nil {
		t.Fatalf("expected message row in store: %v", err)
	}

	var notification Notification
	if err := db.Where("recipient_id = ?", "zoe").Take(&notification).Error; err != nil {
		t.Fatalf("expected notification row in store: %v", err)
	}
	if notification.Type != NotificationTypeMessage || notification.FromUserID != "adam" {
		t.Fatalf("unexpected notification %+v", notification)
	}
	if notification.Content != "sent you a message" {
		t.Fatalf("unexpected notification content %q", notification.Content)
	}

	var reloaded Conversation
	if err := db.Where("id = ?", conversation.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("failed to reload conversation: %v", err)
	}
	if !reloaded.UpdatedAt.After(conversation.UpdatedAt) {
		t.Fatalf("expected conversation recency bump, got %v", reloaded.UpdatedAt)
	}
}

func TestSendMessageValidation(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	seedUser(t, db, "mallory", "mallory")
	conversation := seedConversation(t, service, "adam", "zoe")

	testCases := []struct {
		name           string
		senderID       string
		conversationID string
		content        string
		expected       error
	}{
		{name: "empty content", senderID: "adam", conversationID: conversation.ID, content: "   ", expected: ErrEmptyContent},
		{name: "content too long", senderID: "adam", conversationID: conversation.ID, content: strings.Repeat("a", 101), expected: ErrContentTooLong},
		{name: "unknown conversation", senderID: "adam", conversationID: "missing", content: "hello", expected: ErrConversationNotFound},
		{name: "non participant", senderID: "mallory", conversationID: conversation.ID, content: "hello", expected: ErrNotParticipant},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.SendMessage(context.Background(), testCase.senderID, testCase.conversationID, testCase.content)
			if !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}

	var count int64
	if err := db.Model(&Message{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no messages persisted by failed sends, got %d", count)
	}
}

func TestMarkConversationReadIsIdempotent(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	conversation := seedConversation(t, service, "adam", "zoe")

	if _, err := service.SendMessage(context.Background(), "adam", conversation.ID, "one"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := service.SendMessage(context.Background(), "adam", conversation.ID, "two"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := service.SendMessage(context.Background(), "zoe", conversation.ID, "reply"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	unread, err := service.UnreadCount(context.Background(), conversation.ID, "zoe")
	if err != nil || unread != 2 {
		t.Fatalf("expected 2 unread for zoe, got %d (%v)", unread, err)
	}

	if err := service.MarkConversationRead(context.Background(), conversation.ID, "zoe"); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	unread, err = service.UnreadCount(context.Background(), conversation.ID, "zoe")
	if err != nil || unread != 0 {
		t.Fatalf("expected 0 unread after mark read, got %d (%v)", unread, err)
	}

	// The reply addressed to adam must be untouched by zoe's mark-read.
	unread, err = service.UnreadCount(context.Background(), conversation.ID, "adam")
	if err != nil || unread != 1 {
		t.Fatalf("expected adam's unread untouched, got %d (%v)", unread, err)
	}

	if err := service.MarkConversationRead(context.Background(), conversation.ID, "zoe"); err != nil {
		t.Fatalf("expected repeated mark read to be a no-op, got %v", err)
	}
}

func TestMarkConversationReadRequiresMembership(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	conversation := seedConversation(t, service, "adam", "zoe")

	if err := service.MarkConversationRead(context.Background(), conversation.ID, "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	conversation := seedConversation(t, service, "adam", "zoe")

	sent, err := service.SendMessage(context.Background(), "adam", conversation.ID, "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if err := service.DeleteMessage(context.Background(), conversation.ID, sent.Message.ID, "zoe"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected recipient delete to be refused, got %v", err)
	}

	if err := service.DeleteMessage(context.Background(), conversation.ID, sent.Message.ID, "adam"); err != nil {
		t.Fatalf("sender delete failed: %v", err)
	}

	var count int64
	if err := db.Model(&Message{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected message removed, got %d rows", count)
	}
}

func TestListMessagesAscendingStoreOrder(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	conversation := seedConversation(t, service, "adam", "zoe")

	for _, content := range []string{"first", "second", "third"} {
		if _, err := service.SendMessage(context.Background(), "adam", conversation.ID, content); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	views, err := service.ListMessages(context.Background(), conversation.ID, "zoe")
	if err != nil {
		t.Fatalf("list messages failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(views))
	}
	for index, content := range []string{"first", "second", "third"} {
		if views[index].Content != content {
			t.Fatalf("expected %q at position %d, got %q", content, index, views[index].Content)
		}
	}

	if _, err := service.ListMessages(context.Background(), conversation.ID, "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant for outsider, got %v", err)
	}
}

func TestListConversationsIncludesProfileAndLastMessage(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	seedUser(t, db, "finn", "finn")

	withZoe := seedConversation(t, service, "adam", "zoe")
	seedConversation(t, service, "adam", "finn")

	if _, err := service.SendMessage(context.Background(), "zoe", withZoe.ID, "latest"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	summaries, err := service.ListConversations(context.Background(), "adam")
	if err != nil {
		t.Fatalf("list conversations failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(summaries))
	}

	// The conversation with the newest message sorts first.
	if summaries[0].ID != withZoe.ID {
		t.Fatalf("expected most recently active conversation first, got %s", summaries[0].ID)
	}
	if summaries[0].OtherUser.Username != "zoe" {
		t.Fatalf("expected other participant profile, got %+v", summaries[0].OtherUser)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Content != "latest" {
		t.Fatalf("expected last message joined in, got %+v", summaries[0].LastMessage)
	}
	if summaries[1].LastMessage != nil {
		t.Fatalf("expected empty conversation to have no last message")
	}
}

func TestNotificationsLifecycle(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	conversation := seedConversation(t, service, "adam", "zoe")

	if _, err := service.SendMessage(context.Background(), "adam", conversation.ID, "one"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := service.SendMessage(context.Background(), "adam", conversation.ID, "two"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	notifications, err := service.ListNotifications(context.Background(), "zoe")
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifications))
	}
	if notifications[0].CreatedAt.Before(notifications[1].CreatedAt) {
		t.Fatalf("expected newest notification first")
	}

	if err := service.MarkNotificationsRead(context.Background(), "zoe"); err != nil {
		t.Fatalf("mark notifications read failed: %v", err)
	}
	notifications, err = service.ListNotifications(context.Background(), "zoe")
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	for _, notification := range notifications {
		if !notification.IsRead {
			t.Fatalf("expected all notifications read, got %+v", notification)
		}
	}
}

func TestPartnerIDs(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	seedUser(t, db, "adam", "adam")
	seedUser(t, db, "zoe", "zoe")
	seedUser(t, db, "finn", "finn")

	seedConversation(t, service, "adam", "zoe")
	seedConversation(t, service, "finn", "adam")

	partners, err := service.PartnerIDs(context.Background(), "adam")
	if err != nil {
		t.Fatalf("partner lookup failed: %v", err)
	}
	if len(partners) != 2 {
		t.Fatalf("expected 2 partners, got %v", partners)
	}
	seen := map[string]bool{}
	for _, partner := range partners {
		seen[partner] = true
	}
	if !seen["zoe"] || !seen["finn"] {
		t.Fatalf("expected zoe and finn as partners, got %v", partners)
	}
}
