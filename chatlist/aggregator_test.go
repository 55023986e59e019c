package chatlist

import (
	"context"
	"testing"
	"time"

	"messenger-sync/contact"
	"messenger-sync/database"
	"messenger-sync/directory"
	"messenger-sync/feed"
	"messenger-sync/messenger"
	"messenger-sync/model"
	"messenger-sync/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	users    *directory.Directory
	contacts *contact.Graph
	messages *messenger.Store
	chats    *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := database.OpenTest(t)
	hub := feed.NewHub()
	users := directory.New(db)

	require.NoError(t, users.Upsert(ctx, &model.User{ID: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Liddell"}))
	require.NoError(t, users.Upsert(ctx, &model.User{ID: "bob", Email: "bob@example.com", DisplayName: "Bob Builder"}))

	return &fixture{
		db:       db,
		users:    users,
		contacts: contact.NewGraph(db, users, hub, nil),
		messages: messenger.NewStore(db, hub, nil, nil),
		chats:    New(db, users, hub),
	}
}

func (f *fixture) count(t *testing.T, record interface{}, where ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(record)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	chatID := utils.ChatID("alice", "bob")

	added, err := f.contacts.Add(ctx, "alice", contact.AddRequest{ContactName: "Bobby", ContactEmail: "BOB@example.com"})
	require.NoError(t, err)
	require.True(t, added.OK(), added.Message)
	assert.Equal(t, chatID, added.ChatID)
	assert.Equal(t, int64(2), f.count(t, &model.Contact{}))
	assert.Equal(t, int64(1), f.count(t, &model.Chat{}))
	assert.Equal(t, int64(2), f.count(t, &model.UserChat{}, "unread_count = ?", 0))

	_, err = f.messages.Send(ctx, chatID, "alice", "Alice Liddell", "hi", "")
	require.NoError(t, err)

	bobChats, err := f.chats.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobChats, 1)
	assert.Equal(t, 1, bobChats[0].UnreadCount)
	assert.Equal(t, "Alice Liddell", bobChats[0].ContactName)
	assert.Equal(t, "AL", bobChats[0].Avatar)
	require.NotNil(t, bobChats[0].LastMessage)
	assert.Equal(t, "hi", bobChats[0].LastMessage.Text)

	aliceChats, err := f.chats.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceChats, 1)
	assert.Equal(t, "Bobby", aliceChats[0].ContactName)
	assert.Equal(t, 0, aliceChats[0].UnreadCount)

	_, err = f.messages.MarkRead(ctx, chatID, "bob")
	require.NoError(t, err)
	messages, err := f.messages.Latest(ctx, chatID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.NotNil(t, messages[0].ReadBy["bob"])

	bobChats, err = f.chats.List(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, bobChats[0].UnreadCount)

	deleted, err := f.contacts.Delete(ctx, "alice", "bob", chatID)
	require.NoError(t, err)
	require.True(t, deleted.OK())
	assert.Equal(t, int64(1), f.count(t, &model.Chat{}))
	assert.Equal(t, int64(1), f.count(t, &model.Message{}))

	aliceChats, err = f.chats.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, aliceChats)
	bobChats, err = f.chats.List(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bobChats, 1)

	deleted, err = f.contacts.Delete(ctx, "bob", "alice", "")
	require.NoError(t, err)
	require.True(t, deleted.OK())
	assert.Zero(t, f.count(t, &model.Chat{}))
	assert.Zero(t, f.count(t, &model.Message{}))
	assert.Zero(t, f.count(t, &model.MessageRead{}))
	assert.Zero(t, f.count(t, &model.UserChat{}))

	bobChats, err = f.chats.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobChats)
}

func TestListSortsByActivityThenChatID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	seed := func(chatID, other string, updated time.Time, lastMessage *time.Time) {
		require.NoError(t, f.db.Create(&model.Chat{
			ID: chatID, CreatedAt: base, UpdatedAt: updated,
			LastMessageAt: lastMessage, LastMessageText: "x",
		}).Error)
		require.NoError(t, f.db.Create(&model.ChatParticipant{ChatID: chatID, UserID: "alice"}).Error)
		require.NoError(t, f.db.Create(&model.ChatParticipant{ChatID: chatID, UserID: other}).Error)
		require.NoError(t, f.db.Create(&model.UserChat{UserID: "alice", ChatID: chatID, LastSeen: base}).Error)
	}

	seed("chat_c", "carol", base, nil)
	seed("chat_b", "bob", base, nil)
	seed("chat_a", "dave", base.Add(time.Minute), &later)

	summaries, err := f.chats.List(ctx, "alice")
	require.NoError(t, err)
	ids := []string{}
	for _, s := range summaries {
		ids = append(ids, s.ChatID)
	}
	assert.Equal(t, []string{"chat_a", "chat_b", "chat_c"}, ids)

	// bob is in the directory, carol and dave are not
	assert.Equal(t, "Bob Builder", summaries[1].ContactName)
	assert.Equal(t, "bob@example.com", summaries[1].ContactEmail)
	assert.Empty(t, summaries[2].ContactName)
}

func TestListSkipsPurgedChatsAndTombstones(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()

	require.NoError(t, f.db.Create(&model.UserChat{UserID: "alice", ChatID: "chat_gone", LastSeen: now}).Error)

	chatID := utils.ChatID("alice", "bob")
	require.NoError(t, f.db.Create(&model.Chat{ID: chatID, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, f.db.Create(&model.ChatParticipant{ChatID: chatID, UserID: "alice"}).Error)
	require.NoError(t, f.db.Create(&model.ChatParticipant{ChatID: chatID, UserID: "bob"}).Error)
	require.NoError(t, f.db.Create(&model.UserChat{UserID: "alice", ChatID: chatID, LastSeen: now}).Error)
	require.NoError(t, f.db.Create(&model.Contact{
		OwnerID: "alice", ContactUserID: "bob", ContactName: "Bob", ChatID: chatID,
		State: model.ContactDeleted, AddedAt: now,
	}).Error)

	summaries, err := f.chats.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestSelfChatFallsBackToDirectory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()
	chatID := utils.ChatID("alice", "alice")

	require.NoError(t, f.db.Create(&model.Chat{ID: chatID, IsSelfChat: true, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, f.db.Create(&model.ChatParticipant{ChatID: chatID, UserID: "alice"}).Error)
	require.NoError(t, f.db.Create(&model.UserChat{UserID: "alice", ChatID: chatID, LastSeen: now}).Error)

	summaries, err := f.chats.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].IsSelfChat)
	assert.Equal(t, "alice", summaries[0].ContactUserID)
	assert.Equal(t, "Alice Liddell (You)", summaries[0].ContactName)
	assert.Equal(t, "AL", summaries[0].Avatar)
}

func TestSubscribeFollowsIncomingMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	added, err := f.contacts.Add(ctx, "alice", contact.AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	require.True(t, added.OK())

	updates := make(chan []model.ChatSummary, 16)
	unsubscribe := f.chats.Subscribe("bob", func(s []model.ChatSummary) { updates <- s })
	defer unsubscribe()

	_, err = f.messages.Send(ctx, added.ChatID, "alice", "Alice", "ping", "")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-updates:
			if len(s) == 1 && s[0].UnreadCount == 1 {
				return
			}
		case <-deadline:
			t.Fatal("chat list never showed the unread message")
		}
	}
}
