package contact

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"messenger-sync/database"
	"messenger-sync/directory"
	"messenger-sync/feed"
	"messenger-sync/model"
	"messenger-sync/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newGraph(t *testing.T) (*Graph, *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	db := database.OpenTest(t)
	users := directory.New(db)
	require.NoError(t, users.Upsert(ctx, &model.User{ID: "alice", Email: "alice@example.com", DisplayName: "Alice"}))
	require.NoError(t, users.Upsert(ctx, &model.User{ID: "bob", Email: "bob@example.com", FirstName: "Bob", LastName: "Stone"}))
	return NewGraph(db, users, feed.NewHub(), nil), db
}

func getContact(t *testing.T, db *gorm.DB, owner, other string) *model.Contact {
	t.Helper()
	c, err := findContact(db, owner, other)
	require.NoError(t, err)
	return c
}

func countRows(t *testing.T, db *gorm.DB, record interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(record).Count(&n).Error)
	return n
}

func TestAddCreatesBothSides(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	res, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bobby", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "Contact added successfully", res.Message)
	assert.Equal(t, "bob", res.ContactUserID)
	assert.Equal(t, utils.ChatID("alice", "bob"), res.ChatID)

	mine := getContact(t, db, "alice", "bob")
	require.NotNil(t, mine)
	assert.Equal(t, "Bobby", mine.ContactName)
	assert.Equal(t, "B", mine.Avatar)

	theirs := getContact(t, db, "bob", "alice")
	require.NotNil(t, theirs)
	assert.Equal(t, "Alice", theirs.ContactName)
	assert.Equal(t, "alice@example.com", theirs.ContactEmail)
	assert.Equal(t, res.ChatID, theirs.ChatID)

	assert.Equal(t, int64(1), countRows(t, db, &model.Chat{}))
	assert.Equal(t, int64(2), countRows(t, db, &model.ChatParticipant{}))
	assert.Equal(t, int64(2), countRows(t, db, &model.UserChat{}))
}

func TestAddReportsBusinessOutcomes(t *testing.T) {
	ctx := context.Background()
	g, _ := newGraph(t)

	res, err := g.Add(ctx, "alice", AddRequest{ContactName: "", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, utils.StatusError, res.Status)
	assert.Equal(t, utils.KindValidation, res.Kind)

	res, err = g.Add(ctx, "alice", AddRequest{ContactName: "X", ContactEmail: "not-an-email"})
	require.NoError(t, err)
	assert.Equal(t, utils.KindValidation, res.Kind)

	res, err = g.Add(ctx, "alice", AddRequest{ContactName: "X", ContactEmail: "nobody@example.com"})
	require.NoError(t, err)
	assert.Equal(t, utils.KindNotFound, res.Kind)
	assert.Equal(t, "Contact not found", res.Message)

	res, err = g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	require.True(t, res.OK())

	res, err = g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, utils.StatusWarning, res.Status)
	assert.Equal(t, utils.KindAlreadyExists, res.Kind)
	assert.Equal(t, "You have already added this contact to your chat list", res.Message)

	// bob already has alice through the counterparty row
	res, err = g.Add(ctx, "bob", AddRequest{ContactName: "Al", ContactEmail: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, utils.StatusWarning, res.Status)
}

func TestFailedAddLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_user_chats", func(tx *gorm.DB) {
		if tx.Statement.Table == "user_chats" {
			_ = tx.AddError(errors.New("user_chats unavailable"))
		}
	}))

	res, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bobby", ContactEmail: "bob@example.com"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, utils.ErrTransient)

	assert.Zero(t, countRows(t, db, &model.Contact{}))
	assert.Zero(t, countRows(t, db, &model.Chat{}))
	assert.Zero(t, countRows(t, db, &model.ChatParticipant{}))
	assert.Zero(t, countRows(t, db, &model.UserChat{}))

	require.NoError(t, db.Callback().Create().Remove("test:fail_user_chats"))

	res, err = g.Add(ctx, "alice", AddRequest{ContactName: "Bobby", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Contact added successfully", res.Message)
	assert.Equal(t, int64(2), countRows(t, db, &model.UserChat{}))
}

func TestAddReverseActiveWarns(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)
	now := time.Now().UTC()

	require.NoError(t, db.Create(&model.Contact{
		OwnerID: "bob", ContactUserID: "alice", ContactName: "Alice",
		ChatID: utils.ChatID("alice", "bob"), State: model.ContactActive, AddedAt: now,
	}).Error)

	res, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, utils.StatusWarning, res.Status)
	assert.Equal(t, "A chat between you and this contact already exists", res.Message)
	assert.Nil(t, getContact(t, db, "alice", "bob"))
}

func TestSelfContact(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	res, err := g.Add(ctx, "alice", AddRequest{ContactName: "Me", ContactEmail: "alice@example.com"})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.True(t, res.IsSelfContact)
	assert.Equal(t, "Personal chat created successfully", res.Message)
	assert.Equal(t, "chat_alice_alice", res.ChatID)

	self := getContact(t, db, "alice", "alice")
	require.NotNil(t, self)
	assert.Equal(t, "Me (You)", self.ContactName)
	assert.Equal(t, "M", self.Avatar)
	assert.Equal(t, int64(1), countRows(t, db, &model.ChatParticipant{}))

	res, err = g.Add(ctx, "alice", AddRequest{ContactName: "Me", ContactEmail: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "You have already added yourself to your chat list", res.Message)

	renamed, err := g.Rename(ctx, "alice", "alice", "Notes")
	require.NoError(t, err)
	require.True(t, renamed.OK())
	assert.Equal(t, "Notes (You)", getContact(t, db, "alice", "alice").ContactName)

	deleted, err := g.Delete(ctx, "alice", "alice", "")
	require.NoError(t, err)
	require.True(t, deleted.OK())
	assert.Zero(t, countRows(t, db, &model.Chat{}))
}

func TestReactivationKeepsChatID(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	first, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)

	deleted, err := g.Delete(ctx, "alice", "bob", first.ChatID)
	require.NoError(t, err)
	require.True(t, deleted.OK())
	tomb := getContact(t, db, "alice", "bob")
	assert.True(t, tomb.Deleted())

	uc := model.UserChat{}
	require.NoError(t, db.Where("user_id = ? AND chat_id = ?", "alice", first.ChatID).First(&uc).Error)
	assert.True(t, uc.Archived)

	again, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bob Again", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	require.True(t, again.OK())
	assert.Equal(t, "Contact re-added successfully", again.Message)
	assert.Equal(t, first.ChatID, again.ChatID)

	back := getContact(t, db, "alice", "bob")
	assert.False(t, back.Deleted())
	assert.Equal(t, "Bob Again", back.ContactName)
	assert.Equal(t, "BA", back.Avatar)
	assert.Equal(t, int64(1), countRows(t, db, &model.Chat{}))

	require.NoError(t, db.Where("user_id = ? AND chat_id = ?", "alice", first.ChatID).First(&uc).Error)
	assert.False(t, uc.Archived)
}

func TestReactivationRestoresPurgedChat(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	first, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	_, err = g.Delete(ctx, "alice", "bob", "")
	require.NoError(t, err)
	_, err = g.Delete(ctx, "bob", "alice", "")
	require.NoError(t, err)
	require.Zero(t, countRows(t, db, &model.Chat{}))

	again, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)
	require.True(t, again.OK())
	assert.Equal(t, first.ChatID, again.ChatID)
	assert.Equal(t, int64(1), countRows(t, db, &model.Chat{}))
	assert.Equal(t, int64(2), countRows(t, db, &model.ChatParticipant{}))
	assert.Equal(t, int64(2), countRows(t, db, &model.UserChat{}))
	assert.True(t, getContact(t, db, "bob", "alice").Deleted())
}

func TestRenameOnlyTouchesOwner(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	_, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)

	res, err := g.Rename(ctx, "bob", "alice", "Ally Cat")
	require.NoError(t, err)
	require.True(t, res.OK())

	assert.Equal(t, "Ally Cat", getContact(t, db, "bob", "alice").ContactName)
	assert.Equal(t, "AC", getContact(t, db, "bob", "alice").Avatar)
	assert.Equal(t, "Bob", getContact(t, db, "alice", "bob").ContactName)

	res, err = g.Rename(ctx, "bob", "carol", "Carol")
	require.NoError(t, err)
	assert.Equal(t, utils.KindNotFound, res.Kind)

	res, err = g.Rename(ctx, "bob", "alice", " ")
	require.NoError(t, err)
	assert.Equal(t, utils.KindValidation, res.Kind)
}

func TestDeleteRejectsUnknownOrForeignChat(t *testing.T) {
	ctx := context.Background()
	g, _ := newGraph(t)

	res, err := g.Delete(ctx, "alice", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, utils.KindNotFound, res.Kind)

	_, err = g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)

	res, err = g.Delete(ctx, "alice", "bob", "chat_other_chat")
	require.NoError(t, err)
	assert.Equal(t, utils.KindValidation, res.Kind)
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	added, err := g.Add(ctx, "alice", AddRequest{ContactName: "Bob", ContactEmail: "bob@example.com"})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, db.Create(&model.Message{ChatID: added.ChatID, ID: "msg_1", Timestamp: now, Text: "hi", SenderID: "alice", Type: model.MessageTypeText}).Error)
	require.NoError(t, db.Create(&model.MessageRead{ChatID: added.ChatID, MessageID: "msg_1", UserID: "bob"}).Error)
	require.NoError(t, db.Model(&model.UserChat{}).Where("user_id = ?", "bob").Update("unread_count", 1).Error)
	require.NoError(t, db.Model(&model.Chat{}).Where("id = ?", added.ChatID).Updates(map[string]interface{}{"last_message_text": "hi", "last_message_at": now}).Error)

	res, err := g.ClearHistory(ctx, "mallory", added.ChatID)
	require.NoError(t, err)
	assert.Equal(t, utils.KindUnauthorized, res.Kind)

	res, err = g.ClearHistory(ctx, "alice", "chat_missing")
	require.NoError(t, err)
	assert.Equal(t, utils.KindNotFound, res.Kind)

	res, err = g.ClearHistory(ctx, "bob", added.ChatID)
	require.NoError(t, err)
	require.True(t, res.OK())

	assert.Zero(t, countRows(t, db, &model.Message{}))
	assert.Zero(t, countRows(t, db, &model.MessageRead{}))

	chat := model.Chat{}
	require.NoError(t, db.First(&chat, "id = ?", added.ChatID).Error)
	assert.Nil(t, chat.LastMessage())

	var unread int64
	require.NoError(t, db.Model(&model.UserChat{}).Where("unread_count > 0").Count(&unread).Error)
	assert.Zero(t, unread)
	assert.Equal(t, int64(2), countRows(t, db, &model.Contact{}))
}

func TestConcurrentAddsConverge(t *testing.T) {
	ctx := context.Background()
	g, db := newGraph(t)

	var wg sync.WaitGroup
	results := make([]*utils.Result, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = g.Add(ctx, "alice", AddRequest{ContactName: "Bobby", ContactEmail: "bob@example.com"})
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = g.Add(ctx, "bob", AddRequest{ContactName: "Ally", ContactEmail: "alice@example.com"})
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, int64(1), countRows(t, db, &model.Chat{}))
	assert.Equal(t, int64(2), countRows(t, db, &model.Contact{}))

	aliceView := getContact(t, db, "alice", "bob")
	bobView := getContact(t, db, "bob", "alice")
	assert.Equal(t, aliceView.ChatID, bobView.ChatID)
	if results[0].OK() {
		assert.Equal(t, "Bobby", aliceView.ContactName)
	}
	if results[1].OK() {
		assert.Equal(t, "Ally", bobView.ContactName)
	}
}
