// Package chatlist builds a user's chat list from their chat memberships,
// contacts and the directory.
package chatlist

import (
	"context"
	"errors"
	"sort"

	"messenger-sync/directory"
	"messenger-sync/feed"
	"messenger-sync/logger"
	"messenger-sync/model"
	"messenger-sync/utils"

	"gorm.io/gorm"
)

type Aggregator struct {
	db    *gorm.DB
	users *directory.Directory
	feed  *feed.Hub
}

func New(db *gorm.DB, users *directory.Directory, hub *feed.Hub) *Aggregator {
	return &Aggregator{db: db, users: users, feed: hub}
}

// List returns the user's chats, most recent activity first. Chats behind a
// deleted contact and chats that no longer exist are left out.
func (a *Aggregator) List(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	db := a.db.WithContext(ctx)

	userChats := []model.UserChat{}
	if err := db.Where("user_id = ?", userID).Find(&userChats).Error; err != nil {
		return nil, utils.Transient("load user chats", err)
	}
	summaries := make([]model.ChatSummary, 0, len(userChats))
	if len(userChats) == 0 {
		return summaries, nil
	}

	chatIDs := make([]string, 0, len(userChats))
	for _, uc := range userChats {
		chatIDs = append(chatIDs, uc.ChatID)
	}

	chats := []model.Chat{}
	if err := db.Where("id IN ?", chatIDs).Find(&chats).Error; err != nil {
		return nil, utils.Transient("load chats", err)
	}
	chatsByID := make(map[string]model.Chat, len(chats))
	for _, chat := range chats {
		chatsByID[chat.ID] = chat
	}

	participants := []model.ChatParticipant{}
	if err := db.Where("chat_id IN ?", chatIDs).Find(&participants).Error; err != nil {
		return nil, utils.Transient("load participants", err)
	}
	counterpart := make(map[string]string, len(chats))
	for _, p := range participants {
		if p.UserID != userID {
			counterpart[p.ChatID] = p.UserID
		}
	}

	contacts := []model.Contact{}
	if err := db.Where("owner_id = ?", userID).Find(&contacts).Error; err != nil {
		return nil, utils.Transient("load contacts", err)
	}
	contactsByUser := make(map[string]model.Contact, len(contacts))
	for _, c := range contacts {
		contactsByUser[c.ContactUserID] = c
	}

	for _, uc := range userChats {
		chat, ok := chatsByID[uc.ChatID]
		if !ok {
			logger.L().Debugw("skipping purged chat", "user", userID, "chat", uc.ChatID)
			continue
		}

		contactUserID, isSelf := counterpart[chat.ID], false
		if contactUserID == "" {
			contactUserID, isSelf = userID, true
		}

		summary := model.ChatSummary{
			ChatID:        chat.ID,
			ContactUserID: contactUserID,
			IsSelfChat:    isSelf,
			LastMessage:   chat.LastMessage(),
			UnreadCount:   uc.UnreadCount,
			Archived:      uc.Archived,
			CreatedAt:     chat.CreatedAt,
			UpdatedAt:     chat.UpdatedAt,
			ActivityAt:    chat.ActivityAt(),
		}

		if contact, ok := contactsByUser[contactUserID]; ok {
			if contact.Deleted() {
				continue
			}
			summary.ContactName = contact.ContactName
			summary.ContactEmail = contact.ContactEmail
			summary.Avatar = contact.Avatar
		} else if err := a.fallback(ctx, &summary); err != nil {
			return nil, err
		}

		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].ActivityAt.Equal(summaries[j].ActivityAt) {
			return summaries[i].ChatID < summaries[j].ChatID
		}
		return summaries[i].ActivityAt.After(summaries[j].ActivityAt)
	})
	return summaries, nil
}

// Subscribe delivers the list now and again whenever it may have changed.
func (a *Aggregator) Subscribe(userID string, cb func([]model.ChatSummary)) (unsubscribe func()) {
	return a.feed.Subscribe(feed.ChatListTopic(userID), func() {
		summaries, err := a.List(context.Background(), userID)
		if err != nil {
			logger.L().Warnw("chat list subscription read failed", "user", userID, "error", err)
			return
		}
		cb(summaries)
	})
}

// fallback names a chat from the directory when the user has no contact row
// for the other side yet.
func (a *Aggregator) fallback(ctx context.Context, summary *model.ChatSummary) error {
	user, err := a.users.Get(ctx, summary.ContactUserID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	name := user.Name()
	summary.Avatar = utils.Initials(name)
	if summary.IsSelfChat {
		name = utils.SelfName(name)
	}
	summary.ContactName = name
	summary.ContactEmail = user.Email
	return nil
}
