// Package contact manages each user's contact list and the chats the
// contacts link to.
package contact

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"messenger-sync/directory"
	"messenger-sync/event"
	"messenger-sync/feed"
	"messenger-sync/logger"
	"messenger-sync/metrics"
	"messenger-sync/model"
	"messenger-sync/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Graph struct {
	db     *gorm.DB
	users  *directory.Directory
	feed   *feed.Hub
	events *event.Emitter
	now    func() time.Time
}

type AddRequest struct {
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	Avatar       string `json:"avatar"`
}

func NewGraph(db *gorm.DB, users *directory.Directory, hub *feed.Hub, events *event.Emitter) *Graph {
	return &Graph{
		db:     db,
		users:  users,
		feed:   hub,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Add links ownerID to the user registered under req.ContactEmail. Both
// sides get a contact row and share one chat. A tombstoned contact is
// reactivated with its original chat id.
func (g *Graph) Add(ctx context.Context, ownerID string, req AddRequest) (*utils.Result, error) {
	result, err := g.add(ctx, ownerID, req)
	if err == nil {
		metrics.ContactOperations.WithLabelValues("add", string(result.Status)).Inc()
	}
	return result, err
}

func (g *Graph) add(ctx context.Context, ownerID string, req AddRequest) (*utils.Result, error) {
	name := strings.TrimSpace(req.ContactName)
	if name == "" {
		return utils.Failure(utils.KindValidation, "Contact name is required"), nil
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.ContactEmail)); err != nil {
		return utils.Failure(utils.KindValidation, "Invalid email address"), nil
	}

	owner, err := g.users.Get(ctx, ownerID)
	if errors.Is(err, utils.ErrNotFound) {
		return utils.Failure(utils.KindNotFound, "Your profile was not found"), nil
	}
	if err != nil {
		return nil, err
	}

	target, err := g.users.FindUserByEmail(ctx, req.ContactEmail)
	if errors.Is(err, utils.ErrNotFound) {
		return utils.Failure(utils.KindNotFound, "Contact not found"), nil
	}
	if err != nil {
		return nil, err
	}

	isSelf := target.ID == ownerID
	if isSelf {
		name = utils.SelfName(name)
	}
	avatar := strings.TrimSpace(req.Avatar)
	if avatar == "" {
		avatar = utils.Initials(name)
	}

	now := g.now()
	var result *utils.Result
	reactivated := false

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findContact(tx, ownerID, target.ID)
		if err != nil {
			return err
		}

		if existing != nil {
			if !existing.Reactivate(name, avatar, now) {
				contactType := "this contact"
				if isSelf {
					contactType = "yourself"
				}
				result = utils.Warning(utils.KindAlreadyExists, "You have already added "+contactType+" to your chat list")
				return nil
			}
			existing.ContactEmail = target.Email
			if err := tx.Save(existing).Error; err != nil {
				return err
			}
			if err := ensureChat(tx, existing.ChatID, ownerID, target.ID, now); err != nil {
				return err
			}
			reactivated = true
			result = utils.Success("Contact re-added successfully")
			result.ChatID = existing.ChatID
			return nil
		}

		if !isSelf {
			reverse, err := findContact(tx, target.ID, ownerID)
			if err != nil {
				return err
			}
			if reverse != nil && !reverse.Deleted() {
				result = utils.Warning(utils.KindAlreadyExists, "A chat between you and this contact already exists")
				return nil
			}
		}

		chatID := utils.ChatID(ownerID, target.ID)

		// A concurrent add from the other side may have written this row
		// first. The owner's own naming wins on their row.
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "contact_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"contact_name", "contact_email", "avatar", "chat_id", "state", "added_at", "updated_at"}),
		}).Create(&model.Contact{
			OwnerID:       ownerID,
			ContactUserID: target.ID,
			ContactName:   name,
			ContactEmail:  target.Email,
			Avatar:        avatar,
			ChatID:        chatID,
			IsSelfContact: isSelf,
			State:         model.ContactActive,
			AddedAt:       now,
			UpdatedAt:     now,
		}).Error
		if err != nil {
			return err
		}

		if !isSelf {
			ownerName := owner.Name()
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Contact{
				OwnerID:       target.ID,
				ContactUserID: ownerID,
				ContactName:   ownerName,
				ContactEmail:  owner.Email,
				Avatar:        utils.Initials(ownerName),
				ChatID:        chatID,
				State:         model.ContactActive,
				AddedAt:       now,
				UpdatedAt:     now,
			}).Error
			if err != nil {
				return err
			}
		}

		if err := ensureChat(tx, chatID, ownerID, target.ID, now); err != nil {
			return err
		}

		if isSelf {
			result = utils.Success("Personal chat created successfully")
		} else {
			result = utils.Success("Contact added successfully")
		}
		result.ChatID = chatID
		return nil
	})
	if err != nil {
		return nil, utils.Transient("add contact", err)
	}
	if !result.OK() {
		return result, nil
	}

	result.ContactUserID = target.ID
	result.IsSelfContact = isSelf

	g.feed.Publish(ctx,
		feed.ContactsTopic(ownerID), feed.ContactsTopic(target.ID),
		feed.ChatListTopic(ownerID), feed.ChatListTopic(target.ID),
	)
	g.events.Emit(event.ContactAdded, event.ContactPayload{
		OwnerID:       ownerID,
		ContactUserID: target.ID,
		ChatID:        result.ChatID,
		ContactName:   name,
		Reactivated:   reactivated,
	})
	logger.L().Debugw("contact added", "owner", ownerID, "contact", target.ID, "chat", result.ChatID, "reactivated", reactivated)

	return result, nil
}

// Rename changes the owner's name for a contact. The counterparty is never
// touched.
func (g *Graph) Rename(ctx context.Context, ownerID, contactUserID, newName string) (*utils.Result, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return utils.Failure(utils.KindValidation, "Contact name is required"), nil
	}

	existing, err := findContact(g.db.WithContext(ctx), ownerID, contactUserID)
	if err != nil {
		return nil, utils.Transient("rename contact", err)
	}
	if existing == nil {
		metrics.ContactOperations.WithLabelValues("rename", string(utils.StatusError)).Inc()
		return utils.Failure(utils.KindNotFound, "Contact not found"), nil
	}
	if existing.IsSelfContact {
		newName = utils.SelfName(newName)
	}

	err = g.db.WithContext(ctx).Model(&model.Contact{}).
		Where("owner_id = ? AND contact_user_id = ?", ownerID, contactUserID).
		Updates(map[string]interface{}{
			"contact_name": newName,
			"avatar":       utils.Initials(newName),
			"updated_at":   g.now(),
		}).Error
	if err != nil {
		return nil, utils.Transient("rename contact", err)
	}

	metrics.ContactOperations.WithLabelValues("rename", string(utils.StatusSuccess)).Inc()
	g.feed.Publish(ctx, feed.ContactsTopic(ownerID), feed.ChatListTopic(ownerID))
	g.events.Emit(event.ContactRenamed, event.ContactPayload{
		OwnerID:       ownerID,
		ContactUserID: contactUserID,
		ChatID:        existing.ChatID,
		ContactName:   newName,
	})

	result := utils.Success("Contact name updated successfully")
	result.ChatID = existing.ChatID
	result.ContactUserID = contactUserID
	result.IsSelfContact = existing.IsSelfContact
	return result, nil
}

// Delete tombstones the owner's contact and archives their side of the chat.
// When the counterparty has no active contact back, the chat and its
// history are purged for both. An empty chatID means the contact's own chat.
func (g *Graph) Delete(ctx context.Context, ownerID, contactUserID, chatID string) (*utils.Result, error) {
	now := g.now()
	var result *utils.Result
	purged := false

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findContact(tx, ownerID, contactUserID)
		if err != nil {
			return err
		}
		if existing == nil {
			result = utils.Failure(utils.KindNotFound, "Contact not found")
			return nil
		}
		if chatID == "" {
			chatID = existing.ChatID
		}
		if chatID != existing.ChatID {
			result = utils.Failure(utils.KindValidation, "Chat does not belong to this contact")
			return nil
		}

		existing.Tombstone(now)
		if err := tx.Save(existing).Error; err != nil {
			return err
		}
		err = tx.Model(&model.UserChat{}).
			Where("user_id = ? AND chat_id = ?", ownerID, chatID).
			Update("archived", true).Error
		if err != nil {
			return err
		}

		other, err := findContact(tx, contactUserID, ownerID)
		if err != nil {
			return err
		}
		if other == nil || other.Deleted() {
			if err := purgeChat(tx, chatID); err != nil {
				return err
			}
			purged = true
		}

		result = utils.Success("Contact deleted successfully")
		result.ChatID = chatID
		result.ContactUserID = contactUserID
		result.IsSelfContact = existing.IsSelfContact
		return nil
	})
	if err != nil {
		return nil, utils.Transient("delete contact", err)
	}

	metrics.ContactOperations.WithLabelValues("delete", string(result.Status)).Inc()
	if !result.OK() {
		return result, nil
	}

	topics := []string{
		feed.ContactsTopic(ownerID),
		feed.ChatListTopic(ownerID), feed.ChatListTopic(contactUserID),
	}
	if purged {
		metrics.ChatsPurged.Inc()
		topics = append(topics, feed.MessagesTopic(chatID))
	}
	g.feed.Publish(ctx, topics...)
	g.events.Emit(event.ContactDeleted, event.ContactPayload{
		OwnerID:       ownerID,
		ContactUserID: contactUserID,
		ChatID:        chatID,
		Purged:        purged,
	})

	return result, nil
}

// ClearHistory drops every message of a chat and zeroes all unread
// counters. The chat and contacts stay.
func (g *Graph) ClearHistory(ctx context.Context, actorID, chatID string) (*utils.Result, error) {
	participants := []string{}
	err := g.db.WithContext(ctx).Model(&model.ChatParticipant{}).
		Where("chat_id = ?", chatID).
		Pluck("user_id", &participants).Error
	if err != nil {
		return nil, utils.Transient("clear history", err)
	}
	if len(participants) == 0 {
		return utils.Failure(utils.KindNotFound, "Chat not found"), nil
	}
	if !contains(participants, actorID) {
		return utils.Failure(utils.KindUnauthorized, "You are not a participant of this chat"), nil
	}

	now := g.now()
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.MessageRead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Updates(map[string]interface{}{
			"last_message_text":      "",
			"last_message_sender_id": "",
			"last_message_type":      "",
			"last_message_at":        nil,
			"updated_at":             now,
		}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.UserChat{}).Where("chat_id = ?", chatID).Update("unread_count", 0).Error
	})
	if err != nil {
		return nil, utils.Transient("clear history", err)
	}

	topics := []string{feed.MessagesTopic(chatID)}
	for _, userID := range participants {
		topics = append(topics, feed.ChatListTopic(userID))
	}
	g.feed.Publish(ctx, topics...)
	g.events.Emit(event.ChatCleared, event.ChatPayload{ChatID: chatID, UserID: actorID, At: now})

	result := utils.Success("Chat history cleared successfully")
	result.ChatID = chatID
	return result, nil
}

// List returns the owner's active contacts ordered by name.
func (g *Graph) List(ctx context.Context, ownerID string) ([]model.Contact, error) {
	contacts := []model.Contact{}
	err := g.db.WithContext(ctx).
		Where("owner_id = ? AND state = ?", ownerID, model.ContactActive).
		Order("contact_name asc").Order("contact_user_id asc").
		Find(&contacts).Error
	if err != nil {
		return nil, utils.Transient("list contacts", err)
	}
	return contacts, nil
}

func (g *Graph) Subscribe(ownerID string, cb func([]model.Contact)) (unsubscribe func()) {
	return g.feed.Subscribe(feed.ContactsTopic(ownerID), func() {
		contacts, err := g.List(context.Background(), ownerID)
		if err != nil {
			logger.L().Warnw("contacts subscription read failed", "owner", ownerID, "error", err)
			return
		}
		cb(contacts)
	})
}

func findContact(db *gorm.DB, ownerID, contactUserID string) (*model.Contact, error) {
	contacts := []model.Contact{}
	err := db.Where("owner_id = ? AND contact_user_id = ?", ownerID, contactUserID).
		Limit(1).Find(&contacts).Error
	if err != nil || len(contacts) == 0 {
		return nil, err
	}
	return &contacts[0], nil
}

// ensureChat creates the chat, its participants and their user chats when
// missing and unarchives the owner's side. Existing rows are left alone.
func ensureChat(tx *gorm.DB, chatID, ownerID, contactUserID string, now time.Time) error {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Chat{
		ID:         chatID,
		IsSelfChat: ownerID == contactUserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
	if err != nil {
		return err
	}

	members := []string{ownerID}
	if contactUserID != ownerID {
		members = append(members, contactUserID)
	}
	for _, userID := range members {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.ChatParticipant{ChatID: chatID, UserID: userID}).Error
		if err != nil {
			return err
		}
		err = tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.UserChat{UserID: userID, ChatID: chatID, LastSeen: now}).Error
		if err != nil {
			return err
		}
	}

	return tx.Model(&model.UserChat{}).
		Where("user_id = ? AND chat_id = ?", ownerID, chatID).
		Update("archived", false).Error
}

func purgeChat(tx *gorm.DB, chatID string) error {
	for _, record := range []interface{}{
		&model.MessageRead{},
		&model.Message{},
		&model.ChatParticipant{},
		&model.UserChat{},
	} {
		if err := tx.Where("chat_id = ?", chatID).Delete(record).Error; err != nil {
			return err
		}
	}
	return tx.Where("id = ?", chatID).Delete(&model.Chat{}).Error
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
