// Package messenger stores chats, messages and per-user read state.
package messenger

import (
	"context"
	"sort"
	"strings"
	"time"

	"messenger-sync/event"
	"messenger-sync/feed"
	"messenger-sync/logger"
	"messenger-sync/metrics"
	"messenger-sync/model"
	"messenger-sync/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200

	touchTimeout = 5 * time.Second
)

// Toucher records user activity. It must not fail the caller.
type Toucher interface {
	Touch(ctx context.Context, userID string)
}

type Store struct {
	db       *gorm.DB
	feed     *feed.Hub
	presence Toucher
	events   *event.Emitter
	pageSize int
	now      func() time.Time
}

type SendResult struct {
	MessageID  string    `json:"messageId"`
	IsSelfChat bool      `json:"isSelfChat"`
	Timestamp  time.Time `json:"timestamp"`
}

// Cursor points at the oldest message a client holds. MessageID breaks
// timestamp ties and may be empty.
type Cursor struct {
	Timestamp time.Time
	MessageID string
}

func NewStore(db *gorm.DB, hub *feed.Hub, presence Toucher, events *event.Emitter) *Store {
	return &Store{
		db:       db,
		feed:     hub,
		presence: presence,
		events:   events,
		pageSize: DefaultPageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) WithPageSize(n int) *Store {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// Send stores a message and updates the chat preview and every recipient's
// unread counter in one transaction.
func (s *Store) Send(ctx context.Context, chatID, senderID, senderName, text, msgType string) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, utils.Validation("message text is required")
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}

	participants, err := s.requireParticipant(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	message := model.Message{
		ChatID:     chatID,
		ID:         utils.MessageID(),
		Timestamp:  now,
		Text:       text,
		SenderID:   senderID,
		SenderName: senderName,
		Type:       msgType,
	}

	reads := make([]model.MessageRead, 0, len(participants))
	for _, userID := range participants {
		read := model.MessageRead{ChatID: chatID, MessageID: message.ID, UserID: userID}
		if userID == senderID {
			read.ReadAt = &now
		}
		reads = append(reads, read)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		if err := tx.Create(&reads).Error; err != nil {
			return err
		}

		err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Updates(map[string]interface{}{
			"last_message_text":      text,
			"last_message_sender_id": senderID,
			"last_message_type":      msgType,
			"last_message_at":        now,
			"updated_at":             now,
		}).Error
		if err != nil {
			return err
		}

		for _, userID := range participants {
			if userID == senderID {
				continue
			}
			res := tx.Model(&model.UserChat{}).
				Where("user_id = ? AND chat_id = ?", userID, chatID).
				UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				err := tx.Create(&model.UserChat{UserID: userID, ChatID: chatID, LastSeen: now, UnreadCount: 1}).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, utils.Transient("send message", err)
	}

	metrics.MessagesSent.WithLabelValues(msgType).Inc()
	topics := []string{feed.MessagesTopic(chatID)}
	for _, userID := range participants {
		topics = append(topics, feed.ChatListTopic(userID))
	}
	s.feed.Publish(ctx, topics...)
	s.touch(senderID)
	s.events.Emit(event.MessageSent, event.MessagePayload{
		ChatID:    chatID,
		MessageID: message.ID,
		SenderID:  senderID,
		Type:      msgType,
		Timestamp: now,
	})

	return &SendResult{
		MessageID:  message.ID,
		IsSelfChat: len(participants) == 1,
		Timestamp:  now,
	}, nil
}

// Latest returns the newest limit messages, oldest first.
func (s *Store) Latest(ctx context.Context, chatID string, limit int) ([]model.MessageView, error) {
	messages := []model.Message{}
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("sent_at desc").Order("id desc").
		Limit(s.limit(limit)).
		Find(&messages).Error
	if err != nil {
		return nil, utils.Transient("load messages", err)
	}
	return s.views(ctx, chatID, messages)
}

// FetchOlder returns up to limit messages strictly before cursor in
// (timestamp, id) order, oldest first.
func (s *Store) FetchOlder(ctx context.Context, chatID string, cursor Cursor, limit int) ([]model.MessageView, error) {
	if cursor.Timestamp.IsZero() {
		return nil, utils.Validation("cursor timestamp is required")
	}
	ts := cursor.Timestamp.UTC()

	query := s.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if cursor.MessageID != "" {
		query = query.Where("(sent_at < ? OR (sent_at = ? AND id < ?))", ts, ts, cursor.MessageID)
	} else {
		query = query.Where("sent_at < ?", ts)
	}

	messages := []model.Message{}
	err := query.Order("sent_at desc").Order("id desc").Limit(s.limit(limit)).Find(&messages).Error
	if err != nil {
		return nil, utils.Transient("load older messages", err)
	}
	return s.views(ctx, chatID, messages)
}

// Subscribe delivers the newest limit messages now and after every change
// to the chat.
func (s *Store) Subscribe(chatID string, limit int, cb func([]model.MessageView)) (unsubscribe func()) {
	return s.feed.Subscribe(feed.MessagesTopic(chatID), func() {
		messages, err := s.Latest(context.Background(), chatID, limit)
		if err != nil {
			logger.L().Warnw("messages subscription read failed", "chat", chatID, "error", err)
			return
		}
		cb(messages)
	})
}

// MarkRead stamps every unread marker of userID in the chat and resets the
// unread counter. A second call changes nothing. It returns how many
// messages were marked.
func (s *Store) MarkRead(ctx context.Context, chatID, userID string) (int64, error) {
	if _, err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return 0, err
	}

	now := s.now()
	var marked int64
	changed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userChats := []model.UserChat{}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND chat_id = ?", userID, chatID).
			Limit(1).Find(&userChats).Error
		if err != nil {
			return err
		}

		res := tx.Model(&model.MessageRead{}).
			Where("chat_id = ? AND user_id = ? AND read_at IS NULL", chatID, userID).
			Update("read_at", now)
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected

		if len(userChats) == 0 {
			changed = true
			return tx.Create(&model.UserChat{UserID: userID, ChatID: chatID, LastSeen: now}).Error
		}
		if marked == 0 && userChats[0].UnreadCount == 0 {
			return nil
		}
		changed = true
		return tx.Model(&model.UserChat{}).
			Where("user_id = ? AND chat_id = ?", userID, chatID).
			Updates(map[string]interface{}{"unread_count": 0, "last_seen": now}).Error
	})
	if err != nil {
		return 0, utils.Transient("mark read", err)
	}

	s.touch(userID)
	if !changed {
		return 0, nil
	}

	topics := []string{feed.ChatListTopic(userID)}
	if marked > 0 {
		topics = append(topics, feed.MessagesTopic(chatID))
	}
	s.feed.Publish(ctx, topics...)
	s.events.Emit(event.ChatRead, event.ChatPayload{ChatID: chatID, UserID: userID, Count: marked, At: now})

	return marked, nil
}

// Participants returns the chat's members in id order. An unknown chat has
// none.
func (s *Store) Participants(ctx context.Context, chatID string) ([]string, error) {
	participants := []string{}
	err := s.db.WithContext(ctx).Model(&model.ChatParticipant{}).
		Where("chat_id = ?", chatID).
		Order("user_id asc").
		Pluck("user_id", &participants).Error
	if err != nil {
		return nil, utils.Transient("load participants", err)
	}
	return participants, nil
}

func (s *Store) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, utils.Transient("check participant", err)
	}
	return count > 0, nil
}

func (s *Store) requireParticipant(ctx context.Context, chatID, userID string) ([]string, error) {
	participants, err := s.Participants(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, utils.NotFound("chat not found")
	}
	for _, id := range participants {
		if id == userID {
			return participants, nil
		}
	}
	return nil, utils.Unauthorized("not a participant of this chat")
}

// views attaches read markers and returns the messages oldest first.
func (s *Store) views(ctx context.Context, chatID string, messages []model.Message) ([]model.MessageView, error) {
	out := make([]model.MessageView, 0, len(messages))
	if len(messages) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}

	reads := []model.MessageRead{}
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND message_id IN ?", chatID, ids).
		Find(&reads).Error
	if err != nil {
		return nil, utils.Transient("load read markers", err)
	}

	readBy := make(map[string]map[string]*time.Time, len(messages))
	for _, r := range reads {
		if readBy[r.MessageID] == nil {
			readBy[r.MessageID] = make(map[string]*time.Time)
		}
		readBy[r.MessageID][r.UserID] = r.ReadAt
	}

	for _, m := range messages {
		markers := readBy[m.ID]
		if markers == nil {
			markers = make(map[string]*time.Time)
		}
		out = append(out, model.MessageView{
			ID:         m.ID,
			ChatID:     m.ChatID,
			Text:       m.Text,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Timestamp:  m.Timestamp,
			Type:       m.Type,
			ReadBy:     markers,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) limit(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func (s *Store) touch(userID string) {
	if s.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		s.presence.Touch(ctx, userID)
	}()
}
