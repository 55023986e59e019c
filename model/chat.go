package model

import "time"

type Chat struct {
	ID         string    `gorm:"primaryKey;size:160" json:"chatId"`
	IsSelfChat bool      `json:"isSelfChat"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	LastMessageText     string     `json:"-"`
	LastMessageSenderID string     `json:"-"`
	LastMessageType     string     `json:"-"`
	LastMessageAt       *time.Time `json:"-"`
}

type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// LastMessage returns the cached preview, nil when the chat has none.
func (c *Chat) LastMessage() *LastMessage {
	if c.LastMessageAt == nil {
		return nil
	}
	return &LastMessage{
		Text:      c.LastMessageText,
		SenderID:  c.LastMessageSenderID,
		Timestamp: *c.LastMessageAt,
		Type:      c.LastMessageType,
	}
}

// ActivityAt is the recency key: last message, then update, then creation.
func (c *Chat) ActivityAt() time.Time {
	switch {
	case c.LastMessageAt != nil:
		return *c.LastMessageAt
	case !c.UpdatedAt.IsZero():
		return c.UpdatedAt
	default:
		return c.CreatedAt
	}
}

type ChatParticipant struct {
	ChatID string `gorm:"primaryKey;size:160"`
	UserID string `gorm:"primaryKey;size:64;index"`
}

// UserChat is one user's private state of a chat.
type UserChat struct {
	UserID      string    `gorm:"primaryKey;size:64" json:"userId"`
	ChatID      string    `gorm:"primaryKey;size:160;index" json:"chatId"`
	LastSeen    time.Time `json:"lastSeen"`
	UnreadCount int       `gorm:"not null;default:0" json:"unreadCount"`
	Archived    bool      `gorm:"not null;default:false" json:"archived"`
}

// ChatSummary is the denormalized row of a user's chat list.
type ChatSummary struct {
	ChatID        string       `json:"chatId"`
	ContactName   string       `json:"contactName"`
	ContactEmail  string       `json:"contactEmail"`
	Avatar        string       `json:"avatar"`
	ContactUserID string       `json:"contactUserId"`
	IsSelfChat    bool         `json:"isSelfChat"`
	LastMessage   *LastMessage `json:"lastMessage"`
	UnreadCount   int          `json:"unreadCount"`
	Archived      bool         `json:"archived"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	ActivityAt    time.Time    `json:"-"`
}
