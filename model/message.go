package model

import "time"

const MessageTypeText = "text"

type Message struct {
	ChatID     string    `gorm:"primaryKey;size:160;index:idx_messages_order,priority:1" json:"chatId"`
	ID         string    `gorm:"primaryKey;size:64;index:idx_messages_order,priority:3" json:"id"`
	Timestamp  time.Time `gorm:"column:sent_at;not null;index:idx_messages_order,priority:2" json:"timestamp"`
	Text       string    `gorm:"not null" json:"text"`
	SenderID   string    `gorm:"size:64;not null" json:"senderId"`
	SenderName string    `json:"senderName"`
	Type       string    `gorm:"size:32;not null" json:"type"`
}

// MessageRead is one entry of a message's readBy map. ReadAt only ever moves
// from nil to a timestamp.
type MessageRead struct {
	ChatID    string     `gorm:"primaryKey;size:160;index:idx_message_reads_user,priority:1"`
	MessageID string     `gorm:"primaryKey;size:64"`
	UserID    string     `gorm:"primaryKey;size:64;index:idx_message_reads_user,priority:2"`
	ReadAt    *time.Time
}

type MessageView struct {
	ID         string                `json:"id"`
	ChatID     string                `json:"chatId"`
	Text       string                `json:"text"`
	SenderID   string                `json:"senderId"`
	SenderName string                `json:"senderName"`
	Timestamp  time.Time             `json:"timestamp"`
	Type       string                `json:"type"`
	ReadBy     map[string]*time.Time `json:"readBy"`
}
