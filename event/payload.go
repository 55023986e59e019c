package event

import "time"

type ContactPayload struct {
	OwnerID       string `json:"ownerId"`
	ContactUserID string `json:"contactUserId"`
	ChatID        string `json:"chatId"`
	ContactName   string `json:"contactName,omitempty"`
	Reactivated   bool   `json:"reactivated,omitempty"`
	Purged        bool   `json:"purged,omitempty"`
}

type ChatPayload struct {
	ChatID string    `json:"chatId"`
	UserID string    `json:"userId"`
	Count  int64     `json:"count,omitempty"`
	At     time.Time `json:"at"`
}

type MessagePayload struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// IdentityProfile is a user profile handed over by the identity provider.
type IdentityProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
}
