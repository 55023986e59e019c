package model

import "time"

// ContactState is the lifecycle of a contact row. Deleted rows are tombstones
// that keep their chat id so the contact can be reactivated.
type ContactState string

const (
	ContactActive  ContactState = "active"
	ContactDeleted ContactState = "deleted"
)

type Contact struct {
	OwnerID       string       `gorm:"primaryKey;size:64" json:"ownerId"`
	ContactUserID string       `gorm:"primaryKey;size:64" json:"id"`
	ContactName   string       `gorm:"not null" json:"contactName"`
	ContactEmail  string       `json:"contactEmail"`
	Avatar        string       `json:"avatar"`
	ChatID        string       `gorm:"index;not null" json:"chatId"`
	IsSelfContact bool         `json:"isSelfContact"`
	State         ContactState `gorm:"size:16;not null;default:active" json:"state"`
	AddedAt       time.Time    `json:"addedAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func (c *Contact) Deleted() bool {
	return c.State == ContactDeleted
}

// Tombstone marks the contact deleted without dropping the row.
func (c *Contact) Tombstone(now time.Time) {
	c.State = ContactDeleted
	c.UpdatedAt = now
}

// Reactivate brings a tombstoned contact back with fresh metadata. The chat id
// is never changed.
func (c *Contact) Reactivate(name, avatar string, now time.Time) bool {
	if !c.Deleted() {
		return false
	}
	c.State = ContactActive
	c.ContactName = name
	c.Avatar = avatar
	c.AddedAt = now
	c.UpdatedAt = now
	return true
}
