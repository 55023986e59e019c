package model

import "time"

type Presence struct {
	UserID       string     `gorm:"primaryKey;size:64" json:"userId"`
	IsOnline     bool       `gorm:"not null;default:false" json:"isOnline"`
	LastSeen     *time.Time `gorm:"index" json:"lastSeen"`
	ConnectedAt  *time.Time `json:"connectedAt"`
	ConnectionID string     `json:"-"`
}
