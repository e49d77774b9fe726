package models

import (
	"time"
)

// TicketRow is the persisted shape of a ticket. Payload holds the
// kind-specific intake data as JSON, serialized by each ticket variant.
type TicketRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	ChannelID   string `gorm:"index"`
	Kind        string `gorm:"not null;index"`
	OwnerID     uint64 `gorm:"not null;index"`
	OpenedAt    time.Time
	Open        bool `gorm:"not null;index"`
	ClosedBy    *uint64
	CloseReason *string
	Payload     string `gorm:"type:text"`
}

// AppealBlacklistEntry marks an identity that may not open appeals or
// disputes. Domain distinguishes chat-platform identities from game ones.
type AppealBlacklistEntry struct {
	UserID      uint64    `gorm:"primaryKey;autoIncrement:false"`
	Domain      string    `gorm:"primaryKey"`
	ModeratorID uint64    `gorm:"not null"`
	Reason      string    `gorm:"not null"`
	At          time.Time `gorm:"not null"`
}
