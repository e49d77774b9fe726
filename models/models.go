package models

import (
	"strconv"
	"time"
)

// BanRecord is a single entry in a player's punishment history. The composite
// primary key (user_id, starts_at) allows at most one record per distinct
// start time; inserting a duplicate start time replaces the earlier record.
type BanRecord struct {
	UserID      uint64    `gorm:"primaryKey;autoIncrement:false"`
	StartsAt    time.Time `gorm:"primaryKey"`
	EndsAt      *time.Time
	ModeratorID *uint64
	Reason      *string
	Legacy      bool    `gorm:"not null;default:false"`
	TicketID    *uint64 `gorm:"index"`
}

// Permanent reports whether the ban has no scheduled end.
func (b *BanRecord) Permanent() bool {
	return b.EndsAt == nil
}

// Active reports whether the ban is in force at the given instant.
func (b *BanRecord) Active(now time.Time) bool {
	return b.EndsAt == nil || b.EndsAt.After(now)
}

// Days returns the ban length rounded up to whole days. Zero for permanent
// bans, matching the wire convention where length 0 means forever.
func (b *BanRecord) Days() int64 {
	if b.EndsAt == nil {
		return 0
	}
	d := b.EndsAt.Sub(b.StartsAt)
	days := int64(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// DurationLabel renders the ban length for display: "forever" or "N day(s)".
func (b *BanRecord) DurationLabel() string {
	if b.EndsAt == nil {
		return "forever"
	}
	days := b.Days()
	if days == 1 {
		return "1 day"
	}
	return strconv.FormatInt(days, 10) + " days"
}

// UnbanRecord is an append-only audit entry; rows are never updated.
type UnbanRecord struct {
	ID          uint64 `gorm:"primaryKey"`
	UserID      uint64 `gorm:"not null;index"`
	ModeratorID *uint64
	At          time.Time `gorm:"not null"`
}

// Evidence is a content record attached to reports and bans. The id is
// derived from creation time and stable thereafter; content fields are
// updatable via upsert-by-id.
type Evidence struct {
	ID               int64 `gorm:"primaryKey;autoIncrement:false"`
	CapturedOffsetMs int64 `gorm:"not null"`
	AccusedID        *uint64
	Details          string `gorm:"not null"`
	URL              string `gorm:"not null"`
}

// TicketEvidenceLink associates a ticket with a piece of evidence.
type TicketEvidenceLink struct {
	TicketID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	EvidenceID int64  `gorm:"primaryKey;autoIncrement:false"`
}

// BanEvidenceLink associates a ban (identified by user and start time) with
// a piece of evidence.
type BanEvidenceLink struct {
	UserID     uint64    `gorm:"primaryKey;autoIncrement:false"`
	StartsAt   time.Time `gorm:"primaryKey"`
	EvidenceID int64     `gorm:"primaryKey;autoIncrement:false"`
}
