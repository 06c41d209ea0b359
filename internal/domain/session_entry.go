package domain

import "time"

// SessionEntry is one key of the session store when it is backed by a SQL
// database. A nil ExpiresAt never expires.
type SessionEntry struct {
	Key       string     `gorm:"primaryKey;size:255"`
	Value     string     `gorm:"type:text;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (SessionEntry) TableName() string { return "session_entries" }
