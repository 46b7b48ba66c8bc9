package domain

import "time"

type Session struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index:idx_sessions_user_last_used,priority:1;not null" json:"user_id"`
	TokenRef   string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	IPAddress  string    `gorm:"size:64" json:"ip_address"`
	UserAgent  string    `gorm:"size:512" json:"user_agent"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	LastUsedAt time.Time `gorm:"index:idx_sessions_user_last_used,priority:2;not null" json:"last_used_at"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expires_at"`
}

// Live reports whether the session has not yet expired at now.
func (s Session) Live(now time.Time) bool {
	return s.ExpiresAt.After(now)
}
