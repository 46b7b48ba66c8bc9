package domain

import "time"

// PasswordHistory rows are append-only and only removed together with the owning account.
type PasswordHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index:idx_password_history_user_created,priority:1;not null" json:"user_id"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"index:idx_password_history_user_created,priority:2;not null" json:"created_at"`
}

func (PasswordHistory) TableName() string { return "password_history" }
