package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:128;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:32;not null;default:user" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// AccountSecurityFlags holds the durable lock and re-authentication markers for an account.
type AccountSecurityFlags struct {
	UserID         uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Locked         bool       `gorm:"not null;default:false" json:"locked"`
	LockReason     string     `gorm:"type:text" json:"lock_reason,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	ReauthRequired bool       `gorm:"not null;default:false" json:"reauth_required"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (AccountSecurityFlags) TableName() string { return "account_security_flags" }
