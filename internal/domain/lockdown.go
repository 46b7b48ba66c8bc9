package domain

import "time"

// LockdownRecordID is the primary key of the single lockdown_state row.
const LockdownRecordID = 1

type LockdownState struct {
	Active      bool       `json:"active"`
	Reason      string     `json:"reason,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	ActivatedBy string     `json:"activated_by,omitempty"`
}

type LockdownRecord struct {
	ID          uint       `gorm:"primaryKey;autoIncrement:false"`
	Active      bool       `gorm:"not null;default:false"`
	Reason      string     `gorm:"type:text"`
	ActivatedAt *time.Time `gorm:"column:activated_at"`
	ActivatedBy string     `gorm:"size:128"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

func (LockdownRecord) TableName() string { return "lockdown_state" }

func (r LockdownRecord) State() LockdownState {
	return LockdownState{
		Active:      r.Active,
		Reason:      r.Reason,
		ActivatedAt: r.ActivatedAt,
		ActivatedBy: r.ActivatedBy,
	}
}
