package domain

import "time"

// SecurityResponse describes one executed mitigation.
type SecurityResponse struct {
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Automated bool      `json:"automated"`
}

// SecurityResponseRecord is the durable row for a SecurityResponse.
// (action, target, executed_at) is unique so a retried insert of the same response is a no-op.
type SecurityResponseRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Action     string    `gorm:"size:32;not null;uniqueIndex:idx_security_responses_key,priority:1" json:"action"`
	Target     string    `gorm:"size:128;not null;uniqueIndex:idx_security_responses_key,priority:2" json:"target"`
	ExecutedAt time.Time `gorm:"not null;uniqueIndex:idx_security_responses_key,priority:3" json:"executed_at"`
	Reason     string    `gorm:"type:text" json:"reason"`
	Automated  bool      `gorm:"not null" json:"automated"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SecurityResponseRecord) TableName() string { return "security_responses" }
