package domain

import (
	"encoding/json"
	"time"
)

// SecurityEvent is security telemetry. It lives in its own table and is never written to audit_logs.
type SecurityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"size:64;index;not null" json:"event_type"`
	Severity  Severity  `gorm:"size:16;index;not null" json:"severity"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	IPAddress *string   `gorm:"size:64" json:"ip_address,omitempty"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Details   string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

func (SecurityEvent) TableName() string { return "security_events" }

// DetailMap decodes Details; malformed or empty payloads yield an empty map.
func (e SecurityEvent) DetailMap() map[string]any {
	out := map[string]any{}
	if e.Details == "" {
		return out
	}
	_ = json.Unmarshal([]byte(e.Details), &out)
	return out
}

// EncodeDetails serializes a details map for storage.
func EncodeDetails(details map[string]any) string {
	if len(details) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
