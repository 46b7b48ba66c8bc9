package domain

import "time"

const (
	AuditActionLogin               = "LOGIN"
	AuditActionLoginFailed         = "LOGIN_FAILED"
	AuditActionGrantPermission     = "GRANT_PERMISSION"
	AuditActionRevokePermission    = "REVOKE_PERMISSION"
	AuditActionChangeRole          = "CHANGE_ROLE"
	AuditActionIPBlocked           = "IP_BLOCKED"
	AuditActionIPUnblocked         = "IP_UNBLOCKED"
	AuditActionAccountLocked       = "ACCOUNT_LOCKED"
	AuditActionAccountUnlocked     = "ACCOUNT_UNLOCKED"
	AuditActionRequireReauth       = "REQUIRE_REAUTH"
	AuditActionEmergencyLockdown   = "EMERGENCY_LOCKDOWN"
	AuditActionLockdownDeactivated = "EMERGENCY_LOCKDOWN_DEACTIVATED"
	AuditActionSecurityResponse    = "SECURITY_RESPONSE"
	AuditActionSecurityAlertSent   = "SECURITY_ALERT_SENT"
	AuditActionPasswordChanged     = "PASSWORD_CHANGED"
	AuditTargetUser                = "user"
	AuditTargetSystem              = "system"
)

// PrivilegeAuditActions are the audit actions that count as privilege mutations.
var PrivilegeAuditActions = []string{
	AuditActionGrantPermission,
	AuditActionRevokePermission,
	AuditActionChangeRole,
}

type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActorID    *uint     `gorm:"index" json:"actor_id,omitempty"`
	Action     string    `gorm:"size:64;index:idx_audit_action_created,priority:1;not null" json:"action"`
	TargetType string    `gorm:"size:32" json:"target_type"`
	TargetID   *string   `gorm:"size:64" json:"target_id,omitempty"`
	IPAddress  string    `gorm:"size:64;index" json:"ip_address"`
	Details    string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt  time.Time `gorm:"index:idx_audit_action_created,priority:2;not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
