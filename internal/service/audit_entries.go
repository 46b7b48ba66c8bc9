package service

import (
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
)

func auditEntry(action string, actorID *uint, targetType, targetID, ip string, details map[string]any, at time.Time) *domain.AuditLog {
	entry := &domain.AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		IPAddress:  ip,
		Details:    domain.EncodeDetails(details),
		CreatedAt:  at,
	}
	if targetID != "" {
		entry.TargetID = &targetID
	}
	return entry
}

func userTarget(userID uint) string {
	return "user_" + userKey(userID)
}

func uintRef(v uint) *uint { return &v }
