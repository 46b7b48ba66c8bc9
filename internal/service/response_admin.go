package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
)

type AttemptResetter interface {
	ResetAttempts(ctx context.Context, userID uint) error
}

const defaultRecentResponses = 50

func (o *SecurityResponseOrchestrator) ListBlockedIPs(ctx context.Context) ([]IPBlock, error) {
	blocks, err := o.ipBlocks.List(ctx)
	if err != nil {
		return nil, storageErr("ip_block.list", err)
	}
	return blocks, nil
}

// UnblockIP lifts a block ahead of its expiry. Unblocking an address that is not blocked
// succeeds and writes no audit row.
func (o *SecurityResponseOrchestrator) UnblockIP(ctx context.Context, ip string, adminID uint) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return &ValidationError{Errors: []string{"ip address is required"}}
	}
	blocked, err := o.ipBlocks.IsBlocked(ctx, ip)
	if err != nil {
		return storageErr("ip_block.is_blocked", err)
	}
	if !blocked {
		return nil
	}
	if err := o.ipBlocks.Unblock(ctx, ip); err != nil {
		observability.RecordSecurityResponse(ctx, "UNBLOCK_IP", "error")
		return storageErr("ip_block.unblock", err)
	}
	observability.RecordSecurityResponse(ctx, "UNBLOCK_IP", "success")
	o.adminAudit(ctx, domain.AuditActionIPUnblocked, adminID, "ip", ip, "unblock_ip")
	return nil
}

// UnlockAccount clears an administrative lock and the user's failed login window.
func (o *SecurityResponseOrchestrator) UnlockAccount(ctx context.Context, userID, adminID uint) error {
	if err := o.flags.ClearLocked(ctx, userID); err != nil {
		observability.RecordSecurityResponse(ctx, "UNLOCK_ACCOUNT", "error")
		return storageErr("account_flags.clear_locked", err)
	}
	if o.attempts != nil {
		if err := o.attempts.ResetAttempts(ctx, userID); err != nil {
			observability.RecordSecurityResponse(ctx, "UNLOCK_ACCOUNT", "error")
			return err
		}
	}
	observability.RecordSecurityResponse(ctx, "UNLOCK_ACCOUNT", "success")
	o.adminAudit(ctx, domain.AuditActionAccountUnlocked, adminID, domain.AuditTargetUser, userTarget(userID), "unlock_account")
	return nil
}

func (o *SecurityResponseOrchestrator) RecentResponses(ctx context.Context, limit int) ([]domain.SecurityResponseRecord, error) {
	if o.responses == nil {
		return nil, nil
	}
	records, err := o.responses.ListRecent(ctx, clampLimit(limit, defaultRecentResponses))
	if err != nil {
		return nil, storageErr("security_response.list_recent", err)
	}
	return records, nil
}

func (o *SecurityResponseOrchestrator) adminAudit(ctx context.Context, action string, adminID uint, targetType, target, op string) {
	entry := auditEntry(action, uintRef(adminID), targetType, target, "", map[string]any{"performedBy": adminID}, o.now())
	if err := o.audit.Create(ctx, entry); err != nil {
		o.warnLogFailure(ctx, action, "admin_audit", err)
	}
	o.logger.InfoContext(ctx, "administrative security override",
		"module", "security_response",
		"operation", op,
		"outcome", "success",
		"user_id", adminID,
		"target", target,
	)
	o.notify(ctx, "Security override: "+action, fmt.Sprintf("%s on %s by admin %d", action, target, adminID), action, target)
}
