package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
)

const (
	ActionBlockIP           = "BLOCK_IP"
	ActionLockAccount       = "LOCK_ACCOUNT"
	ActionRequireReauth     = "REQUIRE_REAUTH"
	ActionEmergencyLockdown = "EMERGENCY_LOCKDOWN"
)

// errNoChange is returned by a mitigation that found its effect already in place.
var errNoChange = errors.New("mitigation already in effect")

// ResponseAction is the closed set of mitigations the orchestrator can execute.
// The unexported methods keep implementations inside this package.
type ResponseAction interface {
	Name() string
	mitigate(ctx context.Context, o *SecurityResponseOrchestrator, target, reason string) error
	mirror(target, reason string, at time.Time) *domain.AuditLog
}

var (
	_ ResponseAction = BlockIP{}
	_ ResponseAction = LockAccount{}
	_ ResponseAction = RequireReauth{}
	_ ResponseAction = EmergencyLockdown{}
)

type BlockIP struct {
	Duration time.Duration
}

func (BlockIP) Name() string { return ActionBlockIP }

func (a BlockIP) mitigate(ctx context.Context, o *SecurityResponseOrchestrator, target, reason string) error {
	return o.ipBlocks.Block(ctx, target, reason, a.Duration)
}

func (a BlockIP) mirror(target, reason string, at time.Time) *domain.AuditLog {
	return auditEntry(domain.AuditActionIPBlocked, nil, "ip", target, target, map[string]any{
		"reason":          reason,
		"durationSeconds": int64(a.Duration / time.Second),
	}, at)
}

// LockAccount sets the durable lock flag and revokes every session of the user.
type LockAccount struct {
	UserID uint
}

func (LockAccount) Name() string { return ActionLockAccount }

func (a LockAccount) mitigate(ctx context.Context, o *SecurityResponseOrchestrator, _, reason string) error {
	if err := o.flags.SetLocked(ctx, a.UserID, reason, o.now()); err != nil {
		return err
	}
	_, err := o.sessions.RevokeAll(ctx, a.UserID)
	return err
}

func (a LockAccount) mirror(target, reason string, at time.Time) *domain.AuditLog {
	return auditEntry(domain.AuditActionAccountLocked, nil, domain.AuditTargetUser, target, "", map[string]any{
		"userId": a.UserID,
		"reason": reason,
	}, at)
}

type RequireReauth struct {
	UserID uint
}

func (RequireReauth) Name() string { return ActionRequireReauth }

func (a RequireReauth) mitigate(ctx context.Context, o *SecurityResponseOrchestrator, _, _ string) error {
	return o.flags.SetReauthRequired(ctx, a.UserID, true)
}

func (a RequireReauth) mirror(target, reason string, at time.Time) *domain.AuditLog {
	return auditEntry(domain.AuditActionRequireReauth, nil, domain.AuditTargetUser, target, "", map[string]any{
		"userId": a.UserID,
		"reason": reason,
	}, at)
}

type EmergencyLockdown struct {
	ActivatedBy string
}

func (EmergencyLockdown) Name() string { return ActionEmergencyLockdown }

func (a EmergencyLockdown) mitigate(ctx context.Context, o *SecurityResponseOrchestrator, _, reason string) error {
	changed, err := o.lockdown.Activate(ctx, reason, a.ActivatedBy, o.now())
	if err != nil {
		return err
	}
	if !changed {
		return errNoChange
	}
	return nil
}

func (a EmergencyLockdown) mirror(target, reason string, at time.Time) *domain.AuditLog {
	return auditEntry(domain.AuditActionEmergencyLockdown, nil, domain.AuditTargetSystem, target, "", map[string]any{
		"reason":      reason,
		"activatedBy": a.ActivatedBy,
	}, at)
}
